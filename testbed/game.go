package testbed

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/spaghettifunk/anima-render/engine"
	"github.com/spaghettifunk/anima-render/engine/assets"
	"github.com/spaghettifunk/anima-render/engine/config"
	"github.com/spaghettifunk/anima-render/engine/core"
	"github.com/spaghettifunk/anima-render/engine/ecs"
	"github.com/spaghettifunk/anima-render/engine/math"
	"github.com/spaghettifunk/anima-render/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-render/engine/systems"
	"github.com/spaghettifunk/anima-render/engine/ui"
)

// Font and material names looked up in the asset directory. Both are optional.
const (
	fontName     = "ubuntu_mono"
	materialName = "crate"
	statsEvery   = 120

	moveSpeed = 6.0
	turnSpeed = 1.5
)

type TestGame struct {
	*engine.Game
	state *gameState
}

type gameState struct {
	camera   *systems.FlyCamera
	manual   bool
	spinners []ecs.Entity
	orbiter  ecs.Entity

	font      *ui.BitmapFont
	statsText ui.NodeID

	elapsed   float64
	frames    uint64
	maxFrames uint64
	width     uint32
	height    uint32
}

/**
 * @brief Creates the demo scene game. maxFrames stops the loop after that
 * many frames; zero runs until the window closes.
 */
func NewTestGame(cfg *config.EngineConfig, maxFrames uint64) *TestGame {
	state := &gameState{maxFrames: maxFrames, statsText: ui.InvalidNode}
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: &engine.ApplicationConfig{
				StartPosX: 100,
				StartPosY: 100,
				Engine:    cfg,
			},
			State: state,
		},
		state: state,
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown

	return tg
}

func (g *TestGame) Initialize(e *engine.Engine) error {
	core.LogInfo("initializing testbed scene...")
	rs := e.Registry()
	world := e.World()

	v, i := systems.GenerateCube(1, 1, 1, 1, 1)
	cube, err := rs.UploadGeometry("cube", v, i)
	if err != nil {
		return err
	}
	v, i = systems.GenerateSphere(0.5, 16, 24)
	sphere, err := rs.UploadGeometry("sphere", v, i)
	if err != nil {
		return err
	}
	v, i = systems.GeneratePlane(40, 40, 4, 4, 8, 8)
	plane, err := rs.UploadGeometry("floor", v, i)
	if err != nil {
		return err
	}

	solid, err := g.material(rs, "painted", metadata.PipelineStandardPBR, metadata.AlphaOpaque, math.NewVec4(0.8, 0.3, 0.2, 1))
	if err != nil {
		return err
	}
	floor, err := g.material(rs, "floor", metadata.PipelineStandardPBR, metadata.AlphaOpaque, math.NewVec4(0.4, 0.4, 0.45, 1))
	if err != nil {
		return err
	}
	glass, err := g.material(rs, "glass", metadata.PipelineTransparent, metadata.AlphaBlended, math.NewVec4(0.3, 0.6, 0.9, 0.4))
	if err != nil {
		return err
	}
	glow, err := g.material(rs, "glow", metadata.PipelineUnlit, metadata.AlphaOpaque, math.NewVec4(1, 0.9, 0.5, 1))
	if err != nil {
		return err
	}

	// a crate material from disk replaces the painted one when present
	if _, ok := e.Assets().Lookup(assets.AssetKindMaterial, materialName); ok {
		if mh, err := e.Assets().CreateMaterial(rs, materialName); err != nil {
			core.LogWarn("material '%s' not loaded: %s", materialName, err)
		} else {
			solid = mh
		}
	}

	if _, err := g.spawn(e, plane, floor, math.NewVec3(0, -1, 0)); err != nil {
		return err
	}
	for x := -2; x <= 2; x++ {
		entity, err := g.spawn(e, cube, solid, math.NewVec3(float32(x)*2.5, 0, 0))
		if err != nil {
			return err
		}
		g.state.spinners = append(g.state.spinners, entity)
	}
	for z := 0; z < 10; z++ {
		for x := 0; x < 10; x++ {
			pos := math.NewVec3(float32(x)*1.5-6.75, 2.5, -float32(z)*1.5-3)
			if _, err := g.spawn(e, sphere, solid, pos); err != nil {
				return err
			}
		}
	}
	for x := -1; x <= 1; x++ {
		if _, err := g.spawn(e, cube, glass, math.NewVec3(float32(x)*3, 0.5, 3)); err != nil {
			return err
		}
	}

	sun := world.Create()
	if err := ecs.Add(world, sun, ecs.Light{Light: metadata.NewDirectionalLight(math.NewVec3(-0.3, -1, -0.4), math.NewVec3(1, 0.95, 0.9), 0.8)}); err != nil {
		return err
	}
	if g.state.orbiter, err = g.spawn(e, sphere, glow, math.NewVec3(4, 1.5, 0)); err != nil {
		return err
	}
	if err := ecs.Add(world, g.state.orbiter, ecs.Light{Light: metadata.NewPointLight(math.NewVec3Zero(), math.NewVec3(1, 0.8, 0.4), 3, 8)}); err != nil {
		return err
	}

	marker := world.Create()
	if err := ecs.Add(world, marker, ecs.NewTransform(math.NewVec3(0, 4, 0))); err != nil {
		return err
	}
	if err := ecs.Add(world, marker, ecs.Billboard{
		Size:    math.NewVec2(1, 1),
		Colour:  metadata.Colour{X: 1, Y: 0.6, Z: 0.2, W: 0.8},
		Texture: rs.DefaultTexture(),
		Blend:   metadata.BlendModeAdditive,
	}); err != nil {
		return err
	}

	cameraEntity := world.Create()
	if err := ecs.Add(world, cameraEntity, ecs.NewTransform(math.NewVec3(0, 4, 14))); err != nil {
		return err
	}
	if err := ecs.Add(world, cameraEntity, ecs.Camera{FovRadians: math.DegToRad(60), Near: 0.1, Far: 200}); err != nil {
		return err
	}
	if g.state.camera, err = systems.NewFlyCamera(world, cameraEntity); err != nil {
		return err
	}
	g.state.camera.LookAt(math.NewVec3Zero())

	return g.buildUI(e)
}

func (g *TestGame) material(rs *systems.ResourceSystem, name string, pipeline metadata.PipelineKind, alpha metadata.AlphaMode, colour math.Vec4) (metadata.MaterialHandle, error) {
	params := metadata.DefaultMaterialParams()
	params.DiffuseColour = colour
	return rs.CreateMaterial(metadata.MaterialDescriptor{Name: name, Pipeline: pipeline, Alpha: alpha, Params: params})
}

func (g *TestGame) spawn(e *engine.Engine, mesh metadata.MeshHandle, material metadata.MaterialHandle, pos math.Vec3) (ecs.Entity, error) {
	m, err := e.Registry().Mesh(mesh)
	if err != nil {
		return ecs.Entity{}, err
	}
	entity := e.World().Create()
	if err := ecs.Add(e.World(), entity, ecs.NewTransform(pos)); err != nil {
		return entity, err
	}
	return entity, ecs.Add(e.World(), entity, ecs.Renderable{Mesh: mesh, Material: material, LocalAABB: m.LocalAABB})
}

func (g *TestGame) buildUI(e *engine.Engine) error {
	tree := e.UI()
	panel, err := tree.Add(tree.Root(), ui.Widget{
		Kind:   ui.WidgetPanel,
		Name:   "stats_panel",
		Anchor: ui.AnchorTopLeft,
		Align:  ui.AnchorTopLeft,
		Offset: math.NewVec2(10, 10),
		Size:   math.NewVec2(260, 48),
		Colour: metadata.Colour{X: 0, Y: 0, Z: 0, W: 0.6},
	})
	if err != nil {
		return err
	}

	if _, ok := e.Assets().Lookup(assets.AssetKindFont, fontName); !ok {
		core.LogInfo("font '%s' not found, text is disabled", fontName)
		return nil
	}
	data, err := e.Assets().LoadBitmapFont(fontName)
	if err != nil {
		return err
	}
	atlas, err := e.Registry().UploadTexture(data.Atlas.Pixels, data.Atlas.Description)
	if err != nil {
		return err
	}
	if g.state.font, err = ui.NewBitmapFont(data.Descriptor, atlas); err != nil {
		return err
	}

	if g.state.statsText, err = tree.Add(panel, ui.Widget{
		Kind:     ui.WidgetText,
		Name:     "stats",
		Anchor:   ui.AnchorCenterLeft,
		Align:    ui.AnchorCenterLeft,
		Offset:   math.NewVec2(8, 0),
		Colour:   metadata.Colour{X: 1, Y: 1, Z: 1, W: 1},
		FontSize: 18,
		Font:     g.state.font,
	}); err != nil {
		return err
	}

	label := e.World().Create()
	if err := ecs.Add(e.World(), label, ecs.NewTransform(math.NewVec3(-2, 2, 3))); err != nil {
		return err
	}
	return ecs.Add(e.World(), label, ecs.Text{
		Text:   "anima",
		Height: 0.6,
		Colour: metadata.Colour{X: 0.9, Y: 0.9, Z: 1, W: 1},
		Font:   g.state.font,
	})
}

func (g *TestGame) Update(e *engine.Engine, deltaTime float64) error {
	s := g.state
	s.elapsed += deltaTime
	s.frames++
	if s.maxFrames > 0 && s.frames >= s.maxFrames {
		e.Quit()
	}
	t := float32(s.elapsed)
	world := e.World()

	spin := math.NewQuatFromAxisAngle(math.NewVec3(0, 1, 0), float32(deltaTime), true)
	for _, entity := range s.spinners {
		if tr, ok := ecs.Get[ecs.Transform](world, entity); ok {
			tr.Transform = tr.Rotate(spin)
		}
	}
	if tr, ok := ecs.Get[ecs.Transform](world, s.orbiter); ok {
		tr.Position = math.NewVec3(4*math32.Cos(t), 1.5, 4*math32.Sin(t))
	}

	if g.steer(e.Input(), float32(deltaTime)) {
		s.manual = true
	}
	if !s.manual {
		// slow orbit around the origin until a movement key is pressed
		s.camera.Position = math.NewVec3(14*math32.Sin(t*0.1), 4, 14*math32.Cos(t*0.1))
		s.camera.LookAt(math.NewVec3Zero())
	}
	return s.camera.Apply(world)
}

// steer moves the camera with WASD, Q/E for height and the arrow keys to
// look around. It reports whether any of those keys is held.
func (g *TestGame) steer(in *core.Input, dt float32) bool {
	cam := g.state.camera
	step, turn := moveSpeed*dt, turnSpeed*dt
	held := false
	bindings := []struct {
		key core.KeyCode
		fn  func(float32)
		by  float32
	}{
		{core.KEY_W, cam.MoveForward, step},
		{core.KEY_S, cam.MoveBackward, step},
		{core.KEY_A, cam.MoveLeft, step},
		{core.KEY_D, cam.MoveRight, step},
		{core.KEY_E, cam.MoveUp, step},
		{core.KEY_Q, cam.MoveDown, step},
		{core.KEY_LEFT, cam.Turn, turn},
		{core.KEY_RIGHT, cam.Turn, -turn},
		{core.KEY_UP, cam.Tilt, turn},
		{core.KEY_DOWN, cam.Tilt, -turn},
	}
	for _, b := range bindings {
		if in.IsKeyDown(b.key) {
			b.fn(b.by)
			held = true
		}
	}
	return held
}

func (g *TestGame) Render(e *engine.Engine, data *metadata.RenderFrameData, deltaTime float64) error {
	data.Ambient = metadata.Colour{X: 0.6, Y: 0.7, Z: 1, W: 0.15}

	stats := e.LastStats()
	if g.state.statsText != ui.InvalidNode {
		if w, ok := e.UI().Widget(g.state.statsText); ok {
			w.Text = fmt.Sprintf("%.0f fps  %d draws  %d culled", stats.FPS, stats.DrawCalls, stats.Culled)
		}
	}
	if g.state.frames%statsEvery == 0 {
		core.LogDebug("frame %d: %d batches, %d draws, %d instances, %d culled, %.2fms",
			stats.Frame, stats.Batches, stats.DrawCalls, stats.Instances, stats.Culled, stats.AverageMS)
	}
	return nil
}

func (g *TestGame) OnResize(width, height uint32) error {
	g.state.width, g.state.height = width, height
	return nil
}

func (g *TestGame) Shutdown() error {
	core.LogInfo("testbed ran %d frames in %.1fs", g.state.frames, g.state.elapsed)
	return nil
}
