package systems

import (
	"fmt"

	"github.com/spaghettifunk/anima-render/engine/core"
	"github.com/spaghettifunk/anima-render/engine/ecs"
	"github.com/spaghettifunk/anima-render/engine/math"
	"github.com/spaghettifunk/anima-render/engine/renderer/metadata"
)

/** @brief The configuration for the scene extractor */
type SceneExtractorConfig struct {
	FramesInFlight int
	MaxLights      int
	/** @brief Used when the scene has no camera entity. */
	DefaultCamera metadata.Camera
}

/**
 * @brief Snapshots an ECS world into the RenderFrameData owned by a frame
 * slot. The slices of each slot are reused from frame to frame.
 */
type SceneExtractor struct {
	config   SceneExtractorConfig
	frames   []metadata.RenderFrameData
	lights   []metadata.Light
	selector LightSelector
	width    uint32
	height   uint32
}

func NewSceneExtractor(config SceneExtractorConfig) (*SceneExtractor, error) {
	if config.FramesInFlight < 1 || config.FramesInFlight > metadata.MaxFramesInFlight {
		err := fmt.Errorf("func NewSceneExtractor - FramesInFlight must be in [1,%d]", metadata.MaxFramesInFlight)
		core.LogError(err.Error())
		return nil, err
	}
	if config.MaxLights <= 0 || config.MaxLights > metadata.MaxLights {
		config.MaxLights = metadata.MaxLights
	}
	return &SceneExtractor{
		config: config,
		frames: make([]metadata.RenderFrameData, config.FramesInFlight),
	}, nil
}

// SetViewport sets the extent used for cameras without a fixed aspect ratio.
func (se *SceneExtractor) SetViewport(width, height uint32) {
	se.width, se.height = width, height
}

/**
 * @brief Extracts the world into the buffer of slot. The returned data is
 * valid until the same slot is extracted again.
 *
 * @param world The world to read.
 * @param slot The frame-in-flight slot index.
 * @return The frame data of the slot.
 */
func (se *SceneExtractor) Extract(world *ecs.World, slot int) (*metadata.RenderFrameData, error) {
	if slot < 0 || slot >= len(se.frames) {
		err := fmt.Errorf("slot %d out of range [0,%d)", slot, len(se.frames))
		core.LogError(err.Error())
		return nil, core.NewError(core.KindUnknown, core.StageExtract, err)
	}
	data := &se.frames[slot]
	data.Reset()

	data.Camera = se.camera(world)

	ecs.Each2(world, func(e ecs.Entity, t *ecs.Transform, r *ecs.Renderable) bool {
		if !active(world, e) {
			return true
		}
		model := t.Matrix()
		tint := r.Tint
		if tint == (metadata.Colour{}) {
			tint = metadata.Colour{X: 1, Y: 1, Z: 1, W: 1}
		}
		data.Renderables = append(data.Renderables, metadata.RenderableObject{
			Entity:    e.ID(),
			Mesh:      r.Mesh,
			Material:  r.Material,
			Transform: model,
			WorldAABB: r.LocalAABB.Transform(model),
			Tint:      tint,
		})
		return true
	})

	se.lights = se.lights[:0]
	ecs.StorageOf[ecs.Light](world).Each(func(e ecs.Entity, l *ecs.Light) bool {
		if !active(world, e) {
			return true
		}
		light := l.Light
		if t, ok := ecs.Get[ecs.Transform](world, e); ok {
			model := t.Matrix()
			light.Position = light.Position.Transform(model)
			if light.Direction.LengthSquared() > 0 {
				light.Direction = light.Direction.TransformDirection(model).Normalize()
			}
		}
		se.lights = append(se.lights, light)
		return true
	})
	data.Lights = se.selector.Select(data.Lights, se.lights, data.Camera.Position, se.config.MaxLights)

	ecs.Each2(world, func(e ecs.Entity, t *ecs.Transform, b *ecs.Billboard) bool {
		if !active(world, e) {
			return true
		}
		data.Billboards = append(data.Billboards, metadata.BillboardQuad{
			Position:    t.Position,
			Size:        b.Size,
			Colour:      b.Colour,
			Texture:     b.Texture,
			Orientation: b.Orientation,
			Axis:        b.Axis,
			Blend:       b.Blend,
		})
		return true
	})

	ecs.StorageOf[ecs.TrailEmitter](world).Each(func(e ecs.Entity, t *ecs.TrailEmitter) bool {
		if active(world, e) {
			data.Billboards = appendTrail(data.Billboards, t)
		}
		return true
	})

	ecs.Each2(world, func(e ecs.Entity, t *ecs.Transform, txt *ecs.Text) bool {
		if !active(world, e) || txt.Font == nil || txt.Text == "" {
			return true
		}
		data.WorldTexts = append(data.WorldTexts, metadata.WorldText{
			Position: t.Position,
			Text:     txt.Text,
			Height:   txt.Height,
			Colour:   txt.Colour,
			Font:     txt.Font,
			Additive: txt.Additive,
		})
		return true
	})

	return data, nil
}

// camera builds the frame camera from the first active camera entity.
func (se *SceneExtractor) camera(world *ecs.World) metadata.Camera {
	cam := se.config.DefaultCamera
	found := false
	ecs.Each2(world, func(e ecs.Entity, t *ecs.Transform, c *ecs.Camera) bool {
		if !active(world, e) {
			return true
		}
		aspect := c.Aspect
		if aspect == 0 {
			aspect = se.aspect()
		}
		position := t.Position
		var view math.Mat4
		if c.Target != nil {
			view = math.NewMat4LookAt(position, *c.Target, math.NewVec3Up())
		} else {
			pose := t.Transform
			pose.Scale = math.NewVec3One()
			view = pose.Matrix().Inverse()
		}
		cam = metadata.Camera{
			View:       view,
			Projection: math.NewMat4Perspective(c.FovRadians, aspect, c.Near, c.Far),
			Position:   position,
			Near:       c.Near,
			Far:        c.Far,
			Aspect:     aspect,
			ClearColor: c.ClearColor,
		}
		found = true
		return false
	})
	if !found {
		core.LogDebug("no active camera entity, using the default camera")
	}
	return cam
}

func (se *SceneExtractor) aspect() float32 {
	if se.width == 0 || se.height == 0 {
		return 1
	}
	return float32(se.width) / float32(se.height)
}

// active reports whether e takes part in rendering. Entities without a
// Lifecycle component are active.
func active(world *ecs.World, e ecs.Entity) bool {
	l, ok := ecs.Get[ecs.Lifecycle](world, e)
	return !ok || l.State == ecs.LifecycleActive
}
