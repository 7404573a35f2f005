package assets

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-render/engine/assets/loaders"
	"github.com/spaghettifunk/anima-render/engine/core"
	"github.com/spaghettifunk/anima-render/engine/renderer/headless"
	"github.com/spaghettifunk/anima-render/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-render/engine/systems"
)

const testOBJ = `v 0 0 0
v 1 0 0
v 0 1 0
f 1 2 3
`

const testMaterial = `
name = "crate"
pipeline = "unlit"
diffuse_colour = [1.0, 0.5, 0.25, 1.0]
textures = ["crate.png"]
`

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func spirv() []byte {
	b := make([]byte, 20)
	binary.LittleEndian.PutUint32(b, 0x07230203)
	return b
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

// newAssetTree lays out a small asset directory and returns its root.
func newAssetTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "shaders", "standard.vert.spv"), spirv())
	writeFile(t, filepath.Join(root, "shaders", "standard.vert"), []byte("#version 450\n"))
	writeFile(t, filepath.Join(root, "textures", "crate.png"), pngBytes(t, 4, 4))
	writeFile(t, filepath.Join(root, "textures", "ui", "panel.png"), pngBytes(t, 2, 2))
	writeFile(t, filepath.Join(root, "materials", "crate.toml"), []byte(testMaterial))
	writeFile(t, filepath.Join(root, "meshes", "tri.obj"), []byte(testOBJ))
	writeFile(t, filepath.Join(root, "config.toml"), []byte("width = 10\n"))
	return root
}

func newTestRegistry(t *testing.T) *systems.ResourceSystem {
	t.Helper()
	be := headless.New()
	require.NoError(t, be.Initialize(nil, metadata.BackendConfig{
		Width: 64, Height: 64, FramesInFlight: 2, MaxInstances: 64, MaxUIVertices: 64,
	}))
	rs, err := systems.NewResourceSystem(systems.ResourceSystemConfig{FramesInFlight: 2, MaxMaterials: 16}, be, nil)
	require.NoError(t, err)
	require.NoError(t, rs.Initialize())
	return rs
}

func TestAssetManagerIndex(t *testing.T) {
	root := newAssetTree(t)
	am := NewAssetManager(root, "", nil)
	require.NoError(t, am.Initialize(false))
	defer am.Shutdown()

	assert.Equal(t, 5, am.Len())

	shader, ok := am.Lookup(AssetKindShader, "standard.vert")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(root, "shaders", "standard.vert.spv"), shader.Path)

	textures := am.List(AssetKindTexture)
	require.Len(t, textures, 2)
	assert.Equal(t, "crate.png", textures[0].Name)
	assert.Equal(t, "ui/panel.png", textures[1].Name)

	_, ok = am.Lookup(AssetKindMaterial, "config")
	assert.False(t, ok, "toml files outside materials/ are not materials")
	_, ok = am.Lookup(AssetKindMesh, "tri")
	assert.True(t, ok)
}

func TestAssetManagerMissingRoot(t *testing.T) {
	am := NewAssetManager(filepath.Join(t.TempDir(), "nope"), "", nil)
	err := am.Initialize(false)
	assert.ErrorIs(t, err, core.ErrInitializationFailure)
}

func TestAssetManagerLoaders(t *testing.T) {
	am := NewAssetManager(newAssetTree(t), "", nil)
	require.NoError(t, am.Initialize(false))

	code, err := am.LoadShader("standard.vert")
	require.NoError(t, err)
	assert.Len(t, code, 5)
	_, err = am.LoadShader("missing.frag")
	assert.Error(t, err)

	tex, err := am.LoadTexture("crate", loaders.DefaultTextureOptions())
	require.NoError(t, err)
	assert.Equal(t, uint32(4), tex.Description.Width)
	_, err = am.LoadTexture("ui/panel.png", loaders.DefaultTextureOptions())
	assert.NoError(t, err)
	_, err = am.LoadTexture("ghost", loaders.DefaultTextureOptions())
	assert.Error(t, err)

	mesh, err := am.LoadMesh("tri")
	require.NoError(t, err)
	assert.Len(t, mesh.Indices, 3)

	cfg, err := am.LoadMaterial("crate")
	require.NoError(t, err)
	assert.Equal(t, metadata.PipelineUnlit, cfg.Descriptor.Pipeline)
}

func TestAssetManagerSeparateShaderDir(t *testing.T) {
	root := newAssetTree(t)
	shaders := t.TempDir()
	writeFile(t, filepath.Join(shaders, "ui.frag.spv"), spirv())

	am := NewAssetManager(root, shaders, nil)
	require.NoError(t, am.Initialize(false))

	_, ok := am.Lookup(AssetKindShader, "ui.frag")
	assert.True(t, ok)
	_, err := am.LoadShader("ui.frag")
	assert.NoError(t, err)
	_, err = am.LoadShader("standard.vert")
	assert.Error(t, err, "shaders are only read from the shader directory")
}

func TestCreateAndReloadMaterial(t *testing.T) {
	root := newAssetTree(t)
	am := NewAssetManager(root, "", nil)
	require.NoError(t, am.Initialize(false))
	rs := newTestRegistry(t)

	mh, err := am.CreateMaterial(rs, "crate")
	require.NoError(t, err)
	m, err := rs.Material(mh)
	require.NoError(t, err)
	require.Len(t, m.Textures, 1)
	assert.Equal(t, float32(0.5), m.Params.DiffuseColour.Y)

	writeFile(t, filepath.Join(root, "materials", "crate.toml"), []byte(`
name = "crate"
pipeline = "unlit"
diffuse_colour = [0.0, 0.0, 1.0, 1.0]
textures = ["crate.png"]
`))
	require.NoError(t, am.ReloadMaterial(rs, "crate"))
	m, err = rs.Material(mh)
	require.NoError(t, err)
	assert.Equal(t, float32(1), m.Params.DiffuseColour.Z)

	assert.Error(t, am.ReloadMaterial(rs, "never_created"))
	_, err = am.CreateMaterial(rs, "missing")
	assert.ErrorIs(t, err, core.ErrInitializationFailure)
}

func TestAsyncLoadsGoThroughUploadQueue(t *testing.T) {
	am := NewAssetManager(newAssetTree(t), "", nil)
	require.NoError(t, am.Initialize(false))
	rs := newTestRegistry(t)
	jobs, err := systems.NewJobSystem(2, 8)
	require.NoError(t, err)

	var (
		mu       sync.Mutex
		texture  metadata.TextureHandle
		mesh     metadata.MeshHandle
		material metadata.MaterialHandle
		failures []error
	)
	record := func(err error) {
		if err != nil {
			failures = append(failures, err)
		}
	}
	require.NoError(t, am.LoadTextureAsync(jobs, rs, "crate", loaders.DefaultTextureOptions(), func(h metadata.TextureHandle, err error) {
		mu.Lock()
		defer mu.Unlock()
		texture = h
		record(err)
	}))
	require.NoError(t, am.LoadMeshAsync(jobs, rs, "tri", func(h metadata.MeshHandle, err error) {
		mu.Lock()
		defer mu.Unlock()
		mesh = h
		record(err)
	}))
	require.NoError(t, am.LoadMaterialAsync(jobs, rs, "crate", func(h metadata.MaterialHandle, err error) {
		mu.Lock()
		defer mu.Unlock()
		material = h
		record(err)
	}))
	missing := make(chan error, 1)
	require.NoError(t, am.LoadMeshAsync(jobs, rs, "ghost", func(h metadata.MeshHandle, err error) {
		missing <- err
	}))

	// workers decode, the frame loop uploads
	require.NoError(t, jobs.Shutdown())
	assert.Error(t, <-missing)

	for frame := uint64(1); frame <= 3; frame++ {
		rs.BeginFrame(frame, -1)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, failures)
	_, err = rs.Texture(texture)
	assert.NoError(t, err)
	_, err = rs.Mesh(mesh)
	assert.NoError(t, err)
	m, err := rs.Material(material)
	require.NoError(t, err)
	require.Len(t, m.Textures, 1)
	_, err = rs.Texture(m.Textures[0])
	assert.NoError(t, err)
}

func TestWatcherFiresAssetChanged(t *testing.T) {
	root := newAssetTree(t)
	events := core.NewEventBus()
	changed := make(chan core.EventContext, 16)
	events.Register(core.EVENT_CODE_ASSET_CHANGED, t, func(code core.SystemEventCode, sender, listener interface{}, data core.EventContext) bool {
		changed <- data
		return true
	})

	am := NewAssetManager(root, "", events)
	require.NoError(t, am.Initialize(true))
	defer am.Shutdown()

	writeFile(t, filepath.Join(root, "shaders", "standard.vert.spv"), spirv())

	select {
	case data := <-changed:
		assert.Equal(t, "standard.vert", data.Data.C[0])
		assert.Equal(t, AssetKindShader, ParseAssetKind(data.Data.C[1]))
	case <-time.After(5 * time.Second):
		t.Fatal("no asset change reported")
	}
}

func TestAssetKindRoundTrip(t *testing.T) {
	for k := AssetKindShader; k <= AssetKindFont; k++ {
		assert.Equal(t, k, ParseAssetKind(k.String()))
	}
	assert.Equal(t, AssetKindNone, ParseAssetKind("sound"))
}
