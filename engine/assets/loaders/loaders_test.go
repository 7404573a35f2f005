package loaders

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-render/engine/math"
	"github.com/spaghettifunk/anima-render/engine/renderer/metadata"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDecodeTextureConvertsToRGBA(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 2, 3))
	gray.SetGray(1, 0, color.Gray{Y: 200})

	data, err := DecodeTexture(bytes.NewReader(encodePNG(t, gray)), "gray", DefaultTextureOptions())
	require.NoError(t, err)

	assert.Equal(t, uint32(2), data.Description.Width)
	assert.Equal(t, uint32(3), data.Description.Height)
	assert.Equal(t, metadata.TextureFormatRGBA8SRGB, data.Description.Format)
	assert.Len(t, data.Pixels, 2*3*4)
	assert.Equal(t, []byte{200, 200, 200, 255}, data.Pixels[4:8])
	assert.False(t, data.Description.HasTransparency)
}

func TestDecodeTextureFlipAndTransparency(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	img.Set(0, 1, color.RGBA{B: 100, A: 100})

	data, err := DecodeTexture(bytes.NewReader(encodePNG(t, img)), "flip", TextureOptions{FlipY: true})
	require.NoError(t, err)

	assert.Equal(t, metadata.TextureFormatRGBA8, data.Description.Format)
	assert.True(t, data.Description.HasTransparency)
	// the bottom row is now first
	assert.Equal(t, uint8(100), data.Pixels[3])
	assert.Equal(t, []byte{255, 0, 0, 255}, data.Pixels[4:8])
}

func TestDecodeTextureRejectsGarbage(t *testing.T) {
	_, err := DecodeTexture(strings.NewReader("not an image"), "junk", DefaultTextureOptions())
	assert.Error(t, err)
}

func TestLoadTextureFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "crate.png")
	require.NoError(t, os.WriteFile(path, encodePNG(t, image.NewRGBA(image.Rect(0, 0, 4, 4))), 0o644))

	data, err := LoadTexture(path, DefaultTextureOptions())
	require.NoError(t, err)
	assert.Equal(t, "crate", data.Description.Name)
	assert.Equal(t, uint32(3), data.Description.MipLevels())
}

const quadOBJ = `# a unit quad
v -0.5 -0.5 0
v 0.5 -0.5 0
v 0.5 0.5 0
v -0.5 0.5 0
vt 0 0
vt 1 0
vt 1 1
vt 0 1
vn 0 0 1
f 1/1/1 2/2/1 3/3/1 4/4/1
`

func vertices(t *testing.T, data *metadata.MeshData) []metadata.Vertex3D {
	t.Helper()
	stride := metadata.VertexLayoutStandard.Stride()
	require.Zero(t, len(data.Vertices)%stride)
	out := make([]metadata.Vertex3D, len(data.Vertices)/stride)
	copy(metadata.AsBytes(out), data.Vertices)
	return out
}

func TestDecodeMeshFansPolygons(t *testing.T) {
	data, err := DecodeMesh(strings.NewReader(quadOBJ), "quad")
	require.NoError(t, err)

	assert.Equal(t, []uint32{0, 1, 2, 0, 2, 3}, data.Indices)
	assert.Equal(t, metadata.VertexLayoutStandard, data.Layout)
	vs := vertices(t, data)
	require.Len(t, vs, 4)
	assert.Equal(t, math.NewVec3(0, 0, 1), vs[0].Normal)
	// texcoords are flipped to a top-left origin
	assert.Equal(t, math.NewVec2(0, 1), vs[0].Texcoord)
	require.NotNil(t, data.LocalAABB)
	assert.Equal(t, math.NewVec3(-0.5, -0.5, 0), data.LocalAABB.Min)
	assert.Equal(t, math.NewVec3(0.5, 0.5, 0), data.LocalAABB.Max)
}

func TestDecodeMeshSharesCornersAndGeneratesNormals(t *testing.T) {
	src := `v 0 0 0
v 1 0 0
v 0 1 0
v 1 1 0
f 1 2 3
f -3 -1 -2
`
	data, err := DecodeMesh(strings.NewReader(src), "tris")
	require.NoError(t, err)

	assert.Equal(t, []uint32{0, 1, 2, 1, 3, 2}, data.Indices)
	vs := vertices(t, data)
	require.Len(t, vs, 4)
	for _, v := range vs {
		assert.InDelta(t, 1, v.Normal.Z, 1e-6)
	}
}

func TestDecodeMeshErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"no faces", "v 0 0 0\n"},
		{"zero index", "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 0 1 2\n"},
		{"out of range", "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 9\n"},
		{"short face", "v 0 0 0\nv 1 0 0\nf 1 2\n"},
		{"bad number", "v 0 x 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeMesh(strings.NewReader(tt.src), tt.name)
			assert.Error(t, err)
		})
	}
}

func TestDecodeMaterialDefaults(t *testing.T) {
	cfg, err := DecodeMaterial([]byte(`name = "plain"`))
	require.NoError(t, err)

	assert.Equal(t, "plain", cfg.Descriptor.Name)
	assert.Equal(t, metadata.PipelineStandardPBR, cfg.Descriptor.Pipeline)
	assert.Equal(t, metadata.AlphaOpaque, cfg.Descriptor.Alpha)
	assert.Equal(t, metadata.DefaultMaterialParams(), cfg.Descriptor.Params)
	assert.Empty(t, cfg.TextureNames)
}

func TestDecodeMaterialFields(t *testing.T) {
	src := `
name = "glass"
pipeline = "transparent"
alpha = "blended"
diffuse_colour = [0.2, 0.4, 0.6, 0.5]
roughness = 0.1
shininess = 64.0
textures = ["glass.png"]
`
	cfg, err := DecodeMaterial([]byte(src))
	require.NoError(t, err)

	assert.Equal(t, metadata.PipelineTransparent, cfg.Descriptor.Pipeline)
	assert.Equal(t, metadata.AlphaBlended, cfg.Descriptor.Alpha)
	assert.Equal(t, math.NewVec4(0.2, 0.4, 0.6, 0.5), cfg.Descriptor.Params.DiffuseColour)
	assert.Equal(t, float32(0.1), cfg.Descriptor.Params.Roughness)
	assert.Equal(t, float32(64), cfg.Descriptor.Params.Shininess)
	assert.Equal(t, []string{"glass.png"}, cfg.TextureNames)
}

func TestDecodeMaterialValidation(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"missing name", `pipeline = "unlit"`},
		{"unknown pipeline", "name = \"x\"\npipeline = \"toon\""},
		{"unknown alpha", "name = \"x\"\nalpha = \"dithered\""},
		{"colour out of range", "name = \"x\"\ndiffuse_colour = [2.0, 0.0, 0.0, 1.0]"},
		{"negative shininess", "name = \"x\"\nshininess = -1.0"},
		{"not toml", "name = "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeMaterial([]byte(tt.src))
			assert.Error(t, err)
		})
	}
}

func spirvBytes(words ...uint32) []byte {
	b := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(b[i*4:], w)
	}
	return b
}

func TestDecodeSPIRV(t *testing.T) {
	code, err := DecodeSPIRV(spirvBytes(spirvMagic, 0x00010000, 0, 8, 0))
	require.NoError(t, err)
	assert.Equal(t, []uint32{spirvMagic, 0x00010000, 0, 8, 0}, code)

	_, err = DecodeSPIRV(spirvBytes(0xdeadbeef, 0, 0, 0, 0))
	assert.Error(t, err)
	_, err = DecodeSPIRV(append(spirvBytes(spirvMagic, 0, 0, 0, 0), 1))
	assert.Error(t, err)
	_, err = DecodeSPIRV(nil)
	assert.Error(t, err)
}
