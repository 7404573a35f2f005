package loaders

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/anima-render/engine/math"
	"github.com/spaghettifunk/anima-render/engine/renderer/metadata"
)

// MaterialFile is the on-disk layout of a material descriptor.
type MaterialFile struct {
	Name          string      `toml:"name"`
	Pipeline      string      `toml:"pipeline"`
	Alpha         string      `toml:"alpha"`
	AlphaCutoff   *float32    `toml:"alpha_cutoff"`
	DiffuseColour *[4]float32 `toml:"diffuse_colour"`
	Emissive      [4]float32  `toml:"emissive"`
	Metallic      float32     `toml:"metallic"`
	Roughness     *float32    `toml:"roughness"`
	Shininess     *float32    `toml:"shininess"`
	Textures      []string    `toml:"textures"` // relative to the textures directory
}

/**
 * @brief A parsed material. Textures are still names; the caller resolves
 * them to handles before creating the material.
 */
type MaterialConfig struct {
	Descriptor   metadata.MaterialDescriptor
	TextureNames []string
}

var pipelineKinds = map[string]metadata.PipelineKind{
	"standard_pbr": metadata.PipelineStandardPBR,
	"unlit":        metadata.PipelineUnlit,
	"transparent":  metadata.PipelineTransparent,
	"billboard":    metadata.PipelineBillboard,
	"text":         metadata.PipelineText,
}

var alphaModes = map[string]metadata.AlphaMode{
	"":        metadata.AlphaOpaque,
	"opaque":  metadata.AlphaOpaque,
	"masked":  metadata.AlphaMasked,
	"blended": metadata.AlphaBlended,
}

func LoadMaterial(path string) (*MaterialConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeMaterial(data)
}

// DecodeMaterial parses a TOML material descriptor and fills unset fields with defaults.
func DecodeMaterial(data []byte) (*MaterialConfig, error) {
	var file MaterialFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("material: %w", err)
	}
	if file.Name == "" {
		return nil, fmt.Errorf("material name is required")
	}

	kind, ok := pipelineKinds[strings.ToLower(file.Pipeline)]
	if file.Pipeline == "" {
		kind, ok = metadata.PipelineStandardPBR, true
	}
	if !ok {
		return nil, fmt.Errorf("material '%s': unknown pipeline %q", file.Name, file.Pipeline)
	}
	alpha, ok := alphaModes[strings.ToLower(file.Alpha)]
	if !ok {
		return nil, fmt.Errorf("material '%s': unknown alpha mode %q", file.Name, file.Alpha)
	}

	params := metadata.DefaultMaterialParams()
	if file.DiffuseColour != nil {
		c := *file.DiffuseColour
		params.DiffuseColour = math.Vec4{X: c[0], Y: c[1], Z: c[2], W: c[3]}
	}
	params.Emissive = math.Vec4{X: file.Emissive[0], Y: file.Emissive[1], Z: file.Emissive[2], W: file.Emissive[3]}
	params.Metallic = file.Metallic
	if file.Roughness != nil {
		params.Roughness = *file.Roughness
	}
	if file.Shininess != nil {
		params.Shininess = *file.Shininess
	}
	if file.AlphaCutoff != nil {
		params.AlphaCutoff = *file.AlphaCutoff
	}
	if err := validateMaterial(file.Name, params); err != nil {
		return nil, err
	}

	return &MaterialConfig{
		Descriptor: metadata.MaterialDescriptor{
			Name:     file.Name,
			Pipeline: kind,
			Alpha:    alpha,
			Params:   params,
		},
		TextureNames: file.Textures,
	}, nil
}

func validateMaterial(name string, params metadata.MaterialParams) error {
	// Check that DiffuseColour values are within [0.0, 1.0] range
	if !isValidVec4(params.DiffuseColour) {
		return fmt.Errorf("material '%s': diffuse_colour values must be between 0.0 and 1.0", name)
	}
	if !inRange(params.Metallic) || !inRange(params.Roughness) || !inRange(params.AlphaCutoff) {
		return fmt.Errorf("material '%s': metallic, roughness and alpha_cutoff must be between 0.0 and 1.0", name)
	}
	if params.Shininess < 0 {
		return fmt.Errorf("material '%s': shininess must be a non-negative value", name)
	}
	return nil
}

func isValidVec4(v math.Vec4) bool {
	return inRange(v.X) && inRange(v.Y) && inRange(v.Z) && inRange(v.W)
}

func inRange(value float32) bool {
	return value >= 0.0 && value <= 1.0
}
