package metadata

// ShaderSource resolves a shader name to SPIR-V words.
type ShaderSource interface {
	LoadShader(name string) ([]uint32, error)
}
