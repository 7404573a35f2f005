package metadata

/** @brief Pixel formats accepted by texture uploads. */
type TextureFormat uint8

const (
	TextureFormatRGBA8 TextureFormat = iota
	TextureFormatRGBA8SRGB
	TextureFormatR8
)

// BytesPerPixel returns the size of one texel.
func (f TextureFormat) BytesPerPixel() int {
	switch f {
	case TextureFormatR8:
		return 1
	}
	return 4
}

type TextureFilter uint8

const (
	TextureFilterLinear TextureFilter = iota
	TextureFilterNearest
)

type TextureWrap uint8

const (
	TextureWrapRepeat TextureWrap = iota
	TextureWrapClampToEdge
	TextureWrapMirroredRepeat
)

/**
 * @brief Describes a texture to be uploaded.
 */
type TextureDescription struct {
	Name         string
	Width        uint32
	Height       uint32
	Format       TextureFormat
	GenerateMips bool
	Filter       TextureFilter
	Wrap         TextureWrap
	/** @brief Indicates if the texture has any transparent texels. */
	HasTransparency bool
}

// MipLevels returns the number of mip levels a full chain needs.
func (d TextureDescription) MipLevels() uint32 {
	if !d.GenerateMips {
		return 1
	}
	levels := uint32(1)
	w, h := d.Width, d.Height
	for w > 1 || h > 1 {
		w /= 2
		h /= 2
		levels++
	}
	return levels
}

/**
 * @brief A GPU resident texture.
 */
type Texture struct {
	Description TextureDescription
	Image       ImageID
	MipLevels   uint32
}

// TextureData is what a texture loader produces.
type TextureData struct {
	Pixels      []byte
	Description TextureDescription
}
