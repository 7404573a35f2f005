package loaders

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/spaghettifunk/anima-render/engine/renderer/metadata"
)

// TextureExtensions lists the image formats a texture can be decoded from.
var TextureExtensions = []string{".png", ".jpg", ".jpeg", ".bmp", ".tif", ".tiff", ".webp"}

/** @brief Options applied while turning an image file into texture data. */
type TextureOptions struct {
	FlipY        bool
	SRGB         bool
	GenerateMips bool
	Filter       metadata.TextureFilter
	Wrap         metadata.TextureWrap
}

func DefaultTextureOptions() TextureOptions {
	return TextureOptions{
		SRGB:         true,
		GenerateMips: true,
		Filter:       metadata.TextureFilterLinear,
		Wrap:         metadata.TextureWrapRepeat,
	}
}

// LoadTexture decodes the image at path into tightly packed RGBA8 pixels.
func LoadTexture(path string, options TextureOptions) (*metadata.TextureData, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return DecodeTexture(file, name, options)
}

/**
 * @brief Decodes any registered image format and converts it to RGBA8.
 * @param r The encoded image.
 * @param name The texture name recorded in the description.
 * @param options Orientation, colour space and sampling options.
 */
func DecodeTexture(r io.Reader, name string, options TextureOptions) (*metadata.TextureData, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("texture '%s': %w", name, err)
	}
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, fmt.Errorf("texture '%s': empty %s image", name, format)
	}

	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != bounds.Dx()*4 || bounds.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	}
	if options.FlipY {
		flipRows(rgba.Pix, rgba.Stride, bounds.Dy())
	}

	textureFormat := metadata.TextureFormatRGBA8
	if options.SRGB {
		textureFormat = metadata.TextureFormatRGBA8SRGB
	}
	return &metadata.TextureData{
		Pixels: rgba.Pix,
		Description: metadata.TextureDescription{
			Name:            name,
			Width:           uint32(bounds.Dx()),
			Height:          uint32(bounds.Dy()),
			Format:          textureFormat,
			GenerateMips:    options.GenerateMips,
			Filter:          options.Filter,
			Wrap:            options.Wrap,
			HasTransparency: hasTransparency(rgba.Pix),
		},
	}, nil
}

func flipRows(pix []byte, stride, rows int) {
	tmp := make([]byte, stride)
	for top, bottom := 0, rows-1; top < bottom; top, bottom = top+1, bottom-1 {
		a := pix[top*stride : (top+1)*stride]
		b := pix[bottom*stride : (bottom+1)*stride]
		copy(tmp, a)
		copy(a, b)
		copy(b, tmp)
	}
}

func hasTransparency(pix []byte) bool {
	for i := 3; i < len(pix); i += 4 {
		if pix[i] < 255 {
			return true
		}
	}
	return false
}
