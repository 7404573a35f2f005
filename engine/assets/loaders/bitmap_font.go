package loaders

import (
	"fmt"
	"path/filepath"

	"github.com/fzipp/bmfont"

	"github.com/spaghettifunk/anima-render/engine/renderer/metadata"
)

/**
 * @brief An AngelCode bitmap font together with its decoded atlas page.
 */
type BitmapFontData struct {
	Descriptor *bmfont.Descriptor
	Atlas      *metadata.TextureData
}

/**
 * @brief Reads a text .fnt descriptor and the image of its first page.
 * Fonts spanning several pages are rejected.
 * @param path The .fnt file; page files are resolved next to it.
 */
func LoadBitmapFont(path string) (*BitmapFontData, error) {
	font, err := bmfont.Load(path)
	if err != nil {
		return nil, fmt.Errorf("bitmap font '%s': %w", path, err)
	}
	desc := font.Descriptor
	if len(desc.Pages) != 1 {
		return nil, fmt.Errorf("bitmap font '%s': %d pages, expected exactly one", desc.Info.Face, len(desc.Pages))
	}

	var pageFile string
	for _, p := range desc.Pages {
		pageFile = p.File
	}

	// no mips, stored linear
	atlas, err := LoadTexture(filepath.Join(filepath.Dir(path), pageFile), TextureOptions{
		Filter: metadata.TextureFilterLinear,
		Wrap:   metadata.TextureWrapClampToEdge,
	})
	if err != nil {
		return nil, err
	}
	atlas.Description.Name = desc.Info.Face + "_atlas"

	return &BitmapFontData{Descriptor: desc, Atlas: atlas}, nil
}
