package ui

import (
	"fmt"

	"github.com/fzipp/bmfont"

	"github.com/spaghettifunk/anima-render/engine/math"
	"github.com/spaghettifunk/anima-render/engine/renderer/metadata"
)

/**
 * @brief A bitmap font backed by an AngelCode descriptor and one atlas
 * texture. Sizes passed to it are line heights in the caller's units
 * (pixels for UI text, world units for world text).
 */
type BitmapFont struct {
	desc   *bmfont.Descriptor
	atlas  metadata.TextureHandle
	atlasW float32
	atlasH float32
	line   float32
	base   float32
}

/**
 * @brief Wraps a parsed descriptor. Only single page fonts are supported.
 * @param desc The descriptor read from a .fnt file.
 * @param atlas The texture holding page 0.
 */
func NewBitmapFont(desc *bmfont.Descriptor, atlas metadata.TextureHandle) (*BitmapFont, error) {
	if desc == nil {
		return nil, fmt.Errorf("bitmap font: nil descriptor")
	}
	if desc.Common.LineHeight <= 0 || desc.Common.ScaleW <= 0 || desc.Common.ScaleH <= 0 {
		return nil, fmt.Errorf("bitmap font '%s': invalid common block", desc.Info.Face)
	}
	if len(desc.Pages) > 1 {
		return nil, fmt.Errorf("bitmap font '%s': %d pages, only one is supported", desc.Info.Face, len(desc.Pages))
	}
	return &BitmapFont{
		desc:   desc,
		atlas:  atlas,
		atlasW: float32(desc.Common.ScaleW),
		atlasH: float32(desc.Common.ScaleH),
		line:   float32(desc.Common.LineHeight),
		base:   float32(desc.Common.Base),
	}, nil
}

func (bf *BitmapFont) Face() string {
	return bf.desc.Info.Face
}

func (bf *BitmapFont) Atlas() metadata.TextureHandle {
	return bf.atlas
}

func (bf *BitmapFont) LineHeight(size float32) float32 {
	return size
}

// Baseline returns the distance from the top of a line to its baseline.
func (bf *BitmapFont) Baseline(size float32) float32 {
	return bf.base * size / bf.line
}

/**
 * @brief Lays out text with the top line's baseline at y = 0, y pointing
 * up. Newlines start a new line one line height lower. Runes missing from
 * the font are skipped.
 */
func (bf *BitmapFont) LayoutText(text string, size float32) []metadata.Glyph {
	scale := size / bf.line
	glyphs := make([]metadata.Glyph, 0, len(text))
	var penX, penY float32
	var prev rune = -1
	for _, r := range text {
		if r == '\n' {
			penX = 0
			penY -= size
			prev = -1
			continue
		}
		ch, ok := bf.desc.Chars[r]
		if !ok {
			continue
		}
		if prev >= 0 {
			if k, ok := bf.desc.Kerning[bmfont.CharPair{First: prev, Second: r}]; ok {
				penX += float32(k.Amount) * scale
			}
		}
		if ch.Width > 0 && ch.Height > 0 {
			x := penX + float32(ch.XOffset)*scale
			top := penY + (bf.base-float32(ch.YOffset))*scale
			glyphs = append(glyphs, metadata.Glyph{
				Min:   math.NewVec2(x, top-float32(ch.Height)*scale),
				Max:   math.NewVec2(x+float32(ch.Width)*scale, top),
				UVMin: math.NewVec2(float32(ch.X)/bf.atlasW, float32(ch.Y)/bf.atlasH),
				UVMax: math.NewVec2(float32(ch.X+ch.Width)/bf.atlasW, float32(ch.Y+ch.Height)/bf.atlasH),
			})
		}
		penX += float32(ch.XAdvance) * scale
		prev = r
	}
	return glyphs
}

// MeasureText returns the width of the widest line and the total height.
func (bf *BitmapFont) MeasureText(text string, size float32) math.Vec2 {
	scale := size / bf.line
	var width, lineWidth float32
	lines := 1
	for _, r := range text {
		if r == '\n' {
			width = math.Max(width, lineWidth)
			lineWidth = 0
			lines++
			continue
		}
		if ch, ok := bf.desc.Chars[r]; ok {
			lineWidth += float32(ch.XAdvance) * scale
		}
	}
	return math.NewVec2(math.Max(width, lineWidth), float32(lines)*size)
}
