package systems

import (
	"golang.org/x/exp/slices"

	"github.com/spaghettifunk/anima-render/engine/math"
	"github.com/spaghettifunk/anima-render/engine/renderer/metadata"
)

type lightCandidate struct {
	light    metadata.Light
	distance float32
	order    int
}

// LightSelector orders the lights of a frame for the uniform block and keeps
// the ones that matter most to the camera.
type LightSelector struct {
	candidates []lightCandidate
}

/**
 * @brief Appends at most max lights of in to out, ranked: directional lights
 * first, then by ascending distance to eye, then by descending intensity,
 * then in input order.
 *
 * @param out The destination, usually a reused slice truncated to zero.
 * @param in The lights of the scene.
 * @param eye The camera position.
 * @param max The number of lights to keep.
 * @return out with the selected lights appended.
 */
func (ls *LightSelector) Select(out, in []metadata.Light, eye math.Vec3, max int) []metadata.Light {
	if max <= 0 || len(in) == 0 {
		return out
	}

	ls.candidates = ls.candidates[:0]
	for i, l := range in {
		c := lightCandidate{light: l, order: i}
		if l.Type != metadata.LightDirectional {
			c.distance = l.Position.Distance(eye)
		}
		ls.candidates = append(ls.candidates, c)
	}
	slices.SortStableFunc(ls.candidates, compareLights)
	for _, c := range ls.candidates[:min(max, len(ls.candidates))] {
		out = append(out, c.light)
	}
	return out
}

func compareLights(a, b lightCandidate) int {
	ad, bd := a.light.Type == metadata.LightDirectional, b.light.Type == metadata.LightDirectional
	switch {
	case ad && !bd:
		return -1
	case bd && !ad:
		return 1
	}
	switch {
	case a.distance < b.distance:
		return -1
	case a.distance > b.distance:
		return 1
	}
	switch {
	case a.light.Intensity > b.light.Intensity:
		return -1
	case a.light.Intensity < b.light.Intensity:
		return 1
	}
	return a.order - b.order
}
