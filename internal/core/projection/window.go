package projection

import (
	"math"

	"github.com/zeusync/zeusphere/internal/core/spherical"
)

// Corner positions inside a Window, in (u, v) order: u runs along φ, v along θ.
const (
	CornerTopLeft = iota
	CornerTopRight
	CornerBottomLeft
	CornerBottomRight
	CornerCount
)

var cornerUV = [CornerCount][2]float64{
	CornerTopLeft:     {0, 0},
	CornerTopRight:    {1, 0},
	CornerBottomLeft:  {0, 1},
	CornerBottomRight: {1, 1},
}

// Sample is one boundary ray or one interpolated interior point.
//
// Offset, PlaneDepth and Light form the shading basis: they vary linearly (or
// close to it) across the window, so bilinear interpolation of the four corner
// values reproduces them in the interior. Coverage, Facing, Depth and Color
// are evaluated from the interpolated basis.
type Sample struct {
	Direction spherical.Direction

	// Offset is the position relative to the disc center in units of the
	// angular radius; the disc is |Offset| ≤ 1.
	Offset     [2]float64
	PlaneDepth float64
	Light      float64

	Coverage float64
	Facing   float64
	Depth    float64
	Color    [4]float64
}

// Window is the bounding solid-angle rectangle of one object on the viewing
// sphere, described by its four corner rays.
type Window struct {
	ThetaMin, ThetaMax float64
	PhiCenter          float64
	PhiHalfWidth       float64

	Corners [CornerCount]Sample
	Center  Sample

	radius float64
	shade  shading
}

type shading struct {
	albedo   [4]float64
	emission [3]float64
	metallic float64
	rough    float64
	ambient  float64
}

// SolidAngle of the rectangle itself, 2Δφ(cos θmin − cos θmax).
func (w Window) SolidAngle() float64 {
	return 2 * w.PhiHalfWidth * (math.Cos(w.ThetaMin) - math.Cos(w.ThetaMax))
}

// Sample interpolates the window at (u, v) ∈ [0,1]² from the four corners.
func (w Window) Sample(u, v float64) Sample {
	u = clamp01(u)
	v = clamp01(v)
	weights := [CornerCount]float64{
		CornerTopLeft:     (1 - u) * (1 - v),
		CornerTopRight:    u * (1 - v),
		CornerBottomLeft:  (1 - u) * v,
		CornerBottomRight: u * v,
	}

	var s Sample
	for i, c := range w.Corners {
		s.Offset[0] += weights[i] * c.Offset[0]
		s.Offset[1] += weights[i] * c.Offset[1]
		s.PlaneDepth += weights[i] * c.PlaneDepth
		s.Light += weights[i] * c.Light
	}
	s.Direction = spherical.NewDirection(
		w.ThetaMin+v*(w.ThetaMax-w.ThetaMin),
		w.PhiCenter+(2*u-1)*w.PhiHalfWidth,
	)
	w.evaluate(&s)
	return s
}

// evaluate fills the derived fields of s from its shading basis.
func (w Window) evaluate(s *Sample) {
	r2 := s.Offset[0]*s.Offset[0] + s.Offset[1]*s.Offset[1]
	if r2 > 1 {
		s.Coverage = 0
		s.Facing = 0
		s.Depth = s.PlaneDepth
		s.Color = [4]float64{}
		return
	}
	s.Coverage = 1
	s.Facing = math.Sqrt(1 - r2)
	s.Depth = s.PlaneDepth - w.radius*s.Facing

	diffuse := (1 - w.shade.metallic) * (w.shade.ambient + s.Light*s.Facing)
	// Rough surfaces spread the highlight; smooth ones concentrate it at the center.
	spec := w.shade.metallic * s.Light * math.Pow(s.Facing, 1+(1-w.shade.rough)*32)
	for c := 0; c < 3; c++ {
		s.Color[c] = w.shade.albedo[c]*(diffuse+spec) + w.shade.emission[c]
	}
	s.Color[3] = w.shade.albedo[3]
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
