// Package spherical implements coordinate primitives that work directly in
// (r, θ, φ). θ is the polar angle measured from the +pole, φ the azimuth.
//
// Nothing in this package builds a Cartesian triple. Separations use the
// haversine form, distances the law of cosines, and motion is expressed as a
// great-circle step from a bearing and an arc length.
package spherical

import (
	"errors"
	"fmt"
	"math"
)

const (
	TwoPi = 2 * math.Pi

	// poleEpsilon is the sin θ below which a direction is treated as sitting on a pole.
	poleEpsilon = 1e-12
)

var (
	ErrDegenerate = errors.New("spherical: degenerate geometry at r=0")
	ErrNonFinite  = errors.New("spherical: non-finite coordinate")
	ErrNegativeR  = errors.New("spherical: negative radius")
)

// Direction is a point on the unit sphere.
type Direction struct {
	Theta float64
	Phi   float64
}

// Point is a position in spherical coordinates.
type Point struct {
	R     float64
	Theta float64
	Phi   float64
}

// NewPoint builds a normalized point. Negative radii are reflected through
// the origin so the result always satisfies R ≥ 0.
func NewPoint(r, theta, phi float64) Point {
	if r < 0 {
		r = -r
		theta = math.Pi - theta
		phi += math.Pi
	}
	d := NewDirection(theta, phi)
	return Point{R: r, Theta: d.Theta, Phi: d.Phi}
}

// NewDirection folds θ into [0, π] and wraps φ into [0, 2π).
func NewDirection(theta, phi float64) Direction {
	theta = math.Mod(theta, TwoPi)
	if theta < 0 {
		theta += TwoPi
	}
	if theta > math.Pi {
		theta = TwoPi - theta
		phi += math.Pi
	}
	return Direction{Theta: theta, Phi: WrapPhi(phi)}
}

// WrapPhi maps any azimuth into [0, 2π).
func WrapPhi(phi float64) float64 {
	phi = math.Mod(phi, TwoPi)
	if phi < 0 {
		phi += TwoPi
	}
	if phi >= TwoPi {
		phi = 0
	}
	return phi
}

// Dir returns the direction of p. Callers must not rely on it when p.R == 0.
func (p Point) Dir() Direction {
	return Direction{Theta: p.Theta, Phi: p.Phi}
}

func (p Point) WithDir(d Direction) Point {
	return Point{R: p.R, Theta: d.Theta, Phi: d.Phi}
}

func (p Point) WithR(r float64) Point {
	return Point{R: r, Theta: p.Theta, Phi: p.Phi}
}

func (p Point) IsOrigin() bool {
	return p.R == 0
}

// Validate reports whether p is finite and within the coordinate ranges.
func (p Point) Validate() error {
	if !isFinite(p.R) || !isFinite(p.Theta) || !isFinite(p.Phi) {
		return ErrNonFinite
	}
	if p.R < 0 {
		return ErrNegativeR
	}
	if p.Theta < 0 || p.Theta > math.Pi {
		return fmt.Errorf("spherical: theta %g outside [0, π]", p.Theta)
	}
	if p.Phi < 0 || p.Phi >= TwoPi {
		return fmt.Errorf("spherical: phi %g outside [0, 2π)", p.Phi)
	}
	return nil
}

func (p Point) String() string {
	return fmt.Sprintf("(r=%.6g, θ=%.6g, φ=%.6g)", p.R, p.Theta, p.Phi)
}

func (d Direction) onPole() bool {
	return math.Abs(math.Sin(d.Theta)) < poleEpsilon
}

// Separation returns the great-circle angle between two directions, in [0, π].
func Separation(a, b Direction) float64 {
	return 2 * math.Asin(math.Sqrt(haversine(a, b)))
}

// haversine returns sin²(γ/2) for the separation γ between a and b.
func haversine(a, b Direction) float64 {
	dTheta := math.Sin((b.Theta - a.Theta) / 2)
	dPhi := math.Sin((b.Phi - a.Phi) / 2)
	h := dTheta*dTheta + math.Sin(a.Theta)*math.Sin(b.Theta)*dPhi*dPhi
	return clamp(h, 0, 1)
}

// AngularSeparation is Separation for points. Both points need a direction,
// so the origin is rejected.
func AngularSeparation(a, b Point) (float64, error) {
	if a.IsOrigin() || b.IsOrigin() {
		return 0, ErrDegenerate
	}
	return Separation(a.Dir(), b.Dir()), nil
}

// Distance is the straight-line distance between two points, computed with
// the law of cosines in its half-angle form
// d² = (r₁ − r₂)² + 4·r₁·r₂·sin²(γ/2), which stays accurate for small γ.
// A point at the origin has no direction; the distance is then the other radius.
func Distance(a, b Point) float64 {
	if a.IsOrigin() {
		return b.R
	}
	if b.IsOrigin() {
		return a.R
	}
	dr := a.R - b.R
	return math.Sqrt(dr*dr + 4*a.R*b.R*haversine(a.Dir(), b.Dir()))
}

// Bearing returns the initial heading from a toward b, measured from the
// −θ̂ ("north") direction toward +φ̂ ("east"), in (−π, π].
func Bearing(a, b Direction) float64 {
	dPhi := b.Phi - a.Phi
	y := math.Sin(dPhi) * math.Sin(b.Theta)
	x := math.Sin(a.Theta)*math.Cos(b.Theta) - math.Cos(a.Theta)*math.Sin(b.Theta)*math.Cos(dPhi)
	return math.Atan2(y, x)
}

// Destination walks an arc of delta radians from d along the given bearing.
//
// On a pole the local basis is pinned to the meridian d.Phi: at the +pole
// θ̂ points down that meridian, so bearing π follows it; at the −pole
// bearing 0 follows it.
func Destination(d Direction, delta, bearing float64) Direction {
	if d.onPole() {
		if math.Cos(d.Theta) > 0 {
			return NewDirection(delta, d.Phi+math.Pi-bearing)
		}
		return NewDirection(math.Pi-delta, d.Phi+bearing)
	}
	sinT, cosT := math.Sincos(d.Theta)
	sinD, cosD := math.Sincos(delta)
	cosT2 := clamp(cosT*cosD+sinT*sinD*math.Cos(bearing), -1, 1)
	theta2 := math.Acos(cosT2)
	dPhi := math.Atan2(math.Sin(bearing)*sinD*sinT, cosD-cosT*cosT2)
	return Direction{Theta: theta2, Phi: WrapPhi(d.Phi + dPhi)}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
