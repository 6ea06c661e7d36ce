package spherical

import "math"

// Vector holds components in the local orthonormal basis (r̂, θ̂, φ̂) of
// some point. The basis is right-handed: r̂×θ̂ = φ̂.
type Vector struct {
	R     float64
	Theta float64
	Phi   float64
}

func (v Vector) Add(o Vector) Vector {
	return Vector{R: v.R + o.R, Theta: v.Theta + o.Theta, Phi: v.Phi + o.Phi}
}

func (v Vector) Sub(o Vector) Vector {
	return Vector{R: v.R - o.R, Theta: v.Theta - o.Theta, Phi: v.Phi - o.Phi}
}

func (v Vector) Scale(k float64) Vector {
	return Vector{R: v.R * k, Theta: v.Theta * k, Phi: v.Phi * k}
}

func (v Vector) Dot(o Vector) float64 {
	return v.R*o.R + v.Theta*o.Theta + v.Phi*o.Phi
}

func (v Vector) Cross(o Vector) Vector {
	return Vector{
		R:     v.Theta*o.Phi - v.Phi*o.Theta,
		Theta: v.Phi*o.R - v.R*o.Phi,
		Phi:   v.R*o.Theta - v.Theta*o.R,
	}
}

func (v Vector) Norm() float64 {
	return math.Sqrt(v.Dot(v))
}

// Tangent drops the radial component.
func (v Vector) Tangent() Vector {
	return Vector{Theta: v.Theta, Phi: v.Phi}
}

// Radial keeps only the radial component.
func (v Vector) Radial() Vector {
	return Vector{R: v.R}
}

func (v Vector) IsFinite() bool {
	return isFinite(v.R) && isFinite(v.Theta) && isFinite(v.Phi)
}

func (v Vector) IsZero() bool {
	return v.R == 0 && v.Theta == 0 && v.Phi == 0
}

// Heading is the unit tangent at the given bearing.
func Heading(bearing float64) Vector {
	s, c := math.Sincos(bearing)
	return Vector{Theta: -c, Phi: s}
}

// Step is the result of displacing a point by a local vector. It keeps the
// geometry of the move so vectors anchored at the start can be re-expressed
// at the destination.
type Step struct {
	From Point
	To   Point

	// Arc is the angle swept at the origin; Bearing and FinalBearing are the
	// headings of the swept great circle at From and To.
	Arc          float64
	Bearing      float64
	FinalBearing float64
}

// Displace moves p by d, where d is expressed in p's local basis. The move is
// the great-circle arc whose tangent at p follows d's tangential part; the
// new radius follows from the right triangle formed by (r + d_r) and the
// tangential length.
func Displace(p Point, d Vector) (Step, error) {
	if !d.IsFinite() {
		return Step{}, ErrNonFinite
	}
	if p.IsOrigin() {
		return Step{}, ErrDegenerate
	}
	radial := p.R + d.R
	tangential := math.Hypot(d.Theta, d.Phi)
	if tangential == 0 {
		to := p
		to.R = radial
		if radial < 0 {
			to = NewPoint(radial, p.Theta, p.Phi)
		}
		return Step{From: p, To: to}, nil
	}

	bearing := math.Atan2(d.Phi, -d.Theta)
	arc := math.Atan2(tangential, radial)
	newR := math.Hypot(radial, tangential)
	dir := Destination(p.Dir(), arc, bearing)
	final := finalBearing(p.Dir(), dir, arc, bearing)

	return Step{
		From:         p,
		To:           Point{R: newR, Theta: dir.Theta, Phi: dir.Phi},
		Arc:          arc,
		Bearing:      bearing,
		FinalBearing: final,
	}, nil
}

func finalBearing(from, to Direction, arc, bearing float64) float64 {
	if arc == 0 || to.onPole() {
		return bearing
	}
	return Bearing(to, from) + math.Pi
}

// Carry re-expresses v, given in the basis at s.From, in the basis at s.To.
// The vector itself does not change; only the frame rotates by the arc.
func (s Step) Carry(v Vector) Vector {
	if s.Arc == 0 {
		return v
	}
	sinB, cosB := math.Sincos(s.Bearing)
	along := -v.Theta*cosB + v.Phi*sinB
	across := -v.Theta*sinB - v.Phi*cosB

	sinA, cosA := math.Sincos(s.Arc)
	radial := v.R*cosA + along*sinA
	along = -v.R*sinA + along*cosA

	sinF, cosF := math.Sincos(s.FinalBearing)
	return Vector{
		R:     radial,
		Theta: -along*cosF - across*sinF,
		Phi:   along*sinF - across*cosF,
	}
}
