package spherical

import "math"

// AxisAngle is a right-handed rotation by Angle radians about the axis
// through the origin and Axis.
type AxisAngle struct {
	Axis  Direction
	Angle float64
}

// Rotation is an ordered chain of axis-angle turns, applied first to last.
// The zero value is the identity.
type Rotation []AxisAngle

var NorthPole = Direction{Theta: 0, Phi: 0}

// RotateAbout returns a single-step rotation.
func RotateAbout(axis Direction, angle float64) Rotation {
	return Rotation{{Axis: axis, Angle: angle}}
}

// Compose returns the rotation that applies a and then b.
func Compose(a, b Rotation) Rotation {
	out := make(Rotation, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return out.Simplify()
}

// Then is Compose(r, next).
func (r Rotation) Then(next Rotation) Rotation {
	return Compose(r, next)
}

// Inverse undoes r.
func (r Rotation) Inverse() Rotation {
	out := make(Rotation, len(r))
	for i, step := range r {
		out[len(r)-1-i] = AxisAngle{Axis: step.Axis, Angle: -step.Angle}
	}
	return out
}

// Simplify merges adjacent turns about the same axis and drops null turns.
func (r Rotation) Simplify() Rotation {
	out := make(Rotation, 0, len(r))
	for _, step := range r {
		step.Angle = math.Remainder(step.Angle, TwoPi)
		if n := len(out); n > 0 && sameAxis(out[n-1].Axis, step.Axis) {
			out[n-1].Angle = math.Remainder(out[n-1].Angle+step.Angle, TwoPi)
			if out[n-1].Angle == 0 {
				out = out[:n-1]
			}
			continue
		}
		if step.Angle != 0 {
			out = append(out, step)
		}
	}
	return out
}

func (r Rotation) IsIdentity() bool {
	return len(r.Simplify()) == 0
}

// ApplyDir rotates a direction. Rotating about an axis moves a point along the
// small circle at fixed separation from the axis, which in bearing terms is a
// shift of the bearing seen from the axis.
func (r Rotation) ApplyDir(d Direction) Direction {
	for _, step := range r {
		d = rotateDir(step, d)
	}
	return d
}

// Apply rotates p about the origin; the radius is unchanged and the origin
// maps to itself.
func (r Rotation) Apply(p Point) Point {
	if p.IsOrigin() {
		return p
	}
	return p.WithDir(r.ApplyDir(p.Dir()))
}

func rotateDir(step AxisAngle, d Direction) Direction {
	sep := Separation(step.Axis, d)
	if sep < 1e-15 || math.Pi-sep < 1e-15 {
		return d
	}
	// Bearings grow clockwise seen from outside the sphere, so a
	// right-handed turn about the axis lowers the bearing from it.
	b := Bearing(step.Axis, d)
	return Destination(step.Axis, sep, b-step.Angle)
}

func sameAxis(a, b Direction) bool {
	return Separation(a, b) < 1e-12
}
