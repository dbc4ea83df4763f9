// Package lens provides the closed-form deflection models that map
// image-plane positions to the source plane.
package lens

import (
	"math"
)

// Below this value of 1-q² the elliptical closed form loses all precision
// and the isothermal-sphere limit is used instead.
const circularEps = 1e-10

// SIE is a singular isothermal ellipsoid lens. The deflection is evaluated
// in a coordinate system centered on the lens and rotated by the position
// angle: with the elliptical radius r = sqrt(q²x² + y²) and f = sqrt(1-q²),
// the deflection components are
//
//	ax = b sqrt(q)/f · atan(x f / r)
//	ay = b sqrt(q)/f · atanh(y f / r)
//
// which are rotated back and subtracted from the image-plane position.
type SIE struct {
	x0, y0 float64
	b      float64
	q      float64
	cos    float64
	sin    float64
	f      float64 // sqrt(1-q²); 0 selects the circular limit
	scale  float64 // b·sqrt(q)/f
}

// NewSIE returns a lens centered at (x, y) with scale radius b, axis ratio
// q in (0, 1], and position angle pa in degrees.
func NewSIE(x, y, b, q, pa float64) *SIE {
	rad := pa * math.Pi / 180
	l := &SIE{
		x0:  x,
		y0:  y,
		b:   b,
		q:   q,
		cos: math.Cos(rad),
		sin: math.Sin(rad),
	}
	if f2 := 1 - q*q; f2 > circularEps {
		l.f = math.Sqrt(f2)
		l.scale = b * math.Sqrt(q) / l.f
	}
	return l
}

// Deflect maps an image-plane position to the source plane. It is stateless
// and safe for concurrent use.
func (l *SIE) Deflect(x, y float64) (float64, float64) {
	// lens-centered, rotated coordinates
	dx := (x-l.x0)*l.cos - (y-l.y0)*l.sin
	dy := (x-l.x0)*l.sin + (y-l.y0)*l.cos

	// elliptical radius
	r := math.Sqrt(l.q*l.q*dx*dx + dy*dy)

	var ax, ay float64
	if l.f > 0 {
		ax = l.scale * math.Atan(dx*l.f/r)
		ay = l.scale * math.Atanh(dy*l.f/r)
	} else {
		// isothermal-sphere limit of the elliptical form
		ax = l.b * dx / r
		ay = l.b * dy / r
	}

	return x - (ax*l.cos + ay*l.sin), y - (ay*l.cos - ax*l.sin)
}
