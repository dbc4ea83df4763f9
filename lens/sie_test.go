package lens

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSIEOnAxisStaysOnAxis(t *testing.T) {
	l := NewSIE(0, 0, 1.5, 0.78, 0)

	sx, sy := l.Deflect(10, 0)

	require.Equal(t, 0.0, sy)
	require.Less(t, sx, 10.0)
	require.Greater(t, sx, 0.0)
}

func TestSIEMirrorSymmetry(t *testing.T) {
	l := NewSIE(0, 0, 2, 0.6, 0)

	sx1, sy1 := l.Deflect(3, 4)
	sx2, sy2 := l.Deflect(3, -4)

	require.InDelta(t, sx1, sx2, 1e-12)
	require.InDelta(t, sy1, -sy2, 1e-12)
}

func TestSIECircularLimit(t *testing.T) {
	l := NewSIE(0, 0, 6.34, 1, 34.56)

	// For q=1 the deflection magnitude equals the scale radius everywhere.
	for _, p := range [][2]float64{{2, 1}, {-5, 3}, {0.1, -7}} {
		sx, sy := l.Deflect(p[0], p[1])
		mag := math.Hypot(sx-p[0], sy-p[1])
		require.InDelta(t, 6.34, mag, 1e-9)
	}
}

func TestSIENearCircularContinuity(t *testing.T) {
	almost := NewSIE(0, 0, 6.34, 0.99999, 34.56)
	circular := NewSIE(0, 0, 6.34, 1, 34.56)

	ax1, ay1 := almost.Deflect(2, 3)
	ax2, ay2 := circular.Deflect(2, 3)

	require.InDelta(t, ax2, ax1, 1e-3)
	require.InDelta(t, ay2, ay1, 1e-3)
}

func TestSIECenterOffsetAndRotation(t *testing.T) {
	// A lens rotated by 90 degrees matches the unrotated lens evaluated on
	// coordinates rotated the opposite way around the lens center.
	l0 := NewSIE(1, 2, 3, 0.7, 0)
	l90 := NewSIE(1, 2, 3, 0.7, 90)

	// point (x, y) relative to the center; rotating by -90 maps (dx, dy) to
	// (-dy, dx).
	dx, dy := 2.0, 0.5
	sx0, sy0 := l0.Deflect(1-dy, 2+dx)
	sx90, sy90 := l90.Deflect(1+dx, 2+dy)

	// deflections relative to the center rotate the same way
	a0x, a0y := (1-dy)-sx0, (2+dx)-sy0
	a90x, a90y := (1+dx)-sx90, (2+dy)-sy90

	require.InDelta(t, a90x, a0y, 1e-12)
	require.InDelta(t, a90y, -a0x, 1e-12)
}
