package tracer

import (
	"bytes"
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/gravlens/srcgrid/lens"
	"github.com/gravlens/srcgrid/quadtree"
	"github.com/stretchr/testify/require"
)

// identityModel leaves every sample where it is.
type identityModel struct{}

func (identityModel) Deflect(x, y float64) (float64, float64) {
	return x, y
}

// shiftModel moves every sample by a fixed offset.
type shiftModel struct {
	dx, dy float64
}

func (m shiftModel) Deflect(x, y float64) (float64, float64) {
	return x + m.dx, y + m.dy
}

// focusModel squeezes the whole image plane into the first cell, so a single
// root ends up holding every point.
type focusModel struct{}

func (focusModel) Deflect(x, y float64) (float64, float64) {
	return 0.5 + x/10, 0.5 + y/10
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(Config{Width: 0, Height: 4, Supersample: 3, Threshold: 1}, identityModel{})
	require.Error(t, err)
	require.Equal(t, ErrTypeBadConfig, errors.Type(err))

	_, err = New(Config{Width: 4, Height: 4, Supersample: 3, Threshold: 1}, nil)
	require.Error(t, err)
	require.Equal(t, ErrTypeBadConfig, errors.Type(err))

	_, err = New(Config{Width: 4, Height: 4, Supersample: 0, Threshold: 1}, identityModel{})
	require.Error(t, err)

	_, err = New(Config{Width: 4, Height: 4, Supersample: 3, Threshold: 0}, identityModel{})
	require.Error(t, err)

	_, err = New(Config{Width: 4, Height: 4, Supersample: 3, Threshold: 1, PointBudget: -1}, identityModel{})
	require.Error(t, err)
	require.Equal(t, ErrTypeBadConfig, errors.Type(err))
}

func TestTraceDiscardsUndefinedDeflections(t *testing.T) {
	// A lens centered exactly on a sub-grid sample makes the elliptical
	// radius zero, so the deflection of that sample is NaN. NaN must fall
	// into the discard branch rather than produce a root index.
	model := lens.NewSIE(1.75, 1.75, 1, 0.78, 0)

	tr, err := New(Config{Width: 2, Height: 2, Supersample: 2, Threshold: 1}, model)
	require.NoError(t, err)
	defer tr.Release()

	require.NoError(t, tr.Trace(context.Background()))

	stats := tr.Stats()
	require.Equal(t, 16, stats.Traced)
	require.GreaterOrEqual(t, stats.Discarded, 1)
	require.Equal(t, stats.Traced, stats.Discarded+stats.Inserted)

	require.NoError(t, tr.Refine(context.Background()))

	var out bytes.Buffer
	require.NoError(t, tr.Report(&out))
}

func TestTraceIdentity(t *testing.T) {
	tr, err := New(Config{Width: 4, Height: 4, Supersample: 3, Threshold: 1}, identityModel{})
	require.NoError(t, err)
	defer tr.Release()

	require.NoError(t, tr.Trace(context.Background()))

	stats := tr.Stats()
	require.Equal(t, 144, stats.Traced)
	require.Equal(t, 0, stats.Discarded)
	require.Equal(t, 144, stats.Inserted)

	// Without deflection every sample stays in its own cell.
	for _, root := range tr.roots {
		require.Equal(t, 9, root.Len())
	}

	// N² points do not exceed 1.0×N², so no root splits.
	require.NoError(t, tr.Refine(context.Background()))
	for _, root := range tr.roots {
		require.True(t, root.IsLeaf())
	}
}

func TestTraceDiscardsOutOfDomain(t *testing.T) {
	tr, err := New(Config{Width: 4, Height: 4, Supersample: 3, Threshold: 1}, shiftModel{dx: 100})
	require.NoError(t, err)
	defer tr.Release()

	require.NoError(t, tr.Trace(context.Background()))

	stats := tr.Stats()
	require.Equal(t, 144, stats.Traced)
	require.Equal(t, 144, stats.Discarded)
	require.Equal(t, 0, stats.Inserted)

	var out bytes.Buffer
	require.NoError(t, tr.Report(&out))
	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 16)
	for _, line := range lines {
		fields := strings.Fields(line)
		require.Len(t, fields, 6)
		require.Equal(t, "0", fields[5])
	}
}

func TestRefineCrowdedRoot(t *testing.T) {
	tr, err := New(Config{Width: 2, Height: 2, Supersample: 4, Threshold: 1, MaxDepth: 48}, focusModel{})
	require.NoError(t, err)
	defer tr.Release()

	require.NoError(t, tr.Trace(context.Background()))
	require.Equal(t, 64, tr.Stats().Inserted)
	require.Equal(t, 64, tr.roots[0].Len())

	require.NoError(t, tr.Refine(context.Background()))
	require.False(t, tr.roots[0].IsLeaf())

	total := 0
	for _, root := range tr.roots {
		_, err := root.VisitLeaves(0, func(_ int, leaf *quadtree.Node) error {
			require.LessOrEqual(t, leaf.Len(), 16)
			require.False(t, leaf.Overflow())
			total += leaf.Len()
			return nil
		})
		require.NoError(t, err)
	}
	require.Equal(t, 64, total)
}

func TestReportFormat(t *testing.T) {
	tr, err := New(Config{Width: 3, Height: 2, Supersample: 2, Threshold: 1}, identityModel{})
	require.NoError(t, err)
	defer tr.Release()

	require.NoError(t, tr.Trace(context.Background()))
	require.NoError(t, tr.Refine(context.Background()))

	var out bytes.Buffer
	require.NoError(t, tr.Report(&out))

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 6)
	require.Equal(t, 6, tr.Stats().Leaves)

	for i, line := range lines {
		fields := strings.Fields(line)
		require.Len(t, fields, 6)

		seq, err := strconv.Atoi(fields[0])
		require.NoError(t, err)
		require.Equal(t, i+1, seq)

		require.Equal(t, "1", fields[3])
		require.Equal(t, "1", fields[4])
		require.Equal(t, "4", fields[5])
	}

	// unrefined unit roots report their integer centers in cell order
	require.Equal(t, []string{"1", "1"}, strings.Fields(lines[0])[1:3])
	require.Equal(t, []string{"2", "1"}, strings.Fields(lines[1])[1:3])
	require.Equal(t, []string{"1", "2"}, strings.Fields(lines[3])[1:3])
}

func TestRefineParallelDeterminism(t *testing.T) {
	run := func(workers int) string {
		tr, err := New(Config{Width: 2, Height: 2, Supersample: 4, Threshold: 1, Workers: workers}, focusModel{})
		require.NoError(t, err)
		defer tr.Release()

		require.NoError(t, tr.Trace(context.Background()))
		require.NoError(t, tr.Refine(context.Background()))

		var out bytes.Buffer
		require.NoError(t, tr.Report(&out))
		return out.String()
	}

	require.Equal(t, run(1), run(8))
}

func TestPointBudget(t *testing.T) {
	t.Run("exhausted during trace", func(t *testing.T) {
		tr, err := New(Config{Width: 2, Height: 2, Supersample: 4, Threshold: 1, PointBudget: 8}, focusModel{})
		require.NoError(t, err)
		defer tr.Release()

		err = tr.Trace(context.Background())
		require.Error(t, err)
		require.Equal(t, quadtree.ErrTypeAllocation, errors.Type(err))
	})

	t.Run("exhausted during refine leaves roots intact", func(t *testing.T) {
		// 64 points fit the budget exactly; the first child buffer of the
		// split does not.
		tr, err := New(Config{Width: 2, Height: 2, Supersample: 4, Threshold: 1, PointBudget: 64}, focusModel{})
		require.NoError(t, err)
		defer tr.Release()

		require.NoError(t, tr.Trace(context.Background()))
		require.Equal(t, 64, tr.roots[0].Len())

		err = tr.Refine(context.Background())
		require.Error(t, err)
		require.Equal(t, quadtree.ErrTypeAllocation, errors.Type(err))
		require.True(t, tr.roots[0].IsLeaf())
		require.Equal(t, 64, tr.roots[0].Len())
	})

	t.Run("sufficient budget refines normally", func(t *testing.T) {
		tr, err := New(Config{Width: 2, Height: 2, Supersample: 4, Threshold: 1, PointBudget: 1024}, focusModel{})
		require.NoError(t, err)
		defer tr.Release()

		require.NoError(t, tr.Trace(context.Background()))
		require.NoError(t, tr.Refine(context.Background()))

		total := 0
		_, err = tr.roots[0].VisitLeaves(0, func(_ int, leaf *quadtree.Node) error {
			total += leaf.Len()
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, 64, total)
	})
}

func TestRefineHonorsCancellation(t *testing.T) {
	tr, err := New(Config{Width: 4, Height: 4, Supersample: 3, Threshold: 1}, identityModel{})
	require.NoError(t, err)
	defer tr.Release()

	require.NoError(t, tr.Trace(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, tr.Refine(ctx), context.Canceled)
	require.ErrorIs(t, tr.Trace(ctx), context.Canceled)
}
