// Package tracer drives a run: it super-samples the image-plane pixel grid,
// pushes every sample through a deflection model, bins the surviving
// source-plane points into unit root cells, refines the roots into
// quadtrees, and reports the leaves.
package tracer

import (
	"context"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/gravlens/srcgrid/quadtree"
)

// ErrTypeBadConfig is the error type returned when a run configuration is
// rejected.
const ErrTypeBadConfig = "bad_config"

// Deflector maps an image-plane position to the source plane. It must be
// stateless.
type Deflector interface {
	Deflect(x, y float64) (float64, float64)
}

// Config holds the parameters of one run.
type Config struct {
	// Width and Height of the grid, in unit cells.
	Width  int
	Height int

	// Supersample is the N of the N×N sub-grid sampled per cell. It doubles
	// as the block size of the leaf point buffers.
	Supersample int

	// Threshold multiplies Supersample² to give the maximum number of
	// points a leaf may hold.
	Threshold float64

	// MaxDepth bounds refinement; 0 disables the guard.
	MaxDepth int

	// PointBudget bounds the buffered point capacity of each root cell's
	// subtree; 0 means unlimited. An exhausted budget surfaces as a
	// recoverable allocation_failure error from Trace or Refine.
	PointBudget int

	// Workers bounds how many roots refine concurrently. Values below 2
	// mean serial refinement.
	Workers int
}

func (c Config) validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return errors.New("grid dimensions must be positive").
			WithType(ErrTypeBadConfig).
			WithTag("width", c.Width).
			WithTag("height", c.Height)
	}
	if c.Supersample <= 0 {
		return errors.New("supersampling factor must be positive").
			WithType(ErrTypeBadConfig).
			WithTag("supersample", c.Supersample)
	}
	if c.Threshold <= 0 {
		return errors.New("refinement threshold must be positive").
			WithType(ErrTypeBadConfig).
			WithTag("threshold", c.Threshold)
	}
	if c.PointBudget < 0 {
		return errors.New("point budget must not be negative").
			WithType(ErrTypeBadConfig).
			WithTag("point_budget", c.PointBudget)
	}
	return nil
}

// Stats summarizes a run.
type Stats struct {
	Traced    int // samples pushed through the deflection model
	Discarded int // samples that left the valid source-plane domain
	Inserted  int // samples binned into a root cell
	Leaves    int // leaves written by the last report
	Overflow  int // leaves frozen at the depth guard
}

// Tracer owns the root cells of one run. It is not safe for concurrent use;
// the parallelism during refinement is internal.
type Tracer struct {
	conf  Config
	model Deflector
	roots []*quadtree.Node
	stats Stats
}

// New creates the root cells: Width×Height unit leaves centered on the
// integer grid points 1..Width, 1..Height.
func New(conf Config, model Deflector) (*Tracer, error) {
	if err := conf.validate(); err != nil {
		return nil, err
	}
	if model == nil {
		return nil, errors.New("deflection model is required").
			WithType(ErrTypeBadConfig)
	}

	roots := make([]*quadtree.Node, conf.Width*conf.Height)
	for n := range roots {
		opts := []quadtree.Option{
			quadtree.WithBlockSize(conf.Supersample),
			quadtree.WithMaxDepth(conf.MaxDepth),
		}
		if conf.PointBudget > 0 {
			// One allocator per root: budget allocators are not safe for
			// concurrent use and roots refine in parallel.
			opts = append(opts, quadtree.WithAllocator(
				&quadtree.BudgetAllocator{MaxPoints: conf.PointBudget}))
		}
		roots[n] = quadtree.New(
			float64(n%conf.Width+1),
			float64(n/conf.Width+1),
			1, 1,
			opts...,
		)
	}

	return &Tracer{conf: conf, model: model, roots: roots}, nil
}

// Trace samples each cell at an N×N sub-grid, deflects the samples, drops
// those outside the source-plane domain [0.5, Width+0.5) × [0.5, Height+0.5),
// and inserts the rest into the root covering their integer cell. It is the
// sole writer into the roots and must complete before Refine is called.
// Cancellation is honored between cells, never mid-insertion.
func (t *Tracer) Trace(ctx context.Context) error {
	w, h, n := t.conf.Width, t.conf.Height, t.conf.Supersample

	for cell := range t.roots {
		if err := ctx.Err(); err != nil {
			return err
		}

		for k := 0; k < n*n; k++ {
			x := float64(cell%w) + 0.5 + (float64(k%n)+0.5)/float64(n)
			y := float64(cell/w) + 0.5 + (float64(k/n)+0.5)/float64(n)

			sx, sy := t.model.Deflect(x, y)
			t.stats.Traced++
			instrumentTracedSample()

			// The filter is written inclusively so NaN deflections, which
			// fail every comparison, land in the discard branch instead of
			// producing a bogus root index.
			if !(sx >= 0.5 && sx < float64(w)+0.5 && sy >= 0.5 && sy < float64(h)+0.5) {
				t.stats.Discarded++
				instrumentDiscardedSample()
				continue
			}

			i := int(sx - 0.5)
			j := int(sy - 0.5)
			if err := t.roots[j*w+i].Insert(quadtree.Point{X: sx, Y: sy}); err != nil {
				return errors.New("inserting source-plane point failed").
					WithType(errors.Type(err)).
					WithTag("cell_x", i).
					WithTag("cell_y", j).
					Wrap(err)
			}
			t.stats.Inserted++
			instrumentInsertedPoint()
		}
	}
	return nil
}

// Refine subdivides every root until each leaf holds at most
// Threshold×Supersample² points. Roots cover disjoint regions and disjoint
// point sets, so they refine concurrently on Workers goroutines.
// Cancellation is honored between roots; a root's refinement never stops
// mid-split.
func (t *Tracer) Refine(ctx context.Context) error {
	threshold := t.conf.Threshold * float64(t.conf.Supersample*t.conf.Supersample)

	workers := t.conf.Workers
	if workers < 1 {
		workers = 1
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	roots := make(chan *quadtree.Node)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for root := range roots {
				start := time.Now()
				if err := root.Refine(threshold); err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
				}
				instrumentRootRefine(start)
			}
		}()
	}

feed:
	for _, root := range t.roots {
		select {
		case <-ctx.Done():
			break feed
		case roots <- root:
		}
	}
	close(roots)
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}

// Stats returns the current run statistics. Leaf counts are filled in by
// Report.
func (t *Tracer) Stats() Stats {
	return t.stats
}

// Release returns the storage owned by every root's subtree.
func (t *Tracer) Release() {
	for _, root := range t.roots {
		root.Release()
	}
}
