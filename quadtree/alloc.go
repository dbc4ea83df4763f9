package quadtree

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
)

// Allocator provides and reclaims the dynamic storage a tree owns: leaf
// point buffers and four-child node blocks. Implementations turn storage
// exhaustion into a recoverable error instead of terminating the process.
type Allocator interface {
	// GrowPoints returns a buffer with the same contents as buf and a
	// capacity of at least capacity. It must not modify buf on failure.
	GrowPoints(buf []Point, capacity int) ([]Point, error)

	// GrowNodes returns a zeroed block of n nodes.
	GrowNodes(n int) ([]Node, error)

	// ReleasePoints reclaims a point buffer handed out by GrowPoints.
	ReleasePoints(buf []Point)

	// ReleaseNodes reclaims a node block handed out by GrowNodes.
	ReleaseNodes(block []Node)
}

// HeapAllocator allocates from the Go heap and leaves reclamation to the
// garbage collector. It never fails and is safe for concurrent use.
type HeapAllocator struct{}

func (HeapAllocator) GrowPoints(buf []Point, capacity int) ([]Point, error) {
	if cap(buf) >= capacity {
		return buf, nil
	}
	grown := make([]Point, len(buf), capacity)
	copy(grown, buf)
	return grown, nil
}

func (HeapAllocator) GrowNodes(n int) ([]Node, error) {
	return make([]Node, n), nil
}

func (HeapAllocator) ReleasePoints([]Point) {}

func (HeapAllocator) ReleaseNodes([]Node) {}

// BudgetAllocator enforces an explicit budget on buffered point capacity.
// Exhausting the budget makes Insert and Refine return an
// allocation_failure error that the caller can recover from.
//
// A BudgetAllocator is not safe for concurrent use; give each root its own
// when refining roots in parallel.
type BudgetAllocator struct {
	// MaxPoints is the total point capacity the allocator may hand out.
	MaxPoints int

	reserved int
}

func (a *BudgetAllocator) GrowPoints(buf []Point, capacity int) ([]Point, error) {
	if cap(buf) >= capacity {
		return buf, nil
	}
	if a.reserved+capacity-cap(buf) > a.MaxPoints {
		return nil, errors.New("point budget exhausted").
			WithType(ErrTypeAllocation).
			WithTag("budget", a.MaxPoints).
			WithTag("reserved", a.reserved).
			WithTag("requested", capacity-cap(buf))
	}
	a.reserved += capacity - cap(buf)
	grown := make([]Point, len(buf), capacity)
	copy(grown, buf)
	return grown, nil
}

func (a *BudgetAllocator) GrowNodes(n int) ([]Node, error) {
	return make([]Node, n), nil
}

func (a *BudgetAllocator) ReleasePoints(buf []Point) {
	a.reserved -= cap(buf)
}

func (a *BudgetAllocator) ReleaseNodes([]Node) {}

// Reserved returns the point capacity currently handed out.
func (a *BudgetAllocator) Reserved() int {
	return a.reserved
}
