// Package quadtree implements the adaptive grid that organizes deflected
// source-plane points. A tree starts as a single leaf covering one grid
// cell, accumulates points in a block-grown buffer, and subdivides any leaf
// whose population exceeds a threshold, redistributing the points into four
// equal children until every leaf is below the threshold or frozen by the
// depth guard.
package quadtree

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
)

const (
	// DefaultBlockSize is the increment, in points, by which leaf buffers
	// grow. The sampling driver overrides it with its supersampling factor.
	DefaultBlockSize = 10

	// DefaultMaxDepth bounds refinement. Past roughly 50 halvings of a unit
	// cell, float64 child centers stop being distinguishable from their
	// parent's, so deeper splits cannot separate coincident points anyway.
	DefaultMaxDepth = 48
)

// Error types surfaced by Insert and Refine.
const (
	ErrTypeNotLeaf    = "not_leaf"
	ErrTypeAllocation = "allocation_failure"
)

// Point is a position in the source plane.
type Point struct {
	X float64
	Y float64
}

type config struct {
	blockSize int
	maxDepth  int
	alloc     Allocator
}

// Option configures the tree anchored by a root node. Children inherit their
// root's configuration.
type Option func(*config)

// WithBlockSize sets the leaf buffer growth increment.
func WithBlockSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.blockSize = n
		}
	}
}

// WithMaxDepth sets the refinement depth guard. A value of 0 or less
// disables the guard, restoring unbounded refinement.
func WithMaxDepth(d int) Option {
	return func(c *config) {
		c.maxDepth = d
	}
}

// WithAllocator sets the allocator that provides and reclaims the tree's
// dynamic storage.
func WithAllocator(a Allocator) Option {
	return func(c *config) {
		if a != nil {
			c.alloc = a
		}
	}
}

// Node is a rectangular region of the source plane, centered at (X, Y) with
// full extents W and H. A node is either a leaf holding buffered points or
// an internal node owning exactly four children that tile its rectangle; a
// leaf becomes internal at most once and never reverts.
type Node struct {
	X float64
	Y float64
	W float64
	H float64

	cfg      *config
	depth    int
	overflow bool
	children []Node // len 4 when internal, nil when leaf
	points   []Point
}

// New returns an empty leaf centered at (x, y) covering full extents w by h.
func New(x, y, w, h float64, opts ...Option) *Node {
	cfg := &config{
		blockSize: DefaultBlockSize,
		maxDepth:  DefaultMaxDepth,
		alloc:     HeapAllocator{},
	}
	for _, o := range opts {
		o(cfg)
	}
	return &Node{X: x, Y: y, W: w, H: h, cfg: cfg}
}

// IsLeaf reports whether the node holds points rather than children.
func (n *Node) IsLeaf() bool {
	return n.children == nil
}

// Len returns the number of buffered points. Internal nodes hold none.
func (n *Node) Len() int {
	return len(n.points)
}

// Child returns the i-th child of an internal node, in quadrant order
// 0=(-,-), 1=(+,-), 2=(-,+), 3=(+,+) relative to the node's center.
func (n *Node) Child(i int) *Node {
	return &n.children[i]
}

// Overflow reports whether the node is a terminal leaf frozen at the depth
// guard while still over threshold.
func (n *Node) Overflow() bool {
	return n.overflow
}

// Insert appends p to a leaf's point buffer. The buffer grows in fixed
// blocks so reallocation is amortized; growth triggers exactly when the
// point count is a multiple of the block size. A failed insertion leaves
// the node untouched.
func (n *Node) Insert(p Point) error {
	if !n.IsLeaf() {
		return errors.New("node is not a leaf").
			WithType(ErrTypeNotLeaf)
	}

	if len(n.points)%n.cfg.blockSize == 0 {
		grown, err := n.cfg.alloc.GrowPoints(n.points, len(n.points)+n.cfg.blockSize)
		if err != nil {
			return errors.New("growing point buffer failed").
				WithType(ErrTypeAllocation).
				WithTag("size", len(n.points)).
				Wrap(err)
		}
		n.points = grown
	}

	n.points = append(n.points, p)
	return nil
}

// quadrant returns the child index for p: 2*(y > cy) + (x > cx). The
// comparison is strict, so a point exactly on a center line lands on the
// non-positive side of that axis.
func (n *Node) quadrant(p Point) int {
	i := 0
	if p.X > n.X {
		i |= 1
	}
	if p.Y > n.Y {
		i |= 2
	}
	return i
}

// Refine subdivides the node until no descendant leaf holds more than
// threshold points. A leaf at the depth guard that still exceeds the
// threshold becomes a terminal overflow leaf and keeps its points. If
// allocation fails mid-split the node is rolled back to an intact leaf, so
// no point is ever lost or duplicated.
func (n *Node) Refine(threshold float64) error {
	if !n.IsLeaf() || float64(len(n.points)) <= threshold {
		return nil
	}

	if n.cfg.maxDepth > 0 && n.depth >= n.cfg.maxDepth {
		if !n.overflow {
			n.overflow = true
			instrumentOverflowLeaf()
		}
		return nil
	}

	children, err := n.cfg.alloc.GrowNodes(4)
	if err != nil {
		return errors.New("allocating child nodes failed").
			WithType(ErrTypeAllocation).
			WithTag("depth", n.depth).
			Wrap(err)
	}

	for j := 0; j < 2; j++ {
		for i := 0; i < 2; i++ {
			children[j*2+i] = Node{
				X:     n.X + (2*float64(i)-1)*0.25*n.W,
				Y:     n.Y + (2*float64(j)-1)*0.25*n.H,
				W:     0.5 * n.W,
				H:     0.5 * n.H,
				cfg:   n.cfg,
				depth: n.depth + 1,
			}
		}
	}

	// Redistribution keeps insertion order per child; quadrant assignment
	// and the fixed child order make the resulting tree deterministic.
	for _, p := range n.points {
		if err := children[n.quadrant(p)].Insert(p); err != nil {
			for k := range children {
				children[k].Release()
			}
			n.cfg.alloc.ReleaseNodes(children)
			return errors.New("redistributing points into children failed").
				WithType(ErrTypeAllocation).
				WithTag("depth", n.depth).
				Wrap(err)
		}
	}

	n.cfg.alloc.ReleasePoints(n.points)
	n.points = nil
	n.children = children
	instrumentNodeSplit()

	for k := range n.children {
		if err := n.children[k].Refine(threshold); err != nil {
			return err
		}
	}
	return nil
}

// VisitLeaves walks the subtree depth-first in quadrant order and calls fn
// once per leaf, never on internal nodes. The walk numbers leaves starting
// at start and returns the next unused sequence number, so numbering can
// continue across several roots. fn must not mutate the tree's shape.
func (n *Node) VisitLeaves(start int, fn func(seq int, leaf *Node) error) (int, error) {
	if n.children == nil {
		if err := fn(start, n); err != nil {
			return start, err
		}
		return start + 1, nil
	}

	seq := start
	for i := range n.children {
		var err error
		if seq, err = n.children[i].VisitLeaves(seq, fn); err != nil {
			return seq, err
		}
	}
	return seq, nil
}

// Release returns all storage owned by the subtree to the allocator: every
// descendant leaf's point buffer and every internal node's child block. The
// Node value itself belongs to whoever constructed it.
func (n *Node) Release() {
	if n.children != nil {
		for i := range n.children {
			n.children[i].Release()
		}
		n.cfg.alloc.ReleaseNodes(n.children)
		n.children = nil
	}
	if n.points != nil {
		n.cfg.alloc.ReleasePoints(n.points)
		n.points = nil
	}
}
