package tracer

import (
	"fmt"
	"io"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/gravlens/srcgrid/quadtree"
)

// Report writes one fixed-width record per leaf: sequence index, center x,
// center y, width, height, point count. Sequence numbers start at 1 and run
// across all roots in cell order, so the output is reproducible for a
// reproducible tree. Downstream pixelization consumers rely on the field
// order.
func (t *Tracer) Report(w io.Writer) error {
	t.stats.Leaves = 0
	t.stats.Overflow = 0

	seq := 1
	for _, root := range t.roots {
		var err error
		seq, err = root.VisitLeaves(seq, func(i int, leaf *quadtree.Node) error {
			t.stats.Leaves++
			if leaf.Overflow() {
				t.stats.Overflow++
			}

			if _, werr := fmt.Fprintf(w, "%10d%10g%10g%10g%10g%10d\n",
				i, leaf.X, leaf.Y, leaf.W, leaf.H, leaf.Len()); werr != nil {
				return errors.New("writing leaf record failed").
					WithTag("seq", i).
					Wrap(werr)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}
