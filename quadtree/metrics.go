package quadtree

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	quadtreeNodeSplits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quadtree_node_splits",
		Help: "The number of leaves subdivided into four children.",
	})

	quadtreeOverflowLeaves = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quadtree_overflow_leaves",
		Help: "The number of leaves frozen at the depth guard while over threshold.",
	})
)

func instrumentNodeSplit() {
	quadtreeNodeSplits.Inc()
}

func instrumentOverflowLeaf() {
	quadtreeOverflowLeaves.Inc()
}
