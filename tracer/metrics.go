package tracer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tracedSamples = promauto.NewCounter(prometheus.CounterOpts{
		Name: "srcgrid_traced_samples",
		Help: "The number of image-plane samples pushed through the deflection model.",
	})

	discardedSamples = promauto.NewCounter(prometheus.CounterOpts{
		Name: "srcgrid_discarded_samples",
		Help: "The number of deflected samples outside the source-plane domain.",
	})

	insertedPoints = promauto.NewCounter(prometheus.CounterOpts{
		Name: "srcgrid_inserted_points",
		Help: "The number of source-plane points binned into root cells.",
	})

	rootRefineLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "srcgrid_root_refine_latency",
		Help: "The time to refine one root cell.",
	})
)

func instrumentTracedSample() {
	tracedSamples.Inc()
}

func instrumentDiscardedSample() {
	discardedSamples.Inc()
}

func instrumentInsertedPoint() {
	insertedPoints.Inc()
}

func instrumentRootRefine(start time.Time) {
	rootRefineLatency.Observe(time.Since(start).Seconds())
}
