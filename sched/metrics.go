package sched

import (
	"math"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// performanceWindow capacity, in batches-per-second samples. §8 requires
// this never be exceeded.
const performanceWindowCap = 512

// performanceWindow is a fixed-capacity ring of the most recent throughput
// samples, one per completed tonemap. It mirrors the teacher's use of
// bucketed Prometheus histograms to summarize a stream of samples, adapted
// to an in-memory ring since the scheduler itself keeps no time-series
// backend; mean/stddev of the exact ring is the source of truth for this
// package, and the Prometheus gauges below are a side channel for
// dashboards.
type performanceWindow struct {
	samples [performanceWindowCap]float32
	head    int
	count   int
}

// add appends a sample, evicting the oldest if the ring is full.
func (w *performanceWindow) add(v float32) {
	idx := (w.head + w.count) % performanceWindowCap
	w.samples[idx] = v
	if w.count < performanceWindowCap {
		w.count++
	} else {
		w.head = (w.head + 1) % performanceWindowCap
	}
}

// stats returns the mean and population standard deviation of the samples
// currently in the ring. Both are zero if the ring is empty.
func (w *performanceWindow) stats() (mean, stddev float32, n int) {
	n = w.count
	if n == 0 {
		return 0, 0, 0
	}

	var sum, sumSq float64
	for i := 0; i < n; i++ {
		v := float64(w.samples[(w.head+i)%performanceWindowCap])
		sum += v
		sumSq += v * v
	}

	m := sum / float64(n)
	variance := sumSq/float64(n) - m*m
	if variance < 0 {
		// guards against a negative result from floating point cancellation
		variance = 0
	}
	return float32(m), float32(math.Sqrt(variance)), n
}

var (
	metricPoolUnits = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pathtracer_sched_pool_units",
		Help: "Current number of units in each pool and readiness state.",
	}, []string{"pool", "state"})

	metricDispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pathtracer_sched_dispatch_total",
		Help: "Total number of tasks dispatched by the scheduler, by kind.",
	}, []string{"kind"})

	metricThroughputBatchesPerSec = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pathtracer_sched_throughput_batches_per_second",
		Help: "Mean trace-batch throughput over the performance window, updated on each tonemap completion.",
	})

	metricThroughputStddev = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pathtracer_sched_throughput_stddev",
		Help: "Standard deviation of trace-batch throughput over the performance window.",
	})

	metricTonemapCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pathtracer_sched_tonemap_completed_total",
		Help: "Total number of completed tonemap tasks, i.e. display refreshes.",
	})
)

func (s *Scheduler) recordDispatch(k Kind) {
	metricDispatchTotal.WithLabelValues(k.String()).Inc()
}

func (s *Scheduler) recordPoolGauges() {
	metricPoolUnits.WithLabelValues("trace", "available").Set(float64(s.availableTrace.Len()))
	metricPoolUnits.WithLabelValues("trace", "done").Set(float64(s.doneTrace.Len()))
	metricPoolUnits.WithLabelValues("trace", "inflight").Set(float64(len(s.traceState) - s.availableTrace.Len() - s.doneTrace.Len()))
	metricPoolUnits.WithLabelValues("plot", "available").Set(float64(s.availablePlot.Len()))
	metricPoolUnits.WithLabelValues("plot", "done").Set(float64(s.donePlot.Len()))
	metricPoolUnits.WithLabelValues("plot", "inflight").Set(float64(len(s.plotState) - s.availablePlot.Len() - s.donePlot.Len()))
}
