package units

import (
	"math/rand"

	"github.com/sourcegraph/pathtracer/scene"
)

// batchSize is the number of wavelength samples a single Trace task
// produces.
const batchSize = 256

const (
	minWavelengthNM = 380.0
	maxWavelengthNM = 730.0
)

// Sample is one wavelength-sampled ray contribution.
type Sample struct {
	WavelengthNM float64
	Radiance     float64
}

// Tracer is a trace unit: private random state plus the last batch of
// samples it produced. Construction fixes the random seed, so a unit's
// sequence of batches is reproducible across runs given the same seed.
type Tracer struct {
	rng     *rand.Rand
	scene   scene.Scene
	samples []Sample
}

// NewTracer builds a Tracer bound to sc (an opaque scene, may be nil in
// which case Run falls back to a constant radiance). It matches the
// scheduler's trace-unit constructor signature, taking scene as any so
// the scheduler package never needs to import this one.
func NewTracer(seed int64, sc any) *Tracer {
	s, _ := sc.(scene.Scene)
	return &Tracer{
		rng:     rand.New(rand.NewSource(seed)),
		scene:   s,
		samples: make([]Sample, batchSize),
	}
}

// Run produces one batch of wavelength samples, overwriting any previous
// batch in place.
func (t *Tracer) Run() {
	for i := range t.samples {
		wavelength := minWavelengthNM + t.rng.Float64()*(maxWavelengthNM-minWavelengthNM)
		radiance := 1.0
		if t.scene != nil {
			radiance = t.scene.Sample(t.rng, wavelength)
		}
		t.samples[i] = Sample{WavelengthNM: wavelength, Radiance: radiance}
	}
}

// Samples returns the batch produced by the most recent Run.
func (t *Tracer) Samples() []Sample { return t.samples }
