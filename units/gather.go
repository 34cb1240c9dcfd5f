package units

// Gatherer is the single gather unit: the canonical HDR accumulator that
// sums completed plot units.
type Gatherer struct {
	width, height int
	accum         []float32 // width*height*3, linear RGB
}

// NewGatherer allocates the HDR accumulator.
func NewGatherer(width, height int) *Gatherer {
	return &Gatherer{width: width, height: height, accum: make([]float32, width*height*3)}
}

// Add sums the contents of each given plot unit into the accumulator,
// then zeroes it, per the worker contract: a consumed plot unit must
// come back empty.
func (g *Gatherer) Add(plots ...*Plotter) {
	for _, p := range plots {
		buf := p.Buffer()
		for i := range g.accum {
			g.accum[i] += buf[i]
		}
		p.Reset()
	}
}

// Accumulator exposes the raw linear RGB buffer for the tonemap unit to
// read.
func (g *Gatherer) Accumulator() []float32 { return g.accum }
