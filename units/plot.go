package units

// Plotter is a plot unit: a private linear-light framebuffer that
// accumulates the contribution of one or more trace batches. The
// scheduler treats it as opaque; a worker fetches it by index and calls
// Accumulate directly.
type Plotter struct {
	width, height int
	buffer        []float32 // width*height*3, linear RGB
}

// NewPlotter allocates a zeroed framebuffer sized for width*height
// pixels.
func NewPlotter(width, height int) *Plotter {
	return &Plotter{width: width, height: height, buffer: make([]float32, width*height*3)}
}

// Accumulate folds every sample of every given batch into the
// framebuffer. Each sample goes to the pixel given by its position in the
// batch modulo the pixel count; the scheduler guarantees this unit is
// empty (just came from Available) or that any carryover is the worker's
// own business, so Accumulate never clears first.
func (p *Plotter) Accumulate(batches ...[]Sample) {
	pixelCount := p.width * p.height
	if pixelCount == 0 {
		return
	}
	for _, batch := range batches {
		for i, s := range batch {
			pixel := i % pixelCount
			r, g, b := wavelengthToRGB(s.WavelengthNM)
			w := float32(s.Radiance)
			p.buffer[pixel*3+0] += r * w
			p.buffer[pixel*3+1] += g * w
			p.buffer[pixel*3+2] += b * w
		}
	}
}

// Reset zeroes the framebuffer. Called once a plot unit's contents have
// been folded into the gather accumulator and recycled back to Available.
func (p *Plotter) Reset() {
	for i := range p.buffer {
		p.buffer[i] = 0
	}
}

// Buffer exposes the raw linear RGB framebuffer for the gather unit to
// sum.
func (p *Plotter) Buffer() []float32 { return p.buffer }

// wavelengthToRGB is a coarse piecewise-linear approximation of the CIE
// color matching functions, enough to turn a wavelength into a plausible
// RGB weight. It is not colorimetrically accurate; the tonemap curve and
// exact color science are out of scope here.
func wavelengthToRGB(nm float64) (r, g, b float32) {
	switch {
	case nm < 440:
		t := (nm - minWavelengthNM) / (440 - minWavelengthNM)
		return float32(1 - t*0.5), 0, float32(t)
	case nm < 490:
		t := (nm - 440) / (490 - 440)
		return 0, float32(t), 1
	case nm < 580:
		t := (nm - 490) / (580 - 490)
		return 0, 1, float32(1 - t)
	case nm < 645:
		t := (nm - 580) / (645 - 580)
		return float32(t), 1, 0
	default:
		t := (maxWavelengthNM - nm) / (maxWavelengthNM - 645)
		if t < 0 {
			t = 0
		}
		return 1, float32(t), 0
	}
}
