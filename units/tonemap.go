package units

import colorful "github.com/lucasb-eyer/go-colorful"

// Tonemapper is the single tonemap unit: it reads the gather
// accumulator, applies a tonemap curve, and produces the 8-bit sRGB
// frame handed to the display sink. It satisfies sched.TonemapUnit.
type Tonemapper struct {
	width, height int
	frame         []byte // width*height*3, packed sRGB, row stride width*3
}

// NewTonemapper allocates the output frame buffer.
func NewTonemapper(width, height int) *Tonemapper {
	return &Tonemapper{width: width, height: height, frame: make([]byte, width*height*3)}
}

// Run reads g's accumulator, applies a Reinhard tonemap curve per
// channel, converts the result from linear light to sRGB, and packs it
// into the frame buffer.
func (tm *Tonemapper) Run(g *Gatherer) {
	accum := g.Accumulator()
	pixelCount := tm.width * tm.height
	for i := 0; i < pixelCount; i++ {
		r := reinhard(accum[i*3+0])
		gg := reinhard(accum[i*3+1])
		b := reinhard(accum[i*3+2])

		c := colorful.LinearRgb(float64(r), float64(gg), float64(b))
		rr, gg8, bb := c.Clamped().RGB255()
		tm.frame[i*3+0] = rr
		tm.frame[i*3+1] = gg8
		tm.frame[i*3+2] = bb
	}
}

// reinhard compresses an unbounded linear radiance into [0, 1).
func reinhard(x float32) float32 {
	if x < 0 {
		return 0
	}
	return x / (1 + x)
}

// Frame returns the most recently produced 8-bit sRGB buffer.
func (tm *Tonemapper) Frame() []byte { return tm.frame }
