// Package scene defines the opaque scene contract forwarded to trace unit
// constructors. The scheduler never inspects a Scene; only trace units
// call into it, and only to answer one question: how much radiance
// arrives at the eye for a given wavelength and a given draw of randomness.
//
// The structure of the scene and the physics of light transport are out
// of scope here; Uniform exists so the rest of the module has something
// concrete to trace against in tests and the example binary.
package scene

import "math/rand"

// Scene answers radiance queries for one wavelength sample. Implementations
// are expected to be safe for concurrent use by distinct *rand.Rand
// instances, since many trace units query the same Scene from different
// goroutines.
type Scene interface {
	// Sample returns the radiance contribution for light arriving at
	// wavelengthNM nanometers, consuming rng for any stochastic decisions
	// (russian roulette, importance sampling, and so on).
	Sample(rng *rand.Rand, wavelengthNM float64) float64
}

// Uniform is a trivial Scene: every wavelength returns the same constant
// radiance, perturbed by a small amount of noise so accumulated frames
// are not perfectly flat. It stands in for a real scene description in
// the example binary and in tests.
type Uniform struct {
	Radiance float64
	Noise    float64
}

// NewUniform returns a Uniform scene with sensible defaults.
func NewUniform() *Uniform {
	return &Uniform{Radiance: 1.0, Noise: 0.05}
}

func (u *Uniform) Sample(rng *rand.Rand, wavelengthNM float64) float64 {
	jitter := (rng.Float64()*2 - 1) * u.Noise
	v := u.Radiance + jitter
	if v < 0 {
		v = 0
	}
	return v
}
