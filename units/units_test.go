package units

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sourcegraph/pathtracer/scene"
)

func TestTracerRunIsReproducibleForFixedSeed(t *testing.T) {
	sc := scene.NewUniform()
	a := NewTracer(42, sc)
	b := NewTracer(42, sc)

	a.Run()
	b.Run()

	require.Equal(t, a.Samples(), b.Samples())
}

func TestTracerRunFillsEveryBatchSlot(t *testing.T) {
	tr := NewTracer(1, scene.NewUniform())
	tr.Run()
	require.Len(t, tr.Samples(), batchSize)
	for _, s := range tr.Samples() {
		require.GreaterOrEqual(t, s.WavelengthNM, minWavelengthNM)
		require.LessOrEqual(t, s.WavelengthNM, maxWavelengthNM)
	}
}

func TestPlotAccumulateThenResetIsEmpty(t *testing.T) {
	p := NewPlotter(2, 2)
	tr := NewTracer(7, scene.NewUniform())
	tr.Run()

	p.Accumulate(tr.Samples())
	var nonZero bool
	for _, v := range p.Buffer() {
		if v != 0 {
			nonZero = true
			break
		}
	}
	require.True(t, nonZero, "accumulating a batch should leave a nonzero buffer")

	p.Reset()
	for _, v := range p.Buffer() {
		require.Zero(t, v)
	}
}

func TestGatherAddZeroesConsumedPlots(t *testing.T) {
	g := NewGatherer(2, 2)
	p := NewPlotter(2, 2)
	tr := NewTracer(3, scene.NewUniform())
	tr.Run()
	p.Accumulate(tr.Samples())

	g.Add(p)

	for _, v := range p.Buffer() {
		require.Zero(t, v, "consumed plot units must come back empty")
	}

	var sum float32
	for _, v := range g.Accumulator() {
		sum += v
	}
	require.NotZero(t, sum)
}

func TestTonemapProducesFullFrame(t *testing.T) {
	g := NewGatherer(4, 3)
	p := NewPlotter(4, 3)
	tr := NewTracer(9, scene.NewUniform())
	tr.Run()
	p.Accumulate(tr.Samples())
	g.Add(p)

	tm := NewTonemapper(4, 3)
	tm.Run(g)

	require.Len(t, tm.Frame(), 4*3*3)
}
