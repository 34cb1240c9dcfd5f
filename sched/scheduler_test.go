package sched

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeTonemap struct {
	frame []byte
}

func (f *fakeTonemap) Frame() []byte { return f.frame }

// newTestScheduler builds a Scheduler with N=2 (T=6, P=1), a fake clock
// pinned at base that tests advance explicitly, and trivial unit
// constructors. It mirrors the §8 scenario fixture exactly.
func newTestScheduler(t *testing.T, base time.Time) (*Scheduler, *time.Time) {
	t.Helper()
	now := base
	clock := func() time.Time { return now }

	s, err := New(Config{
		Workers: 2,
		Width:   4,
		Height:  4,
		NewTrace: func(seed int64, scene any) TraceUnit {
			return seed
		},
		NewPlot:   func() PlotUnit { return struct{}{} },
		NewGather: func() GatherUnit { return struct{}{} },
		NewTonemap: func() TonemapUnit {
			return &fakeTonemap{frame: make([]byte, 4*4*3)}
		},
		Clock: clock,
	})
	require.NoError(t, err)
	return s, &now
}

func TestColdStart(t *testing.T) {
	s, _ := newTestScheduler(t, time.Unix(0, 0))

	task := s.GetNewTask(Initial())
	require.Equal(t, Trace, task.Kind)
	require.Equal(t, 0, task.PrimaryUnit)

	require.Equal(t, 5, s.availableTrace.Len())
	require.Equal(t, stateInFlight, s.traceState[0])
}

// drainAllTraces forces every trace unit straight to Done, simulating six
// trace completions the dispatcher never got to interleave a plot between
// — the precondition the literal scenario specifies directly rather than
// through a GetNewTask loop (which would dispatch a Plot as soon as the
// first trace unit came Done, since all six started in flight at once).
func drainAllTraces(s *Scheduler) {
	s.availableTrace.DrainAll()
	for i := 0; i < len(s.traceState); i++ {
		s.traceState[i] = stateDone
		s.doneTrace.PushBack(i)
	}
}

func TestTraceDrainThenPlot(t *testing.T) {
	s, _ := newTestScheduler(t, time.Unix(0, 0))
	drainAllTraces(s)

	task := s.GetNewTask(Initial())
	require.Equal(t, Plot, task.Kind)
	require.Equal(t, 0, task.PrimaryUnit)
	require.Equal(t, []int{0, 1, 2}, task.InputUnits)
	require.Equal(t, 3, s.doneTrace.Len())
	require.Equal(t, []int{3, 4, 5}, s.doneTrace.PopFrontN(3))
}

func TestPlotCompletionRecyclesTraces(t *testing.T) {
	s, _ := newTestScheduler(t, time.Unix(0, 0))
	drainAllTraces(s)
	plotTask := s.GetNewTask(Initial())
	require.Equal(t, Plot, plotTask.Kind)

	next := s.GetNewTask(plotTask)
	require.Equal(t, Trace, next.Kind, "rule 3: trace units freed by the plot completion are picked up again")
	// trace 0 was the first unit returned to availableTrace, so the new
	// Trace task takes it; 1 and 2 are still queued.
	require.Equal(t, 0, next.PrimaryUnit)
	require.True(t, s.availableTrace.Contains(1))
	require.True(t, s.availableTrace.Contains(2))
	require.Equal(t, 1, s.donePlot.Len())
}

func TestDisplayRefreshPath(t *testing.T) {
	s, now := newTestScheduler(t, time.Unix(0, 0))

	// force donePlot = [0] and gatherAvailable = true directly, mirroring
	// "continuing from" framing in the literal scenario. Plot 0 leaves
	// availablePlot so it sits in exactly one queue.
	s.availablePlot.PopFront()
	s.donePlot.PushBack(0)
	s.plotState[0] = stateDone
	s.gatherAvailable = true
	s.tonemapAvailable = true
	s.imageChanged = false

	*now = now.Add(31 * time.Second)

	var frames [][]byte
	s.display = func(width, height int, frame []byte) {
		frames = append(frames, frame)
	}

	gatherTask := s.GetNewTask(Initial())
	require.Equal(t, Gather, gatherTask.Kind)
	require.Equal(t, []int{0}, gatherTask.InputUnits)

	tonemapTask := s.GetNewTask(gatherTask)
	require.Equal(t, Tonemap, tonemapTask.Kind)
	require.True(t, s.imageChanged)

	_ = s.GetNewTask(tonemapTask)
	require.False(t, s.imageChanged)
	require.True(t, s.gatherAvailable)
	require.True(t, s.tonemapAvailable)
	require.Len(t, frames, 1)
	require.Len(t, frames[0], 4*4*3)
}

func TestDeadlockEscape(t *testing.T) {
	s, _ := newTestScheduler(t, time.Unix(0, 0))

	for s.availableTrace.Len() > 0 {
		s.dispatchTrace()
	}
	for s.availablePlot.Len() > 0 {
		j := s.availablePlot.PopFront()
		s.plotState[j] = stateInFlight
	}

	task := s.GetNewTask(Initial())
	require.Equal(t, Sleep, task.Kind)

	before := snapshotState(s)
	after := s.GetNewTask(sleepTask)
	require.Equal(t, Sleep, after.Kind)
	require.Equal(t, before, snapshotState(s), "sleep completion must leave state bitwise unchanged")
}

func TestPerformanceRingBound(t *testing.T) {
	s, now := newTestScheduler(t, time.Unix(0, 0))

	for i := 0; i < 600; i++ {
		*now = now.Add(31 * time.Second)
		s.recordTonemapSample(*now)
	}

	_, _, n := s.perf.stats()
	require.Equal(t, performanceWindowCap, n)
}

func TestConservation(t *testing.T) {
	s, _ := newTestScheduler(t, time.Unix(0, 0))

	prev := Initial()
	for i := 0; i < 20; i++ {
		prev = s.GetNewTask(prev)
		total := s.availableTrace.Len() + s.doneTrace.Len()
		inflight := 0
		for _, st := range s.traceState {
			if st == stateInFlight {
				inflight++
			}
		}
		require.Equal(t, len(s.traceState), total+inflight)
	}
}

func TestSleepNeverMutatesPoolState(t *testing.T) {
	s, _ := newTestScheduler(t, time.Unix(0, 0))
	before := snapshotState(s)
	s.applyCompletion(sleepTask)
	require.Equal(t, before, snapshotState(s))
}

func TestContractViolationAborts(t *testing.T) {
	s, _ := newTestScheduler(t, time.Unix(0, 0))
	require.Panics(t, func() {
		s.GetNewTask(Task{Kind: Trace, PrimaryUnit: 0})
	}, "completing a trace unit that was never dispatched must abort")
}

type stateSnapshot struct {
	trace            []unitState
	plot             []unitState
	gatherAvailable  bool
	tonemapAvailable bool
	imageChanged     bool
}

func snapshotState(s *Scheduler) stateSnapshot {
	trace := make([]unitState, len(s.traceState))
	copy(trace, s.traceState)
	plot := make([]unitState, len(s.plotState))
	copy(plot, s.plotState)
	return stateSnapshot{
		trace:            trace,
		plot:             plot,
		gatherAvailable:  s.gatherAvailable,
		tonemapAvailable: s.tonemapAvailable,
		imageChanged:     s.imageChanged,
	}
}
