// Package sched implements the pipeline task scheduler that coordinates
// rendering work across a pool of CPU worker goroutines.
//
// It drives a four-stage streaming pipeline (trace -> plot -> gather ->
// tonemap) whose stages exchange opaque units, addressed by index, rather
// than pixels. Workers call GetNewTask to report the completion of their
// previous task and receive their next one in the same call; all pool
// bookkeeping happens inside a single mutex-guarded critical section, and
// the numeric work itself always runs outside the lock.
package sched
