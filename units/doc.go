// Package units implements the numeric bodies that worker goroutines run
// for each stage of the rendering pipeline: trace, plot, gather and
// tonemap. None of these types know about the scheduler; they are plain
// Go values a worker fetches from the scheduler's pools and calls a
// single Run-like method on, outside any lock.
package units
