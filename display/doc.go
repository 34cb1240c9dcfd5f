// Package display implements the two external collaborators named in the
// scheduler's contract: a display sink that receives finished 8-bit
// frames, and a diagnostic sink that receives human-readable progress
// lines. Neither type is known to package sched beyond the function
// signature and the Printf method it expects.
package display
