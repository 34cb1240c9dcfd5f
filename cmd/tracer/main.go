// Copyright 2016 Google Inc. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command tracer renders a scene with the spectral path tracer, serving a
// live preview over HTTP while the render converges and optionally writing
// each completed frame to a PNG file, so the file holds the latest frame.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	sglog "github.com/sourcegraph/log"
	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/sync/semaphore"

	"github.com/sourcegraph/pathtracer/display"
	"github.com/sourcegraph/pathtracer/scene"
	"github.com/sourcegraph/pathtracer/sched"
	"github.com/sourcegraph/pathtracer/units"
)

func main() {
	workers := flag.Int("workers", runtime.NumCPU(), "number of rendering worker goroutines")
	width := flag.Int("width", 512, "output image width in pixels")
	height := flag.Int("height", 384, "output image height in pixels")
	listen := flag.String("listen", ":6071", "address to serve the live preview and /debug mux on")
	duration := flag.Duration("duration", 0, "stop rendering after this long; zero renders until interrupted")
	out := flag.String("out", "", "write each completed tonemapped frame to this PNG path, overwriting the previous one; empty skips the write")
	enablePprof := flag.Bool("pprof", false, "enable /debug/pprof/ on the preview server")
	seed := flag.Int64("seed", 1, "base random seed; trace unit i is seeded with seed+i")

	flag.Parse()

	if *workers < 1 {
		log.Fatalf("-workers must be at least 1, got %d", *workers)
	}

	runID := uuid.New().String()

	liblog := sglog.Init(sglog.Resource{
		Name:       "tracer",
		InstanceID: runID,
	})
	defer liblog.Sync()

	// Tune GOMAXPROCS to match container CPU quota. This does not change
	// runtime.NumCPU, from which the -workers default was already taken.
	_, _ = maxprocs.Set()

	diagnostic := display.NewLogger(sglog.Scoped("sched", "").With(sglog.String("run_id", runID)))
	preview := display.NewHTTPPreview(*enablePprof)

	s, err := sched.New(sched.Config{
		Workers: *workers,
		Width:   *width,
		Height:  *height,
		Scene:   scene.NewUniform(),
		Seed:    *seed,
		NewTrace: func(seed int64, sc any) sched.TraceUnit {
			return units.NewTracer(seed, sc)
		},
		NewPlot: func() sched.PlotUnit {
			return units.NewPlotter(*width, *height)
		},
		NewGather: func() sched.GatherUnit {
			return units.NewGatherer(*width, *height)
		},
		NewTonemap: func() sched.TonemapUnit {
			return units.NewTonemapper(*width, *height)
		},
		Display:    withFinalFrame(preview.Sink, *out),
		Diagnostic: diagnostic,
	})
	if err != nil {
		log.Fatalf("sched.New: %v", err)
	}

	srv := &http.Server{Addr: *listen, Handler: preview}
	go func() {
		sglog.Scoped("server", "").Info("serving preview", sglog.String("address", *listen))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	if *duration > 0 {
		var durationCancel context.CancelFunc
		ctx, durationCancel = context.WithTimeout(ctx, *duration)
		defer durationCancel()
	}
	go stopOnSignal(cancel)

	runWorkers(ctx, s, *workers)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http.Server.Shutdown: %v", err)
	}
}

// runWorkers spawns n goroutines that loop calling s.GetNewTask, executing
// the stage body for whatever task they receive, and feeding the result
// back in. A semaphore throttle caps the number of stage bodies executing
// concurrently to n, mirroring build.Builder's throttle channel; workers
// that receive a Sleep task back off outside the semaphore entirely, since
// Sleep does no work and holding a slot would only starve other workers.
func runWorkers(ctx context.Context, s *sched.Scheduler, n int) {
	throttle := semaphore.NewWeighted(int64(n))

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			prev := sched.Initial()
			for ctx.Err() == nil {
				task := s.GetNewTask(prev)
				if task.Kind == sched.Sleep {
					time.Sleep(20 * time.Millisecond)
					prev = task
					continue
				}

				if err := throttle.Acquire(ctx, 1); err != nil {
					return
				}
				runTask(s, task)
				throttle.Release(1)

				prev = task
			}
		}()
	}
	wg.Wait()
}

// runTask executes the numerical body for task's stage on the units it
// names. Workers must not touch any unit not named in their task.
func runTask(s *sched.Scheduler, task sched.Task) {
	switch task.Kind {
	case sched.Trace:
		s.TraceUnit(task.PrimaryUnit).(*units.Tracer).Run()

	case sched.Plot:
		batches := make([][]units.Sample, len(task.InputUnits))
		for k, i := range task.InputUnits {
			batches[k] = s.TraceUnit(i).(*units.Tracer).Samples()
		}
		s.PlotUnit(task.PrimaryUnit).(*units.Plotter).Accumulate(batches...)

	case sched.Gather:
		plots := make([]*units.Plotter, len(task.InputUnits))
		for k, j := range task.InputUnits {
			plots[k] = s.PlotUnit(j).(*units.Plotter)
		}
		s.GatherUnit().(*units.Gatherer).Add(plots...)

	case sched.Tonemap:
		s.TonemapUnit().(*units.Tonemapper).Run(s.GatherUnit().(*units.Gatherer))
	}
}

// stopOnSignal cancels cancel on SIGINT or SIGTERM, letting in-flight
// workers finish their current task and exit instead of calling
// GetNewTask again.
func stopOnSignal(cancel context.CancelFunc) {
	c := make(chan os.Signal, 3)
	signal.Notify(c, os.Interrupt)
	signal.Notify(c, syscall.SIGTERM)
	<-c
	log.Printf("shutting down")
	cancel()
}

// withFinalFrame wraps sink so that every completed frame, in addition to
// refreshing the live HTTP preview, is written to outPath. Each completed
// tonemap overwrites the previous write, so the file on disk always holds
// the latest frame; cheap at render resolutions.
func withFinalFrame(sink func(width, height int, frame []byte), outPath string) func(width, height int, frame []byte) {
	if outPath == "" {
		return sink
	}
	return func(w, h int, frame []byte) {
		sink(w, h, frame)
		if err := writePNG(outPath, w, h, frame); err != nil {
			log.Printf("writePNG(%s): %v", outPath, err)
		}
	}
}

func writePNG(path string, width, height int, frame []byte) error {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < width*height; i++ {
		img.Set(i%width, i/width, color.RGBA{
			R: frame[i*3+0],
			G: frame[i*3+1],
			B: frame[i*3+2],
			A: 0xff,
		})
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}
