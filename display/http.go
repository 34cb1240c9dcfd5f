package display

import (
	"bytes"
	"expvar"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/pprof"
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/image/draw"
)

// previewScale enlarges the native render resolution for the web
// preview, since renders are often small and a 1:1 PNG is hard to see in
// a browser.
const previewScale = 2

// HTTPPreview is the display sink: an http.Handler that always serves the
// most recently completed frame at /preview, plus a debugserver-style
// diagnostics index at /debug with pprof, expvar and Prometheus metrics.
//
// It is the idiomatic Go substitute for the native GUI window the
// original renderer used: a thin shell with no rendering internals of
// its own.
type HTTPPreview struct {
	enablePprof bool

	mu  sync.RWMutex
	png []byte
}

// NewHTTPPreview constructs an empty preview server. enablePprof gates
// the /debug/pprof/ tree, mirroring debugserver.AddHandlers's own flag.
func NewHTTPPreview(enablePprof bool) *HTTPPreview {
	return &HTTPPreview{enablePprof: enablePprof}
}

// Sink matches the scheduler's display-sink signature: (width, height,
// frame) where frame is a tightly packed width*height*3 sRGB buffer. It
// scales the frame up by previewScale and re-encodes it as a PNG held
// for the next /preview request.
func (h *HTTPPreview) Sink(width, height int, frame []byte) {
	src := &image.NRGBA{
		Pix:    packToNRGBA(frame),
		Stride: width * 4,
		Rect:   image.Rect(0, 0, width, height),
	}

	dst := image.NewNRGBA(image.Rect(0, 0, width*previewScale, height*previewScale))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		// Stage-internal I/O errors are outside the scheduler's error
		// taxonomy (spec.md §7); drop the frame rather than block the
		// caller.
		return
	}

	h.mu.Lock()
	h.png = buf.Bytes()
	h.mu.Unlock()
}

// packToNRGBA expands a tightly packed RGB buffer (no alpha) into an
// NRGBA pixel slice with alpha forced opaque.
func packToNRGBA(rgb []byte) []byte {
	out := make([]byte, len(rgb)/3*4)
	for i, j := 0, 0; i < len(rgb); i, j = i+3, j+4 {
		out[j+0] = rgb[i+0]
		out[j+1] = rgb[i+1]
		out[j+2] = rgb[i+2]
		out[j+3] = 0xff
	}
	return out
}

// ServeHTTP implements http.Handler, routing /preview and the debug mux.
func (h *HTTPPreview) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mux := http.NewServeMux()
	mux.HandleFunc("/preview", h.servePreview)
	h.addDebugHandlers(mux)
	mux.ServeHTTP(w, r)
}

func (h *HTTPPreview) servePreview(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	frame := h.png
	h.mu.RUnlock()

	if frame == nil {
		http.Error(w, "no frame rendered yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(frame)
}

// addDebugHandlers mirrors debugserver.AddHandlers's diagnostics mux,
// trimmed of the distributed-request-tracing handlers (golang.org/x/net/trace),
// which have no analogue in a single-process renderer.
func (h *HTTPPreview) addDebugHandlers(mux *http.ServeMux) {
	index := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<a href="/preview">Preview</a><br>`)
		fmt.Fprint(w, `<a href="/debug/vars">Vars</a><br>`)
		fmt.Fprint(w, `<a href="/debug/pprof/">PProf</a><br>`)
		fmt.Fprint(w, `<a href="/metrics">Metrics</a><br>`)
		fmt.Fprint(w, `<form method="post" action="/debug/gc" style="display: inline;"><input type="submit" value="GC"></form>`)
	})
	mux.Handle("/debug", index)
	mux.Handle("/debug/vars", expvar.Handler())
	mux.HandleFunc("/debug/gc", func(w http.ResponseWriter, r *http.Request) {
		runtime.GC()
		debug.FreeOSMemory()
	})
	if h.enablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.Handle("/metrics", promhttp.Handler())
}
