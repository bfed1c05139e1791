package middleware

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(data []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(data)
	r.bytes += n
	return n, err
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack is needed by the websocket upgrader.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// latencyRing keeps the last N durations of one route.
type latencyRing struct {
	samples []int64
	next    int
}

func (w *latencyRing) add(value int64, size int) {
	if len(w.samples) < size {
		w.samples = append(w.samples, value)
		return
	}
	w.samples[w.next] = value
	w.next = (w.next + 1) % size
}

type latencyTracker struct {
	mu     sync.Mutex
	size   int
	routes map[string]*latencyRing
}

func newLatencyTracker(size int) *latencyTracker {
	return &latencyTracker{size: size, routes: make(map[string]*latencyRing)}
}

// record adds a sample and returns p50 and p95 of the route's window.
func (t *latencyTracker) record(route string, ms int64) (int64, int64) {
	t.mu.Lock()
	ring, ok := t.routes[route]
	if !ok {
		ring = &latencyRing{}
		t.routes[route] = ring
	}
	ring.add(ms, t.size)
	values := slices.Clone(ring.samples)
	t.mu.Unlock()

	slices.Sort(values)
	return percentile(values, 0.50), percentile(values, 0.95)
}

func percentile(sorted []int64, p float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p*float64(len(sorted))+0.999999) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}

// Telemetry logs one line per request with route-level latency percentiles.
// Websocket upgrades are logged when the connection closes.
func Telemetry(logger *zap.Logger) func(http.Handler) http.Handler {
	tracker := newLatencyTracker(200)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			scope := &AuthContext{}

			next.ServeHTTP(rec, r.WithContext(WithAuthContext(r.Context(), scope)))

			if logger == nil {
				return
			}
			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			route := ""
			if rc := chi.RouteContext(r.Context()); rc != nil {
				route = rc.RoutePattern()
			}
			key := r.Method + " " + route
			if route == "" {
				key = r.Method + " " + r.URL.Path
			}
			duration := time.Since(start)
			p50, p95 := tracker.record(key, duration.Milliseconds())

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("routePattern", route),
				zap.String("requestId", readRequestID(r)),
				zap.Int("status", status),
				zap.Int("bytes", rec.bytes),
				zap.Int64("duration_ms", duration.Milliseconds()),
				zap.Int64("p50_ms", p50),
				zap.Int64("p95_ms", p95),
			}
			if scope.Role != "" {
				fields = append(fields, zap.Int64("outletId", scope.OutletID), zap.String("role", string(scope.Role)))
			}
			switch {
			case status >= 500:
				logger.Error("http_request", fields...)
			case status >= 400:
				logger.Warn("http_request", fields...)
			default:
				logger.Info("http_request", fields...)
			}
		})
	}
}
