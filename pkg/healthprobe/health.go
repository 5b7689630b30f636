package healthprobe

import (
	"net/http"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
)

// HealthChecker provides health and readiness checks. Readiness also
// requires a recent scan heartbeat once MaxScanAge is set.
type HealthChecker struct {
	startTime  time.Time
	ready      atomic.Bool
	lastScan   atomic.Int64 // unix nanos, 0 = never
	maxScanAge time.Duration
	now        func() time.Time
}

// Option configures a HealthChecker.
type Option func(*HealthChecker)

// WithMaxScanAge makes /ready fail when the last scan is older than age.
func WithMaxScanAge(age time.Duration) Option {
	return func(h *HealthChecker) {
		h.maxScanAge = age
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(h *HealthChecker) {
		h.now = now
	}
}

// New creates a new HealthChecker.
func New(opts ...Option) *HealthChecker {
	h := &HealthChecker{now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	h.startTime = h.now()
	return h
}

// SetReady marks the application as ready to serve traffic.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// MarkScan records a completed scan pass at t.
func (h *HealthChecker) MarkScan(t time.Time) {
	h.lastScan.Store(t.UnixNano())
}

// LastScanAge returns the time since the last scan, and false if none ran.
func (h *HealthChecker) LastScanAge() (time.Duration, bool) {
	ns := h.lastScan.Load()
	if ns == 0 {
		return 0, false
	}
	return h.now().Sub(time.Unix(0, ns)), true
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status      string `json:"status"`
	Uptime      string `json:"uptime"`
	LastScanAge string `json:"last_scan_age,omitempty"`
	Message     string `json:"message,omitempty"`
}

func (h *HealthChecker) response(status string) HealthResponse {
	resp := HealthResponse{
		Status: status,
		Uptime: h.now().Sub(h.startTime).String(),
	}
	if age, ok := h.LastScanAge(); ok {
		resp.LastScanAge = age.String()
	}
	return resp
}

// Health returns an HTTP handler for liveness checks.
// Always returns 200 OK if the application is running.
func (h *HealthChecker) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, h.response("healthy"))
	}
}

// Ready returns an HTTP handler for readiness checks.
// Returns 200 OK if ready, 503 Service Unavailable if not.
func (h *HealthChecker) Ready() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.ready.Load() {
			resp := h.response("not_ready")
			resp.Message = "application is starting"
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}

		if h.maxScanAge > 0 {
			age, ok := h.LastScanAge()
			if !ok || age > h.maxScanAge {
				resp := h.response("not_ready")
				resp.Message = "scan loop is stalled"
				writeJSON(w, http.StatusServiceUnavailable, resp)
				return
			}
		}

		writeJSON(w, http.StatusOK, h.response("ready"))
	}
}

func writeJSON(w http.ResponseWriter, status int, resp HealthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
