package healthprobe

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func serve(t *testing.T, handler http.HandlerFunc) (int, HealthResponse) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	handler(w, req)

	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %s, want application/json", ct)
	}

	var resp HealthResponse
	err := json.NewDecoder(w.Body).Decode(&resp)
	if err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return w.Code, resp
}

func TestNew(t *testing.T) {
	hc := New()

	if time.Since(hc.startTime) > 1*time.Second {
		t.Errorf("Start time is too old: %v", hc.startTime)
	}
	if hc.ready.Load() {
		t.Error("HealthChecker should not be ready by default")
	}
	if _, ok := hc.LastScanAge(); ok {
		t.Error("LastScanAge should report no scan by default")
	}
}

func TestHealth_AlwaysReturnsOK(t *testing.T) {
	hc := New()

	for _, ready := range []bool{false, true} {
		hc.SetReady(ready)

		code, resp := serve(t, hc.Health())
		if code != http.StatusOK {
			t.Errorf("Health status = %d, want %d (ready=%v)", code, http.StatusOK, ready)
		}
		if resp.Status != "healthy" || resp.Uptime == "" {
			t.Errorf("unexpected health response %+v", resp)
		}
	}
}

func TestReady_StateChanges(t *testing.T) {
	hc := New()
	handler := hc.Ready()

	code, resp := serve(t, handler)
	if code != http.StatusServiceUnavailable {
		t.Errorf("Initial ready status = %d, want %d", code, http.StatusServiceUnavailable)
	}
	if resp.Status != "not_ready" || resp.Message == "" {
		t.Errorf("unexpected not-ready response %+v", resp)
	}

	hc.SetReady(true)
	code, resp = serve(t, handler)
	if code != http.StatusOK {
		t.Errorf("Ready status after SetReady(true) = %d, want %d", code, http.StatusOK)
	}
	if resp.Status != "ready" {
		t.Errorf("Status = %s, want ready", resp.Status)
	}

	hc.SetReady(false)
	code, _ = serve(t, handler)
	if code != http.StatusServiceUnavailable {
		t.Errorf("Ready status after SetReady(false) = %d, want %d", code, http.StatusServiceUnavailable)
	}
}

func TestReady_ScanHeartbeat(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	hc := New(WithMaxScanAge(5*time.Second), WithClock(clock.Now))
	hc.SetReady(true)
	handler := hc.Ready()

	tests := []struct {
		name       string
		step       func()
		wantStatus int
		wantAge    string
	}{
		{
			name:       "no_scan_yet",
			step:       func() {},
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "fresh_scan",
			step:       func() { hc.MarkScan(clock.Now()); clock.Advance(2 * time.Second) },
			wantStatus: http.StatusOK,
			wantAge:    "2s",
		},
		{
			name:       "stalled_scan",
			step:       func() { clock.Advance(4 * time.Second) },
			wantStatus: http.StatusServiceUnavailable,
			wantAge:    "6s",
		},
		{
			name:       "recovered",
			step:       func() { hc.MarkScan(clock.Now()) },
			wantStatus: http.StatusOK,
			wantAge:    "0s",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.step()

			code, resp := serve(t, handler)
			if code != tt.wantStatus {
				t.Errorf("status = %d, want %d", code, tt.wantStatus)
			}
			if resp.LastScanAge != tt.wantAge {
				t.Errorf("LastScanAge = %q, want %q", resp.LastScanAge, tt.wantAge)
			}
		})
	}
}

func TestHealthChecker_ConcurrentAccess(t *testing.T) {
	hc := New(WithMaxScanAge(time.Minute))
	handler := hc.Ready()

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			hc.SetReady(i%2 == 0)
			hc.MarkScan(time.Now())
		}
	}()

	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			req := httptest.NewRequest(http.MethodGet, "/ready", nil)
			handler(httptest.NewRecorder(), req)
		}
	}()

	wg.Wait()
}
