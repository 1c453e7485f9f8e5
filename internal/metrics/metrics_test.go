package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHelpersNoopBeforeRegister(t *testing.T) {
	regOK.Store(false)
	before := testutil.ToFloat64(kills.WithLabelValues("noop"))
	IncKill("noop")
	if got := testutil.ToFloat64(kills.WithLabelValues("noop")); got != before {
		t.Fatalf("IncKill changed counter before Register: %v -> %v", before, got)
	}
}

func TestRegisterIdempotentAndCountersWork(t *testing.T) {
	regOK.Store(false)
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}

	IncScan(0.01)
	IncKill("worker")
	IncKill("worker")
	IncKillFailure("worker")
	SetMatched("worker", 3)
	SetNextWake(2.5)

	if got := testutil.ToFloat64(kills.WithLabelValues("worker")); got != 2 {
		t.Fatalf("kills_total = %v", got)
	}
	if got := testutil.ToFloat64(matched.WithLabelValues("worker")); got != 3 {
		t.Fatalf("matched_processes = %v", got)
	}
	if got := testutil.ToFloat64(nextWake); got != 2.5 {
		t.Fatalf("next_wake_seconds = %v", got)
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	wantNames := map[string]bool{
		"reaper_scans_total":           false,
		"reaper_scan_duration_seconds": false,
		"reaper_kills_total":           false,
		"reaper_kill_failures_total":   false,
		"reaper_matched_processes":     false,
		"reaper_next_wake_seconds":     false,
	}
	for _, mf := range mfs {
		if _, ok := wantNames[mf.GetName()]; ok {
			wantNames[mf.GetName()] = true
		}
	}
	for n, ok := range wantNames {
		if !ok {
			t.Fatalf("expected to find metric %s", n)
		}
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	regOK.Store(false)
	if err := Register(prometheus.DefaultRegisterer); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	IncScan(0.02)

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "reaper_scans_total") {
		t.Fatalf("metrics output missing reaper_scans_total")
	}
}

func TestHandlerServesCustomRegistry(t *testing.T) {
	regOK.Store(false)
	t.Cleanup(func() {
		regOK.Store(false)
		gatherMu.Lock()
		gatherer = prometheus.DefaultGatherer
		gatherMu.Unlock()
	})
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatal(err)
	}
	IncKill("custom")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `reaper_kills_total{name="custom"}`) {
		t.Fatalf("custom registry not served:\n%s", rec.Body.String())
	}
}
