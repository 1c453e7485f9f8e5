package server

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loykin/procreaper/internal/metrics"
	"github.com/loykin/procreaper/internal/proctable"
	"github.com/loykin/procreaper/internal/report"
	rtls "github.com/loykin/procreaper/internal/tls"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func setupRouter(t *testing.T, base string, st StatusSource) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	return NewRouter(st, base).Handler()
}

func doReq(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func populatedStatus() *report.Status {
	st := report.NewStatus("worker")
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()
	st.Emit(ctx, report.Event{Kind: report.KindScan, At: at})
	st.Emit(ctx, report.Event{
		Kind:    report.KindProcess,
		Process: proctable.Record{PID: 42, PPID: 1, Cmdline: "worker -x"},
		Age:     10 * time.Second,
		Expired: true,
		Killed:  true,
	})
	st.Emit(ctx, report.Event{Kind: report.KindWait, At: at, Kills: 1, NextWake: 5 * time.Second})
	return st
}

func TestStatusReturnsSnapshot(t *testing.T) {
	h := setupRouter(t, "/reaper", populatedStatus())
	rec := doReq(t, h, http.MethodGet, "/reaper/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var snap report.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Name != "worker" || snap.Kills != 1 || !snap.Running || snap.NextWakeMS != 5000 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if len(snap.Processes) != 1 || snap.Processes[0].PID != 42 || !snap.Processes[0].Killed {
		t.Fatalf("unexpected processes: %+v", snap.Processes)
	}
}

func TestStatusWithoutSource(t *testing.T) {
	h := setupRouter(t, "", nil)
	rec := doReq(t, h, http.MethodGet, "/status")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	h := setupRouter(t, "", report.NewStatus("x"))
	rec := doReq(t, h, http.MethodGet, "/healthz")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok":true`) {
		t.Fatalf("unexpected healthz: %d %s", rec.Code, rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		t.Fatal(err)
	}
	metrics.IncKill("worker")
	h := setupRouter(t, "", report.NewStatus("worker"))
	rec := doReq(t, h, http.MethodGet, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `reaper_kills_total{name="worker"}`) {
		t.Fatalf("metrics output missing reaper_kills_total")
	}
}

func TestUnknownRoute(t *testing.T) {
	h := setupRouter(t, "/reaper", report.NewStatus("x"))
	if rec := doReq(t, h, http.MethodGet, "/status"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 outside base path, got %d", rec.Code)
	}
	if rec := doReq(t, h, http.MethodPost, "/reaper/status"); rec.Code == http.StatusOK {
		t.Fatalf("POST must not be served")
	}
}

func TestNewServerServesAndShutsDown(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv, err := NewServer("127.0.0.1:0", "", populatedStatus(), nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + srv.Addr + "/status")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"name":"worker"`) {
		t.Fatalf("unexpected response: %d %s", resp.StatusCode, body)
	}
	if err := Shutdown(srv, time.Second); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestNewServerTLS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tlsCfg, err := rtls.Setup(rtls.Config{Dir: t.TempDir(), AutoGenerate: true})
	if err != nil {
		t.Fatalf("tls setup: %v", err)
	}
	srv, err := NewServer("127.0.0.1:0", "", populatedStatus(), tlsCfg)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	client := &http.Client{Transport: &http.Transport{
		DisableKeepAlives: true,
		// #nosec G402 self-signed test certificate
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}}
	resp, err := client.Get("https://" + srv.Addr + "/healthz")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if err := Shutdown(srv, time.Second); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestNewServerBadAddr(t *testing.T) {
	if _, err := NewServer("256.0.0.1:bad", "", nil, nil); err == nil {
		t.Fatalf("expected listen error")
	}
}

func TestShutdownNil(t *testing.T) {
	if err := Shutdown(nil, time.Second); err != nil {
		t.Fatal(err)
	}
}
