package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/status":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"name":"worker","kills":2,"running":true,"next_wake_ms":1500,
				"processes":[{"pid":7,"ppid":1,"cmdline":"worker -x","age":"00:00:03.000","expired":false}]}`))
		case "/healthz":
			_, _ = w.Write([]byte(`{"ok":true}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL + "/"})
	require.NoError(t, err)
	defer c.CloseIdleConnections()

	assert.True(t, c.Healthy(context.Background()))
	snap, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "worker", snap.Name)
	assert.Equal(t, 2, snap.Kills)
	assert.Equal(t, 1500*time.Millisecond, snap.NextWake())
	require.Len(t, snap.Processes, 1)
	assert.Equal(t, 7, snap.Processes[0].PID)
}

func TestStatusErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"status not available"}`))
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = c.Status(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status not available")
	assert.False(t, c.Healthy(context.Background()))
}

func TestUnreachable(t *testing.T) {
	c, err := New(Config{BaseURL: "http://127.0.0.1:1", Timeout: time.Second})
	require.NoError(t, err)
	assert.False(t, c.Healthy(context.Background()))
	_, err = c.Status(context.Background())
	assert.Error(t, err)
}

func TestInsecureTLS(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"name":"worker"}`))
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, Insecure: true})
	require.NoError(t, err)
	snap, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "worker", snap.Name)
}

func TestBadCACert(t *testing.T) {
	p := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(p, []byte("not a cert"), 0o644))
	_, err := New(Config{BaseURL: "https://localhost:9300", TLS: &TLSClientConfig{CACert: p}})
	assert.Error(t, err)
	_, err = New(Config{BaseURL: "https://localhost:9300", TLS: &TLSClientConfig{CACert: p + ".missing"}})
	assert.Error(t, err)
}
