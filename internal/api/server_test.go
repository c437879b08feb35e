package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/anchorpoint/internal/journal"
	"github.com/banshee-data/anchorpoint/internal/monitor"
	"github.com/banshee-data/anchorpoint/internal/monitoring"
	"github.com/banshee-data/anchorpoint/internal/placement"
	"github.com/banshee-data/anchorpoint/internal/testutil"
	"github.com/banshee-data/anchorpoint/internal/xr/sim"
)

func init() {
	monitoring.SetLogger(nil)
}

type harness struct {
	platform *sim.Platform
	ctrl     *placement.Controller
	mux      http.Handler
}

func newHarness(t *testing.T, cfg sim.Config) *harness {
	t.Helper()
	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })

	cfg.Planes = testutil.Floor()
	cfg.Viewer = testutil.LookingDown(0)
	p := sim.New(cfg)
	trace := monitor.NewTraceRecorder(100)
	ctrl := placement.NewController(p, placement.Config{Sink: j, Observer: trace.Observe, EndTimeout: 50 * time.Millisecond})
	t.Cleanup(func() { _ = ctrl.Exit(context.Background()) })

	s := NewServer(ctrl, j, trace.HandleTrace)
	return &harness{platform: p, ctrl: ctrl, mux: LoggingMiddleware(s.ServeMux())}
}

func (h *harness) do(t *testing.T, method, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.mux.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	var body map[string]interface{}
	if rec.Header().Get("Content-Type") == "application/json" {
		_ = json.Unmarshal(rec.Body.Bytes(), &body)
	}
	return rec, body
}

func TestAPI_PlacementFlow(t *testing.T) {
	h := newHarness(t, sim.Config{})

	rec, body := h.do(t, http.MethodGet, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ended", body["state"])
	assert.Equal(t, "supported", body["supported"])

	rec, body = h.do(t, http.MethodPost, "/api/enter")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "scanning", body["state"])

	rec, _ = h.do(t, http.MethodPost, "/api/enter")
	testutil.AssertStatusCode(t, rec.Code, http.StatusConflict)

	// No frame yet: confirm is a no-op.
	_, body = h.do(t, http.MethodPost, "/api/confirm")
	assert.Equal(t, false, body["changed"])

	h.ctrl.OnFrame(h.platform.Current().NextFrame(time.Second / 60))
	_, body = h.do(t, http.MethodPost, "/api/confirm")
	assert.Equal(t, "confirmed", body["to"])
	assert.Contains(t, body, "anchor")

	_, body = h.do(t, http.MethodPost, "/api/replace")
	assert.Equal(t, "scanning", body["to"])

	rec, body = h.do(t, http.MethodPost, "/api/exit")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ended", body["state"])

	rec = httptest.NewRecorder()
	h.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []journal.SessionRow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "exited", rows[0].Reason)
	assert.Equal(t, 5, rows[0].Events) // start, confirm, placed, replace, end

	rec, _ = h.do(t, http.MethodGet, "/debug/trace")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
}

func TestAPI_EnterFailures(t *testing.T) {
	h := newHarness(t, sim.Config{DenyPermission: true})

	rec, body := h.do(t, http.MethodPost, "/api/enter")
	testutil.AssertStatusCode(t, rec.Code, http.StatusForbidden)
	assert.Equal(t, "permission-denied", body["category"])

	_, body = h.do(t, http.MethodGet, "/api/failures")
	assert.Equal(t, float64(1), body["permission-denied"])

	_, body = h.do(t, http.MethodGet, "/api/status")
	errField, ok := body["error"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "permission-denied", errField["category"])
}

func TestAPI_Unsupported(t *testing.T) {
	h := newHarness(t, sim.Config{Unsupported: true})
	rec, body := h.do(t, http.MethodPost, "/api/enter")
	testutil.AssertStatusCode(t, rec.Code, http.StatusNotImplemented)
	assert.Equal(t, false, body["retryable"])
	assert.Zero(t, h.platform.Counters().SessionsGranted)
}

func TestAPI_MethodsAndParams(t *testing.T) {
	h := newHarness(t, sim.Config{})

	rec, _ := h.do(t, http.MethodGet, "/api/enter")
	testutil.AssertStatusCode(t, rec.Code, http.StatusMethodNotAllowed)
	rec, _ = h.do(t, http.MethodPost, "/api/status")
	testutil.AssertStatusCode(t, rec.Code, http.StatusMethodNotAllowed)
	rec, _ = h.do(t, http.MethodGet, "/api/sessions?limit=zero")
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)

	s := NewServer(h.ctrl, nil, nil)
	rec = httptest.NewRecorder()
	s.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/failures", nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)
}
