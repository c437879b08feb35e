package monitor

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/anchorpoint/internal/spatial"
)

func fill(r *TraceRecorder, n int) {
	for i := 0; i < n; i++ {
		hit := i%4 != 3
		r.Observe(time.Duration(i)*time.Second/60, spatial.Translation(r3.Vec{X: float64(i) * 0.01, Y: 0.02 * float64(i%5), Z: -1}), hit)
	}
}

func TestTraceRecorder_Ring(t *testing.T) {
	r := NewTraceRecorder(4)
	assert.Empty(t, r.Samples())

	fill(r, 6)
	got := r.Samples()
	require.Len(t, got, 4)
	assert.Equal(t, 2*time.Second/60, got[0].T)
	assert.Equal(t, 5*time.Second/60, got[3].T)
	assert.InDelta(t, 5.0/6.0, r.HitRate(), 1e-9)

	r.Reset()
	assert.Empty(t, r.Samples())
	assert.Zero(t, r.HitRate())
}

func TestTraceRecorder_SavePlots(t *testing.T) {
	r := NewTraceRecorder(0)
	_, err := r.SavePlots(t.TempDir(), "empty")
	assert.Error(t, err)

	fill(r, 120)
	dir := t.TempDir()
	files, err := r.SavePlots(dir, "run")
	require.NoError(t, err)
	require.Len(t, files, 2)
	for _, f := range files {
		info, err := os.Stat(f)
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0))
	}

	files, err = r.SavePlots(dir, "../outside run")
	require.NoError(t, err)
	for _, f := range files {
		assert.Equal(t, dir, filepath.Dir(f))
	}
	assert.Equal(t, filepath.Join(dir, "outside_run_topdown.png"), files[0])
}

func TestTraceRecorder_HandleTrace(t *testing.T) {
	r := NewTraceRecorder(100)
	fill(r, 40)

	rec := httptest.NewRecorder()
	r.HandleTrace(rec, httptest.NewRequest(http.MethodGet, "/debug/trace", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Recent Hits")

	rec = httptest.NewRecorder()
	r.HandleTrace(rec, httptest.NewRequest(http.MethodPost, "/debug/trace", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
