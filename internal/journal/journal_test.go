package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/anchorpoint/internal/monitoring"
	"github.com/banshee-data/anchorpoint/internal/placement"
	"github.com/banshee-data/anchorpoint/internal/session"
	"github.com/banshee-data/anchorpoint/internal/spatial"
	"github.com/banshee-data/anchorpoint/internal/xr"
)

func init() {
	monitoring.SetLogger(nil)
}

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

var base = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func TestOpen_Migrates(t *testing.T) {
	j := openTestJournal(t)
	v, dirty, err := j.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), v)
	assert.False(t, dirty)

	// Re-running is a no-op.
	require.NoError(t, j.MigrateUp())
}

func TestRecordReport_AndQuery(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	reports := []session.Report{
		{SessionID: "a", Reason: session.ReasonExited, WasActive: true, StartedAt: base, EndedAt: base.Add(time.Minute)},
		{SessionID: "b", Reason: session.ReasonFailed, StartedAt: base.Add(2 * time.Minute), EndedAt: base.Add(3 * time.Minute),
			Err: xr.NewError(xr.CategoryPermissionDenied, xr.StageSession, xr.ErrPermissionDenied)},
		{SessionID: "c", Reason: session.ReasonEndedExternally, WasActive: true, StartedAt: base.Add(4 * time.Minute), EndedAt: base.Add(5 * time.Minute),
			Err: xr.NewError(xr.CategoryEndedExternally, xr.StageRunning, xr.ErrSessionEnded)},
		{SessionID: "d", Reason: session.ReasonFailed, StartedAt: base.Add(6 * time.Minute), EndedAt: base.Add(7 * time.Minute),
			Err: xr.NewError(xr.CategoryPermissionDenied, xr.StageSession, errors.New("denied"))},
	}
	for _, r := range reports {
		require.NoError(t, j.RecordReport(r))
	}

	rows, err := j.RecentSessions(ctx, 3)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "d", rows[0].SessionID)
	assert.Equal(t, "c", rows[1].SessionID)
	assert.Equal(t, "ended-externally", rows[1].Reason)
	assert.Equal(t, "ended-externally", rows[1].Category)
	assert.Equal(t, "running", rows[1].Stage)
	assert.NotEmpty(t, rows[1].Message)
	assert.True(t, rows[1].WasActive)
	assert.Equal(t, base.Add(4*time.Minute), rows[1].StartedAt)

	counts, err := j.FailureCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"permission-denied": 2, "ended-externally": 1}, counts)
}

func TestSink_RecordsEvents(t *testing.T) {
	j := openTestJournal(t)
	tick := base
	j.now = func() time.Time {
		tick = tick.Add(time.Millisecond)
		return tick
	}
	ctx := context.Background()

	m := placement.NewMachine(placement.MachineConfig{Now: func() time.Time { return base }})
	var sink placement.Sink = j
	sink.StateChanged(m.Start("s1"))
	tr := m.Confirm(spatial.Translation(r3.Vec{X: 1, Y: 0, Z: -2}), true)
	sink.StateChanged(tr)
	sink.AnchorPlaced(*tr.Anchor)
	sink.StateChanged(m.End())
	sink.SessionEnded(session.Report{SessionID: "s1", Reason: session.ReasonExited, StartedAt: base, EndedAt: base})

	events, err := j.Events(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, events, 4)
	assert.Equal(t, []string{"start", "confirm", "placed", "end"},
		[]string{events[0].Action, events[1].Action, events[2].Action, events[3].Action})
	assert.Equal(t, "scanning", events[1].From)
	assert.Equal(t, "confirmed", events[1].To)
	require.NotNil(t, events[2].Position)
	assert.Equal(t, [3]float64{1, 0, -2}, *events[2].Position)
	assert.Nil(t, events[0].Position)

	rows, err := j.RecentSessions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 4, rows[0].Events)
}

func TestOpen_BadPath(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "dir", "journal.db"))
	assert.Error(t, err)
}
