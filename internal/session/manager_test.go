package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/anchorpoint/internal/monitoring"
	"github.com/banshee-data/anchorpoint/internal/timeutil"
	"github.com/banshee-data/anchorpoint/internal/xr"
	"github.com/banshee-data/anchorpoint/internal/xr/sim"
)

func init() {
	monitoring.SetLogger(nil)
}

type reports struct {
	mu  sync.Mutex
	got []Report
}

func (r *reports) add(rep Report) {
	r.mu.Lock()
	r.got = append(r.got, rep)
	r.mu.Unlock()
}

func (r *reports) all() []Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Report(nil), r.got...)
}

func newManager(t *testing.T, p *sim.Platform) (*Manager, *reports) {
	t.Helper()
	rs := &reports{}
	return NewManager(p, Config{OnEnded: rs.add, EndTimeout: 50 * time.Millisecond}), rs
}

// assertBalanced checks every platform resource acquired was released.
func assertBalanced(t *testing.T, p *sim.Platform) {
	t.Helper()
	c := p.Counters()
	assert.Equal(t, c.SpacesAcquired, c.SpacesReleased, "spaces")
	assert.Equal(t, c.HitSourcesAcquired, c.HitSourcesCanceled, "hit sources")
	assert.Equal(t, c.SessionsGranted, c.SessionsEnded, "sessions")
}

func TestManager_StartEnd(t *testing.T) {
	p := sim.New(sim.Config{})
	m, rs := newManager(t, p)

	_, ok := m.Resources()
	assert.False(t, ok)

	s, err := m.Start(context.Background(), Options{})
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.True(t, xr.HasFeature(s.Features, xr.FeatureHitTest))
	assert.True(t, m.Active(s.ID))

	res, ok := m.Resources()
	require.True(t, ok)
	assert.Equal(t, s.ID, res.SessionID)
	assert.Equal(t, xr.ReferenceSpaceViewer, res.Viewer.Type())
	assert.Equal(t, xr.ReferenceSpaceLocal, res.Local.Type())
	assert.NotNil(t, res.HitTest)

	c := p.Counters()
	assert.Equal(t, 2, c.SpacesAcquired)
	assert.Equal(t, 1, c.HitSourcesAcquired)

	require.NoError(t, m.End(context.Background()))
	_, ok = m.Resources()
	assert.False(t, ok)
	assert.False(t, m.Active(s.ID))
	assertBalanced(t, p)

	got := rs.all()
	require.Len(t, got, 1)
	assert.Equal(t, ReasonExited, got[0].Reason)
	assert.True(t, got[0].WasActive)
	assert.Nil(t, got[0].Err)
	assert.Empty(t, got[0].Message())

	st := m.Stats()
	assert.Equal(t, 1, st.Started)
	assert.Equal(t, 1, st.Activated)
	assert.Equal(t, 1, st.Teardowns)
	assert.Equal(t, 2, st.SpacesAcquired)
	assert.Equal(t, 2, st.SpacesReleased)
	assert.Equal(t, 1, st.HitSourcesCanceled)
}

func TestManager_EndIsIdempotent(t *testing.T) {
	p := sim.New(sim.Config{})
	m, rs := newManager(t, p)

	require.NoError(t, m.End(context.Background()))
	_, err := m.Start(context.Background(), Options{})
	require.NoError(t, err)
	require.NoError(t, m.End(context.Background()))
	require.NoError(t, m.End(context.Background()))

	assert.Len(t, rs.all(), 1)
	assert.Equal(t, 1, p.Counters().EndNotifications)
}

func TestManager_SecondStartRejected(t *testing.T) {
	p := sim.New(sim.Config{})
	m, _ := newManager(t, p)

	_, err := m.Start(context.Background(), Options{})
	require.NoError(t, err)
	_, err = m.Start(context.Background(), Options{})
	assert.ErrorIs(t, err, ErrAlreadyActive)
	assert.Equal(t, 1, p.Counters().SessionsGranted)
}

func TestManager_RestartAfterEnd(t *testing.T) {
	p := sim.New(sim.Config{AsyncEnd: true})
	m, rs := newManager(t, p)

	for i := 0; i < 3; i++ {
		_, err := m.Start(context.Background(), Options{})
		require.NoError(t, err)
		require.NoError(t, m.End(context.Background()))
	}
	assert.Len(t, rs.all(), 3)
	assertBalanced(t, p)
}

func TestManager_FailureAtEachStage(t *testing.T) {
	boom := errors.New("boom")
	cases := []struct {
		stage    xr.Stage
		category xr.Category
	}{
		{xr.StageSession, xr.CategoryAcquisitionFailed},
		{xr.StageViewerSpace, xr.CategoryAcquisitionFailed},
		{xr.StageLocalSpace, xr.CategoryAcquisitionFailed},
		{xr.StageHitTestSource, xr.CategoryAcquisitionFailed},
	}
	for _, tc := range cases {
		t.Run(string(tc.stage), func(t *testing.T) {
			p := sim.New(sim.Config{Fail: map[xr.Stage]error{tc.stage: boom}})
			m, rs := newManager(t, p)

			_, err := m.Start(context.Background(), Options{})
			require.Error(t, err)
			var xerr *xr.Error
			require.ErrorAs(t, err, &xerr)
			assert.Equal(t, tc.category, xerr.Category)
			assert.Equal(t, tc.stage, xerr.Stage)
			assert.ErrorIs(t, err, boom)

			_, ok := m.Resources()
			assert.False(t, ok)
			assertBalanced(t, p)

			got := rs.all()
			require.Len(t, got, 1)
			assert.Equal(t, ReasonFailed, got[0].Reason)
			assert.False(t, got[0].WasActive)
			assert.NotEmpty(t, got[0].Message())
			assert.Equal(t, 1, m.Stats().Failed)
		})
	}
}

func TestManager_PermissionDenied(t *testing.T) {
	p := sim.New(sim.Config{DenyPermission: true})
	m, rs := newManager(t, p)

	_, err := m.Start(context.Background(), Options{})
	assert.Equal(t, xr.CategoryPermissionDenied, categoryOf(t, err))
	require.Len(t, rs.all(), 1)
	assert.Equal(t, xr.CategoryPermissionDenied, rs.all()[0].Err.Category)
	assert.Zero(t, p.Counters().SessionsGranted)
}

func TestManager_MissingHitTestFeature(t *testing.T) {
	p := sim.New(sim.Config{DropFeatures: []xr.Feature{xr.FeatureHitTest}})
	m, _ := newManager(t, p)

	_, err := m.Start(context.Background(), Options{})
	assert.Equal(t, xr.CategoryAcquisitionFailed, categoryOf(t, err))
	assert.ErrorIs(t, err, xr.ErrNotSupported)
	assert.Zero(t, p.Counters().SpacesAcquired)
	assertBalanced(t, p)
}

func TestManager_EndDuringAcquisition(t *testing.T) {
	for _, stage := range []xr.Stage{xr.StageSession, xr.StageViewerSpace, xr.StageLocalSpace, xr.StageHitTestSource} {
		t.Run(string(stage), func(t *testing.T) {
			p := sim.New(sim.Config{})
			release := p.Hold(stage)
			defer release()
			m, rs := newManager(t, p)

			errc := make(chan error, 1)
			go func() {
				_, err := m.Start(context.Background(), Options{})
				errc <- err
			}()

			require.Eventually(t, func() bool {
				m.mu.Lock()
				defer m.mu.Unlock()
				return m.cur != nil && m.cur.stage == stage
			}, time.Second, time.Millisecond)

			require.NoError(t, m.End(context.Background()))
			err := <-errc
			assert.ErrorIs(t, err, ErrCanceled)

			_, ok := m.Resources()
			assert.False(t, ok)
			assertBalanced(t, p)
			got := rs.all()
			require.Len(t, got, 1)
			assert.Equal(t, ReasonCanceled, got[0].Reason)
		})
	}
}

func TestManager_StartContextCanceled(t *testing.T) {
	p := sim.New(sim.Config{})
	release := p.Hold(xr.StageLocalSpace)
	defer release()
	m, rs := newManager(t, p)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := m.Start(ctx, Options{})
		errc <- err
	}()
	require.Eventually(t, func() bool { return p.Counters().SpacesAcquired == 1 }, time.Second, time.Millisecond)
	cancel()

	assert.ErrorIs(t, <-errc, ErrCanceled)
	assertBalanced(t, p)
	require.Len(t, rs.all(), 1)
	assert.Equal(t, ReasonCanceled, rs.all()[0].Reason)
}

func TestManager_PlatformEndsActiveSession(t *testing.T) {
	p := sim.New(sim.Config{})
	m, rs := newManager(t, p)

	s, err := m.Start(context.Background(), Options{})
	require.NoError(t, err)

	p.Current().ForceEnd()

	_, ok := m.Resources()
	assert.False(t, ok)
	assert.False(t, m.Active(s.ID))
	assertBalanced(t, p)

	got := rs.all()
	require.Len(t, got, 1)
	assert.Equal(t, ReasonEndedExternally, got[0].Reason)
	require.NotNil(t, got[0].Err)
	assert.Equal(t, xr.CategoryEndedExternally, got[0].Err.Category)
	assert.Equal(t, xr.StageRunning, got[0].Err.Stage)

	// A late End after the platform already ended is a no-op.
	require.NoError(t, m.End(context.Background()))
	assert.Len(t, rs.all(), 1)
}

func TestManager_SilentPlatformForcesTeardown(t *testing.T) {
	p := sim.New(sim.Config{SuppressEnd: true})
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	rs := &reports{}
	m := NewManager(p, Config{OnEnded: rs.add, EndTimeout: time.Second, Clock: clock})

	_, err := m.Start(context.Background(), Options{})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- m.End(context.Background()) }()

	require.Eventually(t, func() bool {
		clock.Advance(time.Second)
		select {
		case err := <-done:
			assert.NoError(t, err)
			return true
		default:
			return false
		}
	}, time.Second, time.Millisecond)

	assertBalanced(t, p)
	assert.Zero(t, p.Counters().EndNotifications)
	require.Len(t, rs.all(), 1)
	assert.Equal(t, ReasonExited, rs.all()[0].Reason)
}

func TestManager_PresenterHandoff(t *testing.T) {
	p := sim.New(sim.Config{})
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	pres := sim.NewPresenter(clock, 60)
	dev := sim.NewDevice()
	m, _ := newManager(t, p)

	var frames sync.WaitGroup
	frames.Add(1)
	var once sync.Once
	pres.SetFrameHandler(func(xr.Frame) { once.Do(frames.Done) })

	_, err := m.Start(context.Background(), Options{Device: dev.Provider(), Presenter: pres})
	require.NoError(t, err)
	assert.True(t, p.Current().SharedDevice())
	assert.Equal(t, 1, p.Counters().DevicesShared)
	assert.Zero(t, p.Counters().DevicesCreated)

	clock.Advance(time.Second / 60)
	frames.Wait()

	require.NoError(t, m.End(context.Background()))
	n := pres.Frames()
	clock.Advance(time.Second)
	assert.Equal(t, n, pres.Frames(), "no frames after teardown")
	assert.False(t, dev.Destroyed())
}

type failingPresenter struct{ detached int }

func (f *failingPresenter) Attach(xr.Session) error { return errors.New("surface lost") }
func (f *failingPresenter) Detach(xr.Session) { f.detached++ }

func TestManager_PresenterAttachFails(t *testing.T) {
	p := sim.New(sim.Config{})
	m, rs := newManager(t, p)
	pres := &failingPresenter{}

	_, err := m.Start(context.Background(), Options{Presenter: pres})
	assert.Equal(t, xr.CategoryAcquisitionFailed, categoryOf(t, err))
	assert.Zero(t, pres.detached)
	assertBalanced(t, p)
	require.Len(t, rs.all(), 1)
	assert.Equal(t, xr.StagePresenter, rs.all()[0].Err.Stage)
}

func TestManager_NilPlatform(t *testing.T) {
	m := NewManager(nil, Config{})
	_, err := m.Start(context.Background(), Options{})
	assert.Equal(t, xr.CategoryUnsupported, categoryOf(t, err))
}

func categoryOf(t *testing.T, err error) xr.Category {
	t.Helper()
	c, ok := xr.CategoryOf(err)
	require.True(t, ok, "not an *xr.Error: %v", err)
	return c
}

func TestManager_EndWaitsForReportDelivery(t *testing.T) {
	p := sim.New(sim.Config{AsyncEnd: true})
	rs := &reports{}
	m := NewManager(p, Config{
		OnEnded: func(r Report) {
			time.Sleep(20 * time.Millisecond)
			rs.add(r)
		},
		EndTimeout: time.Second,
	})

	first, err := m.Start(context.Background(), Options{})
	require.NoError(t, err)
	require.NoError(t, m.End(context.Background()))
	require.Len(t, rs.all(), 1, "End returned before the report was delivered")

	second, err := m.Start(context.Background(), Options{})
	require.NoError(t, err)
	p.Current().ForceEnd()
	require.Eventually(t, func() bool { return len(rs.all()) == 2 }, time.Second, time.Millisecond)

	got := rs.all()
	assert.Equal(t, first.ID, got[0].SessionID)
	assert.Equal(t, ReasonExited, got[0].Reason)
	assert.Equal(t, second.ID, got[1].SessionID)
	assert.Equal(t, ReasonEndedExternally, got[1].Reason)
	assertBalanced(t, p)
}
