package session

import (
	"github.com/banshee-data/anchorpoint/internal/monitoring"
	"github.com/banshee-data/anchorpoint/internal/xr"
)

// teardown is the only place resources are released. It is the session's
// end observer, and the forced path when the observer never fires; both
// routes land here and the once guard makes the second a no-op.
func (m *Manager) teardown(rec *record) {
	rec.once.Do(func() {
		m.mu.Lock()
		req := rec.pending
		if req == nil {
			req = &endRequest{
				reason: ReasonEndedExternally,
				err:    xr.NewError(xr.CategoryEndedExternally, rec.stage, xr.ErrSessionEnded),
			}
		}
		if m.cur == rec {
			m.resources.Store(nil)
		}
		if rec.cancel != nil {
			rec.cancel()
		}
		wasActive := rec.phase == phaseActive || (rec.phase == phaseEnding && rec.stage == xr.StageRunning)
		sess, pres, attached := rec.session, rec.presenter, rec.attached
		viewer, local, hit := rec.viewer, rec.local, rec.hitSource
		rec.viewer, rec.local, rec.hitSource = nil, nil, nil
		rec.presenter, rec.attached = nil, false
		rec.phase = phaseEnded
		rec.report = Report{
			SessionID: rec.id,
			Reason:    req.reason,
			Err:       req.err,
			WasActive: wasActive,
			StartedAt: rec.startedAt,
			EndedAt:   m.cfg.Clock.Now(),
		}
		report := rec.report
		m.stats.Teardowns++
		if hit != nil {
			m.stats.HitSourcesCanceled++
		}
		if viewer != nil {
			m.stats.SpacesReleased++
		}
		if local != nil {
			m.stats.SpacesReleased++
		}
		m.mu.Unlock()

		// Frames stop before the spaces they read are released.
		if attached {
			pres.Detach(sess)
		}
		if hit != nil {
			hit.Cancel()
		}
		if local != nil {
			local.Release()
		}
		if viewer != nil {
			viewer.Release()
		}
		if report.Err != nil {
			monitoring.Logf("[session] %s: %s: %v", rec.id, report.Reason, report.Err)
		} else {
			monitoring.Logf("[session] %s: %s", rec.id, report.Reason)
		}
		if m.cfg.OnEnded != nil {
			m.cfg.OnEnded(report)
		}
		// End and the next Start wait on this, so the report is delivered
		// before either returns.
		close(rec.ended)
	})
}
