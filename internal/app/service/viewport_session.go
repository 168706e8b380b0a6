package service

import (
	"golang.org/x/time/rate"

	"github.com/danghamo/isoboard/internal/domain/viewport"
)

// ViewportSession recomputes the view of one camera at most once per throttle
// interval, and only when the visible range or the board actually changed.
type ViewportSession struct {
	svc       *BoardService
	sometimes *rate.Sometimes
	last      *View
}

// NewViewportSession creates a session throttled by the configured interval
func (s *BoardService) NewViewportSession() *ViewportSession {
	sometimes := &rate.Sometimes{Interval: s.throttle}
	if s.throttle <= 0 {
		sometimes = &rate.Sometimes{Every: 1}
	}
	return &ViewportSession{svc: s, sometimes: sometimes}
}

// Update returns the view for cam and whether it differs from the last one returned.
// Calls inside the throttle interval return the previous view unchanged.
func (vs *ViewportSession) Update(cam viewport.Camera, viewportW, viewportH float64) (View, bool) {
	due := false
	vs.sometimes.Do(func() { due = true })
	if !due && vs.last != nil {
		return *vs.last, false
	}

	r, culled := vs.svc.visibleRange(cam, viewportW, viewportH)
	if vs.last != nil {
		zoom := vs.svc.culler.ClampZoom(cam.Zoom)
		prev := vs.last.Range
		if !vs.svc.culler.HasSignificantChange(r, &prev, zoom, vs.last.Camera.Zoom) && vs.svc.Version() == vs.last.Version {
			return *vs.last, false
		}
	}

	view := vs.svc.view(cam, r, culled)
	vs.last = &view
	return view, true
}

// Last returns the most recent view, if any
func (vs *ViewportSession) Last() (View, bool) {
	if vs.last == nil {
		return View{}, false
	}
	return *vs.last, true
}

// Invalidate forces the next Update to recompute
func (vs *ViewportSession) Invalidate() {
	vs.last = nil
}
