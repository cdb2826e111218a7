package reconcile

import "github.com/joeblew999/plat-campus/internal/surface"

// Session is the reconciliation state of one render surface. Listener
// state is reset only when a style change begins and set only when a pass
// completes; it is never inferred from surface events.
type Session struct {
	requestedStyle string
	listenersBound bool
	handles        []surface.Unsubscribe
	initialLoad    bool
	passes         int
	generation     int
}

func newSession(style string) *Session {
	return &Session{requestedStyle: style, initialLoad: true}
}

// BeginStyleChange records style as the one to act on and releases the
// current listener bindings. Releasing a binding the surface already
// dropped is a no-op, so the next pass binds exactly one set either way.
func (s *Session) BeginStyleChange(style string) {
	for _, off := range s.handles {
		off()
	}
	s.handles = nil
	s.listenersBound = false
	s.requestedStyle = style
	s.generation++
}

// Current reports whether a style load belongs to the latest request.
func (s *Session) Current(style string) bool {
	return style == s.requestedStyle
}

func (s *Session) bound(handles []surface.Unsubscribe) {
	s.handles = handles
	s.listenersBound = true
}

func (s *Session) completed() {
	s.passes++
	s.initialLoad = false
}

// RequestedStyle returns the style the session acts on.
func (s *Session) RequestedStyle() string { return s.requestedStyle }

// ListenersBound reports whether the interaction listeners are bound.
func (s *Session) ListenersBound() bool { return s.listenersBound }

// InitialLoad reports whether no pass has completed yet.
func (s *Session) InitialLoad() bool { return s.initialLoad }

// Passes counts completed reconciliation passes.
func (s *Session) Passes() int { return s.passes }

// Generation counts style changes.
func (s *Session) Generation() int { return s.generation }
