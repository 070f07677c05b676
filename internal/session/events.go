package session

// SessionFunc is a callback observing a session-level transition.
type SessionFunc func(*Session)

// TrialFunc is a callback observing a trial-level transition.
type TrialFunc func(*Trial)

// events holds the registered callback lists. Callbacks run
// synchronously at the transition point, in registration order; the
// core calls them directly so ordering and error propagation are
// explicit rather than engine-driven.
type events struct {
	onSessionBegin []SessionFunc
	onSessionEnd   []SessionFunc
	preSessionEnd  []SessionFunc
	onTrialBegin   []TrialFunc
	onTrialEnd     []TrialFunc
}

// OnSessionBegin registers a callback fired after Begin completes.
func (s *Session) OnSessionBegin(f SessionFunc) {
	s.events.onSessionBegin = append(s.events.onSessionBegin, f)
}

// OnSessionEnd registers a callback fired after End has drained all
// queued writes, before the session resets.
func (s *Session) OnSessionEnd(f SessionFunc) {
	s.events.onSessionEnd = append(s.events.onSessionEnd, f)
}

// OnPreSessionEnd registers a cleanup callback fired during End, after
// the results table is submitted and before the write queue drains.
// Use it to flush any externally-held data through the session's save
// operations while they can still be queued.
func (s *Session) OnPreSessionEnd(f SessionFunc) {
	s.events.preSessionEnd = append(s.events.preSessionEnd, f)
}

// OnTrialBegin registers a callback fired after each trial begins.
func (s *Session) OnTrialBegin(f TrialFunc) {
	s.events.onTrialBegin = append(s.events.onTrialBegin, f)
}

// OnTrialEnd registers a callback fired after each trial ends.
func (s *Session) OnTrialEnd(f TrialFunc) {
	s.events.onTrialEnd = append(s.events.onTrialEnd, f)
}

func (s *Session) fireSessionBegin() {
	for _, f := range s.events.onSessionBegin {
		f(s)
	}
}

func (s *Session) fireSessionEnd() {
	for _, f := range s.events.onSessionEnd {
		f(s)
	}
}

func (s *Session) firePreSessionEnd() {
	for _, f := range s.events.preSessionEnd {
		f(s)
	}
}

func (s *Session) fireTrialBegin(t *Trial) {
	for _, f := range s.events.onTrialBegin {
		f(t)
	}
}

func (s *Session) fireTrialEnd(t *Trial) {
	for _, f := range s.events.onTrialEnd {
		f(t)
	}
}
