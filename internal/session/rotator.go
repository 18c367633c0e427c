package session

import "time"

// statusInterval is how long each loading phrase is shown before the
// rotation advances.
const statusInterval = 2500 * time.Millisecond

var statusMessages = []string{
	"Studying your face shape...",
	"Checking your hair texture...",
	"Consulting Greg, the AI barber...",
	"Sketching out fresh looks...",
	"Warming up the clippers...",
	"Rendering your new styles...",
}

// rotator cycles through the loading phrases on a fixed interval while a
// run is in flight. It lives for exactly one ANALYZING/GENERATING span.
type rotator struct {
	interval time.Duration
	index    int
	stop     chan struct{}
	session  *Session
}

func (s *Session) startRotatorLocked() {
	s.stopRotatorLocked()
	r := &rotator{interval: statusInterval, stop: make(chan struct{}), session: s}
	if s.rotatorInterval > 0 {
		r.interval = s.rotatorInterval
	}
	s.rotator = r
	go r.run()
}

func (s *Session) stopRotatorLocked() {
	if s.rotator != nil {
		close(s.rotator.stop)
		s.rotator = nil
	}
}

func (s *Session) statusMessageLocked() string {
	if s.rotator == nil {
		return ""
	}
	return statusMessages[s.rotator.index%len(statusMessages)]
}

func (r *rotator) run() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.session.mu.Lock()
			// A newer rotator may have replaced this one between the tick
			// and the lock.
			if r.session.rotator == r {
				r.index++
			}
			r.session.mu.Unlock()
		}
	}
}
