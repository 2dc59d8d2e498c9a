package notify

import "sync"

// Recorder keeps every notification it receives, for tests and scripted
// callers
type Recorder struct {
	mu      sync.Mutex
	history []Notification
	current *Notification
	clears  int
}

func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current != nil {
		r.clears++
	}
	r.history = append(r.history, n)
	r.current = &n
}

func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current != nil {
		r.clears++
		r.current = nil
	}
}

// All returns every notification in order
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]Notification(nil), r.history...)
}

// Current returns the pending notification, if any
func (r *Recorder) Current() (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == nil {
		return Notification{}, false
	}
	return *r.current, true
}

// Count returns how many notifications of level were received
func (r *Recorder) Count(level Level) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, item := range r.history {
		if item.Level == level {
			n++
		}
	}
	return n
}

// Clears returns how many times a pending notification was replaced or
// cleared
func (r *Recorder) Clears() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.clears
}
