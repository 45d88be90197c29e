package supervisor

import "time"

// Status is a point-in-time view of the supervisor for the admin surface.
type Status struct {
	SessionID      string    `json:"session_id"`
	IOState        string    `json:"io_state"`
	Mode           string    `json:"mode"`
	WaitingUser    bool      `json:"waiting_user"`
	Resets         int       `json:"resets"`
	InnerFaults    int       `json:"inner_faults"`
	Frames         uint64    `json:"frames"`
	KeyFingerprint string    `json:"key_fingerprint,omitempty"`
	BootedAt       time.Time `json:"booted_at"`
}

// Status returns a copy of the current snapshot. Safe from any goroutine.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Supervisor) update(fn func(st *Status)) {
	s.mu.Lock()
	fn(&s.status)
	s.mu.Unlock()
}
