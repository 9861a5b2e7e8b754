package telegram

import (
	"sync"
	"time"
)

// step is a position in the onboarding dialogue.
type step int

const (
	stepNone step = iota
	stepAwaitingName
	stepAwaitingStartDate
)

func (s step) String() string {
	switch s {
	case stepAwaitingName:
		return "awaiting_name"
	case stepAwaitingStartDate:
		return "awaiting_start_date"
	default:
		return "none"
	}
}

// session is the short-lived onboarding state of one chat.
type session struct {
	step    step
	name    string
	touched time.Time
}

// sessions holds onboarding state in memory, apart from the durable store.
// Idle sessions expire after ttl.
type sessions struct {
	mu  sync.RWMutex
	m   map[int64]session
	ttl time.Duration
	now func() time.Time
}

func newSessions(ttl time.Duration) *sessions {
	return &sessions{m: make(map[int64]session), ttl: ttl, now: time.Now}
}

// begin starts (or restarts) onboarding for a chat.
func (s *sessions) begin(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[chatID] = session{step: stepAwaitingName, touched: s.now()}
}

// get returns the current session; expired sessions read as stepNone.
func (s *sessions) get(chatID int64) session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cur, ok := s.m[chatID]
	if !ok || (s.ttl > 0 && s.now().Sub(cur.touched) > s.ttl) {
		return session{}
	}
	return cur
}

// nameAccepted moves AwaitingName -> AwaitingStartDate.
func (s *sessions) nameAccepted(chatID int64, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[chatID] = session{step: stepAwaitingStartDate, name: name, touched: s.now()}
}

// end drops the session once the subscriber is saved or the dialogue is cancelled.
func (s *sessions) end(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, chatID)
}

// sweep removes expired sessions.
func (s *sessions) sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, cur := range s.m {
		if s.now().Sub(cur.touched) > s.ttl {
			delete(s.m, id)
			n++
		}
	}
	return n
}
