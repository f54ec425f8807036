package handlers

import (
	"sync"
	"time"
)

const (
	maxTargetSessions = 1024
	targetSessionTTL  = time.Hour
)

type sessionSeq struct {
	seq  uint64
	seen time.Time
}

// targetSequencer orders target updates per page session. A browser sends one
// request per keystroke and those can arrive out of order; an update whose
// sequence number is not above the last one applied for its session is stale.
type targetSequencer struct {
	mu       sync.Mutex
	sessions map[string]sessionSeq
	now      func() time.Time
}

func newTargetSequencer() *targetSequencer {
	return &targetSequencer{
		sessions: make(map[string]sessionSeq),
		now:      time.Now,
	}
}

// apply runs set unless the update is stale and reports whether it ran. The
// lock is held across set so accepted updates reach the store in order.
// Updates without a session or sequence number are always applied.
func (s *targetSequencer) apply(session string, seq uint64, set func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session == "" || seq == 0 {
		set()
		return true
	}

	now := s.now()
	if last, ok := s.sessions[session]; ok && seq <= last.seq {
		last.seen = now
		s.sessions[session] = last
		return false
	}

	if _, ok := s.sessions[session]; !ok && len(s.sessions) >= maxTargetSessions {
		s.prune(now)
	}
	s.sessions[session] = sessionSeq{seq: seq, seen: now}
	set()
	return true
}

func (s *targetSequencer) prune(now time.Time) {
	for id, entry := range s.sessions {
		if now.Sub(entry.seen) > targetSessionTTL {
			delete(s.sessions, id)
		}
	}
	if len(s.sessions) < maxTargetSessions {
		return
	}
	// Everything is recent; forget the oldest session.
	var oldest string
	var oldestSeen time.Time
	for id, entry := range s.sessions {
		if oldest == "" || entry.seen.Before(oldestSeen) {
			oldest, oldestSeen = id, entry.seen
		}
	}
	delete(s.sessions, oldest)
}

func (s *targetSequencer) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
