package session

import (
	"sync"

	"github.com/w-h-a/therapist/memory"
)

// Session is one conversation between a user and the bot. It keeps the
// turns exchanged in this session; long-term memory lives in memory.Memory.
type Session struct {
	id      string
	userId  string
	history []memory.Turn
	mtx     sync.RWMutex
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) UserID() string {
	return s.userId
}

func (s *Session) Append(turns ...memory.Turn) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.history = append(s.history, turns...)
}

func (s *Session) History() []memory.Turn {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	cpy := make([]memory.Turn, len(s.history))
	copy(cpy, s.history)
	return cpy
}
