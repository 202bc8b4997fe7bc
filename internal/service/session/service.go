package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("session not found")
	ErrMissingUserId = errors.New("user id is required")
)

type Service struct {
	sessions map[string]*Session
	mtx      sync.RWMutex
}

// Start opens a new session for userId.
func (s *Service) Start(ctx context.Context, userId string) (*Session, error) {
	userId = strings.TrimSpace(userId)
	if len(userId) == 0 {
		return nil, ErrMissingUserId
	}

	session := &Session{
		id:     uuid.New().String(),
		userId: userId,
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	s.sessions[session.id] = session

	return session, nil
}

func (s *Service) List(ctx context.Context) []string {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Service) Get(ctx context.Context, id string) (*Session, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return session, nil
}

func (s *Service) End(ctx context.Context, id string) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.sessions, id)
	return nil
}

func New() *Service {
	return &Service{
		sessions: map[string]*Session{},
		mtx:      sync.RWMutex{},
	}
}
