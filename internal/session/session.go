package session

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kursadbilgin/sms-dispatch/internal/domain"
)

// State is the lifecycle position of a Session.
type State string

const (
	StateActive      State = "ACTIVE"
	StateInvalidated State = "INVALIDATED"
	StateClosed      State = "CLOSED"
)

func (s State) String() string { return string(s) }

// Session carries the bearer token for one operator login. It is acquired at
// login, invalidated when the API answers 401 and closed on logout.
type Session struct {
	mu         sync.RWMutex
	token      string
	state      State
	acquiredAt time.Time
}

func New(token string) (*Session, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: session token is required", domain.ErrValidation)
	}
	return &Session{
		token:      trimmed,
		state:      StateActive,
		acquiredAt: time.Now().UTC(),
	}, nil
}

// Token returns the bearer token while the session is active.
func (s *Session) Token() (string, error) {
	if s == nil {
		return "", fmt.Errorf("%w: no session", domain.ErrUnauthorized)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state != StateActive {
		return "", fmt.Errorf("%w: session %s", domain.ErrUnauthorized, strings.ToLower(s.state.String()))
	}
	return s.token, nil
}

// Invalidate marks the token as rejected by the server. A closed session stays closed.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateActive {
		s.state = StateInvalidated
	}
}

// Close tears the session down and forgets the token.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = StateClosed
	s.token = ""
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) AcquiredAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.acquiredAt
}
