// Package session holds the state one conversation threads through the loop
// and every tool: the target table, the message log and the presenter.
package session

import (
	"sync"

	"github.com/harunnryd/tabletalk/internal/conversation"
	"github.com/harunnryd/tabletalk/internal/present"
	"github.com/harunnryd/tabletalk/internal/sqlconn"

	"github.com/oklog/ulid/v2"
)

type Session struct {
	ID        string
	Log       *conversation.Log
	Presenter present.Presenter

	mu     sync.RWMutex
	target sqlconn.Target
}

func New(target sqlconn.Target, presenter present.Presenter) *Session {
	return &Session{
		ID:        ulid.Make().String(),
		Log:       conversation.New(),
		Presenter: presenter,
		target:    target,
	}
}

func (s *Session) Target() sqlconn.Target {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.target
}

func (s *Session) SetTarget(t sqlconn.Target) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.target = t
}

// Reset starts a new conversation on the same target and presenter. The old
// log is left untouched; side files it references stay on disk.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ID = ulid.Make().String()
	s.Log = conversation.New()
}
