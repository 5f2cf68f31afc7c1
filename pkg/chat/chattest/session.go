// Package chattest provides an in-memory chat.Session for tests.
package chattest

import (
	"context"
	"sync"

	"github.com/sameehj/gatekeeper/pkg/chat"
)

type Reply struct {
	To   chat.Message
	Text string
}

// Session records replies and deletions instead of talking to a platform.
type Session struct {
	Self string
	// DeleteErr, when set, is returned by every Delete call.
	DeleteErr error
	// ReplyErr, when set, is returned by every Reply call.
	ReplyErr error

	mu      sync.Mutex
	replies []Reply
	deleted []chat.Message
}

func NewSession(self string) *Session {
	return &Session{Self: self}
}

func (s *Session) SelfID() string {
	return s.Self
}

func (s *Session) Reply(ctx context.Context, msg chat.Message, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ReplyErr != nil {
		return s.ReplyErr
	}
	s.replies = append(s.replies, Reply{To: msg, Text: text})
	return nil
}

func (s *Session) Delete(ctx context.Context, msg chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	s.deleted = append(s.deleted, msg)
	return nil
}

func (s *Session) Replies() []Reply {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Reply(nil), s.replies...)
}

func (s *Session) Deleted() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]chat.Message(nil), s.deleted...)
}
