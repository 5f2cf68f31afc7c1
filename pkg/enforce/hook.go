package enforce

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sameehj/gatekeeper/pkg/chat"
)

// Policy decides whether a bot may post in a channel.
type Policy interface {
	IsAllowedParticipant(channelID, participantID string) bool
}

// Result is the outcome of one deletion request.
type Result struct {
	Message chat.Message
	Err     error
}

// Hook deletes bot messages that the channel policy does not allow.
// Deletions run in the background; failures are logged and dropped.
type Hook struct {
	policy Policy
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewHook returns a hook that consults policy for every bot message.
func NewHook(policy Policy) *Hook {
	return &Hook{policy: policy}
}

// SetLogger sets the logger for deletion events; nil disables logging.
func (h *Hook) SetLogger(logger *slog.Logger) {
	h.logger = logger
}

// Check starts a deletion when msg is a disallowed bot message. The returned
// channel yields exactly one Result and is then closed; it is nil when the
// message is left alone.
func (h *Hook) Check(ctx context.Context, sess chat.Session, msg chat.Message) <-chan Result {
	if msg.AuthorID == sess.SelfID() {
		return nil
	}
	if !msg.AuthorBot {
		return nil
	}
	if h.policy.IsAllowedParticipant(msg.ChannelID, msg.AuthorID) {
		return nil
	}

	eventID := chat.EventID(ctx)
	// the deletion outlives the handler call
	ctx = context.WithoutCancel(ctx)
	done := make(chan Result, 1)
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer close(done)
		err := sess.Delete(ctx, msg)
		if err != nil {
			h.logError("bot_message_delete_failed",
				"event", eventID,
				"author", msg.AuthorName,
				"author_id", msg.AuthorID,
				"channel", msg.ChannelID,
				"error", err)
		} else {
			h.logInfo("bot_message_deleted",
				"event", eventID,
				"author", msg.AuthorName,
				"author_id", msg.AuthorID,
				"channel", msg.ChannelID)
		}
		done <- Result{Message: msg, Err: err}
	}()
	return done
}

// Handle adapts Check to chat.Handler. It never returns an error.
func (h *Hook) Handle(ctx context.Context, sess chat.Session, msg chat.Message) error {
	h.Check(ctx, sess, msg)
	return nil
}

// Wait blocks until every started deletion has finished.
func (h *Hook) Wait() {
	h.wg.Wait()
}

func (h *Hook) logInfo(msg string, args ...any) {
	if h.logger != nil {
		h.logger.Info(msg, args...)
	}
}

func (h *Hook) logError(msg string, args ...any) {
	if h.logger != nil {
		h.logger.Error(msg, args...)
	}
}
