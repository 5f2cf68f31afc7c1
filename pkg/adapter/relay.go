package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sameehj/gatekeeper/pkg/chat"
)

const relayWriteWait = 10 * time.Second

// RelayAdapter speaks a small JSON protocol over a websocket. The relay
// pushes "ready" and "message" frames; the gatekeeper answers with "reply"
// and "delete" frames.
type RelayAdapter struct {
	url    string
	router *chat.Router
	logger *slog.Logger
	drain  func()
}

// NewRelayAdapter returns an adapter that dials url and feeds messages to router.
func NewRelayAdapter(url string, router *chat.Router) *RelayAdapter {
	return &RelayAdapter{url: url, router: router}
}

// SetDrain registers fn to run after the read loop stops and before the
// connection closes, so pending replies and deletions can still be written.
func (a *RelayAdapter) SetDrain(fn func()) {
	a.drain = fn
}

func (a *RelayAdapter) SetLogger(logger *slog.Logger) {
	a.logger = logger
}

func (a *RelayAdapter) Start(ctx context.Context) error {
	conn, err := dialWebSocket(ctx, a.url)
	if err != nil {
		return fmt.Errorf("dial relay: %w", err)
	}
	defer conn.Close()

	// unblock the read loop without closing the connection
	stop := context.AfterFunc(ctx, func() { _ = conn.SetReadDeadline(time.Now()) })
	defer stop()
	defer a.drainPending()

	sess := &relaySession{conn: conn}
	a.logInfo("relay_connected", "url", a.url)
	for {
		var frame Frame
		if err := readWSMessage(conn, &frame); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				a.logInfo("relay_closed", "url", a.url)
				return nil
			}
			return fmt.Errorf("read relay frame: %w", err)
		}
		switch frame.Type {
		case FrameReady:
			sess.setSelf(frame.SelfID)
			a.logInfo("ready", "self_id", frame.SelfID)
		case FrameMessage:
			if frame.Message == nil {
				a.logWarn("relay_frame_invalid", "type", frame.Type)
				continue
			}
			a.router.Dispatch(ctx, sess, *frame.Message)
		default:
			a.logWarn("relay_frame_unknown", "type", frame.Type)
		}
	}
}

type relaySession struct {
	conn *websocket.Conn

	mu     sync.Mutex
	selfID string
}

func (s *relaySession) setSelf(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selfID = id
}

func (s *relaySession) SelfID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selfID
}

func (s *relaySession) Reply(ctx context.Context, msg chat.Message, text string) error {
	return s.write(ctx, Frame{Type: FrameReply, ChannelID: msg.ChannelID, MessageID: msg.ID, Content: text})
}

func (s *relaySession) Delete(ctx context.Context, msg chat.Message) error {
	return s.write(ctx, Frame{Type: FrameDelete, ChannelID: msg.ChannelID, MessageID: msg.ID})
}

// write serialises frames; deletions are sent from other goroutines.
func (s *relaySession) write(ctx context.Context, frame Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	deadline := time.Now().Add(relayWriteWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = s.conn.SetWriteDeadline(deadline)
	if err := writeWSMessage(s.conn, frame); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) {
			return fmt.Errorf("relay closed: %w", err)
		}
		return err
	}
	return nil
}

func (a *RelayAdapter) drainPending() {
	if a.drain != nil {
		a.drain()
	}
}

func (a *RelayAdapter) logInfo(msg string, args ...any) {
	if a.logger != nil {
		a.logger.Info(msg, args...)
	}
}

func (a *RelayAdapter) logWarn(msg string, args ...any) {
	if a.logger != nil {
		a.logger.Warn(msg, args...)
	}
}
