package chat

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

type route struct {
	name    string
	handler Handler
}

// Router fans every message out to its handlers in registration order.
// A failing handler is logged and does not stop the ones after it.
type Router struct {
	routes []route
	logger *slog.Logger
}

// NewRouter returns a router with no handlers.
func NewRouter() *Router {
	return &Router{}
}

// SetLogger sets the logger for handler failures.
func (r *Router) SetLogger(logger *slog.Logger) {
	r.logger = logger
}

// Register appends h under name; handlers run in the order registered.
func (r *Router) Register(name string, h Handler) {
	r.routes = append(r.routes, route{name: name, handler: h})
}

// Dispatch runs all handlers for msg and returns the number that failed.
func (r *Router) Dispatch(ctx context.Context, sess Session, msg Message) int {
	eventID := uuid.NewString()
	ctx = WithEventID(ctx, eventID)
	failed := 0
	for _, rt := range r.routes {
		if err := rt.handler.Handle(ctx, sess, msg); err != nil {
			failed++
			r.logError("handler_failed",
				"event", eventID,
				"handler", rt.name,
				"channel", msg.ChannelID,
				"message", msg.ID,
				"error", err)
		}
	}
	return failed
}

func (r *Router) logError(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Error(msg, args...)
	}
}

type eventIDKey struct{}

// WithEventID tags ctx with the ID of the inbound event being handled.
func WithEventID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, eventIDKey{}, id)
}

// EventID returns the event ID stored in ctx, or "".
func EventID(ctx context.Context) string {
	id, _ := ctx.Value(eventIDKey{}).(string)
	return id
}
