package chat

import "context"

// Message is one inbound chat message.
type Message struct {
	ID         string `json:"id"`
	ChannelID  string `json:"channel_id"`
	GuildID    string `json:"guild_id,omitempty"`
	AuthorID   string `json:"author_id"`
	AuthorName string `json:"author_name,omitempty"`
	AuthorBot  bool   `json:"author_bot,omitempty"`
	Content    string `json:"content"`
}

// Direct reports whether the message was sent outside of a guild channel.
func (m Message) Direct() bool {
	return m.GuildID == ""
}

// Session is the platform connection a message arrived on.
type Session interface {
	// SelfID is the account the gatekeeper itself posts as.
	SelfID() string
	Reply(ctx context.Context, msg Message, text string) error
	Delete(ctx context.Context, msg Message) error
}

type Handler interface {
	Handle(ctx context.Context, sess Session, msg Message) error
}

type HandlerFunc func(ctx context.Context, sess Session, msg Message) error

func (f HandlerFunc) Handle(ctx context.Context, sess Session, msg Message) error {
	return f(ctx, sess, msg)
}
