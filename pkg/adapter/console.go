package adapter

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/sameehj/gatekeeper/pkg/chat"
)

const consoleSelfID = "gatekeeper"

// ConsoleAdapter reads messages from a terminal for local testing. Each
// line is posted by the configured author in the configured channel; a line
// starting with "@bot:<id> " is posted by that bot instead.
type ConsoleAdapter struct {
	in      io.Reader
	out     io.Writer
	router  *chat.Router
	author  string
	channel string
	guild   string
}

func NewConsoleAdapter(in io.Reader, out io.Writer, router *chat.Router, author, channel string) *ConsoleAdapter {
	return &ConsoleAdapter{in: in, out: out, router: router, author: author, channel: channel, guild: "console"}
}

func (a *ConsoleAdapter) Start(ctx context.Context) error {
	sess := &consoleSession{out: a.out}
	reader := bufio.NewScanner(a.in)
	fmt.Fprintf(a.out, "gatekeeper console: posting as %s in channel %s\n", a.author, a.channel)
	fmt.Fprintln(a.out, "Type 'exit' to quit")

	seq := 0
	for reader.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		text := strings.TrimSpace(reader.Text())
		if text == "exit" {
			break
		}
		if text == "" {
			continue
		}
		seq++
		msg := chat.Message{
			ID:        strconv.Itoa(seq),
			ChannelID: a.channel,
			GuildID:   a.guild,
			AuthorID:  a.author,
			Content:   text,
		}
		if rest, ok := strings.CutPrefix(text, "@bot:"); ok {
			id, content, _ := strings.Cut(rest, " ")
			msg.AuthorID = id
			msg.AuthorName = id
			msg.AuthorBot = true
			msg.Content = content
		}
		a.router.Dispatch(ctx, sess, msg)
	}
	return reader.Err()
}

type consoleSession struct {
	mu  sync.Mutex
	out io.Writer
}

func (s *consoleSession) SelfID() string {
	return consoleSelfID
}

func (s *consoleSession) Reply(ctx context.Context, msg chat.Message, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.out, "%s: %s\n", consoleSelfID, text)
	return err
}

func (s *consoleSession) Delete(ctx context.Context, msg chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.out, "[deleted message %s from %s]\n", msg.ID, msg.AuthorID)
	return err
}
