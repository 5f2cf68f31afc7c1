package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/sameehj/gatekeeper/pkg/chat"
)

// DiscordIntents are the gateway intents the gatekeeper needs: guild
// channels, guild messages and their content.
const DiscordIntents = discordgo.IntentGuilds | discordgo.IntentGuildMessages | discordgo.IntentMessageContent

type DiscordAdapter struct {
	token  string
	router *chat.Router
	logger *slog.Logger
	drain  func()
}

// NewDiscordAdapter returns an adapter that logs in with the bot token and
// feeds guild messages to router.
func NewDiscordAdapter(token string, router *chat.Router) *DiscordAdapter {
	return &DiscordAdapter{token: token, router: router}
}

func (a *DiscordAdapter) SetLogger(logger *slog.Logger) {
	a.logger = logger
}

// SetDrain registers fn to run after ctx is cancelled and before the gateway
// session closes.
func (a *DiscordAdapter) SetDrain(fn func()) {
	a.drain = fn
}

func (a *DiscordAdapter) Start(ctx context.Context) error {
	if a.token == "" {
		return errors.New("discord: BOT_TOKEN is not set")
	}
	dg, err := discordgo.New("Bot " + a.token)
	if err != nil {
		return fmt.Errorf("discord: create session: %w", err)
	}
	dg.Identify.Intents = DiscordIntents
	// one message at a time, in delivery order
	dg.SyncEvents = true

	sess := &discordSession{dg: dg}
	dg.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		a.logInfo("ready", "user", r.User.String(), "self_id", r.User.ID)
	})
	dg.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Message == nil || m.Author == nil {
			return
		}
		a.router.Dispatch(ctx, sess, toChatMessage(m.Message))
	})

	if err := dg.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}
	<-ctx.Done()
	if a.drain != nil {
		a.drain()
	}
	if err := dg.Close(); err != nil {
		a.logWarn("discord_close_failed", "error", err)
	}
	return ctx.Err()
}

func toChatMessage(m *discordgo.Message) chat.Message {
	msg := chat.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		Content:   m.Content,
	}
	if m.Author != nil {
		msg.AuthorID = m.Author.ID
		msg.AuthorName = m.Author.Username
		msg.AuthorBot = m.Author.Bot
	}
	return msg
}

type discordSession struct {
	dg *discordgo.Session
}

func (s *discordSession) SelfID() string {
	if s.dg.State == nil || s.dg.State.User == nil {
		return ""
	}
	return s.dg.State.User.ID
}

func (s *discordSession) Reply(ctx context.Context, msg chat.Message, text string) error {
	ref := &discordgo.MessageReference{MessageID: msg.ID, ChannelID: msg.ChannelID, GuildID: msg.GuildID}
	_, err := s.dg.ChannelMessageSendReply(msg.ChannelID, text, ref, discordgo.WithContext(ctx))
	return err
}

func (s *discordSession) Delete(ctx context.Context, msg chat.Message) error {
	return s.dg.ChannelMessageDelete(msg.ChannelID, msg.ID, discordgo.WithContext(ctx))
}

func (a *DiscordAdapter) logInfo(msg string, args ...any) {
	if a.logger != nil {
		a.logger.Info(msg, args...)
	}
}

func (a *DiscordAdapter) logWarn(msg string, args ...any) {
	if a.logger != nil {
		a.logger.Warn(msg, args...)
	}
}
