package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sameehj/gatekeeper/pkg/acl"
	"github.com/sameehj/gatekeeper/pkg/chat"
)

// DefaultPrefix marks a message as a command.
const DefaultPrefix = "!"

// Dispatcher turns operator chat messages into registry mutations and
// queries. Messages from anyone who is not an operator are dropped without a
// reply.
type Dispatcher struct {
	registry *acl.Registry
	commands map[string]*command
	logger   *slog.Logger
}

// NewDispatcher returns a dispatcher for registry whose commands start with
// prefix (DefaultPrefix when empty).
func NewDispatcher(registry *acl.Registry, prefix string) *Dispatcher {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	d := &Dispatcher{registry: registry, commands: make(map[string]*command)}
	for i := range commands {
		cmd := &commands[i]
		d.commands[prefix+cmd.name] = cmd
		for _, alias := range cmd.aliases {
			d.commands[prefix+alias] = cmd
		}
	}
	return d
}

// SetLogger sets the logger for command events; nil disables logging.
func (d *Dispatcher) SetLogger(logger *slog.Logger) {
	d.logger = logger
}

// Handle processes one message. It returns an error only when persisting a
// mutation failed; in that case no reply is sent.
func (d *Dispatcher) Handle(ctx context.Context, sess chat.Session, msg chat.Message) error {
	if msg.Direct() {
		return nil
	}
	if !d.registry.IsAllowedOperator(msg.AuthorID) {
		return nil
	}

	fields := strings.Fields(msg.Content)
	if len(fields) == 0 {
		return nil
	}
	name, args := fields[0], fields[1:]
	cmd, ok := d.commands[name]
	if !ok {
		return nil
	}
	if cmd.masterOnly && !d.registry.IsMaster(msg.AuthorID) {
		return nil
	}
	if len(args) != cmd.args {
		return nil
	}

	d.logInfo("command_received",
		"event", chat.EventID(ctx),
		"command", cmd.name,
		"args", args,
		"author", msg.AuthorID,
		"channel", msg.ChannelID)

	reply, err := cmd.run(d.registry, msg.ChannelID, args)
	if err != nil {
		d.logError("command_failed", "event", chat.EventID(ctx), "command", cmd.name, "channel", msg.ChannelID, "error", err)
		return fmt.Errorf("%s: %w", cmd.name, err)
	}
	if reply == "" {
		return nil
	}
	if err := sess.Reply(ctx, msg, reply); err != nil {
		d.logWarn("reply_failed", "event", chat.EventID(ctx), "command", cmd.name, "channel", msg.ChannelID, "error", err)
	}
	return nil
}

type command struct {
	name       string
	aliases    []string
	args       int
	masterOnly bool
	run        func(reg *acl.Registry, channelID string, args []string) (string, error)
}

var commands = []command{
	{name: "add-channel", aliases: []string{"addchannel"}, args: 1, run: addChannel},
	{name: "remove-channel", aliases: []string{"removechannel"}, args: 0, run: removeChannel},
	{name: "whitelist-participant", aliases: []string{"whitelistbot"}, args: 1, run: whitelistParticipant},
	{name: "unwhitelist-participant", aliases: []string{"unwhitelistbot"}, args: 1, run: unwhitelistParticipant},
	{name: "list-operators", aliases: []string{"listusers"}, args: 0, masterOnly: true, run: listOperators},
	{name: "add-operator", aliases: []string{"adduser"}, args: 1, masterOnly: true, run: addOperator},
	{name: "remove-operator", aliases: []string{"removeuser"}, args: 1, masterOnly: true, run: removeOperator},
}

func addChannel(reg *acl.Registry, channelID string, args []string) (string, error) {
	mode := acl.Mode(args[0])
	err := reg.AddChannel(channelID, mode)
	switch {
	case errors.Is(err, acl.ErrChannelExists):
		return fmt.Sprintf("Channel %s is already allowed.", channelID), nil
	case err != nil:
		return "", err
	}
	return fmt.Sprintf("Channel %s added as %q channel.", channelID, string(mode)), nil
}

func removeChannel(reg *acl.Registry, channelID string, _ []string) (string, error) {
	if err := reg.RemoveChannel(channelID); err != nil {
		return "", err
	}
	return fmt.Sprintf("Channel %s removed from allowed channels.", channelID), nil
}

func whitelistParticipant(reg *acl.Registry, channelID string, args []string) (string, error) {
	botID := args[0]
	added, err := reg.WhitelistParticipant(channelID, botID)
	switch {
	case errors.Is(err, acl.ErrNotWhitelistChannel):
		return fmt.Sprintf("Channel %s is not a %q type channel.", channelID, "whitelist"), nil
	case err != nil:
		return "", err
	case !added:
		return fmt.Sprintf("Bot %s is already whitelisted.", botID), nil
	}
	return fmt.Sprintf("Bot %s whitelisted for channel %s.", botID, channelID), nil
}

func unwhitelistParticipant(reg *acl.Registry, channelID string, args []string) (string, error) {
	botID := args[0]
	applied, err := reg.UnwhitelistParticipant(channelID, botID)
	if err != nil {
		return "", err
	}
	if !applied {
		return "", nil
	}
	return fmt.Sprintf("Bot %s removed from whitelist for channel %s.", botID, channelID), nil
}

func listOperators(reg *acl.Registry, _ string, _ []string) (string, error) {
	return "Allowed users: " + strings.Join(reg.ListOperators(), ", "), nil
}

func addOperator(reg *acl.Registry, _ string, args []string) (string, error) {
	userID := args[0]
	added, err := reg.AddOperator(userID)
	if err != nil {
		return "", err
	}
	if !added {
		return fmt.Sprintf("User %s is already allowed.", userID), nil
	}
	return fmt.Sprintf("User %s added to allowed users.", userID), nil
}

func removeOperator(reg *acl.Registry, _ string, args []string) (string, error) {
	userID := args[0]
	if err := reg.RemoveOperator(userID); err != nil {
		return "", err
	}
	return fmt.Sprintf("User %s removed from allowed users.", userID), nil
}

func (d *Dispatcher) logInfo(msg string, args ...any) {
	if d.logger != nil {
		d.logger.Info(msg, args...)
	}
}

func (d *Dispatcher) logWarn(msg string, args ...any) {
	if d.logger != nil {
		d.logger.Warn(msg, args...)
	}
}

func (d *Dispatcher) logError(msg string, args ...any) {
	if d.logger != nil {
		d.logger.Error(msg, args...)
	}
}
