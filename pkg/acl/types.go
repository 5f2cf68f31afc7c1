package acl

import (
	"encoding/json"
	"slices"
)

// Mode selects how a channel treats automated participants.
type Mode string

const (
	ModeOpen      Mode = "OPEN"
	ModeWhitelist Mode = "WHITELIST"
)

// DefaultMaster is the master seeded into a fresh operator document.
const DefaultMaster = "478620292831510529"

// Document names used with the storage backend.
const (
	OperatorsDocument = "operators"
	ChannelsDocument  = "channels"

	// Names the original bot wrote its state under. They are read only when
	// the current document is missing, then rewritten under the names above.
	LegacyOperatorsDocument = "allowed_users"
	LegacyChannelsDocument  = "allowed_channels"
)

// ChannelPolicy is the enforcement rule for bots in one channel.
// WhitelistedParticipants only matters when Mode is ModeWhitelist.
type ChannelPolicy struct {
	Mode                    Mode     `json:"mode"`
	WhitelistedParticipants []string `json:"whitelistedParticipants"`
}

// Allows reports whether participantID may post under this policy.
// Unrecognised modes deny everyone.
func (p ChannelPolicy) Allows(participantID string) bool {
	switch p.Mode {
	case ModeOpen:
		return true
	case ModeWhitelist:
		return slices.Contains(p.WhitelistedParticipants, participantID)
	default:
		return false
	}
}

func (p ChannelPolicy) clone() ChannelPolicy {
	return ChannelPolicy{
		Mode:                    p.Mode,
		WhitelistedParticipants: append([]string{}, p.WhitelistedParticipants...),
	}
}

// UnmarshalJSON also accepts the older {"type": "all"|"whitelist",
// "whitelistedBots": [...]} layout.
func (p *ChannelPolicy) UnmarshalJSON(data []byte) error {
	var raw struct {
		Mode                    Mode     `json:"mode"`
		WhitelistedParticipants []string `json:"whitelistedParticipants"`
		Type                    string   `json:"type"`
		WhitelistedBots         []string `json:"whitelistedBots"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.Mode = raw.Mode
	if p.Mode == "" && raw.Type != "" {
		p.Mode = legacyMode(raw.Type)
	}
	p.WhitelistedParticipants = raw.WhitelistedParticipants
	if p.WhitelistedParticipants == nil {
		p.WhitelistedParticipants = raw.WhitelistedBots
	}
	p.WhitelistedParticipants = dedupe(p.WhitelistedParticipants, "")
	return nil
}

func legacyMode(kind string) Mode {
	switch kind {
	case "all":
		return ModeOpen
	case "whitelist":
		return ModeWhitelist
	default:
		return Mode(kind)
	}
}

// ChannelPolicyMap maps channel IDs to their policy. A channel missing from
// the map forbids all bots.
type ChannelPolicyMap map[string]ChannelPolicy

func (m ChannelPolicyMap) clone() ChannelPolicyMap {
	out := make(ChannelPolicyMap, len(m))
	for id, policy := range m {
		out[id] = policy.clone()
	}
	return out
}

// OperatorRegistry holds the master and the other operators. The master is
// never listed in Operators.
type OperatorRegistry struct {
	Master    string   `json:"master"`
	Operators []string `json:"operators"`
}

func (r OperatorRegistry) clone() OperatorRegistry {
	return OperatorRegistry{Master: r.Master, Operators: append([]string{}, r.Operators...)}
}

// UnmarshalJSON also accepts the older {"users": [...]} layout.
func (r *OperatorRegistry) UnmarshalJSON(data []byte) error {
	var raw struct {
		Master    string   `json:"master"`
		Operators []string `json:"operators"`
		Users     []string `json:"users"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Master = raw.Master
	r.Operators = raw.Operators
	if r.Operators == nil {
		r.Operators = raw.Users
	}
	r.Operators = dedupe(r.Operators, r.Master)
	return nil
}

// ChannelEntry pairs a channel ID with its policy.
type ChannelEntry struct {
	ID     string
	Policy ChannelPolicy
}

// dedupe returns ids without duplicates or skip, keeping first-seen order.
func dedupe(ids []string, skip string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == skip || slices.Contains(out, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}
