package acl

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/sameehj/gatekeeper/pkg/store"
)

// Registry owns the operator registry and the channel policy map. It is
// created once per process and handed to every component that needs it.
//
// Each mutation works on a copy, saves the copy and only then publishes it,
// so a failed save leaves the in-memory state as it was.
type Registry struct {
	backend store.Backend

	mu        sync.RWMutex
	operators OperatorRegistry
	channels  ChannelPolicyMap
	seeded    bool
}

// Open loads both documents from backend. A document that was never saved is
// read from the original bot's file name instead and rewritten under the
// current one. When no master is recorded yet, defaultMaster (or
// DefaultMaster when empty) is seeded and saved.
func Open(backend store.Backend, defaultMaster string) (*Registry, error) {
	if backend == nil {
		return nil, errors.New("acl: storage backend is required")
	}
	r := &Registry{backend: backend}

	migrateOperators, err := loadCurrent(backend, OperatorsDocument, LegacyOperatorsDocument, &r.operators)
	if err != nil {
		return nil, err
	}
	if r.operators.Operators == nil {
		r.operators.Operators = []string{}
	}
	migrateChannels, err := loadCurrent(backend, ChannelsDocument, LegacyChannelsDocument, &r.channels)
	if err != nil {
		return nil, err
	}
	if r.channels == nil {
		r.channels = ChannelPolicyMap{}
	}
	for id, policy := range r.channels {
		if policy.WhitelistedParticipants == nil {
			policy.WhitelistedParticipants = []string{}
			r.channels[id] = policy
		}
	}

	if migrateChannels {
		if err := save(backend, ChannelsDocument, r.channels); err != nil {
			return nil, err
		}
	}
	if migrateOperators && r.operators.Master != "" {
		if err := save(backend, OperatorsDocument, r.operators); err != nil {
			return nil, err
		}
	}

	if r.operators.Master == "" {
		if defaultMaster == "" {
			defaultMaster = DefaultMaster
		}
		next := r.operators.clone()
		next.Master = defaultMaster
		next.Operators = dedupe(next.Operators, next.Master)
		if err := save(backend, OperatorsDocument, next); err != nil {
			return nil, err
		}
		r.operators = next
		r.seeded = true
	}
	return r, nil
}

// Seeded reports whether Open had to initialise the master.
func (r *Registry) Seeded() bool {
	return r.seeded
}

// loadCurrent decodes name into out, falling back to legacy when name was
// never saved. It reports whether out came from the legacy document.
func loadCurrent(backend store.Backend, name, legacy string, out any) (bool, error) {
	found, err := load(backend, name, out)
	if err != nil || found {
		return false, err
	}
	return load(backend, legacy, out)
}

func load(backend store.Backend, name string, out any) (bool, error) {
	data, err := backend.Load(name)
	if err != nil {
		return false, fmt.Errorf("load %s: %w", name, err)
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", name, err)
	}
	return true, nil
}

func save(backend store.Backend, name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if err := backend.Save(name, append(data, '\n')); err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	return nil
}

// Master returns the master operator ID.
func (r *Registry) Master() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.operators.Master
}

// IsMaster reports whether id is the master operator.
func (r *Registry) IsMaster(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return id == r.operators.Master
}

// IsAllowedOperator reports whether id may run channel commands.
func (r *Registry) IsAllowedOperator(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return id == r.operators.Master || slices.Contains(r.operators.Operators, id)
}

// IsAllowedParticipant reports whether the bot participantID may post in
// channelID. Channels without a policy deny everyone.
func (r *Registry) IsAllowedParticipant(channelID, participantID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	policy, ok := r.channels[channelID]
	if !ok {
		return false
	}
	return policy.Allows(participantID)
}

// ListOperators returns the operators (master excluded) in insertion order.
func (r *Registry) ListOperators() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string{}, r.operators.Operators...)
}

// Channel returns a copy of the policy for channelID.
func (r *Registry) Channel(channelID string) (ChannelPolicy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	policy, ok := r.channels[channelID]
	if !ok {
		return ChannelPolicy{}, false
	}
	return policy.clone(), true
}

// Channels returns every registered channel sorted by ID.
func (r *Registry) Channels() []ChannelEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ChannelEntry, 0, len(r.channels))
	for id, policy := range r.channels {
		out = append(out, ChannelEntry{ID: id, Policy: policy.clone()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AddChannel registers channelID with mode. mode is stored as given; values
// other than ModeOpen and ModeWhitelist behave as deny-all.
func (r *Registry) AddChannel(channelID string, mode Mode) error {
	return r.updateChannels(func(channels ChannelPolicyMap) error {
		if _, ok := channels[channelID]; ok {
			return ErrChannelExists
		}
		channels[channelID] = ChannelPolicy{Mode: mode, WhitelistedParticipants: []string{}}
		return nil
	})
}

// RemoveChannel drops the policy for channelID. Removing an unknown channel
// succeeds and still saves.
func (r *Registry) RemoveChannel(channelID string) error {
	return r.updateChannels(func(channels ChannelPolicyMap) error {
		delete(channels, channelID)
		return nil
	})
}

// WhitelistParticipant adds participantID to the whitelist of channelID.
// added is false when it was already present.
func (r *Registry) WhitelistParticipant(channelID, participantID string) (added bool, err error) {
	err = r.updateChannels(func(channels ChannelPolicyMap) error {
		policy, ok := channels[channelID]
		if !ok || policy.Mode != ModeWhitelist {
			return ErrNotWhitelistChannel
		}
		if slices.Contains(policy.WhitelistedParticipants, participantID) {
			return nil
		}
		policy.WhitelistedParticipants = append(policy.WhitelistedParticipants, participantID)
		channels[channelID] = policy
		added = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return added, nil
}

// UnwhitelistParticipant removes participantID from the whitelist of
// channelID. Unlike WhitelistParticipant it quietly does nothing (applied is
// false, no save) when the channel is missing or not a whitelist channel.
func (r *Registry) UnwhitelistParticipant(channelID, participantID string) (applied bool, err error) {
	r.mu.RLock()
	policy, ok := r.channels[channelID]
	r.mu.RUnlock()
	if !ok || policy.Mode != ModeWhitelist {
		return false, nil
	}

	err = r.updateChannels(func(channels ChannelPolicyMap) error {
		policy, ok := channels[channelID]
		if !ok || policy.Mode != ModeWhitelist {
			return nil
		}
		policy.WhitelistedParticipants = slices.DeleteFunc(policy.WhitelistedParticipants, func(id string) bool {
			return id == participantID
		})
		channels[channelID] = policy
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// AddOperator grants id operator rights. added is false when id already was
// an operator or is the master.
func (r *Registry) AddOperator(id string) (added bool, err error) {
	err = r.updateOperators(func(ops *OperatorRegistry) error {
		if id == ops.Master || slices.Contains(ops.Operators, id) {
			return nil
		}
		ops.Operators = append(ops.Operators, id)
		added = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return added, nil
}

// RemoveOperator revokes operator rights from id. The master cannot be
// removed this way.
func (r *Registry) RemoveOperator(id string) error {
	return r.updateOperators(func(ops *OperatorRegistry) error {
		ops.Operators = slices.DeleteFunc(ops.Operators, func(op string) bool { return op == id })
		return nil
	})
}

func (r *Registry) updateChannels(fn func(ChannelPolicyMap) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := r.channels.clone()
	if err := fn(next); err != nil {
		return err
	}
	if err := save(r.backend, ChannelsDocument, next); err != nil {
		return err
	}
	r.channels = next
	return nil
}

func (r *Registry) updateOperators(fn func(*OperatorRegistry) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := r.operators.clone()
	if err := fn(&next); err != nil {
		return err
	}
	if err := save(r.backend, OperatorsDocument, next); err != nil {
		return err
	}
	r.operators = next
	return nil
}
