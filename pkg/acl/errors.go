package acl

import (
	"errors"
	"fmt"
)

// ErrPolicyViolation is the parent of every rejected mutation. Rejections
// never change state.
var ErrPolicyViolation = errors.New("policy violation")

var (
	ErrChannelExists       = fmt.Errorf("%w: channel already exists", ErrPolicyViolation)
	ErrNotWhitelistChannel = fmt.Errorf("%w: channel is not a whitelist channel", ErrPolicyViolation)
)
