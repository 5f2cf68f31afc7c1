package adapter

import "context"

// Adapter connects the gatekeeper to a chat platform and feeds inbound
// messages to a router until ctx is cancelled.
type Adapter interface {
	Start(ctx context.Context) error
}
