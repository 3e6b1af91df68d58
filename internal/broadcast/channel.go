// Package broadcast is the engine's broadcast-channel collaborator: an
// at-least-once publish/subscribe fabric between engine instances. The
// engine assumes per-sender ordering from the channel and nothing across
// senders; the conflict engine is built around that.
package broadcast

import (
	"context"

	"scenesync/internal/model"
)

// Handler consumes envelopes delivered for a subscribed session
type Handler func(env model.Envelope)

// Channel publishes envelopes to every subscriber of a session, including
// the publishing instance itself.
type Channel interface {
	Publish(ctx context.Context, env model.Envelope) error
	// Subscribe delivers envelopes for one session to the handler until the
	// returned cancel function is called.
	Subscribe(ctx context.Context, sessionID string, h Handler) (func(), error)
}
