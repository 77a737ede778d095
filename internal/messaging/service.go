// Package messaging defines the transport abstraction between the chat
// platform and the conversation engine, plus the dispatcher that routes
// inbound events to the engine.
package messaging

import (
	"context"
	"time"

	"github.com/vedaverse/followerbot/internal/models"
)

// Constants for messaging service configuration
const (
	// DefaultChannelBufferSize defines the default buffer size for the inbound event channel
	DefaultChannelBufferSize = 100
	// DefaultHandlerTimeout bounds how long a single event handler may run
	DefaultHandlerTimeout = 30 * time.Second
)

// Service defines a pluggable message delivery abstraction.
// It supports sending messages and provides a channel of inbound events.
type Service interface {
	// SendMessage delivers an outbound message to a user.
	SendMessage(ctx context.Context, to models.UserID, msg models.Message) error

	// Start begins any background processing (e.g., long-polling for updates).
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error

	// Events returns a channel of inbound events.
	Events() <-chan models.Event
}
