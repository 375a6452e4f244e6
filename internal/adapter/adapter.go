// ABOUTME: Adapter capability interface implemented by each chat platform
// ABOUTME: APIError carries non-zero status codes from platform APIs

package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/2389/coven-bot/internal/message"
)

// ErrNoTarget is returned when a reply has neither a user nor a channel.
var ErrNoTarget = errors.New("reply has no channel or user target")

// FrameHandler receives raw platform payloads from the connection.
type FrameHandler func(ctx context.Context, eventName string, payload json.RawMessage)

// Adapter is one chat platform connection.
type Adapter interface {
	// Name identifies the platform, e.g. "kook".
	Name() string

	// Connect holds the platform connection and feeds payloads to handle
	// until ctx is cancelled or Close is called.
	Connect(ctx context.Context, handle FrameHandler) error

	// Close stops the connection and waits for in-flight handlers until
	// ctx expires.
	Close(ctx context.Context) error

	// PackageMessage converts a payload into a *message.Message, a
	// *message.Event, or nil when the payload should be ignored.
	PackageMessage(ctx context.Context, eventName string, payload json.RawMessage) (message.Inbound, error)

	// SendChainMessage delivers a reply.
	SendChainMessage(ctx context.Context, reply *message.Reply) ([]message.Receipt, error)

	// RecallMessage deletes a sent message. targetID is the channel or room
	// when the platform needs one.
	RecallMessage(ctx context.Context, messageID, targetID string) error
}

// APIError is a non-zero status returned by a platform API.
type APIError struct {
	Code    int
	Message string
	// Endpoint is the API path that failed, when known.
	Endpoint string
}

func (e *APIError) Error() string {
	if e.Endpoint != "" {
		return fmt.Sprintf("%s: api error %d: %s", e.Endpoint, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.Code, e.Message)
}

// APICode returns the platform status code.
func (e *APIError) APICode() int {
	return e.Code
}

// Target returns where a reply should go: the user for direct replies,
// otherwise the channel.
func Target(reply *message.Reply) (string, error) {
	switch {
	case reply.IsDirect && reply.UserID != "":
		return reply.UserID, nil
	case reply.ChannelID != "":
		return reply.ChannelID, nil
	case reply.UserID != "":
		return reply.UserID, nil
	default:
		return "", ErrNoTarget
	}
}
