// ABOUTME: Store interfaces and data types for coven-bot persistence
// ABOUTME: Defines gateway checkpoints and the dispatch audit log

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Checkpoint is the resumable position of one gateway connection.
type Checkpoint struct {
	Key          string
	LastSequence uint64
	SessionID    string
	GatewayURL   string
	UpdatedAt    time.Time
}

// DispatchRecord captures the outcome of dispatching one inbound message.
type DispatchRecord struct {
	ID        string
	Bot       string
	Platform  string
	MessageID string
	UserID    string
	ChannelID string
	Handler   string // empty when no handler matched
	Replied   bool
	Error     string
	CreatedAt time.Time
}

// CheckpointStore persists gateway checkpoints keyed by bot.
type CheckpointStore interface {
	SaveCheckpoint(ctx context.Context, cp *Checkpoint) error
	GetCheckpoint(ctx context.Context, key string) (*Checkpoint, error)
	DeleteCheckpoint(ctx context.Context, key string) error
}

// DispatchLog records dispatch outcomes.
type DispatchLog interface {
	RecordDispatch(ctx context.Context, rec *DispatchRecord) error
	ListDispatches(ctx context.Context, bot string, limit int) ([]*DispatchRecord, error)
}

// Store is the full persistence surface.
type Store interface {
	CheckpointStore
	DispatchLog

	// Close releases any resources held by the store
	Close() error
}
