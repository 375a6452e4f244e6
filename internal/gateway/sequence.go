// ABOUTME: SequenceStore tracks the last sequence number and resume state of a session
// ABOUTME: Sequence reads are lock-free; routing fields share a small mutex

package gateway

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/2389/coven-bot/internal/store"
)

// SequenceStore holds the resume position of one gateway session. The read
// loop is the only writer of the sequence.
type SequenceStore struct {
	seq atomic.Uint64

	mu         sync.RWMutex
	token      string
	gatewayURL string
}

// Last returns the most recently stored sequence number.
func (s *SequenceStore) Last() uint64 {
	return s.seq.Load()
}

// Update overwrites the sequence. Smaller values are accepted.
func (s *SequenceStore) Update(sn uint64) {
	s.seq.Store(sn)
}

// ResumeToken returns the session id from the last successful hello.
func (s *SequenceStore) ResumeToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// SetResumeToken records the session id from a hello.
func (s *SequenceStore) SetResumeToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// GatewayURL returns the cached gateway endpoint, empty if none.
func (s *SequenceStore) GatewayURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gatewayURL
}

// SetGatewayURL caches the gateway endpoint.
func (s *SequenceStore) SetGatewayURL(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gatewayURL = url
}

// Invalidate drops the cached URL, sequence and resume token.
func (s *SequenceStore) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gatewayURL = ""
	s.token = ""
	s.seq.Store(0)
}

// Snapshot returns the current state as a checkpoint under key.
func (s *SequenceStore) Snapshot(key string) *store.Checkpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &store.Checkpoint{
		Key:          key,
		LastSequence: s.seq.Load(),
		SessionID:    s.token,
		GatewayURL:   s.gatewayURL,
		UpdatedAt:    time.Now(),
	}
}

// Restore replaces the current state with a checkpoint.
func (s *SequenceStore) Restore(cp *store.Checkpoint) {
	if cp == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = cp.SessionID
	s.gatewayURL = cp.GatewayURL
	s.seq.Store(cp.LastSequence)
}
