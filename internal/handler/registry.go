// ABOUTME: Thread-safe registry of message, event and exception handlers plus hooks
// ABOUTME: Combine merges one registry into another without dropping entries

package handler

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/2389/coven-bot/internal/message"
)

// AllEvents registers an event handler for every event name.
const AllEvents = "*"

// EventFunc handles a platform event.
type EventFunc func(ctx context.Context, ev *message.Event) error

// ExceptionFunc handles an error raised by other handlers. in is the
// message or event being processed.
type ExceptionFunc func(ctx context.Context, err error, in message.Inbound)

// BeforeFunc runs before a message handler. Returning false skips the
// handler and its reply.
type BeforeFunc func(ctx context.Context, msg *message.Message, handler string) (bool, error)

// AfterFunc runs after a reply was produced and sent.
type AfterFunc func(ctx context.Context, reply *message.Reply, receipts []message.Receipt, handler string) error

// Middleware transforms or annotates a message before matching. Returning
// nil keeps the message unchanged.
type Middleware func(ctx context.Context, msg *message.Message) (*message.Message, error)

// eventEntry keeps the registering name for logs.
type eventEntry struct {
	name string
	fn   EventFunc
}

// Registry holds handler registrations for a bot or a plugin.
type Registry struct {
	mu sync.RWMutex

	prefixKeywords []string
	messages       []*Descriptor
	events         map[string][]eventEntry
	exceptions     map[Kind][]ExceptionFunc
	before         []BeforeFunc
	after          []AfterFunc
	middleware     []Middleware
	groups         map[string]GroupConfig
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		events:     make(map[string][]eventEntry),
		exceptions: make(map[Kind][]ExceptionFunc),
		groups:     make(map[string]GroupConfig),
	}
}

// AddPrefixKeywords appends prefixes used by the prefix rule.
func (r *Registry) AddPrefixKeywords(prefixes ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prefixKeywords = append(r.prefixKeywords, prefixes...)
}

// PrefixKeywords returns a copy of the prefix keywords.
func (r *Registry) PrefixKeywords() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.prefixKeywords)
}

// OnMessage registers a message handler and returns its descriptor.
func (r *Registry) OnMessage(fn MessageFunc, opts ...Option) *Descriptor {
	d := newDescriptor(fn, opts)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, d)
	return d
}

// OnEvent registers fn for each of names. With no names it registers for
// AllEvents.
func (r *Registry) OnEvent(fn EventFunc, names ...string) {
	if len(names) == 0 {
		names = []string{AllEvents}
	}
	entry := eventEntry{name: funcName(fn), fn: fn}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range names {
		r.events[name] = append(r.events[name], entry)
	}
}

// OnException registers fn for each of kinds. With no kinds it registers
// for KindAny.
func (r *Registry) OnException(fn ExceptionFunc, kinds ...Kind) {
	if len(kinds) == 0 {
		kinds = []Kind{KindAny}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range kinds {
		r.exceptions[k] = append(r.exceptions[k], fn)
	}
}

// BeforeReply registers a before-reply hook.
func (r *Registry) BeforeReply(fn BeforeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.before = append(r.before, fn)
}

// AfterReply registers an after-reply hook.
func (r *Registry) AfterReply(fn AfterFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.after = append(r.after, fn)
}

// Use registers message middleware.
func (r *Registry) Use(mw Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, mw)
}

// SetGroupConfig stores cfg under cfg.ID, replacing any previous config.
func (r *Registry) SetGroupConfig(cfg GroupConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups[cfg.ID] = cfg
}

// GroupConfig returns the config for id.
func (r *Registry) GroupConfig(id string) (GroupConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.groups[id]
	return cfg, ok
}

// MessageHandlers returns the descriptors in registration order.
func (r *Registry) MessageHandlers() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.messages)
}

// EventHandlerCount returns how many handlers are registered for name.
func (r *Registry) EventHandlerCount(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.events[name])
}

// ExceptionHandlerCount returns how many handlers are registered for k.
func (r *Registry) ExceptionHandlerCount(k Kind) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.exceptions[k])
}

// EventNames returns every event name with at least one handler.
func (r *Registry) EventNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := slices.Collect(maps.Keys(r.events))
	slices.Sort(names)
	return names
}

// snapshot is an immutable copy of a registry used for one dispatch or merge.
type snapshot struct {
	prefixKeywords []string
	messages       []*Descriptor
	events         map[string][]eventEntry
	exceptions     map[Kind][]ExceptionFunc
	before         []BeforeFunc
	after          []AfterFunc
	middleware     []Middleware
	groups         map[string]GroupConfig
}

func (r *Registry) snapshot() *snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := &snapshot{
		prefixKeywords: slices.Clone(r.prefixKeywords),
		messages:       slices.Clone(r.messages),
		before:         slices.Clone(r.before),
		after:          slices.Clone(r.after),
		middleware:     slices.Clone(r.middleware),
		events:         make(map[string][]eventEntry, len(r.events)),
		exceptions:     make(map[Kind][]ExceptionFunc, len(r.exceptions)),
		groups:         maps.Clone(r.groups),
	}
	for k, v := range r.events {
		s.events[k] = slices.Clone(v)
	}
	for k, v := range r.exceptions {
		s.exceptions[k] = slices.Clone(v)
	}
	return s
}

// Combine merges source into target. Sequences are appended after target's
// entries, handler map lists are appended per key, and group configs from
// source overwrite target's on collision. Combining the same source twice
// appends its entries twice.
func Combine(target, source *Registry) {
	src := source.snapshot()

	target.mu.Lock()
	defer target.mu.Unlock()

	target.prefixKeywords = append(target.prefixKeywords, src.prefixKeywords...)
	target.messages = append(target.messages, src.messages...)
	target.before = append(target.before, src.before...)
	target.after = append(target.after, src.after...)
	target.middleware = append(target.middleware, src.middleware...)

	for id, cfg := range src.groups {
		target.groups[id] = cfg
	}
	for name, list := range src.events {
		target.events[name] = append(target.events[name], list...)
	}
	for k, list := range src.exceptions {
		target.exceptions[k] = append(target.exceptions[k], list...)
	}
}
