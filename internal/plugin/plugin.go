// ABOUTME: Plugin values and the Manager that composes them into a root registry
// ABOUTME: Duplicate ids and failing registrations are rejected without stopping other loads

package plugin

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/2389/coven-bot/internal/handler"
)

// ErrPluginAlreadyLoaded indicates a plugin with the same ID is already loaded.
var ErrPluginAlreadyLoaded = errors.New("plugin already loaded")

// ErrPluginNotFound indicates the requested plugin is not loaded.
var ErrPluginNotFound = errors.New("plugin not found")

// ErrInvalidPlugin indicates a registration returned an unusable plugin.
var ErrInvalidPlugin = errors.New("invalid plugin")

// Plugin is a named set of handler registrations.
type Plugin struct {
	ID          string
	Name        string
	Description string
	Version     string
	Registry    *handler.Registry
}

// New creates a plugin with an empty registry.
func New(id, name, description string) *Plugin {
	return &Plugin{
		ID:          id,
		Name:        name,
		Description: description,
		Registry:    handler.NewRegistry(),
	}
}

// Registration builds a plugin.
type Registration func() (*Plugin, error)

// Manager tracks loaded plugins for one bot.
type Manager struct {
	mu      sync.RWMutex
	root    *handler.Registry
	plugins map[string]*Plugin
	order   []string
	logger  *slog.Logger
}

// NewManager creates a manager that composes plugins into root.
func NewManager(root *handler.Registry, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		root:    root,
		plugins: make(map[string]*Plugin),
		logger:  logger.With("component", "plugins"),
	}
}

// Load runs reg and composes the resulting plugin into the root registry.
func (m *Manager) Load(reg Registration) (*Plugin, error) {
	p, err := reg()
	if err != nil {
		return nil, fmt.Errorf("register plugin: %w", err)
	}
	if p == nil || p.ID == "" || p.Registry == nil {
		return nil, fmt.Errorf("%w: missing id or registry", ErrInvalidPlugin)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.plugins[p.ID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrPluginAlreadyLoaded, p.ID)
	}

	handler.Combine(m.root, p.Registry)
	m.plugins[p.ID] = p
	m.order = append(m.order, p.ID)

	m.logger.Info("plugin loaded",
		"plugin_id", p.ID,
		"name", p.Name,
		"version", p.Version,
		"message_handlers", len(p.Registry.MessageHandlers()),
		"total_plugins", len(m.plugins),
	)
	return p, nil
}

// LoadAll loads every registration, logging and skipping failures. It
// returns the plugins that loaded.
func (m *Manager) LoadAll(regs ...Registration) []*Plugin {
	loaded := make([]*Plugin, 0, len(regs))
	for _, reg := range regs {
		p, err := m.Load(reg)
		if err != nil {
			m.logger.Error("plugin load failed, skipping", "error", err)
			continue
		}
		loaded = append(loaded, p)
	}
	return loaded
}

// Get returns the loaded plugin with id.
func (m *Manager) Get(id string) (*Plugin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.plugins[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPluginNotFound, id)
	}
	return p, nil
}

// List returns loaded plugins in load order.
func (m *Manager) List() []*Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Plugin, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.plugins[id])
	}
	return out
}

// IDs returns loaded plugin ids sorted alphabetically.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.plugins))
	for id := range m.plugins {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
