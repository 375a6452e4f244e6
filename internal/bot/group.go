// ABOUTME: Group running several bot instances concurrently
// ABOUTME: One bot's failure is logged without stopping the others

package bot

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Group is a set of bots run together.
type Group struct {
	mu        sync.RWMutex
	instances []*Instance
	logger    *slog.Logger
}

// NewGroup creates an empty group.
func NewGroup(logger *slog.Logger) *Group {
	if logger == nil {
		logger = slog.Default()
	}
	return &Group{logger: logger.With("component", "bot-group")}
}

// Add appends an instance.
func (g *Group) Add(inst *Instance) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.instances = append(g.instances, inst)
}

// Instances returns the instances in the order they were added.
func (g *Group) Instances() []*Instance {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]*Instance(nil), g.instances...)
}

// Get returns the instance named name.
func (g *Group) Get(name string) (*Instance, bool) {
	for _, inst := range g.Instances() {
		if inst.Name() == name {
			return inst, true
		}
	}
	return nil, false
}

// Run runs every instance until all return. The first error is returned
// once all have finished.
func (g *Group) Run(ctx context.Context) error {
	var eg errgroup.Group
	for _, inst := range g.Instances() {
		eg.Go(func() error {
			err := inst.Run(ctx)
			if err != nil {
				g.logger.Error("bot stopped with error", "bot", inst.Name(), "error", err)
			}
			return err
		})
	}
	return eg.Wait()
}

// Close closes every instance concurrently.
func (g *Group) Close(ctx context.Context) error {
	var (
		mu   sync.Mutex
		errs []error
		eg   errgroup.Group
	)
	for _, inst := range g.Instances() {
		eg.Go(func() error {
			if err := inst.Close(ctx); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = eg.Wait()
	return errors.Join(errs...)
}
