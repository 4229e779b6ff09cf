package plugin

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/soyeahso/roster/internal/hooks"
	"github.com/soyeahso/roster/internal/logging"
)

// Registry starts plugins in registration order and stops them in reverse.
type Registry struct {
	hooks *hooks.Manager
	log   *logging.Logger

	mu      sync.Mutex
	plugins []Plugin
	apis    []*API
	started int
}

func NewRegistry(hm *hooks.Manager, log *logging.Logger) *Registry {
	return &Registry{hooks: hm, log: log.Sub("plugins")}
}

// Register adds p. Plugins cannot be added once the registry has started.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	info := p.Info()
	if r.started > 0 {
		return fmt.Errorf("register %s: registry already started", info.ID)
	}
	if slices.ContainsFunc(r.plugins, func(q Plugin) bool { return q.Info().ID == info.ID }) {
		return fmt.Errorf("plugin already registered: %s", info.ID)
	}
	r.plugins = append(r.plugins, p)
	r.log.Debug().Str("id", info.ID).Str("name", info.Name).Str("version", info.Version).Msg("plugin registered")
	return nil
}

// Start initializes every plugin. If one fails, the plugins started before
// it are closed again and the registry is left stopped.
func (r *Registry) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.plugins[r.started:] {
		id := p.Info().ID
		api := newAPI(id, r.hooks, r.log.Sub(id))
		if err := p.Init(ctx, api); err != nil {
			api.release()
			r.stopLocked()
			return fmt.Errorf("init plugin %s: %w", id, err)
		}
		r.apis = append(r.apis, api)
		r.started++
		r.log.Debug().Str("id", id).Int("handlers", api.Handlers()).Msg("plugin started")
	}
	return nil
}

// Stop removes each started plugin's handlers and closes it, last first,
// and returns the joined close errors.
func (r *Registry) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopLocked()
}

func (r *Registry) stopLocked() error {
	var errs []error
	for i, p := range slices.Backward(r.plugins[:r.started]) {
		r.apis[i].release()
		id := p.Info().ID
		if err := p.Close(); err != nil {
			r.log.Error().Err(err).Str("id", id).Msg("plugin close error")
			errs = append(errs, fmt.Errorf("close plugin %s: %w", id, err))
		}
	}
	r.apis = nil
	r.started = 0
	return errors.Join(errs...)
}

// List returns the plugin ids in registration order.
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, len(r.plugins))
	for i, p := range r.plugins {
		ids[i] = p.Info().ID
	}
	return ids
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.plugins)
}
