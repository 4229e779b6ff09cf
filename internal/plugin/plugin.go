// Package plugin loads optional extensions that react to roster's hook
// events.
package plugin

import (
	"context"
	"fmt"

	"github.com/soyeahso/roster/internal/hooks"
	"github.com/soyeahso/roster/internal/logging"
)

// Info identifies a plugin in logs and registry listings.
type Info struct {
	ID      string
	Name    string
	Version string
}

// Plugin is started and stopped by a Registry.
type Plugin interface {
	Info() Info
	// Init subscribes the plugin to events through api.
	Init(ctx context.Context, api *API) error
	Close() error
}

// API is one plugin's handle on the process. Handlers added with Handle
// are removed by the registry when the plugin stops.
type API struct {
	Log *logging.Logger

	owner string
	hooks *hooks.Manager
	added []subscription
}

type subscription struct {
	event, name string
}

func newAPI(owner string, hm *hooks.Manager, log *logging.Logger) *API {
	return &API{Log: log, owner: owner, hooks: hm}
}

// Handle subscribes fn to event under a handler name scoped to the plugin.
func (a *API) Handle(event string, fn hooks.Handler) {
	name := fmt.Sprintf("%s/%d", a.owner, len(a.added))
	a.hooks.On(event, name, fn)
	a.added = append(a.added, subscription{event: event, name: name})
}

// Handlers returns how many handlers the plugin has added.
func (a *API) Handlers() int { return len(a.added) }

func (a *API) release() {
	for _, s := range a.added {
		a.hooks.Off(s.event, s.name)
	}
	a.added = nil
}
