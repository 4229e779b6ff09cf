// Package hooks dispatches roster lifecycle events to registered handlers.
package hooks

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/soyeahso/roster/internal/logging"
)

const (
	EventDirectoryChanged = "directory_changed"
	EventCurrentChanged   = "current_changed"
	EventSeeded           = "seeded"
	EventWriteFailed      = "write_failed"
	EventServerStart      = "server_start"
	EventServerStop       = "server_stop"
)

// AllEvents lists every event roster emits.
var AllEvents = []string{
	EventDirectoryChanged,
	EventCurrentChanged,
	EventSeeded,
	EventWriteFailed,
	EventServerStart,
	EventServerStop,
}

// Payload is what a handler receives.
type Payload struct {
	Event string         `json:"event"`
	Time  time.Time      `json:"time"`
	Data  map[string]any `json:"data,omitempty"`
}

// Handler reacts to one event. Errors and panics are logged and never
// reach the emitter.
type Handler func(ctx context.Context, p Payload) error

type registration struct {
	name string
	fn   Handler
}

// Manager routes events to handlers. A nil *Manager drops every event, so
// components can emit without checking whether hooks are configured.
type Manager struct {
	log *logging.Logger

	mu    sync.RWMutex
	byEvt map[string][]registration
}

func NewManager(log *logging.Logger) *Manager {
	return &Manager{byEvt: make(map[string][]registration), log: log.Sub("hooks")}
}

// On adds fn for event. name identifies it in logs and to Off.
func (m *Manager) On(event, name string, fn Handler) {
	m.mu.Lock()
	m.byEvt[event] = append(m.byEvt[event], registration{name: name, fn: fn})
	m.mu.Unlock()
	m.log.Debug().Str("event", event).Str("handler", name).Msg("hook registered")
}

// Off drops every handler registered for event under name.
func (m *Manager) Off(event, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byEvt[event] = slices.DeleteFunc(m.byEvt[event], func(r registration) bool { return r.name == name })
}

// Count returns how many handlers event has.
func (m *Manager) Count(event string) int {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byEvt[event])
}

// Emit calls event's handlers in registration order on the caller's
// goroutine.
func (m *Manager) Emit(ctx context.Context, event string, data map[string]any) {
	if m == nil {
		return
	}
	m.mu.RLock()
	regs := slices.Clone(m.byEvt[event])
	m.mu.RUnlock()
	if len(regs) == 0 {
		return
	}

	p := Payload{Event: event, Time: time.Now().UTC(), Data: data}
	for _, r := range regs {
		if err := m.call(ctx, r, p); err != nil {
			m.log.Warn().Err(err).Str("event", event).Str("handler", r.name).Msg("hook handler error")
		}
	}
}

func (m *Manager) call(ctx context.Context, r registration, p Payload) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("panic: %v", v)
		}
	}()
	return r.fn(ctx, p)
}
