// Package session binds the current agent of a record store to a live
// conversation transport.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/soyeahso/roster/internal/clock"
	"github.com/soyeahso/roster/internal/domain"
	"github.com/soyeahso/roster/internal/logging"
	"github.com/soyeahso/roster/internal/prompt"
	"github.com/soyeahso/roster/internal/recordstore"
	"github.com/soyeahso/roster/internal/remote"
)

var ErrAlreadyStarted = errors.New("session binder already started")

// Config is what a transport needs to speak as an agent.
type Config struct {
	AgentID      string       `json:"agentId"`
	Voice        domain.Voice `json:"voice"`
	Instructions string       `json:"instructions"`
}

// Transport is the live session the binder configures.
type Transport interface {
	Configure(ctx context.Context, cfg Config) error
}

// Binder follows the store's current record and reconfigures the transport
// whenever it changes. Rapid changes collapse to the latest one.
type Binder struct {
	store     *recordstore.Store
	transport Transport
	user      prompt.User
	clock     clock.Clock
	log       *logging.Logger

	mu      sync.Mutex
	started bool
	last    Config
	done    chan struct{}
}

// NewBinder creates a binder. A nil clock uses the real one.
func NewBinder(store *recordstore.Store, t Transport, user prompt.User, clk clock.Clock, log *logging.Logger) *Binder {
	if clk == nil {
		clk = clock.Real()
	}
	return &Binder{
		store:     store,
		transport: t,
		user:      user,
		clock:     clk,
		log:       log.Sub("session"),
		done:      make(chan struct{}),
	}
}

// ConfigFor derives the session config for one agent.
func ConfigFor(agent domain.AgentRecord, user prompt.User, c clock.Clock) Config {
	return Config{
		AgentID:      agent.ID,
		Voice:        agent.Voice,
		Instructions: prompt.BuildSystemInstructions(agent, user, c.Now()),
	}
}

// Start configures the transport for the current record, then keeps it in
// step with the store until ctx is done.
func (b *Binder) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return ErrAlreadyStarted
	}
	b.started = true
	b.mu.Unlock()

	feed := remote.NewFeed[domain.AgentRecord]()
	unsubscribe := b.store.Subscribe(func(next, prev recordstore.State) {
		if next.Current != prev.Current {
			feed.Offer(next.Current)
		}
	})
	feed.Offer(b.store.Current())

	go func() {
		defer close(b.done)
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				feed.Close()
				return
			case rec := <-feed.C():
				b.configure(ctx, rec)
			}
		}
	}()
	return nil
}

// Done is closed once the binder has stopped.
func (b *Binder) Done() <-chan struct{} { return b.done }

// Last returns the config most recently accepted by the transport.
func (b *Binder) Last() Config {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}

func (b *Binder) configure(ctx context.Context, rec domain.AgentRecord) {
	cfg := ConfigFor(rec, b.user, b.clock)
	if err := b.transport.Configure(ctx, cfg); err != nil {
		b.log.Error().Err(err).Str("agent", rec.ID).Msg("session configure failed")
		return
	}
	b.mu.Lock()
	b.last = cfg
	b.mu.Unlock()
	b.log.Debug().Str("agent", rec.ID).Str("voice", string(rec.Voice)).Msg("session configured")
}

// LogTransport only logs the configs it receives.
type LogTransport struct {
	Log *logging.Logger
}

func (t LogTransport) Configure(_ context.Context, cfg Config) error {
	t.Log.Info().
		Str("agent", cfg.AgentID).
		Str("voice", string(cfg.Voice)).
		Int("instructions", len(cfg.Instructions)).
		Msg("session configured")
	return nil
}
