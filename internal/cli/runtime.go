package cli

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/soyeahso/roster/internal/config"
	"github.com/soyeahso/roster/internal/domain"
	"github.com/soyeahso/roster/internal/gateway"
	"github.com/soyeahso/roster/internal/hooks"
	"github.com/soyeahso/roster/internal/identity"
	"github.com/soyeahso/roster/internal/plugin"
	"github.com/soyeahso/roster/internal/recordstore"
	"github.com/soyeahso/roster/internal/remote"
	"github.com/soyeahso/roster/internal/store"
	"github.com/soyeahso/roster/internal/syncer"
)

const (
	readyTimeout   = 10 * time.Second
	pointerTimeout = 2 * time.Second
)

var errAdminRequired = errors.New("this action requires the admin role (pass --password, or set identity.email to an address in identity.adminEmails)")

// loadConfig loads the config file and rejects it when validation fails.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return cfg, err
	}
	if issues := config.Validate(&cfg); len(issues) > 0 {
		for _, issue := range issues {
			log.Error().Str("path", issue.Path).Msg(issue.Message)
		}
		return cfg, fmt.Errorf("config validation failed with %d issue(s)", len(issues))
	}
	return cfg, nil
}

// openDirectory connects to the configured remote directory.
func openDirectory(ctx context.Context, cfg config.Config) (remote.Directory, func(), error) {
	switch cfg.Directory.Backend {
	case "memory":
		dir, _ := remote.NewMemory(log)
		return dir, func() { dir.Close() }, nil

	case "sqlite":
		dbPath := cfg.Directory.DatabasePath(paths)
		db, err := store.Open(dbPath, log)
		if err != nil {
			return nil, nil, fmt.Errorf("opening database: %w", err)
		}
		dir := remote.NewLocal(store.NewDocuments(db), log)
		log.Debug().Str("path", dbPath).Msg("using sqlite directory")
		return dir, func() {
			dir.Close()
			db.Close()
		}, nil

	case "gateway":
		c, err := gateway.Dial(ctx, gateway.DialOptions{
			URL:         cfg.Directory.URL,
			Token:       cfg.Directory.Token,
			Password:    cfg.Directory.Password,
			ClientID:    "roster-cli",
			DisplayName: cfg.Identity.Name,
		}, log)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to gateway %s: %w", cfg.Directory.URL, err)
		}
		return c, func() { c.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown directory backend %q", cfg.Directory.Backend)
}

// startHooks wires the configured hook commands.
func startHooks(ctx context.Context, cfg config.Config) (*hooks.Manager, func(), error) {
	hm := hooks.NewManager(log)
	reg := plugin.NewRegistry(hm, log)
	if err := reg.Register(plugin.NewCommands(cfg.Hooks)); err != nil {
		return nil, nil, err
	}
	if err := reg.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("starting plugins: %w", err)
	}
	return hm, func() { reg.Stop() }, nil
}

func collections(cfg config.Config) syncer.Collections {
	return syncer.Collections{
		Agents:     cfg.Sync.AgentsCollection,
		Config:     cfg.Sync.ConfigCollection,
		PointerDoc: cfg.Sync.PointerDoc,
	}
}

func loadPresets(cfg config.Config) ([]domain.AgentRecord, error) {
	if cfg.Sync.PresetsFile == "" {
		return domain.DefaultPresets(), nil
	}
	return domain.LoadPresets(cfg.Sync.PresetsFile)
}

// app is one running sync client: a directory, a store and the engine
// between them.
type app struct {
	cfg    config.Config
	dir    remote.Directory
	engine *syncer.Engine

	failed  atomic.Int32
	closers []func()
}

// openApp connects, starts the engine and waits until the local store
// reflects the remote directory.
func openApp(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{cfg: cfg}

	presets, err := loadPresets(cfg)
	if err != nil {
		return nil, err
	}

	hm, closeHooks, err := startHooks(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeHooks)

	dir, closeDir, err := openDirectory(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.dir = dir
	a.closers = append(a.closers, closeDir)

	rs := recordstore.New(presets, domain.DefaultCurrentID)
	a.engine = syncer.New(rs, dir, syncer.Options{
		Collections:  collections(cfg),
		Debounce:     cfg.Sync.Debounce(),
		WriteTimeout: cfg.Sync.WriteTimeout(),
		Presets:      presets,
		Hooks:        hm,
		OnWriteError: func(op, collection, id string, err error) {
			a.failed.Add(1)
		},
	}, log)
	if err := a.engine.Start(ctx); err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, a.engine.Dispose)

	readyCtx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()
	if err := a.engine.WaitReady(readyCtx); err != nil {
		a.Close()
		return nil, fmt.Errorf("waiting for directory: %w", err)
	}
	a.awaitPointer(ctx)
	return a, nil
}

// awaitPointer gives a stored pointer the chance to resolve before a
// one-shot command reads the current agent.
func (a *app) awaitPointer(ctx context.Context) {
	c := collections(a.cfg)
	ctx, cancel := context.WithTimeout(ctx, pointerTimeout)
	defer cancel()

	if _, ok, err := a.dir.GetDoc(ctx, c.Config, c.PointerDoc); err != nil || !ok {
		return
	}
	for a.engine.PointerState() != syncer.PointerSynced {
		select {
		case <-ctx.Done():
			log.Warn().Msg("current agent pointer did not resolve")
			return
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// Store returns the synced local store.
func (a *app) Store() *recordstore.Store { return a.engine.Store() }

// Commit writes pending edits and waits for every remote write. It fails
// when any of them did.
func (a *app) Commit() error {
	a.engine.FlushAll()
	a.engine.Settle()
	if n := a.failed.Load(); n > 0 {
		return fmt.Errorf("%d remote write(s) failed", n)
	}
	return nil
}

// Close tears everything down in reverse order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// requireAdmin resolves the operator's identity and insists on the admin
// role.
func requireAdmin(cfg config.Config, password string) (identity.Identity, error) {
	auth := identity.New(cfg.Identity.AdminEmails, cfg.Identity.AdminPassword, log)

	var (
		id  identity.Identity
		err error
	)
	switch {
	case password != "":
		id, err = auth.LoginAsAdmin(password)
	case cfg.Identity.Email != "":
		id, err = auth.LoginWithProfile(identity.Profile{Name: cfg.Identity.Name, Email: cfg.Identity.Email})
	default:
		return identity.Identity{}, errAdminRequired
	}
	if err != nil {
		return identity.Identity{}, err
	}
	if !id.IsAdmin() {
		return id, errAdminRequired
	}
	return id, nil
}
