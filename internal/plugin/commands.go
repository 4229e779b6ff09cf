package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/soyeahso/roster/internal/config"
	"github.com/soyeahso/roster/internal/hooks"
	"github.com/soyeahso/roster/internal/logging"
	"github.com/soyeahso/roster/internal/version"
)

const defaultCommandTimeout = 10 * time.Second

// Commands runs the shell commands configured under hooks.* for each event.
// The payload is written to the command's stdin as JSON and the event name
// is exported as ROSTER_EVENT. Commands run in the background so a slow
// script never stalls the emitter; failures are logged.
type Commands struct {
	byEvent map[string][]config.HookEntry

	log     *logging.Logger
	running sync.WaitGroup
}

// NewCommands maps the configured hook entries to their events.
func NewCommands(cfg config.HooksConfig) *Commands {
	return &Commands{byEvent: map[string][]config.HookEntry{
		hooks.EventCurrentChanged:   cfg.CurrentChanged,
		hooks.EventDirectoryChanged: cfg.DirectoryChanged,
		hooks.EventSeeded:           cfg.Seeded,
		hooks.EventWriteFailed:      cfg.WriteFailed,
		hooks.EventServerStart:      cfg.ServerStart,
		hooks.EventServerStop:       cfg.ServerStop,
	}}
}

func (c *Commands) Info() Info {
	return Info{ID: "hook-commands", Name: "Hook commands", Version: version.Version}
}

func (c *Commands) Init(_ context.Context, api *API) error {
	c.log = api.Log
	for event, entries := range c.byEvent {
		for _, e := range entries {
			api.Handle(event, c.handler(e))
		}
	}
	return nil
}

// Close waits for running commands. The registry has already removed the
// handlers, so no new ones start.
func (c *Commands) Close() error {
	c.running.Wait()
	return nil
}

func (c *Commands) handler(e config.HookEntry) hooks.Handler {
	timeout := defaultCommandTimeout
	if e.Timeout > 0 {
		timeout = time.Duration(e.Timeout) * time.Millisecond
	}
	return func(ctx context.Context, p hooks.Payload) error {
		input, err := json.Marshal(p)
		if err != nil {
			return err
		}

		c.running.Add(1)
		go func() {
			defer c.running.Done()
			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
			defer cancel()
			if err := runCommand(ctx, e.Command, p.Event, input); err != nil {
				c.log.Warn().Err(err).Str("event", p.Event).Msg("hook command failed")
				return
			}
			c.log.Debug().Str("event", p.Event).Str("command", e.Command).Msg("hook command ran")
		}()
		return nil
	}
}

func runCommand(ctx context.Context, command, event string, input []byte) error {
	cmd := shellCommand(ctx, command)
	cmd.Stdin = bytes.NewReader(input)
	cmd.Env = append(os.Environ(), "ROSTER_EVENT="+event)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("hook %q: %w: %s", command, err, bytes.TrimSpace(out))
	}
	return nil
}

func shellCommand(ctx context.Context, command string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.CommandContext(ctx, "cmd", "/C", command)
	}
	return exec.CommandContext(ctx, "sh", "-c", command)
}
