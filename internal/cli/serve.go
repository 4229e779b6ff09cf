package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/soyeahso/roster/internal/config"
	"github.com/soyeahso/roster/internal/gateway"
)

// serveOverrides are the serve flags that replace config values.
type serveOverrides struct {
	port    int
	bind    string
	backend string
}

func (o serveOverrides) apply(cfg *config.Config) {
	if o.port != 0 {
		cfg.Gateway.Port = o.port
	}
	if o.bind != "" {
		cfg.Gateway.Bind = o.bind
	}
	if o.backend != "" {
		cfg.Directory.Backend = o.backend
	}
}

func newServeCmd() *cobra.Command {
	var o serveOverrides

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Share the agents directory with other clients over the gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}
			o.apply(&cfg)
			if cfg.Directory.Backend == "gateway" {
				return fmt.Errorf("serve needs a local directory backend (memory or sqlite), not %q", cfg.Directory.Backend)
			}
			if issues := config.Validate(&cfg); len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}

	cmd.Flags().IntVar(&o.port, "port", 0, "override gateway port")
	cmd.Flags().StringVar(&o.bind, "bind", "", "override bind mode (auto, lan, loopback, custom)")
	cmd.Flags().StringVar(&o.backend, "backend", "", "override directory backend (memory, sqlite)")
	return cmd
}

// serve runs the gateway over the configured local directory until ctx ends.
func serve(ctx context.Context, cfg config.Config) error {
	hm, stopHooks, err := startHooks(ctx, cfg)
	if err != nil {
		return err
	}
	defer stopHooks()

	dir, closeDir, err := openDirectory(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDir()
	log.Info().Str("backend", cfg.Directory.Backend).Msg("directory opened")

	// config.get and config.set work on the file as written, not the
	// defaults-merged view.
	raw, err := config.LoadRaw(paths.Config)
	if err != nil {
		log.Warn().Err(err).Msg("config file unreadable, config RPCs start empty")
		raw = map[string]any{}
	}

	srv := gateway.New(cfg, dir, log, gateway.WithConfigRaw(raw), gateway.WithHooks(hm))
	return srv.Start(ctx)
}
