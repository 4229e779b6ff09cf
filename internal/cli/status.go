package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/soyeahso/roster/internal/config"
	"github.com/soyeahso/roster/internal/gateway"
	"github.com/soyeahso/roster/internal/version"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show roster status and configuration summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "roster %s (commit %s)\n\n", version.Version, version.Commit)

			// Show paths
			fmt.Fprintf(w, "Config:    %s\n", paths.Config)
			fmt.Fprintf(w, "Data:      %s\n", paths.Data)
			fmt.Fprintf(w, "Logs:      %s\n", paths.Logs)
			fmt.Fprintln(w)

			if _, err := os.Stat(paths.Config); os.IsNotExist(err) {
				fmt.Fprintln(w, "Config:    not found (using defaults)")
			}
			cfg, err := config.Load(paths.Config)
			if err != nil {
				fmt.Fprintf(w, "Config:    error loading: %v\n", err)
				return nil
			}

			fmt.Fprintf(w, "Gateway:   port=%d bind=%s auth=%s tls=%v\n",
				cfg.Gateway.Port, cfg.Gateway.Bind, cfg.Gateway.Auth.Mode, cfg.Gateway.TLS.Enabled)

			switch cfg.Directory.Backend {
			case "sqlite":
				fmt.Fprintf(w, "Directory: sqlite %s\n", cfg.Directory.DatabasePath(paths))
			case "gateway":
				fmt.Fprintf(w, "Directory: gateway %s\n", cfg.Directory.URL)
			default:
				fmt.Fprintf(w, "Directory: %s\n", cfg.Directory.Backend)
			}
			fmt.Fprintf(w, "Sync:      debounce=%s agents=%s pointer=%s/%s\n",
				cfg.Sync.Debounce(), cfg.Sync.AgentsCollection, cfg.Sync.ConfigCollection, cfg.Sync.PointerDoc)
			if cfg.Sync.PresetsFile != "" {
				fmt.Fprintf(w, "Presets:   %s\n", cfg.Sync.PresetsFile)
			}

			// Validation
			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				fmt.Fprintf(w, "\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(w, "  - %s: %s\n", issue.Path, issue.Message)
				}
				return nil
			}

			if cfg.Directory.Backend == "gateway" {
				printGatewayHealth(w, cfg)
			}
			return nil
		},
	}

	return cmd
}

func printGatewayHealth(w io.Writer, cfg config.Config) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	c, err := gateway.Dial(ctx, gateway.DialOptions{
		URL:      cfg.Directory.URL,
		Token:    cfg.Directory.Token,
		Password: cfg.Directory.Password,
		ClientID: "roster-status",
	}, log)
	if err != nil {
		fmt.Fprintf(w, "Remote:    unreachable (%v)\n", err)
		return
	}
	defer c.Close()

	h, err := c.Health(ctx)
	if err != nil {
		fmt.Fprintf(w, "Remote:    health failed (%v)\n", err)
		return
	}
	fmt.Fprintf(w, "Remote:    %s version=%s clients=%d subscriptions=%d uptime=%s\n",
		h.Status, h.Version, h.Clients, h.Subscriptions, time.Duration(h.UptimeMs)*time.Millisecond)
}
