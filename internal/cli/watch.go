package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/soyeahso/roster/internal/clock"
	"github.com/soyeahso/roster/internal/prompt"
	"github.com/soyeahso/roster/internal/recordstore"
	"github.com/soyeahso/roster/internal/session"
	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow the shared directory and the current agent until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			w := cmd.OutOrStdout()
			unsubscribe := a.Store().Subscribe(func(next, prev recordstore.State) {
				if next.Current.ID != prev.Current.ID {
					fmt.Fprintf(w, "current: %s (%s)\n", next.Current.Name, next.Current.ID)
				}
				if len(next.Personal) != len(prev.Personal) {
					fmt.Fprintf(w, "directory: %d preset(s), %d custom agent(s)\n", len(next.Presets), len(next.Personal))
				}
			})
			defer unsubscribe()

			st := a.Store().Get()
			fmt.Fprintf(w, "current: %s (%s)\n", st.Current.Name, st.Current.ID)
			fmt.Fprintf(w, "directory: %d preset(s), %d custom agent(s)\n", len(st.Presets), len(st.Personal))

			binder := session.NewBinder(a.Store(),
				session.LogTransport{Log: log.Sub("transport")},
				prompt.User{Name: cfg.Identity.Name, Info: cfg.Identity.Info},
				clock.Real(), log)
			if err := binder.Start(ctx); err != nil {
				return err
			}

			<-ctx.Done()
			<-binder.Done()
			return nil
		},
	}
}
