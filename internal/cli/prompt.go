package cli

import (
	"context"
	"fmt"

	"github.com/soyeahso/roster/internal/clock"
	"github.com/soyeahso/roster/internal/prompt"
	"github.com/soyeahso/roster/internal/session"
	"github.com/spf13/cobra"
)

func newPromptCmd() *cobra.Command {
	var (
		agentID  string
		userName string
		userInfo string
	)

	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Print the session instructions for the current agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(_ context.Context, a *app) error {
				st := a.Store().Get()
				rec := st.Current
				if agentID != "" {
					var ok bool
					if rec, _, ok = st.Find(agentID); !ok {
						return fmt.Errorf("agent not found: %s", agentID)
					}
				}

				user := prompt.User{Name: a.cfg.Identity.Name, Info: a.cfg.Identity.Info}
				if cmd.Flags().Changed("user") {
					user.Name = userName
				}
				if cmd.Flags().Changed("info") {
					user.Info = userInfo
				}

				cfg := session.ConfigFor(rec, user, clock.Real())
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "# %s (%s), voice %s\n\n", rec.Name, cfg.AgentID, cfg.Voice)
				fmt.Fprintln(w, cfg.Instructions)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&agentID, "agent", "", "agent id (default: the current agent)")
	cmd.Flags().StringVar(&userName, "user", "", "user name (default: identity.name)")
	cmd.Flags().StringVar(&userInfo, "info", "", "information about the user (default: identity.info)")
	return cmd
}
