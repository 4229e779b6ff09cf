package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/soyeahso/roster/internal/domain"
	"github.com/soyeahso/roster/internal/recordstore"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newAgentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "agents",
		Aliases: []string{"agent"},
		Short:   "List, inspect and edit the shared agents directory",
	}

	cmd.AddCommand(newAgentsListCmd())
	cmd.AddCommand(newAgentsShowCmd())
	cmd.AddCommand(newAgentsCreateCmd())
	cmd.AddCommand(newAgentsEditCmd())
	cmd.AddCommand(newAgentsSelectCmd())
	return cmd
}

// withApp runs fn against a synced directory and tears it down afterwards.
func withApp(fn func(ctx context.Context, a *app) error) error {
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
	return fn(ctx, a)
}

func newAgentsListCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List preset and custom agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(_ context.Context, a *app) error {
				st := a.Store().Get()
				if output != "text" {
					return encode(cmd.OutOrStdout(), output, listing{
						Current:  st.Current.ID,
						Presets:  st.Presets,
						Personal: st.Personal,
					})
				}
				printList(cmd.OutOrStdout(), st)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format (text, json, yaml)")
	return cmd
}

type listing struct {
	Current  string               `json:"current" yaml:"current"`
	Presets  []domain.AgentRecord `json:"presets" yaml:"presets"`
	Personal []domain.AgentRecord `json:"personal" yaml:"personal"`
}

func printList(w io.Writer, st recordstore.State) {
	row := func(r domain.AgentRecord) {
		mark := " "
		if r.ID == st.Current.ID {
			mark = "*"
		}
		fmt.Fprintf(w, "%s %-38s %-20s voice=%s\n", mark, r.ID, r.Name, r.Voice)
	}

	fmt.Fprintln(w, "Presets:")
	for _, r := range st.Presets {
		row(r)
	}
	fmt.Fprintln(w, "\nCustom agents:")
	if len(st.Personal) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, r := range st.Personal {
		row(r)
	}
}

func newAgentsShowCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "show [agent-id]",
		Short: "Show one agent (default: the current one)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(_ context.Context, a *app) error {
				st := a.Store().Get()
				id := st.Current.ID
				if len(args) > 0 {
					id = args[0]
				}
				rec, part, ok := st.Find(id)
				if !ok {
					return fmt.Errorf("agent not found: %s", id)
				}

				if output != "text" {
					return encode(cmd.OutOrStdout(), output, rec)
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "Agent: %s (%s)\n", rec.ID, rec.Name)
				fmt.Fprintf(w, "  Kind:    %s\n", part)
				fmt.Fprintf(w, "  Voice:   %s\n", rec.Voice)
				fmt.Fprintf(w, "  Color:   %s\n", rec.BodyColor)
				fmt.Fprintf(w, "  Current: %v\n", rec.ID == st.Current.ID)
				fmt.Fprintf(w, "  Personality:\n    %s\n", rec.Personality)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format (text, json, yaml)")
	return cmd
}

type agentFlags struct {
	name, personality, color, voice string
}

func (f *agentFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "agent name")
	cmd.Flags().StringVar(&f.personality, "personality", "", "personality description")
	cmd.Flags().StringVar(&f.color, "color", "", "body color")
	cmd.Flags().StringVar(&f.voice, "voice", "", "voice ("+voiceList()+")")
}

// patch collects the fields whose flags were set.
func (f *agentFlags) patch(cmd *cobra.Command) (domain.Patch, error) {
	p := domain.Patch{}
	if cmd.Flags().Changed("name") {
		p[domain.FieldName] = f.name
	}
	if cmd.Flags().Changed("personality") {
		p[domain.FieldPersonality] = f.personality
	}
	if cmd.Flags().Changed("color") {
		p[domain.FieldBodyColor] = f.color
	}
	if cmd.Flags().Changed("voice") {
		v, err := domain.ParseVoice(f.voice)
		if err != nil {
			return nil, err
		}
		p[domain.FieldVoice] = string(v)
	}
	return p, nil
}

func newAgentsCreateCmd() *cobra.Command {
	var (
		flags    agentFlags
		password string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a custom agent and make it current",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := flags.patch(cmd)
			if err != nil {
				return err
			}
			if p[domain.FieldName] == "" {
				return fmt.Errorf("--name is required")
			}
			return withApp(func(_ context.Context, a *app) error {
				if _, err := requireAdmin(a.cfg, password); err != nil {
					return err
				}
				rec := domain.NewAgent().Apply(p)
				if err := a.engine.Create(rec); err != nil {
					return err
				}
				if err := a.Commit(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created %s (%s)\n", rec.ID, rec.Name)
				return nil
			})
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&password, "password", os.Getenv("ROSTER_PASSWORD"), "admin password")
	return cmd
}

func newAgentsEditCmd() *cobra.Command {
	var (
		flags    agentFlags
		password string
	)

	cmd := &cobra.Command{
		Use:   "edit <agent-id>",
		Short: "Change fields of an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := flags.patch(cmd)
			if err != nil {
				return err
			}
			if len(p) == 0 {
				return fmt.Errorf("nothing to change: pass --name, --personality, --color or --voice")
			}
			return withApp(func(_ context.Context, a *app) error {
				if _, err := requireAdmin(a.cfg, password); err != nil {
					return err
				}
				for _, f := range []domain.Field{domain.FieldName, domain.FieldPersonality, domain.FieldBodyColor, domain.FieldVoice} {
					v, ok := p[f]
					if !ok {
						continue
					}
					if err := a.engine.Update(args[0], f, v); err != nil {
						return err
					}
				}
				if err := a.Commit(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", args[0])
				return nil
			})
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&password, "password", os.Getenv("ROSTER_PASSWORD"), "admin password")
	return cmd
}

func newAgentsSelectCmd() *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "select <agent-id>",
		Short: "Make an agent current for every client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(_ context.Context, a *app) error {
				if _, err := requireAdmin(a.cfg, password); err != nil {
					return err
				}
				if err := a.engine.Select(args[0]); err != nil {
					return err
				}
				if err := a.Commit(); err != nil {
					return err
				}
				cur := a.Store().Current()
				fmt.Fprintf(cmd.OutOrStdout(), "Current agent: %s (%s)\n", cur.ID, cur.Name)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&password, "password", os.Getenv("ROSTER_PASSWORD"), "admin password")
	return cmd
}

func voiceList() string {
	names := make([]string, 0, len(domain.Voices()))
	for _, v := range domain.Voices() {
		names = append(names, string(v))
	}
	return strings.Join(names, ", ")
}

// encode writes v as json or yaml.
func encode(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown output format %q (want text, json or yaml)", format)
}
