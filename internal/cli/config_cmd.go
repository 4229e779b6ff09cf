package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/soyeahso/roster/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Get or set configuration values",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print a configuration value",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				key, raw, err := openRaw(args[0])
				if err != nil {
					return err
				}
				val, ok := key.Lookup(raw)
				if !ok {
					return fmt.Errorf("key %q not found", key)
				}
				return printValue(cmd.OutOrStdout(), val)
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Set a configuration value",
			Long:  "Set a configuration value. The value is read as YAML, so 250, true and [a, b] keep their types.",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				key, raw, err := openRaw(args[0])
				if err != nil {
					return err
				}
				value := parseValue(args[1])
				key.Assign(raw, value)
				if err := saveValidated(raw); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %v\n", key, value)
				return nil
			},
		},
		&cobra.Command{
			Use:   "unset <key>",
			Short: "Remove a configuration value",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				key, raw, err := openRaw(args[0])
				if err != nil {
					return err
				}
				if !key.Remove(raw) {
					return fmt.Errorf("key %q not found", key)
				}
				if err := saveValidated(raw); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Unset %s\n", key)
				return nil
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the config file path",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), paths.Config)
			},
		},
	)
	return cmd
}

// openRaw parses rawKey and loads the config file as a plain map.
func openRaw(rawKey string) (config.Key, map[string]any, error) {
	key, err := config.ParseKey(rawKey)
	if err != nil {
		return nil, nil, err
	}
	raw, err := config.LoadRaw(paths.Config)
	if err != nil {
		return nil, nil, err
	}
	return key, raw, nil
}

// saveValidated writes raw back only if the resulting config is valid.
func saveValidated(raw map[string]any) error {
	cfg, err := config.LoadFromRaw(raw)
	if err != nil {
		return err
	}
	if issues := config.Validate(&cfg); len(issues) > 0 {
		return fmt.Errorf("%s: %s", issues[0].Path, issues[0].Message)
	}
	return config.SaveRaw(paths.Config, raw)
}

// printValue writes scalars as-is and maps or lists as YAML.
func printValue(w io.Writer, v any) error {
	switch v.(type) {
	case map[string]any, []any:
		data, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}
	_, err := fmt.Fprintln(w, v)
	return err
}

// parseValue reads a command-line value as a YAML scalar or flow
// collection. Anything YAML rejects, or an empty document, stays a string.
func parseValue(s string) any {
	var v any
	if err := yaml.Unmarshal([]byte(s), &v); err != nil || v == nil {
		return s
	}
	return v
}
