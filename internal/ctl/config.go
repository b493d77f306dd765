package ctl

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func withTimeout(cmd *cobra.Command, opts *options) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), opts.timeout)
}

func newConfigCmd(opts *options) *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Read or change runtime settings",
	}
	cfg.AddCommand(newConfigGetCmd(opts))
	cfg.AddCommand(newConfigSetCmd(opts))
	return cfg
}

func newConfigGetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Print the current settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd, opts)
			defer cancel()
			// keep the API keys so the output can be fed back to "config set -f"
			var settings map[string]any
			if err := opts.client().Call(ctx, http.MethodGet, "/api/config", nil, &settings); err != nil {
				return err
			}
			if opts.output == "json" {
				return printJSON(cmd.OutOrStdout(), settings)
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(settings)
		},
	}
}

func newConfigSetCmd(opts *options) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "set [KEY=VALUE...]",
		Short: "Merge settings from assignments or a YAML file",
		Example: `  crowsnestctl config set POST_INTERVAL_MINUTES=10 DEBUG_MODE=false
  crowsnestctl config set -f settings.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := parseAssignments(args)
			if err != nil {
				return err
			}
			if file != "" {
				fromFile, err := readSettingsFile(file)
				if err != nil {
					return err
				}
				for k, v := range patch {
					fromFile[k] = v
				}
				patch = fromFile
			}
			if len(patch) == 0 {
				return fmt.Errorf("nothing to set")
			}

			ctx, cancel := withTimeout(cmd, opts)
			defer cancel()
			if err := opts.client().Call(ctx, http.MethodPost, "/api/config", patch, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %d setting(s)\n", len(patch))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML or JSON file of settings, keyed like the API")
	return cmd
}

// readSettingsFile accepts YAML, which also covers JSON, keyed by the API
// field names.
func readSettingsFile(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	out := map[string]any{}
	if err := yaml.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return out, nil
}
