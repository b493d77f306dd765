package ctl

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"frameworks/crowsnest/internal/logstore"
	"frameworks/crowsnest/internal/queue"
	pkgconfig "frameworks/crowsnest/pkg/config"
	"frameworks/crowsnest/pkg/version"
)

type options struct {
	server  string
	token   string
	output  string
	timeout time.Duration
	// httpClient is swapped in tests
	httpClient *http.Client
}

func (o *options) client() *APIClient {
	return NewAPIClient(o.server, o.token, o.httpClient)
}

// NewRootCmd returns the crowsnestctl command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&options{})
}

func newRootCmd(opts *options) *cobra.Command {
	root := &cobra.Command{
		Use:           "crowsnestctl",
		Short:         "Operate a running crowsnest service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.server, "server", pkgconfig.GetEnv("CROWSNEST_URL", "http://localhost:3000"), "service base URL")
	root.PersistentFlags().StringVar(&opts.token, "token", pkgconfig.GetEnv("CROWSNEST_API_TOKEN", ""), "API bearer token")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "text", "output format: json|text")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "request timeout")

	root.AddCommand(newStatusCmd(opts, "/api/status"))
	root.AddCommand(newStartCmd(opts, "/api/start"))
	root.AddCommand(newStopCmd(opts, "/api/stop"))
	root.AddCommand(newQueueCmd(opts, "/api/post-queue"))
	root.AddCommand(newDeleteCmd(opts))
	root.AddCommand(newTrendsCmd(opts))
	root.AddCommand(newConfigCmd(opts))
	root.AddCommand(newReelsCmd(opts))
	root.AddCommand(newTailCmd(opts))
	root.AddCommand(newVersionCmd())
	return root
}

func newReelsCmd(opts *options) *cobra.Command {
	reels := &cobra.Command{
		Use:   "reels",
		Short: "Control the short-video loop",
	}
	reels.AddCommand(newStatusCmd(opts, "/api/reels/status"))
	reels.AddCommand(newStartCmd(opts, "/api/reels/start"))
	reels.AddCommand(newStopCmd(opts, "/api/reels/stop"))
	reels.AddCommand(newQueueCmd(opts, "/api/reels/queue"))
	return reels
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
			return nil
		},
	}
}

func newStatusCmd(opts *options, path string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show loop state and queue length",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd, opts)
			defer cancel()
			var status map[string]any
			if err := opts.client().Call(ctx, http.MethodGet, path, nil, &status); err != nil {
				return err
			}
			if opts.output == "json" {
				return printJSON(cmd.OutOrStdout(), status)
			}
			keys := make([]string, 0, len(status))
			for k := range status {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(cmd.OutOrStdout(), "%-14s %v\n", k+":", status[k])
			}
			return nil
		},
	}
}

func newStartCmd(opts *options, path string) *cobra.Command {
	var sets []string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the loop, optionally applying settings first",
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := parseAssignments(sets)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd, opts)
			defer cancel()
			var body any
			if len(patch) > 0 {
				body = patch
			}
			var resp struct {
				Started bool   `json:"started"`
				Phase   string `json:"phase"`
			}
			if err := opts.client().Call(ctx, http.MethodPost, path, body, &resp); err != nil {
				return err
			}
			if resp.Started {
				fmt.Fprintf(cmd.OutOrStdout(), "started (%s)\n", resp.Phase)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "already %s\n", resp.Phase)
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&sets, "set", nil, "settings override KEY=VALUE, repeatable")
	return cmd
}

func newStopCmd(opts *options, path string) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the loop after the current candidate",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd, opts)
			defer cancel()
			var resp struct {
				Stopped bool   `json:"stopped"`
				Phase   string `json:"phase"`
			}
			if err := opts.client().Call(ctx, http.MethodPost, path, nil, &resp); err != nil {
				return err
			}
			if resp.Stopped {
				fmt.Fprintf(cmd.OutOrStdout(), "stopping (%s)\n", resp.Phase)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "not running (%s)\n", resp.Phase)
			}
			return nil
		},
	}
}

func newQueueCmd(opts *options, path string) *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "List pending posts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd, opts)
			defer cancel()
			var items []queue.Summary
			if err := opts.client().Call(ctx, http.MethodGet, path, nil, &items); err != nil {
				return err
			}
			if opts.output == "json" {
				return printJSON(cmd.OutOrStdout(), items)
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "queue is empty")
				return nil
			}
			for i, it := range items {
				fmt.Fprintf(cmd.OutOrStdout(), "%2d. %s\n    %s (media: %d, queued %s)\n",
					i+1, it.Title, it.Link, it.MediaCount, it.QueuedAt.Local().Format(time.DateTime))
			}
			return nil
		},
	}
}

func newDeleteCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <link>",
		Short: "Remove queued news posts by article link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd, opts)
			defer cancel()
			var resp struct {
				Removed int `json:"removed"`
			}
			path := "/api/post/?link=" + url.QueryEscape(args[0])
			if err := opts.client().Call(ctx, http.MethodDelete, path, nil, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d post(s)\n", resp.Removed)
			return nil
		},
	}
}

func newTrendsCmd(opts *options) *cobra.Command {
	var days, top int
	cmd := &cobra.Command{
		Use:   "trends",
		Short: "Show the most published topics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd, opts)
			defer cancel()
			var resp struct {
				Days   int                   `json:"days"`
				Topics []logstore.TopicCount `json:"topics"`
			}
			path := fmt.Sprintf("/api/trends?days=%d&top=%d", days, top)
			if err := opts.client().Call(ctx, http.MethodGet, path, nil, &resp); err != nil {
				return err
			}
			if opts.output == "json" {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			if len(resp.Topics) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no topics in the last %d days\n", resp.Days)
				return nil
			}
			for _, tc := range resp.Topics {
				fmt.Fprintf(cmd.OutOrStdout(), "%-24s %d\n", tc.Topic, tc.Count)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 2, "look-back window in days")
	cmd.Flags().IntVar(&top, "top", 5, "number of topics")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseAssignments turns KEY=VALUE pairs into a settings patch. Values that
// parse as JSON (numbers, booleans, arrays) keep their type.
func parseAssignments(pairs []string) (map[string]any, error) {
	patch := make(map[string]any, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid assignment %q, want KEY=VALUE", p)
		}
		var typed any
		if err := json.Unmarshal([]byte(value), &typed); err == nil {
			patch[key] = typed
		} else {
			patch[key] = value
		}
	}
	return patch, nil
}
