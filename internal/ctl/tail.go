package ctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/spf13/cobra"

	"frameworks/crowsnest/internal/logsink"
	pkgconfig "frameworks/crowsnest/pkg/config"
	"frameworks/crowsnest/pkg/kafka"
	"frameworks/crowsnest/pkg/logging"
	"frameworks/crowsnest/pkg/redis"
)

type tailOptions struct {
	redisURL string
	channel  string
	brokers  []string
	topic    string
	types    []string
}

func newTailCmd(opts *options) *cobra.Command {
	t := &tailOptions{}
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Follow service events from Redis or Kafka",
		Long: `Follow the event stream the service fans out. With --redis the pub/sub
channel is followed (every event, including log lines); with --brokers the
Kafka topic is followed from its current end (queue and publish events only).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return t.run(ctx, cmd.OutOrStdout(), opts.output == "json")
		},
	}
	cmd.Flags().StringVar(&t.redisURL, "redis", pkgconfig.GetEnv("REDIS_URL", ""), "Redis URL to subscribe on")
	cmd.Flags().StringVar(&t.channel, "channel", pkgconfig.GetEnv("REDIS_EVENTS_CHANNEL", "crowsnest:events"), "Redis channel")
	cmd.Flags().StringSliceVar(&t.brokers, "brokers", pkgconfig.GetEnvList("KAFKA_BROKERS"), "Kafka seed brokers")
	cmd.Flags().StringVar(&t.topic, "topic", pkgconfig.GetEnv("KAFKA_EVENTS_TOPIC", "crowsnest.events"), "Kafka topic")
	cmd.Flags().StringSliceVar(&t.types, "type", nil, "only show these event types")
	return cmd
}

func (t *tailOptions) run(ctx context.Context, w io.Writer, asJSON bool) error {
	show := eventPrinter(w, asJSON, t.types)
	logger := logging.NewLogger()
	logger.SetOutput(os.Stderr)

	switch {
	case t.redisURL != "":
		client, err := redis.NewClientFromURL(ctx, t.redisURL)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()
		pubsub := redis.NewTypedPubSub[logsink.Event](client, logger)
		return ignoreCanceled(pubsub.Subscribe(ctx, t.channel, func(ev logsink.Event) {
			show(ctx, ev)
		}))
	case len(t.brokers) > 0:
		tailer, err := kafka.NewTailer(t.brokers, t.topic, "crowsnestctl", logger)
		if err != nil {
			return err
		}
		return ignoreCanceled(tailer.Run(ctx, func(ctx context.Context, msg kafka.Message) error {
			var ev logsink.Event
			if err := json.Unmarshal(msg.Value, &ev); err != nil {
				return fmt.Errorf("decode event at offset %d: %w", msg.Offset, err)
			}
			show(ctx, ev)
			return nil
		}))
	}
	return fmt.Errorf("tail needs --redis or --brokers")
}

// eventPrinter filters by type and writes either JSON lines or the same
// text format as the service console.
func eventPrinter(w io.Writer, asJSON bool, types []string) func(context.Context, logsink.Event) {
	var sink logsink.Sink = logsink.NewConsole(w)
	if asJSON {
		sink = logsink.NewIPC(w)
	}
	return func(ctx context.Context, ev logsink.Event) {
		if len(types) > 0 && !slices.Contains(types, ev.Type) {
			return
		}
		_ = sink.Send(ctx, ev)
	}
}

func ignoreCanceled(err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
