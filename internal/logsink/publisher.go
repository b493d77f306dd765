package logsink

import (
	"context"

	"frameworks/crowsnest/pkg/logging"
)

// Publisher emits typed events for one subsystem (news or reels).
type Publisher struct {
	sink   Sink
	source string
	logger logging.Logger
}

func NewPublisher(sink Sink, source string, logger logging.Logger) *Publisher {
	if sink == nil {
		sink = Discard
	}
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Publisher{sink: sink, source: source, logger: logger}
}

// Publish never fails the caller; delivery errors are logged at debug.
func (p *Publisher) Publish(ctx context.Context, typ string, content any) {
	if p == nil {
		return
	}
	if err := p.sink.Send(ctx, NewEvent(typ, p.source, content)); err != nil {
		p.logger.WithError(err).WithField("event_type", typ).Debug("Event delivery failed")
	}
}
