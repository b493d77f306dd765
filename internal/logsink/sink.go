// Package logsink delivers operator-facing events (log lines, new queue
// items, publish results) to whatever is watching the service.
package logsink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"frameworks/crowsnest/internal/metrics"
	"frameworks/crowsnest/pkg/kafka"
	"frameworks/crowsnest/pkg/redis"
)

const (
	TypeLog              = "log"
	TypeNewContent       = "new-content"
	TypePostSuccess      = "post-success"
	TypeStatus           = "status"
	TypeNewVideoContent  = "new-video-content"
	TypeReelsPostSuccess = "reels-post-success"
	TypeReelsStatus      = "reels-status"
)

const (
	LevelInfo    = "info"
	LevelSuccess = "success"
	LevelWarning = "warning"
	LevelError   = "error"
)

// Event is the wire shape shared by every sink.
type Event struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	Level   string    `json:"contentType,omitempty"`
	Message string    `json:"message,omitempty"`
	Source  string    `json:"source,omitempty"`
	Content any       `json:"content,omitempty"`
	Time    time.Time `json:"time"`
}

// NewEvent stamps an id and time.
func NewEvent(typ, source string, content any) Event {
	return Event{ID: uuid.NewString(), Type: typ, Source: source, Content: content, Time: time.Now().UTC()}
}

type Sink interface {
	Send(ctx context.Context, ev Event) error
}

// Func adapts a function to Sink.
type Func func(ctx context.Context, ev Event) error

func (f Func) Send(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Discard drops everything.
var Discard Sink = Func(func(context.Context, Event) error { return nil })

// Console prints one human readable line per event.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

func NewConsole(w io.Writer) *Console { return &Console{w: w} }

func (c *Console) Send(_ context.Context, ev Event) error {
	line := ev.Message
	if line == "" {
		raw, _ := json.Marshal(ev.Content)
		line = ev.Type + " " + string(raw)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.w, "%s [%s] %s\n", ev.Time.Local().Format("2006-01-02 15:04:05"), levelOr(ev.Level), line)
	return err
}

// IPC writes JSON lines for a supervising parent process.
type IPC struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewIPC(w io.Writer) *IPC { return &IPC{enc: json.NewEncoder(w)} }

func (s *IPC) Send(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(ev)
}

// Broadcaster is implemented by the websocket hub.
type Broadcaster interface {
	Broadcast(payload []byte)
}

// WebSocket fans events out to connected browser clients.
type WebSocket struct {
	hub Broadcaster
}

func NewWebSocket(hub Broadcaster) *WebSocket { return &WebSocket{hub: hub} }

func (s *WebSocket) Send(_ context.Context, ev Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	s.hub.Broadcast(raw)
	return nil
}

// Redis publishes events on a pub/sub channel.
type Redis struct {
	pubsub  *redis.TypedPubSub[Event]
	channel string
}

func NewRedis(pubsub *redis.TypedPubSub[Event], channel string) *Redis {
	return &Redis{pubsub: pubsub, channel: channel}
}

func (s *Redis) Send(ctx context.Context, ev Event) error {
	return s.pubsub.Publish(ctx, s.channel, ev)
}

// Producer is the subset of the kafka producer the sink needs.
type Producer interface {
	Produce(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

var _ Producer = (*kafka.Producer)(nil)

// Kafka appends non-log events to a topic. Plain log lines are skipped;
// they are too chatty for a durable stream.
type Kafka struct {
	producer Producer
	topic    string
}

func NewKafka(producer Producer, topic string) *Kafka {
	return &Kafka{producer: producer, topic: topic}
}

func (s *Kafka) Send(ctx context.Context, ev Event) error {
	if ev.Type == TypeLog {
		return nil
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.producer.Produce(ctx, s.topic, []byte(ev.Source), raw, map[string]string{
		"event_type": ev.Type,
		"event_id":   ev.ID,
	})
}

// Multi sends to every registered sink and joins the errors.
type Multi struct {
	mu    sync.RWMutex
	sinks map[string]Sink
	order []string
}

func NewMulti() *Multi { return &Multi{sinks: make(map[string]Sink)} }

// Add registers or replaces a named sink.
func (m *Multi) Add(name string, s Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sinks[name]; !ok {
		m.order = append(m.order, name)
	}
	m.sinks[name] = s
}

func (m *Multi) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

func (m *Multi) Send(ctx context.Context, ev Event) error {
	m.mu.RLock()
	names := append([]string(nil), m.order...)
	sinks := make([]Sink, 0, len(names))
	for _, n := range names {
		sinks = append(sinks, m.sinks[n])
	}
	m.mu.RUnlock()

	var errs []error
	for i, s := range sinks {
		if err := s.Send(ctx, ev); err != nil {
			metrics.SinkErrorsTotal.WithLabelValues(names[i]).Inc()
			errs = append(errs, fmt.Errorf("%s: %w", names[i], err))
		}
	}
	return errors.Join(errs...)
}

func levelOr(level string) string {
	if level == "" {
		return LevelInfo
	}
	return level
}
