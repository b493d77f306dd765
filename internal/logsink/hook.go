package logsink

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	defaultHookBuffer = 256
	sendTimeout       = 5 * time.Second

	// FieldStatus on a log entry overrides the derived level, e.g. "success".
	FieldStatus = "status"
	// FieldSource tags the subsystem an entry came from.
	FieldSource = "source"
)

// Hook forwards logrus entries to a Sink from a background goroutine so
// slow sinks never stall the caller. Entries are dropped when the buffer
// is full.
type Hook struct {
	sink    Sink
	levels  []logrus.Level
	events  chan Event
	dropped atomic.Int64
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewHook(sink Sink, minLevel logrus.Level, buffer int) *Hook {
	if buffer <= 0 {
		buffer = defaultHookBuffer
	}
	var levels []logrus.Level
	for _, l := range logrus.AllLevels {
		if l <= minLevel {
			levels = append(levels, l)
		}
	}
	h := &Hook{
		sink:   sink,
		levels: levels,
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hook) Levels() []logrus.Level { return h.levels }

func (h *Hook) Fire(entry *logrus.Entry) error {
	ev := NewEvent(TypeLog, "", nil)
	ev.Message = entry.Message
	ev.Level = levelFor(entry)
	ev.Time = entry.Time.UTC()
	if src, ok := entry.Data[FieldSource].(string); ok {
		ev.Source = src
	}
	if len(entry.Data) > 0 {
		fields := make(map[string]any, len(entry.Data))
		for k, v := range entry.Data {
			if err, ok := v.(error); ok {
				v = err.Error()
			}
			fields[k] = v
		}
		ev.Content = fields
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return nil
	}
	select {
	case h.events <- ev:
	default:
		h.dropped.Add(1)
	}
	return nil
}

// Dropped counts entries lost to a full buffer.
func (h *Hook) Dropped() int64 { return h.dropped.Load() }

// Close flushes buffered entries and stops the worker.
func (h *Hook) Close() {
	h.mu.Lock()
	if !h.closed {
		h.closed = true
		close(h.events)
	}
	h.mu.Unlock()
	<-h.done
}

func (h *Hook) run() {
	defer close(h.done)
	for ev := range h.events {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		_ = h.sink.Send(ctx, ev)
		cancel()
	}
}

func levelFor(entry *logrus.Entry) string {
	if status, ok := entry.Data[FieldStatus].(string); ok && status != "" {
		return status
	}
	switch entry.Level {
	case logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel:
		return LevelError
	case logrus.WarnLevel:
		return LevelWarning
	default:
		return LevelInfo
	}
}
