package progress

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Event types emitted by the stage-progress dispatcher.
const (
	EventStartLoading         = "start_loading"
	EventStopLoading          = "stop_loading"
	EventMissingStagesChanged = "missing_stages_changed"
	EventSessionCreated       = "session_created"
	EventStageFailure         = "stage_failure"
)

// Event is the canonical stage-progress model used by internal dispatching and root APIs.
type Event struct {
	Timestamp  time.Time `json:"timestamp"`
	EventType  string    `json:"event_type"`
	AttemptID  string    `json:"attempt_id,omitempty"`
	Homeserver string    `json:"homeserver,omitempty"`

	// Stage identifiers for missing_stages_changed events.
	Missing   []string `json:"missing,omitempty"`
	Completed []string `json:"completed,omitempty"`

	// Session fields for session_created events.
	UserID       string `json:"user_id,omitempty"`
	IsNewAccount bool   `json:"is_new_account,omitempty"`

	Error string `json:"error,omitempty"`
}

// Sink receives emitted stage-progress events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops stage-progress events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes stage-progress events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan Event, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
