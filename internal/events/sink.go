package events

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"meme-token-ledger/internal/domain"
)

// Sink receives events.
type Sink interface {
	Publish(ctx context.Context, env Envelope) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, env Envelope) error

// Publish calls f.
func (f SinkFunc) Publish(ctx context.Context, env Envelope) error {
	return f(ctx, env)
}

// Fanout publishes to every sink in order. A failing sink does not stop
// delivery to the rest.
type Fanout []Sink

// Publish delivers env to all sinks and joins their errors.
func (f Fanout) Publish(ctx context.Context, env Envelope) error {
	var errs []error
	for _, s := range f {
		if err := s.Publish(ctx, env); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps every published envelope in memory.
type Recorder struct {
	mu   sync.Mutex
	envs []Envelope
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Publish records env.
func (r *Recorder) Publish(_ context.Context, env Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envs = append(r.envs, env)
	return nil
}

// Events returns a copy of the recorded envelopes in publish order.
func (r *Recorder) Events() []Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Envelope, len(r.envs))
	copy(out, r.envs)
	return out
}

// OfType returns the recorded envelopes of type t.
func (r *Recorder) OfType(t domain.EventType) []Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Envelope
	for _, env := range r.envs {
		if env.Type == t {
			out = append(out, env)
		}
	}
	return out
}

// LogSink writes events to a logrus logger.
type LogSink struct {
	log *logrus.Entry
}

// NewLogSink creates a sink that logs at info level.
func NewLogSink(log *logrus.Entry) *LogSink {
	return &LogSink{log: log}
}

// Publish logs env.
func (s *LogSink) Publish(_ context.Context, env Envelope) error {
	s.log.WithFields(logrus.Fields{
		"event_id": env.ID,
		"sequence": env.Sequence,
		"mint":     env.Mint.String(),
		"type":     env.Type,
		"ts":       env.Timestamp,
	}).Info(string(env.Payload))
	return nil
}

var (
	_ Sink = Fanout(nil)
	_ Sink = (*Recorder)(nil)
	_ Sink = (*LogSink)(nil)
	_ Sink = SinkFunc(nil)
)
