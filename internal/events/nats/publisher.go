// Package nats publishes lifecycle events to a NATS JetStream stream.
package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/syntrixbase/coldtier/internal/events"
)

// JetStream is the part of jetstream.JetStream the publisher uses.
type JetStream interface {
	CreateOrUpdateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Publisher is an events.Sink that publishes every event to <subject>.<kind>.
type Publisher struct {
	js  JetStream
	cfg Config
}

var _ events.Sink = (*Publisher)(nil)

// NewPublisher ensures the stream exists and returns a Publisher on js.
func NewPublisher(ctx context.Context, js JetStream, cfg Config) (*Publisher, error) {
	if js == nil {
		return nil, fmt.Errorf("jetstream cannot be nil")
	}
	cfg.ApplyDefaults()

	storage := jetstream.FileStorage
	if cfg.Storage == "memory" {
		storage = jetstream.MemoryStorage
	}
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     cfg.Stream,
		Subjects: []string{cfg.Subject + ".>"},
		Storage:  storage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ensure stream: %w", err)
	}
	return &Publisher{js: js, cfg: cfg}, nil
}

// Emit publishes e as JSON. The event id doubles as the message id so
// JetStream drops duplicates of a retried publish.
func (p *Publisher) Emit(ctx context.Context, e events.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	subject := p.cfg.Subject + "." + string(e.Kind)

	opts := []jetstream.PublishOpt{jetstream.WithMsgID(e.ID)}
	if p.cfg.RetryAttempts > 0 {
		opts = append(opts, jetstream.WithRetryAttempts(p.cfg.RetryAttempts))
	}
	if _, err := p.js.Publish(ctx, subject, data, opts...); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// natsConnect and jetStreamNew are variables to allow mocking in tests.
var (
	natsConnect = func(url string) (*nats.Conn, error) {
		return nats.Connect(url, nats.Name("coldtier"))
	}
	jetStreamNew = func(nc *nats.Conn) (JetStream, error) {
		return jetstream.New(nc)
	}
)

// Connect dials cfg.URL and returns a Publisher together with a func that
// drains the connection.
func Connect(ctx context.Context, cfg Config) (*Publisher, func(), error) {
	cfg.ApplyDefaults()
	nc, err := natsConnect(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to nats at %s: %w", cfg.URL, err)
	}
	js, err := jetStreamNew(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to create jetstream: %w", err)
	}
	p, err := NewPublisher(ctx, js, cfg)
	if err != nil {
		nc.Close()
		return nil, nil, err
	}
	return p, func() { _ = nc.Drain() }, nil
}
