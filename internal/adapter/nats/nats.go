// Package nats implements the forwarder port using NATS JetStream.
package nats

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/hooktrace/hooktrace/internal/port/forwarder"
)

const streamName = "HOOKTRACE"

// Forwarder implements forwarder.Forwarder using NATS JetStream.
type Forwarder struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// Connect establishes a connection to NATS and ensures the JetStream
// stream for forwarded events exists.
func Connect(ctx context.Context, url string) (*Forwarder, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{forwarder.SubjectPrefix + ".>"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	slog.Info("nats connected", "url", url, "stream", streamName)
	return &Forwarder{nc: nc, js: js}, nil
}

// Publish sends a message to the given subject.
func (f *Forwarder) Publish(ctx context.Context, subject string, data []byte) error {
	if _, err := f.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// JetStream exposes the underlying JetStream context for KV buckets.
func (f *Forwarder) JetStream() jetstream.JetStream {
	return f.js
}

// IsConnected reports whether the NATS connection is up.
func (f *Forwarder) IsConnected() bool {
	return f.nc.IsConnected()
}

// Close shuts down the NATS connection.
func (f *Forwarder) Close() error {
	f.nc.Close()
	return nil
}

var _ forwarder.Forwarder = (*Forwarder)(nil)
