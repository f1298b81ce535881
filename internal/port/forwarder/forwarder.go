// Package forwarder defines the port for pushing admitted events to an
// external sink. Forwarding is best effort: failure is logged by the
// caller and never propagated to the ingestion path.
package forwarder

import "context"

// Subject prefix for forwarded events. Full subjects take the form
// events.{team_id}.{event_type}.
const SubjectPrefix = "events"

// Forwarder publishes serialized events to a downstream sink.
type Forwarder interface {
	// Publish sends one message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// IsConnected reports whether the sink is currently reachable.
	IsConnected() bool

	// Close shuts down the connection.
	Close() error
}
