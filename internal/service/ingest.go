// Package service contains application services.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hooktrace/hooktrace/internal/adapter/otel"
	"github.com/hooktrace/hooktrace/internal/domain/event"
	"github.com/hooktrace/hooktrace/internal/port/factstore"
	"github.com/hooktrace/hooktrace/internal/port/forwarder"
	"github.com/hooktrace/hooktrace/internal/resilience"
)

const (
	forwardMaxFailures = 5
	forwardCoolOff     = 30 * time.Second
)

// Broadcaster pushes admitted events to live consumers.
type Broadcaster interface {
	BroadcastEvent(ctx context.Context, ev *event.Event)
}

// IngestService classifies raw hook records and appends the resulting
// facts to the store. Ingestion is the hot path: a hook script blocks a
// developer's tool call until this returns, so everything past the
// append is best effort.
type IngestService struct {
	store          factstore.Store
	classifier     *event.Classifier
	forwarder      forwarder.Forwarder
	broadcaster    Broadcaster
	metrics        *otel.Metrics
	publishTimeout time.Duration
	breaker        *resilience.Breaker
}

// NewIngestService creates an IngestService. Forwarder, broadcaster and
// metrics may be nil; those stages are skipped.
func NewIngestService(store factstore.Store, classifier *event.Classifier, fwd forwarder.Forwarder, bc Broadcaster, metrics *otel.Metrics, publishTimeout time.Duration) *IngestService {
	if publishTimeout <= 0 {
		publishTimeout = 2 * time.Second
	}
	return &IngestService{
		store:          store,
		classifier:     classifier,
		forwarder:      fwd,
		broadcaster:    bc,
		metrics:        metrics,
		publishTimeout: publishTimeout,
		breaker:        resilience.NewBreaker(forwardMaxFailures, forwardCoolOff),
	}
}

// Ingest classifies one raw record and appends it to the fact store.
// The returned event carries the assigned ID. Only the append can fail;
// forwarding and broadcasting never surface errors to the caller.
func (s *IngestService) Ingest(ctx context.Context, eventType string, raw event.RawRecord) (*event.Event, error) {
	ev := s.classifier.Classify(eventType, raw)
	ev.ID = uuid.NewString()
	ev.ReceivedAt = time.Now().UTC()

	if err := s.store.Append(ctx, &ev); err != nil {
		return nil, fmt.Errorf("append event: %w", err)
	}

	if s.metrics != nil {
		s.metrics.EventsIngested.Add(ctx, 1)
	}

	s.forward(ctx, &ev)

	if s.broadcaster != nil {
		s.broadcaster.BroadcastEvent(ctx, &ev)
	}

	slog.Debug("event ingested",
		"id", ev.ID,
		"type", ev.Type,
		"team", ev.TeamID,
		"user", ev.UserID,
		"tool", ev.ToolName,
	)
	return &ev, nil
}

// forward publishes the event to the sink. Failures are logged and
// counted, never returned.
func (s *IngestService) forward(ctx context.Context, ev *event.Event) {
	if s.forwarder == nil || !s.forwarder.IsConnected() {
		return
	}

	data, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("event marshal for forward failed", "id", ev.ID, "error", err)
		return
	}

	subject := fmt.Sprintf("%s.%s.%s", forwarder.SubjectPrefix, ev.TeamID, ev.Type)

	pubCtx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()

	err = s.breaker.Execute(func() error {
		return s.forwarder.Publish(pubCtx, subject, data)
	})
	if err != nil {
		if s.metrics != nil {
			s.metrics.ForwardFailures.Add(ctx, 1)
		}
		slog.Warn("event forward failed", "id", ev.ID, "subject", subject, "error", err)
	}
}
