// Package factstore defines the port interface for the append-only
// event log that all aggregations read from.
package factstore

import (
	"context"
	"time"

	"github.com/hooktrace/hooktrace/internal/domain/event"
)

// Filter selects events by a conjunction of equality and range
// predicates. Zero-valued fields are not applied. TeamID is the only
// predicate aggregations always set; queries never cross team
// boundaries unless TeamID is left empty on purpose.
type Filter struct {
	TeamID   string
	UserID   string
	ToolName string
	Project  string
	Types    []event.Type

	// Since/Until bound the timestamp as [Since, Until).
	Since *time.Time
	Until *time.Time
}

// Matches reports whether ev satisfies every set predicate.
func (f Filter) Matches(ev *event.Event) bool {
	if f.TeamID != "" && ev.TeamID != f.TeamID {
		return false
	}
	if f.UserID != "" && ev.UserID != f.UserID {
		return false
	}
	if f.ToolName != "" && ev.ToolName != f.ToolName {
		return false
	}
	if f.Project != "" && ev.Project != f.Project {
		return false
	}
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if ev.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Since != nil && ev.Timestamp.Before(*f.Since) {
		return false
	}
	if f.Until != nil && !ev.Timestamp.Before(*f.Until) {
		return false
	}
	return true
}

// Store is the port interface for the fact log. Append is the only
// mutator and must be safe under concurrent producers. Query returns an
// empty slice, never an error, when nothing matches.
type Store interface {
	// Append persists one classified event. When the store is at
	// capacity the single oldest event is evicted first.
	Append(ctx context.Context, ev *event.Event) error

	// Query returns all events matching the filter, in no guaranteed
	// order.
	Query(ctx context.Context, filter Filter) ([]event.Event, error)

	// Count returns the number of stored events (health reporting).
	Count(ctx context.Context) (int, error)
}
