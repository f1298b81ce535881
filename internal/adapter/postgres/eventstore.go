package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hooktrace/hooktrace/internal/domain"
	"github.com/hooktrace/hooktrace/internal/domain/event"
	"github.com/hooktrace/hooktrace/internal/port/factstore"
)

// EventStore implements factstore.Store using PostgreSQL (append-only).
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Append inserts a new event into the usage_events table. Rows are
// never updated or deleted; retention is handled out of band.
func (s *EventStore) Append(ctx context.Context, ev *event.Event) error {
	detail, err := json.Marshal(ev.Detail)
	if err != nil {
		return fmt.Errorf("marshal detail: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO usage_events (id, event_type, event_timestamp, team_id, user_id, project, session_id, tool_name,
		 is_skill, is_subagent, is_mcp, is_command, is_file_op, success, stop_reason, is_usage_limit, detail, payload, received_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		ev.ID, string(ev.Type), ev.Timestamp, ev.TeamID, ev.UserID, ev.Project, ev.SessionID, ev.ToolName,
		ev.Categories.Skill, ev.Categories.Subagent, ev.Categories.MCP, ev.Categories.Command, ev.Categories.FileOperation,
		ev.Success, string(ev.StopReason), ev.IsUsageLimit, detail, nullIfEmptyJSON(ev.Payload), ev.ReceivedAt)
	if err != nil {
		return fmt.Errorf("append event: %w: %w", domain.ErrUnavailable, err)
	}
	return nil
}

// eventColumns is the SELECT column list for usage_events queries.
const eventColumns = `id, event_type, event_timestamp, team_id, user_id, project, session_id, tool_name,
	is_skill, is_subagent, is_mcp, is_command, is_file_op, success, stop_reason, is_usage_limit, detail, COALESCE(payload, 'null'::jsonb), received_at`

// Query returns all events matching the filter. The WHERE clause is
// built with numbered placeholders; identifiers are never interpolated.
func (s *EventStore) Query(ctx context.Context, filter factstore.Filter) ([]event.Event, error) {
	var (
		args       []any
		conditions []string
		argIdx     = 1
	)

	add := func(cond string, val any) {
		conditions = append(conditions, fmt.Sprintf(cond, argIdx))
		args = append(args, val)
		argIdx++
	}

	if filter.TeamID != "" {
		add("team_id = $%d", filter.TeamID)
	}
	if filter.UserID != "" {
		add("user_id = $%d", filter.UserID)
	}
	if filter.ToolName != "" {
		add("tool_name = $%d", filter.ToolName)
	}
	if filter.Project != "" {
		add("project = $%d", filter.Project)
	}
	if len(filter.Types) > 0 {
		types := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			types[i] = string(t)
		}
		add("event_type = ANY($%d)", types)
	}
	if filter.Since != nil {
		add("event_timestamp >= $%d", *filter.Since)
	}
	if filter.Until != nil {
		add("event_timestamp < $%d", *filter.Until)
	}

	query := fmt.Sprintf(`SELECT %s FROM usage_events`, eventColumns)
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w: %w", domain.ErrUnavailable, err)
	}
	defer rows.Close()

	events := make([]event.Event, 0)
	for rows.Next() {
		var (
			ev      event.Event
			evType  string
			stop    string
			detail  []byte
			payload []byte
		)
		if err := rows.Scan(
			&ev.ID, &evType, &ev.Timestamp, &ev.TeamID, &ev.UserID, &ev.Project, &ev.SessionID, &ev.ToolName,
			&ev.Categories.Skill, &ev.Categories.Subagent, &ev.Categories.MCP, &ev.Categories.Command, &ev.Categories.FileOperation,
			&ev.Success, &stop, &ev.IsUsageLimit, &detail, &payload, &ev.ReceivedAt,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Type = event.Type(evType)
		ev.StopReason = event.StopReason(stop)
		if err := json.Unmarshal(detail, &ev.Detail); err != nil {
			return nil, fmt.Errorf("unmarshal detail: %w", err)
		}
		if string(payload) != "null" {
			ev.Payload = payload
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Count returns the total number of stored events.
func (s *EventStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM usage_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w: %w", domain.ErrUnavailable, err)
	}
	return n, nil
}

// nullIfEmptyJSON maps an absent payload to SQL NULL.
func nullIfEmptyJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

var _ factstore.Store = (*EventStore)(nil)
