package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hooktrace/hooktrace/internal/adapter/memstore"
	"github.com/hooktrace/hooktrace/internal/domain/event"
	"github.com/hooktrace/hooktrace/internal/port/factstore"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

// fakeCache is an in-memory cache.Cache for exercising the cache path.
type fakeCache struct {
	mu   sync.Mutex
	data map[string][]byte
	sets int
	hits int
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string][]byte)}
}

func (c *fakeCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if ok {
		c.hits++
	}
	return v, ok, nil
}

func (c *fakeCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	c.sets++
	return nil
}

func (c *fakeCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// failStore returns an error from every query.
type failStore struct{}

func (failStore) Append(context.Context, *event.Event) error { return nil }
func (failStore) Query(context.Context, factstore.Filter) ([]event.Event, error) {
	return nil, errors.New("backend down")
}
func (failStore) Count(context.Context) (int, error) { return 0, nil }

func newTestAnalytics(t *testing.T, events []event.Event) *AnalyticsService {
	t.Helper()
	store := memstore.New(memstore.DefaultCapacity)
	for i := range events {
		if err := store.Append(context.Background(), &events[i]); err != nil {
			t.Fatalf("seed append: %v", err)
		}
	}
	svc := NewAnalyticsService(store, nil, time.Minute, nil)
	svc.now = func() time.Time { return testNow }
	return svc
}

func ev(mod ...func(*event.Event)) event.Event {
	e := event.Event{
		Type:      event.TypeUserPromptSubmit,
		Timestamp: testNow.Add(-time.Hour),
		TeamID:    "default-team",
		UserID:    "alice@example.com",
		SessionID: "s1",
	}
	for _, m := range mod {
		m(&e)
	}
	return e
}

func at(d time.Duration) func(*event.Event) {
	return func(e *event.Event) { e.Timestamp = testNow.Add(d) }
}

func typ(t event.Type) func(*event.Event) {
	return func(e *event.Event) { e.Type = t }
}

func user(id string) func(*event.Event) {
	return func(e *event.Event) { e.UserID = id }
}

func session(id string) func(*event.Event) {
	return func(e *event.Event) { e.SessionID = id }
}

func tool(name string) func(*event.Event) {
	return func(e *event.Event) { e.ToolName = name }
}

func TestOverviewCountsAndChanges(t *testing.T) {
	var events []event.Event
	// Current window: 10 messages, previous window: 5.
	for range 10 {
		events = append(events, ev(at(-time.Hour)))
	}
	for range 5 {
		events = append(events, ev(at(-30*time.Hour)))
	}
	svc := newTestAnalytics(t, events)

	out := svc.Overview(context.Background(), "default-team", 1)
	if out.MessageCount != 10 {
		t.Errorf("message count: expected 10, got %d", out.MessageCount)
	}
	if out.MessageChange != 100.0 {
		t.Errorf("message change: expected 100.0, got %v", out.MessageChange)
	}
}

func TestOverviewZeroBaseline(t *testing.T) {
	svc := newTestAnalytics(t, []event.Event{ev(at(-time.Hour))})

	out := svc.Overview(context.Background(), "default-team", 1)
	// No previous sessions and no current sessions: change is 0.
	if out.SessionChange != 0.0 {
		t.Errorf("session change: expected 0.0, got %v", out.SessionChange)
	}
	// No previous messages but one current: change is 100.
	if out.MessageChange != 100.0 {
		t.Errorf("message change: expected 100.0, got %v", out.MessageChange)
	}
}

func TestOverviewAdoptionRate(t *testing.T) {
	events := []event.Event{
		ev(at(-time.Hour), user("alice@example.com")),
		// bob is only active outside the window.
		ev(at(-72*time.Hour), user("bob@example.com")),
	}
	svc := newTestAnalytics(t, events)

	out := svc.Overview(context.Background(), "default-team", 1)
	if out.ActiveUsers != 1 {
		t.Errorf("active users: expected 1, got %d", out.ActiveUsers)
	}
	if out.TotalUsers != 2 {
		t.Errorf("total users: expected 2, got %d", out.TotalUsers)
	}
	if out.AdoptionRate != 50 {
		t.Errorf("adoption rate: expected 50, got %d", out.AdoptionRate)
	}
}

func TestOverviewCategoriesAndLimits(t *testing.T) {
	events := []event.Event{
		ev(func(e *event.Event) { e.Categories.Skill = true }),
		ev(func(e *event.Event) { e.Categories.MCP = true }),
		ev(func(e *event.Event) { e.Categories.Command = true }),
		ev(typ(event.TypeSubagentStop)),
		ev(typ(event.TypeSessionStart)),
		ev(typ(event.TypeNotification), func(e *event.Event) { e.IsUsageLimit = true }),
	}
	svc := newTestAnalytics(t, events)

	out := svc.Overview(context.Background(), "default-team", 1)
	if out.SkillCount != 1 || out.MCPCount != 1 || out.CommandCount != 1 {
		t.Errorf("category counts: got skill=%d mcp=%d command=%d", out.SkillCount, out.MCPCount, out.CommandCount)
	}
	if out.SubagentCount != 1 {
		t.Errorf("subagent count: expected 1, got %d", out.SubagentCount)
	}
	if out.SessionCount != 1 {
		t.Errorf("session count: expected 1, got %d", out.SessionCount)
	}
	if out.LimitHits != 1 {
		t.Errorf("limit hits: expected 1, got %d", out.LimitHits)
	}
}

func TestOverviewIgnoresOtherTeams(t *testing.T) {
	events := []event.Event{
		ev(),
		ev(func(e *event.Event) { e.TeamID = "other-team" }),
	}
	svc := newTestAnalytics(t, events)

	out := svc.Overview(context.Background(), "default-team", 1)
	if out.MessageCount != 1 {
		t.Errorf("expected 1 message for default-team, got %d", out.MessageCount)
	}
}

func TestUserStatsRankingAndDisplayName(t *testing.T) {
	events := []event.Event{
		ev(user("alice@example.com")),
		ev(user("alice@example.com")),
		ev(user("alice@example.com")),
		ev(user("bob@example.com")),
		ev(user("bob@example.com")),
		ev(user("carol")),
	}
	svc := newTestAnalytics(t, events)

	out := svc.UserStats(context.Background(), "default-team", 1, 30)
	if len(out) != 3 {
		t.Fatalf("expected 3 users, got %d", len(out))
	}
	if out[0].UserID != "alice@example.com" || out[0].TotalCount != 3 {
		t.Errorf("rank 1: got %s with %d", out[0].UserID, out[0].TotalCount)
	}
	if out[0].DisplayName != "alice" {
		t.Errorf("display name: expected alice, got %q", out[0].DisplayName)
	}
	if out[2].DisplayName != "carol" {
		t.Errorf("display name without @: expected carol, got %q", out[2].DisplayName)
	}
}

func TestUserStatsLimit(t *testing.T) {
	events := []event.Event{
		ev(user("a@x")), ev(user("b@x")), ev(user("c@x")),
	}
	svc := newTestAnalytics(t, events)

	out := svc.UserStats(context.Background(), "default-team", 1, 2)
	if len(out) != 2 {
		t.Errorf("expected 2 users with limit 2, got %d", len(out))
	}
}

func TestUserStatsLastActive(t *testing.T) {
	events := []event.Event{
		ev(at(-3 * time.Hour)),
		ev(at(-1 * time.Hour)),
		ev(at(-2 * time.Hour)),
	}
	svc := newTestAnalytics(t, events)

	out := svc.UserStats(context.Background(), "default-team", 1, 30)
	if len(out) != 1 {
		t.Fatalf("expected 1 user, got %d", len(out))
	}
	want := testNow.Add(-time.Hour)
	if !out[0].LastActive.Equal(want) {
		t.Errorf("last active: expected %v, got %v", want, out[0].LastActive)
	}
}

func TestToolStatsSuccessRate(t *testing.T) {
	success := true
	failure := false
	events := []event.Event{
		ev(typ(event.TypePreToolUse), tool("Bash")),
		ev(typ(event.TypePostToolUse), tool("Bash"), func(e *event.Event) { e.Success = &success }),
		ev(typ(event.TypePostToolUse), tool("Bash"), func(e *event.Event) { e.Success = &failure }),
		ev(typ(event.TypePreToolUse), tool("Read")),
	}
	svc := newTestAnalytics(t, events)

	out := svc.ToolStats(context.Background(), "default-team", 1, 15)
	if len(out) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(out))
	}
	if out[0].Name != "Bash" || out[0].ExecutionCount != 3 {
		t.Errorf("rank 1: got %s with %d executions", out[0].Name, out[0].ExecutionCount)
	}
	if out[0].SuccessCount != 1 {
		t.Errorf("success count: expected 1, got %d", out[0].SuccessCount)
	}
	if out[0].SuccessRate == nil || *out[0].SuccessRate != 33.3 {
		t.Errorf("success rate: expected 33.3, got %v", out[0].SuccessRate)
	}
}

func TestToolStatsExcludesNonToolEvents(t *testing.T) {
	events := []event.Event{
		ev(), // UserPromptSubmit
		ev(typ(event.TypePreToolUse), tool("Bash")),
	}
	svc := newTestAnalytics(t, events)

	out := svc.ToolStats(context.Background(), "default-team", 1, 15)
	if len(out) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(out))
	}
}

func TestToolTrendTopFiveOnly(t *testing.T) {
	var events []event.Event
	names := []string{"Bash", "Read", "Write", "Edit", "Grep", "Glob"}
	// Bash gets 7 executions, Read 6, ... Glob 2: Glob is sixth and
	// must be excluded from the trend.
	for i, name := range names {
		for range 7 - i {
			events = append(events, ev(typ(event.TypePreToolUse), tool(name)))
		}
	}
	svc := newTestAnalytics(t, events)

	out := svc.ToolTrend(context.Background(), "default-team", 1)
	seen := make(map[string]bool)
	for _, p := range out {
		seen[p.Tool] = true
	}
	if len(seen) != 5 {
		t.Fatalf("expected 5 tools in trend, got %d", len(seen))
	}
	if seen["Glob"] {
		t.Error("sixth tool leaked into the top-5 trend")
	}
}

func TestTimelineGroupsByDay(t *testing.T) {
	events := []event.Event{
		ev(at(-time.Hour)),
		ev(at(-time.Hour), typ(event.TypePreToolUse), tool("Bash")),
		ev(at(-26*time.Hour), typ(event.TypeSessionStart)),
		ev(at(-26*time.Hour), func(e *event.Event) { e.IsUsageLimit = true }),
	}
	svc := newTestAnalytics(t, events)

	out := svc.Timeline(context.Background(), "default-team", 7)
	if len(out) != 2 {
		t.Fatalf("expected 2 days, got %d", len(out))
	}
	if out[0].Date >= out[1].Date {
		t.Error("timeline not sorted by date")
	}
	if out[0].Sessions != 1 || out[0].LimitHits != 1 {
		t.Errorf("day 1: got sessions=%d limits=%d", out[0].Sessions, out[0].LimitHits)
	}
	if out[1].Messages != 1 || out[1].Tools != 1 {
		t.Errorf("day 2: got messages=%d tools=%d", out[1].Messages, out[1].Tools)
	}
}

func TestTimelineClampsWindow(t *testing.T) {
	events := []event.Event{
		ev(at(-time.Hour)),
		ev(at(-100 * 24 * time.Hour)), // outside the 90 day clamp
	}
	svc := newTestAnalytics(t, events)

	out := svc.Timeline(context.Background(), "default-team", 365)
	if len(out) != 1 {
		t.Errorf("expected 1 day inside the clamped window, got %d", len(out))
	}
}

func TestHeatmapDenseGrid(t *testing.T) {
	// 2025-06-15 is a Sunday; 11:00 UTC.
	events := []event.Event{ev(at(-time.Hour))}
	svc := newTestAnalytics(t, events)

	out := svc.Heatmap(context.Background(), "default-team", 1)
	if len(out) != 7*24 {
		t.Fatalf("expected %d cells, got %d", 7*24, len(out))
	}
	var total int
	for _, c := range out {
		total += c.Count
		if c.Count == 1 && (c.Weekday != 0 || c.Hour != 11) {
			t.Errorf("count landed in cell (%d,%d)", c.Weekday, c.Hour)
		}
	}
	if total != 1 {
		t.Errorf("expected total count 1, got %d", total)
	}
}

func TestSessionsKPI(t *testing.T) {
	events := []event.Event{
		// Session s1: 30 minutes, stopped normally.
		ev(session("s1"), typ(event.TypeSessionStart), at(-2*time.Hour)),
		ev(session("s1"), typ(event.TypeStop), at(-90*time.Minute), func(e *event.Event) { e.StopReason = event.StopNormal }),
		// Session s2: 60 minutes, hit the usage limit.
		ev(session("s2"), user("bob@x"), typ(event.TypeSessionStart), at(-3*time.Hour)),
		ev(session("s2"), user("bob@x"), typ(event.TypeStop), at(-2*time.Hour), func(e *event.Event) {
			e.StopReason = event.StopUsageLimit
			e.IsUsageLimit = true
		}),
	}
	svc := newTestAnalytics(t, events)

	out := svc.Sessions(context.Background(), "default-team", 1)
	if out.TotalSessions != 2 {
		t.Fatalf("expected 2 sessions, got %d", out.TotalSessions)
	}
	if out.AvgDurationMin != 45.0 {
		t.Errorf("avg duration: expected 45.0, got %v", out.AvgDurationMin)
	}
	if out.LimitStopped != 1 {
		t.Errorf("limit stopped: expected 1, got %d", out.LimitStopped)
	}
	if out.NormalStopped != 1 {
		t.Errorf("normal stopped: expected 1, got %d", out.NormalStopped)
	}
	if out.ActiveUsers != 2 {
		t.Errorf("active users: expected 2, got %d", out.ActiveUsers)
	}
}

func TestSessionsLimitStopWinsOverLaterNormalStop(t *testing.T) {
	// A usage-limit Stop followed by a later-arriving normal Stop (or a
	// SessionEnd with a normal reason) stays a limit-stopped session,
	// counted exactly once.
	events := []event.Event{
		ev(session("s1"), typ(event.TypeSessionStart), at(-2*time.Hour)),
		ev(session("s1"), typ(event.TypeStop), at(-90*time.Minute), func(e *event.Event) {
			e.StopReason = event.StopUsageLimit
			e.IsUsageLimit = true
		}),
		ev(session("s1"), typ(event.TypeStop), at(-80*time.Minute), func(e *event.Event) {
			e.StopReason = event.StopNormal
		}),
		ev(session("s1"), typ(event.TypeSessionEnd), at(-79*time.Minute), func(e *event.Event) {
			e.StopReason = event.StopNormal
		}),
	}
	svc := newTestAnalytics(t, events)

	out := svc.Sessions(context.Background(), "default-team", 1)
	if out.TotalSessions != 1 {
		t.Fatalf("expected 1 session, got %d", out.TotalSessions)
	}
	if out.LimitStopped != 1 {
		t.Errorf("limit stopped: expected 1, got %d", out.LimitStopped)
	}
	if out.NormalStopped != 0 {
		t.Errorf("normal stopped: expected 0, got %d", out.NormalStopped)
	}
}

func TestSessionsReasonComesFromStopEvent(t *testing.T) {
	// A SessionEnd reason alone does not classify the session; without a
	// Stop event the reason stays unknown.
	events := []event.Event{
		ev(session("s1"), typ(event.TypeSessionStart), at(-time.Hour)),
		ev(session("s1"), typ(event.TypeSessionEnd), at(-30*time.Minute), func(e *event.Event) {
			e.StopReason = event.StopNormal
		}),
	}
	svc := newTestAnalytics(t, events)

	out := svc.Sessions(context.Background(), "default-team", 1)
	if out.TotalSessions != 1 {
		t.Fatalf("expected 1 session, got %d", out.TotalSessions)
	}
	if out.NormalStopped != 0 || out.LimitStopped != 0 {
		t.Errorf("expected unknown reason, got normal=%d limit=%d", out.NormalStopped, out.LimitStopped)
	}
}

func TestSessionsEmptyStore(t *testing.T) {
	svc := newTestAnalytics(t, nil)

	out := svc.Sessions(context.Background(), "default-team", 1)
	if out.TotalSessions != 0 || out.AvgDurationMin != 0 {
		t.Errorf("expected zero KPI on empty store, got %+v", out)
	}
}

func TestStopReasonsDistinctSessions(t *testing.T) {
	events := []event.Event{
		ev(session("s1"), typ(event.TypeStop), func(e *event.Event) { e.StopReason = event.StopNormal }),
		ev(session("s1"), typ(event.TypeStop), func(e *event.Event) { e.StopReason = event.StopNormal }),
		ev(session("s2"), typ(event.TypeStop), func(e *event.Event) { e.StopReason = event.StopUsageLimit }),
		// Not a Stop event: ignored even though it has a reason.
		ev(session("s3"), func(e *event.Event) { e.StopReason = event.StopNormal }),
	}
	svc := newTestAnalytics(t, events)

	out := svc.StopReasons(context.Background(), "default-team", 1)
	if len(out) != 2 {
		t.Fatalf("expected 2 reasons, got %d", len(out))
	}
	for _, r := range out {
		if r.Sessions != 1 {
			t.Errorf("reason %s: expected 1 distinct session, got %d", r.Reason, r.Sessions)
		}
	}
}

func TestLimitsByHourDense(t *testing.T) {
	events := []event.Event{
		ev(at(-time.Hour), func(e *event.Event) { e.IsUsageLimit = true }), // 11:00 UTC
		ev(at(-time.Hour)),
	}
	svc := newTestAnalytics(t, events)

	out := svc.LimitsByHour(context.Background(), "default-team", 1)
	if len(out) != 24 {
		t.Fatalf("expected 24 rows, got %d", len(out))
	}
	for _, row := range out {
		want := 0
		if row.Hour == 11 {
			want = 1
		}
		if row.LimitHits != want {
			t.Errorf("hour %d: expected %d, got %d", row.Hour, want, row.LimitHits)
		}
	}
}

func TestProjectsRankingWithDefault(t *testing.T) {
	events := []event.Event{
		ev(func(e *event.Event) { e.Project = "api" }),
		ev(func(e *event.Event) { e.Project = "api" }),
		ev(), // no project
	}
	svc := newTestAnalytics(t, events)

	out := svc.Projects(context.Background(), "default-team", 1, 15)
	if len(out) != 2 {
		t.Fatalf("expected 2 projects, got %d", len(out))
	}
	if out[0].Project != "api" || out[0].Events != 2 {
		t.Errorf("rank 1: got %s with %d events", out[0].Project, out[0].Events)
	}
	if out[1].Project != NoProject {
		t.Errorf("expected %q, got %q", NoProject, out[1].Project)
	}
}

func TestMonthlyActiveGroupsByMonth(t *testing.T) {
	events := []event.Event{
		ev(at(-time.Hour)),
		ev(at(-time.Hour), typ(event.TypeSessionStart)),
		ev(func(e *event.Event) { e.Timestamp = time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC) }),
	}
	svc := newTestAnalytics(t, events)

	out := svc.MonthlyActive(context.Background(), "default-team")
	if len(out) != 2 {
		t.Fatalf("expected 2 months, got %d", len(out))
	}
	if out[0].Month != "2025-05" || out[1].Month != "2025-06" {
		t.Errorf("months: got %s, %s", out[0].Month, out[1].Month)
	}
	if out[1].Messages != 1 || out[1].Sessions != 1 {
		t.Errorf("june: got messages=%d sessions=%d", out[1].Messages, out[1].Sessions)
	}
}

func TestAdoption(t *testing.T) {
	events := []event.Event{
		ev(user("alice@x"), func(e *event.Event) { e.Categories.MCP = true }),
		ev(user("bob@x")),
	}
	svc := newTestAnalytics(t, events)

	out := svc.Adoption(context.Background(), "default-team", 1)
	if out.TotalUsers != 2 {
		t.Errorf("total users: expected 2, got %d", out.TotalUsers)
	}
	if out.MCPUsers != 1 {
		t.Errorf("mcp users: expected 1, got %d", out.MCPUsers)
	}
	if out.SkillUsers != 0 {
		t.Errorf("skill users: expected 0, got %d", out.SkillUsers)
	}
}

func TestUserTopTools(t *testing.T) {
	events := []event.Event{
		ev(typ(event.TypePreToolUse), tool("Bash")),
		ev(typ(event.TypePreToolUse), tool("Bash")),
		ev(typ(event.TypePreToolUse), tool("Read")),
		ev(typ(event.TypePreToolUse), tool("Grep"), user("bob@x")),
		ev(), // no tool name: excluded
	}
	svc := newTestAnalytics(t, events)

	out := svc.UserTopTools(context.Background(), "default-team", "alice@example.com", 1)
	if len(out) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(out))
	}
	if out[0].Tool != "Bash" || out[0].Count != 2 {
		t.Errorf("rank 1: got %s with %d", out[0].Tool, out[0].Count)
	}
}

func TestUserTimeline(t *testing.T) {
	events := []event.Event{
		ev(at(-time.Hour)),
		ev(at(-26*time.Hour), typ(event.TypeSessionStart)),
		ev(at(-time.Hour), user("bob@x")),
	}
	svc := newTestAnalytics(t, events)

	out := svc.UserTimeline(context.Background(), "default-team", "alice@example.com", 7)
	if len(out) != 2 {
		t.Fatalf("expected 2 days, got %d", len(out))
	}
	if out[1].Messages != 1 {
		t.Errorf("expected 1 message on the latest day, got %d", out[1].Messages)
	}
}

func TestQueriesEmptyOnStoreFailure(t *testing.T) {
	svc := NewAnalyticsService(failStore{}, nil, time.Minute, nil)
	svc.now = func() time.Time { return testNow }
	ctx := context.Background()

	if out := svc.Overview(ctx, "default-team", 1); out.MessageCount != 0 {
		t.Errorf("overview: expected zero result, got %+v", out)
	}
	if out := svc.UserStats(ctx, "default-team", 1, 30); len(out) != 0 {
		t.Errorf("users: expected empty, got %d", len(out))
	}
	if out := svc.ToolStats(ctx, "default-team", 1, 15); len(out) != 0 {
		t.Errorf("tools: expected empty, got %d", len(out))
	}
	if out := svc.Timeline(ctx, "default-team", 7); len(out) != 0 {
		t.Errorf("timeline: expected empty, got %d", len(out))
	}
}

func TestCachedQueryRoundTrip(t *testing.T) {
	c := newFakeCache()
	store := memstore.New(memstore.DefaultCapacity)
	e := ev()
	if err := store.Append(context.Background(), &e); err != nil {
		t.Fatalf("append: %v", err)
	}
	svc := NewAnalyticsService(store, c, time.Minute, nil)
	svc.now = func() time.Time { return testNow }

	first := svc.Overview(context.Background(), "default-team", 1)
	if c.sets != 1 {
		t.Fatalf("expected 1 cache set, got %d", c.sets)
	}

	second := svc.Overview(context.Background(), "default-team", 1)
	if c.hits == 0 {
		t.Error("expected a cache hit on the second call")
	}
	if first.MessageCount != second.MessageCount {
		t.Errorf("cached result mismatch: %d vs %d", first.MessageCount, second.MessageCount)
	}
}
