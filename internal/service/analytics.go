package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hooktrace/hooktrace/internal/adapter/otel"
	"github.com/hooktrace/hooktrace/internal/domain/event"
	"github.com/hooktrace/hooktrace/internal/domain/stats"
	"github.com/hooktrace/hooktrace/internal/port/cache"
	"github.com/hooktrace/hooktrace/internal/port/factstore"
)

const (
	// NoProject labels events that carry no project name.
	NoProject = "(no project)"

	// timelineMaxDays caps the daily timeline window.
	timelineMaxDays = 90

	userTopToolsLimit = 10
)

// AnalyticsService computes windowed aggregations over the fact store.
// Every method is side-effect free with respect to the store: it reads
// the matching events and folds them in memory. A store failure yields
// an empty result, logged but never propagated, so a broken backend
// degrades the dashboard instead of breaking it.
type AnalyticsService struct {
	store   factstore.Store
	cache   cache.Cache
	ttl     time.Duration
	metrics *otel.Metrics
	group   singleflight.Group

	// now is replaceable in tests.
	now func() time.Time
}

// NewAnalyticsService creates an AnalyticsService. Cache and metrics
// may be nil.
func NewAnalyticsService(store factstore.Store, c cache.Cache, ttl time.Duration, metrics *otel.Metrics) *AnalyticsService {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &AnalyticsService{
		store:   store,
		cache:   c,
		ttl:     ttl,
		metrics: metrics,
		now:     time.Now,
	}
}

// window returns the [start, end) bounds for a trailing window of the
// given number of days. Non-positive days defaults to 1.
func (s *AnalyticsService) window(days int) (start, end time.Time) {
	if days <= 0 {
		days = 1
	}
	end = s.now().UTC()
	start = end.Add(-time.Duration(days) * 24 * time.Hour)
	return start, end
}

// queryRange fetches all team events in [since, until). Nil bounds are
// open. Errors collapse to an empty slice.
func (s *AnalyticsService) queryRange(ctx context.Context, teamID string, since, until *time.Time) []event.Event {
	evs, err := s.store.Query(ctx, factstore.Filter{TeamID: teamID, Since: since, Until: until})
	if err != nil {
		slog.Warn("fact store query failed", "team", teamID, "error", err)
		return nil
	}
	return evs
}

// cachedQuery wraps an aggregation with the result cache, request
// deduplication and the query duration metric. T must round-trip
// through JSON.
func cachedQuery[T any](ctx context.Context, s *AnalyticsService, key string, compute func(context.Context) T) T {
	if s.cache != nil {
		if data, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			var out T
			if err := json.Unmarshal(data, &out); err == nil {
				return out
			}
		}
	}

	v, _, _ := s.group.Do(key, func() (any, error) {
		started := time.Now()
		out := compute(ctx)
		if s.metrics != nil {
			s.metrics.QueryDuration.Record(ctx, time.Since(started).Seconds())
		}
		if s.cache != nil {
			if data, err := json.Marshal(out); err == nil {
				_ = s.cache.Set(ctx, key, data, s.ttl)
			}
		}
		return out, nil
	})
	return v.(T)
}

// calcChange is the percentage delta between the current and previous
// window. A zero baseline maps to 100 when there is any current
// activity and 0 otherwise.
func calcChange(current, prev int) float64 {
	if prev == 0 {
		if current > 0 {
			return 100.0
		}
		return 0.0
	}
	return round1(float64(current-prev) / float64(prev) * 100)
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}

func dateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Overview computes the headline KPI block over the trailing window,
// with deltas against the immediately preceding window of equal length.
func (s *AnalyticsService) Overview(ctx context.Context, teamID string, days int) stats.KPIOverview {
	key := fmt.Sprintf("overview:%s:%d", teamID, days)
	return cachedQuery(ctx, s, key, func(ctx context.Context) stats.KPIOverview {
		start, end := s.window(days)
		prevStart := start.Add(-end.Sub(start))

		current := s.queryRange(ctx, teamID, &start, &end)
		previous := s.queryRange(ctx, teamID, &prevStart, &start)
		allTime := s.queryRange(ctx, teamID, nil, nil)

		out := stats.KPIOverview{PeriodStart: start, PeriodEnd: end}

		curUsers := make(map[string]struct{})
		for i := range current {
			ev := &current[i]
			switch ev.Type {
			case event.TypeUserPromptSubmit:
				out.MessageCount++
			case event.TypeSessionStart:
				out.SessionCount++
			case event.TypeSubagentStop:
				out.SubagentCount++
			}
			if ev.Categories.Skill {
				out.SkillCount++
			}
			if ev.Categories.MCP {
				out.MCPCount++
			}
			if ev.Categories.Command {
				out.CommandCount++
			}
			if ev.IsUsageLimit {
				out.LimitHits++
			}
			curUsers[ev.UserID] = struct{}{}
		}
		out.ActiveUsers = len(curUsers)

		var prevMsg, prevSess, prevSkill, prevSubagent, prevMCP int
		prevUsers := make(map[string]struct{})
		for i := range previous {
			ev := &previous[i]
			switch ev.Type {
			case event.TypeUserPromptSubmit:
				prevMsg++
			case event.TypeSessionStart:
				prevSess++
			case event.TypeSubagentStop:
				prevSubagent++
			}
			if ev.Categories.Skill {
				prevSkill++
			}
			if ev.Categories.MCP {
				prevMCP++
			}
			prevUsers[ev.UserID] = struct{}{}
		}

		totalUsers := make(map[string]struct{})
		for i := range allTime {
			totalUsers[allTime[i].UserID] = struct{}{}
		}
		out.TotalUsers = len(totalUsers)

		out.MessageChange = calcChange(out.MessageCount, prevMsg)
		out.SessionChange = calcChange(out.SessionCount, prevSess)
		out.SkillChange = calcChange(out.SkillCount, prevSkill)
		out.SubagentChange = calcChange(out.SubagentCount, prevSubagent)
		out.MCPChange = calcChange(out.MCPCount, prevMCP)
		out.ActiveUsersChange = calcChange(out.ActiveUsers, len(prevUsers))

		denom := out.TotalUsers
		if denom < 1 {
			denom = 1
		}
		out.AdoptionRate = int(math.Round(float64(out.ActiveUsers) / float64(denom) * 100))

		return out
	})
}

// UserStats ranks users by total event count in the window.
func (s *AnalyticsService) UserStats(ctx context.Context, teamID string, days, limit int) []stats.UserStat {
	key := fmt.Sprintf("users:%s:%d:%d", teamID, days, limit)
	return cachedQuery(ctx, s, key, func(ctx context.Context) []stats.UserStat {
		start, end := s.window(days)
		events := s.queryRange(ctx, teamID, &start, &end)

		byUser := make(map[string]*stats.UserStat)
		for i := range events {
			ev := &events[i]
			st, ok := byUser[ev.UserID]
			if !ok {
				st = &stats.UserStat{
					UserID:      ev.UserID,
					DisplayName: event.DisplayName(ev.UserID),
				}
				byUser[ev.UserID] = st
			}
			st.TotalCount++
			if ev.Categories.Skill {
				st.SkillCount++
			}
			if ev.Categories.MCP {
				st.MCPCount++
			}
			if ev.Categories.Command {
				st.CommandCount++
			}
			switch ev.Type {
			case event.TypeSubagentStop:
				st.SubagentCount++
			case event.TypeUserPromptSubmit:
				st.MessageCount++
			case event.TypeSessionStart:
				st.SessionCount++
			}
			if ev.IsUsageLimit {
				st.LimitHits++
			}
			if ev.Timestamp.After(st.LastActive) {
				st.LastActive = ev.Timestamp
			}
		}

		out := make([]stats.UserStat, 0, len(byUser))
		for _, st := range byUser {
			out = append(out, *st)
		}
		// Deterministic order: id asc first, then stable sort by count.
		sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
		sort.SliceStable(out, func(i, j int) bool { return out[i].TotalCount > out[j].TotalCount })
		return clip(out, limit)
	})
}

// ToolStats ranks tools by execution count in the window. Executions
// are PreToolUse and PostToolUse events; success counts come from
// PostToolUse events that reported success.
func (s *AnalyticsService) ToolStats(ctx context.Context, teamID string, days, limit int) []stats.ToolStat {
	key := fmt.Sprintf("tools:%s:%d:%d", teamID, days, limit)
	return cachedQuery(ctx, s, key, func(ctx context.Context) []stats.ToolStat {
		start, end := s.window(days)
		events, err := s.store.Query(ctx, factstore.Filter{
			TeamID: teamID,
			Types:  []event.Type{event.TypePreToolUse, event.TypePostToolUse},
			Since:  &start,
			Until:  &end,
		})
		if err != nil {
			slog.Warn("fact store query failed", "team", teamID, "error", err)
			return nil
		}

		type acc struct{ executions, successes int }
		byTool := make(map[string]*acc)
		for i := range events {
			ev := &events[i]
			name := ev.ToolName
			if name == "" {
				name = "unknown"
			}
			a, ok := byTool[name]
			if !ok {
				a = &acc{}
				byTool[name] = a
			}
			a.executions++
			if ev.Type == event.TypePostToolUse && ev.Success != nil && *ev.Success {
				a.successes++
			}
		}

		out := make([]stats.ToolStat, 0, len(byTool))
		for name, a := range byTool {
			st := stats.ToolStat{Name: name, ExecutionCount: a.executions, SuccessCount: a.successes}
			if a.executions > 0 {
				rate := round1(float64(a.successes) / float64(a.executions) * 100)
				st.SuccessRate = &rate
			}
			out = append(out, st)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
		sort.SliceStable(out, func(i, j int) bool { return out[i].ExecutionCount > out[j].ExecutionCount })
		return clip(out, limit)
	})
}

// ToolTrend returns the daily execution series of the five most used
// tools in the window.
func (s *AnalyticsService) ToolTrend(ctx context.Context, teamID string, days int) []stats.ToolTrendPoint {
	key := fmt.Sprintf("tooltrend:%s:%d", teamID, days)
	return cachedQuery(ctx, s, key, func(ctx context.Context) []stats.ToolTrendPoint {
		top := s.ToolStats(ctx, teamID, days, 5)
		if len(top) == 0 {
			return nil
		}
		topSet := make(map[string]struct{}, len(top))
		for _, t := range top {
			topSet[t.Name] = struct{}{}
		}

		start, end := s.window(days)
		events, err := s.store.Query(ctx, factstore.Filter{
			TeamID: teamID,
			Types:  []event.Type{event.TypePreToolUse, event.TypePostToolUse},
			Since:  &start,
			Until:  &end,
		})
		if err != nil {
			slog.Warn("fact store query failed", "team", teamID, "error", err)
			return nil
		}

		type dayTool struct{ date, tool string }
		counts := make(map[dayTool]int)
		for i := range events {
			ev := &events[i]
			if _, ok := topSet[ev.ToolName]; !ok {
				continue
			}
			counts[dayTool{dateKey(ev.Timestamp), ev.ToolName}]++
		}

		out := make([]stats.ToolTrendPoint, 0, len(counts))
		for k, n := range counts {
			out = append(out, stats.ToolTrendPoint{Date: k.date, Tool: k.tool, Count: n})
		}
		sort.Slice(out, func(i, j int) bool {
			if out[i].Date != out[j].Date {
				return out[i].Date < out[j].Date
			}
			return out[i].Tool < out[j].Tool
		})
		return out
	})
}

// Timeline returns per-day activity counts. The window is clamped to
// 90 days.
func (s *AnalyticsService) Timeline(ctx context.Context, teamID string, days int) []stats.TimelinePoint {
	if days > timelineMaxDays {
		days = timelineMaxDays
	}
	key := fmt.Sprintf("timeline:%s:%d", teamID, days)
	return cachedQuery(ctx, s, key, func(ctx context.Context) []stats.TimelinePoint {
		start, end := s.window(days)
		events := s.queryRange(ctx, teamID, &start, &end)

		byDay := make(map[string]*stats.TimelinePoint)
		for i := range events {
			ev := &events[i]
			date := dateKey(ev.Timestamp)
			p, ok := byDay[date]
			if !ok {
				p = &stats.TimelinePoint{Date: date}
				byDay[date] = p
			}
			switch {
			case ev.Type == event.TypeUserPromptSubmit:
				p.Messages++
			case ev.IsToolEvent():
				p.Tools++
			case ev.Type == event.TypeSessionStart:
				p.Sessions++
			}
			if ev.IsUsageLimit {
				p.LimitHits++
			}
		}

		out := make([]stats.TimelinePoint, 0, len(byDay))
		for _, p := range byDay {
			out = append(out, *p)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
		return out
	})
}

// Heatmap returns a dense 7x24 grid of event counts by weekday and
// hour of day.
func (s *AnalyticsService) Heatmap(ctx context.Context, teamID string, days int) []stats.HeatmapCell {
	key := fmt.Sprintf("heatmap:%s:%d", teamID, days)
	return cachedQuery(ctx, s, key, func(ctx context.Context) []stats.HeatmapCell {
		start, end := s.window(days)
		events := s.queryRange(ctx, teamID, &start, &end)

		var grid [7][24]int
		for i := range events {
			ts := events[i].Timestamp.UTC()
			grid[int(ts.Weekday())][ts.Hour()]++
		}

		out := make([]stats.HeatmapCell, 0, 7*24)
		for wd := range 7 {
			for hr := range 24 {
				out = append(out, stats.HeatmapCell{Weekday: wd, Hour: hr, Count: grid[wd][hr]})
			}
		}
		return out
	})
}

// Sessions summarizes session durations and stop reasons in the
// window. A session is the group of events sharing (session_id,
// user_id); its duration is the span between its first and last event.
func (s *AnalyticsService) Sessions(ctx context.Context, teamID string, days int) stats.SessionKPI {
	key := fmt.Sprintf("sessions:%s:%d", teamID, days)
	return cachedQuery(ctx, s, key, func(ctx context.Context) stats.SessionKPI {
		start, end := s.window(days)
		events := s.queryRange(ctx, teamID, &start, &end)

		type sessKey struct{ session, user string }
		type sess struct {
			first, last time.Time
			reason      event.StopReason
		}
		groups := make(map[sessKey]*sess)
		for i := range events {
			ev := &events[i]
			k := sessKey{ev.SessionID, ev.UserID}
			g, ok := groups[k]
			if !ok {
				g = &sess{first: ev.Timestamp, last: ev.Timestamp, reason: event.StopUnknown}
				groups[k] = g
			}
			if ev.Timestamp.Before(g.first) {
				g.first = ev.Timestamp
			}
			if ev.Timestamp.After(g.last) {
				g.last = ev.Timestamp
			}
			// The session's reason is its Stop event's reason. A limit
			// hit wins over any other Stop, regardless of arrival order.
			if ev.Type == event.TypeStop && ev.StopReason != "" {
				if g.reason == event.StopUnknown || ev.StopReason == event.StopUsageLimit {
					g.reason = ev.StopReason
				}
			}
		}

		var out stats.SessionKPI
		if len(groups) == 0 {
			return out
		}

		users := make(map[string]struct{})
		var totalMinutes float64
		for k, g := range groups {
			out.TotalSessions++
			totalMinutes += g.last.Sub(g.first).Minutes()
			switch g.reason {
			case event.StopUsageLimit:
				out.LimitStopped++
			case event.StopNormal:
				out.NormalStopped++
			}
			users[k.user] = struct{}{}
		}
		out.ActiveUsers = len(users)
		out.AvgDurationMin = round1(totalMinutes / float64(out.TotalSessions))
		return out
	})
}

// StopReasons counts distinct sessions per stop reason among Stop
// events in the window.
func (s *AnalyticsService) StopReasons(ctx context.Context, teamID string, days int) []stats.StopReasonCount {
	key := fmt.Sprintf("stopreasons:%s:%d", teamID, days)
	return cachedQuery(ctx, s, key, func(ctx context.Context) []stats.StopReasonCount {
		start, end := s.window(days)
		events, err := s.store.Query(ctx, factstore.Filter{
			TeamID: teamID,
			Types:  []event.Type{event.TypeStop},
			Since:  &start,
			Until:  &end,
		})
		if err != nil {
			slog.Warn("fact store query failed", "team", teamID, "error", err)
			return nil
		}

		sessions := make(map[string]map[string]struct{})
		for i := range events {
			ev := &events[i]
			reason := string(ev.StopReason)
			if reason == "" {
				reason = string(event.StopUnknown)
			}
			if sessions[reason] == nil {
				sessions[reason] = make(map[string]struct{})
			}
			sessions[reason][ev.SessionID] = struct{}{}
		}

		out := make([]stats.StopReasonCount, 0, len(sessions))
		for reason, set := range sessions {
			out = append(out, stats.StopReasonCount{Reason: reason, Sessions: len(set)})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Reason < out[j].Reason })
		sort.SliceStable(out, func(i, j int) bool { return out[i].Sessions > out[j].Sessions })
		return out
	})
}

// LimitsByHour counts usage-limit hits per hour of day, zero-filled
// over all 24 hours.
func (s *AnalyticsService) LimitsByHour(ctx context.Context, teamID string, days int) []stats.HourLimitCount {
	key := fmt.Sprintf("limitshourly:%s:%d", teamID, days)
	return cachedQuery(ctx, s, key, func(ctx context.Context) []stats.HourLimitCount {
		start, end := s.window(days)
		events := s.queryRange(ctx, teamID, &start, &end)

		var hours [24]int
		for i := range events {
			if events[i].IsUsageLimit {
				hours[events[i].Timestamp.UTC().Hour()]++
			}
		}

		out := make([]stats.HourLimitCount, 24)
		for h := range 24 {
			out[h] = stats.HourLimitCount{Hour: h, LimitHits: hours[h]}
		}
		return out
	})
}

// Projects ranks projects by event count in the window. Events without
// a project name fall under the NoProject label.
func (s *AnalyticsService) Projects(ctx context.Context, teamID string, days, limit int) []stats.ProjectStat {
	key := fmt.Sprintf("projects:%s:%d:%d", teamID, days, limit)
	return cachedQuery(ctx, s, key, func(ctx context.Context) []stats.ProjectStat {
		start, end := s.window(days)
		events := s.queryRange(ctx, teamID, &start, &end)

		type acc struct {
			stat  stats.ProjectStat
			users map[string]struct{}
		}
		byProject := make(map[string]*acc)
		for i := range events {
			ev := &events[i]
			name := ev.Project
			if name == "" {
				name = NoProject
			}
			a, ok := byProject[name]
			if !ok {
				a = &acc{stat: stats.ProjectStat{Project: name}, users: make(map[string]struct{})}
				byProject[name] = a
			}
			a.stat.Events++
			a.users[ev.UserID] = struct{}{}
			if ev.Type == event.TypeUserPromptSubmit {
				a.stat.Messages++
			}
			if ev.Categories.Skill {
				a.stat.Skills++
			}
			if ev.Categories.MCP {
				a.stat.MCP++
			}
		}

		out := make([]stats.ProjectStat, 0, len(byProject))
		for _, a := range byProject {
			a.stat.Users = len(a.users)
			out = append(out, a.stat)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Project < out[j].Project })
		sort.SliceStable(out, func(i, j int) bool { return out[i].Events > out[j].Events })
		return clip(out, limit)
	})
}

// MonthlyActive returns all-time per-month distinct users, sessions
// and messages.
func (s *AnalyticsService) MonthlyActive(ctx context.Context, teamID string) []stats.MonthlyActive {
	key := fmt.Sprintf("monthly:%s", teamID)
	return cachedQuery(ctx, s, key, func(ctx context.Context) []stats.MonthlyActive {
		events := s.queryRange(ctx, teamID, nil, nil)

		type acc struct {
			users    map[string]struct{}
			sessions int
			messages int
		}
		byMonth := make(map[string]*acc)
		for i := range events {
			ev := &events[i]
			month := ev.Timestamp.UTC().Format("2006-01")
			a, ok := byMonth[month]
			if !ok {
				a = &acc{users: make(map[string]struct{})}
				byMonth[month] = a
			}
			a.users[ev.UserID] = struct{}{}
			switch ev.Type {
			case event.TypeSessionStart:
				a.sessions++
			case event.TypeUserPromptSubmit:
				a.messages++
			}
		}

		out := make([]stats.MonthlyActive, 0, len(byMonth))
		for month, a := range byMonth {
			out = append(out, stats.MonthlyActive{
				Month:       month,
				ActiveUsers: len(a.users),
				Sessions:    a.sessions,
				Messages:    a.messages,
			})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
		return out
	})
}

// Adoption counts distinct users that triggered each category at least
// once in the window.
func (s *AnalyticsService) Adoption(ctx context.Context, teamID string, days int) stats.FeatureAdoption {
	key := fmt.Sprintf("adoption:%s:%d", teamID, days)
	return cachedQuery(ctx, s, key, func(ctx context.Context) stats.FeatureAdoption {
		start, end := s.window(days)
		events := s.queryRange(ctx, teamID, &start, &end)

		total := make(map[string]struct{})
		skill := make(map[string]struct{})
		mcp := make(map[string]struct{})
		subagent := make(map[string]struct{})
		command := make(map[string]struct{})
		fileOp := make(map[string]struct{})
		for i := range events {
			ev := &events[i]
			total[ev.UserID] = struct{}{}
			if ev.Categories.Skill {
				skill[ev.UserID] = struct{}{}
			}
			if ev.Categories.MCP {
				mcp[ev.UserID] = struct{}{}
			}
			if ev.Categories.Subagent {
				subagent[ev.UserID] = struct{}{}
			}
			if ev.Categories.Command {
				command[ev.UserID] = struct{}{}
			}
			if ev.Categories.FileOperation {
				fileOp[ev.UserID] = struct{}{}
			}
		}

		return stats.FeatureAdoption{
			TotalUsers:    len(total),
			SkillUsers:    len(skill),
			MCPUsers:      len(mcp),
			SubagentUsers: len(subagent),
			CommandUsers:  len(command),
			FileOpUsers:   len(fileOp),
		}
	})
}

// UserTopTools returns the ten most used tools for a single user.
func (s *AnalyticsService) UserTopTools(ctx context.Context, teamID, userID string, days int) []stats.UserToolCount {
	key := fmt.Sprintf("usertools:%s:%s:%d", teamID, userID, days)
	return cachedQuery(ctx, s, key, func(ctx context.Context) []stats.UserToolCount {
		start, end := s.window(days)
		events, err := s.store.Query(ctx, factstore.Filter{
			TeamID: teamID,
			UserID: userID,
			Since:  &start,
			Until:  &end,
		})
		if err != nil {
			slog.Warn("fact store query failed", "team", teamID, "user", userID, "error", err)
			return nil
		}

		counts := make(map[string]int)
		for i := range events {
			if events[i].ToolName != "" {
				counts[events[i].ToolName]++
			}
		}

		out := make([]stats.UserToolCount, 0, len(counts))
		for tool, n := range counts {
			out = append(out, stats.UserToolCount{Tool: tool, Count: n})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Tool < out[j].Tool })
		sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
		return clip(out, userTopToolsLimit)
	})
}

// UserTimeline returns a single user's per-day activity.
func (s *AnalyticsService) UserTimeline(ctx context.Context, teamID, userID string, days int) []stats.UserTimelinePoint {
	key := fmt.Sprintf("usertimeline:%s:%s:%d", teamID, userID, days)
	return cachedQuery(ctx, s, key, func(ctx context.Context) []stats.UserTimelinePoint {
		start, end := s.window(days)
		events, err := s.store.Query(ctx, factstore.Filter{
			TeamID: teamID,
			UserID: userID,
			Since:  &start,
			Until:  &end,
		})
		if err != nil {
			slog.Warn("fact store query failed", "team", teamID, "user", userID, "error", err)
			return nil
		}

		byDay := make(map[string]*stats.UserTimelinePoint)
		for i := range events {
			ev := &events[i]
			date := dateKey(ev.Timestamp)
			p, ok := byDay[date]
			if !ok {
				p = &stats.UserTimelinePoint{Date: date}
				byDay[date] = p
			}
			switch ev.Type {
			case event.TypeUserPromptSubmit:
				p.Messages++
			case event.TypeSessionStart:
				p.Sessions++
			}
			if ev.IsUsageLimit {
				p.LimitHits++
			}
		}

		out := make([]stats.UserTimelinePoint, 0, len(byDay))
		for _, p := range byDay {
			out = append(out, *p)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
		return out
	})
}

// clip truncates a ranking to limit entries. Non-positive limits mean
// no truncation.
func clip[T any](s []T, limit int) []T {
	if limit > 0 && len(s) > limit {
		return s[:limit]
	}
	return s
}
