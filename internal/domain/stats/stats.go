// Package stats defines the aggregation result types served to the
// dashboard. All values are computed over a [start, end) window from
// the fact store; none of them are persisted.
package stats

import "time"

// KPIOverview is the headline dashboard block: current-window counts,
// previous-window deltas and user adoption.
type KPIOverview struct {
	MessageCount  int `json:"message_count"`
	SessionCount  int `json:"session_count"`
	SkillCount    int `json:"skill_count"`
	SubagentCount int `json:"subagent_count"`
	MCPCount      int `json:"mcp_count"`
	CommandCount  int `json:"command_count"`
	LimitHits     int `json:"limit_hits"`

	ActiveUsers int `json:"active_users"`
	TotalUsers  int `json:"total_users"`

	MessageChange     float64 `json:"message_change"`
	SessionChange     float64 `json:"session_change"`
	SkillChange       float64 `json:"skill_change"`
	SubagentChange    float64 `json:"subagent_change"`
	MCPChange         float64 `json:"mcp_change"`
	ActiveUsersChange float64 `json:"active_users_change"`

	// AdoptionRate is active users over all-time users, in whole percent.
	AdoptionRate int `json:"adoption_rate"`

	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
}

// UserStat is one row of the per-user ranking.
type UserStat struct {
	UserID        string    `json:"user_id"`
	DisplayName   string    `json:"display_name"`
	SkillCount    int       `json:"skill_count"`
	SubagentCount int       `json:"subagent_count"`
	MCPCount      int       `json:"mcp_count"`
	CommandCount  int       `json:"command_count"`
	MessageCount  int       `json:"message_count"`
	SessionCount  int       `json:"session_count"`
	LimitHits     int       `json:"limit_hits"`
	TotalCount    int       `json:"total_count"`
	LastActive    time.Time `json:"last_active"`
}

// ToolStat is one row of the per-tool ranking. SuccessRate is nil when
// the tool has no completed executions in the window.
type ToolStat struct {
	Name           string   `json:"name"`
	ExecutionCount int      `json:"execution_count"`
	SuccessCount   int      `json:"success_count"`
	SuccessRate    *float64 `json:"success_rate,omitempty"`
}

// ToolTrendPoint is one (day, tool) sample in the top-tool trend.
type ToolTrendPoint struct {
	Date  string `json:"date"`
	Tool  string `json:"tool"`
	Count int    `json:"count"`
}

// TimelinePoint is one day of the activity timeline.
type TimelinePoint struct {
	Date      string `json:"date"`
	Messages  int    `json:"messages"`
	Tools     int    `json:"tools"`
	Sessions  int    `json:"sessions"`
	LimitHits int    `json:"limit_hits"`
}

// HeatmapCell is one (weekday, hour) bucket. Weekday follows
// time.Weekday numbering: Sunday is 0.
type HeatmapCell struct {
	Weekday int `json:"weekday"`
	Hour    int `json:"hour"`
	Count   int `json:"count"`
}

// SessionKPI summarizes session behaviour in the window.
type SessionKPI struct {
	TotalSessions  int     `json:"total_sessions"`
	AvgDurationMin float64 `json:"avg_duration_min"`
	LimitStopped   int     `json:"limit_stopped"`
	NormalStopped  int     `json:"normal_stopped"`
	ActiveUsers    int     `json:"active_users"`
}

// StopReasonCount is the number of distinct sessions that ended with a
// given reason.
type StopReasonCount struct {
	Reason   string `json:"reason"`
	Sessions int    `json:"sessions"`
}

// HourLimitCount is the number of usage-limit hits in one hour of day.
type HourLimitCount struct {
	Hour      int `json:"hour"`
	LimitHits int `json:"limit_hits"`
}

// ProjectStat is one row of the per-project ranking.
type ProjectStat struct {
	Project  string `json:"project"`
	Events   int    `json:"events"`
	Users    int    `json:"users"`
	Messages int    `json:"messages"`
	Skills   int    `json:"skills"`
	MCP      int    `json:"mcp"`
}

// MonthlyActive is one calendar month of all-time activity.
type MonthlyActive struct {
	Month       string `json:"month"`
	ActiveUsers int    `json:"active_users"`
	Sessions    int    `json:"sessions"`
	Messages    int    `json:"messages"`
}

// FeatureAdoption counts distinct users that used each feature at
// least once in the window.
type FeatureAdoption struct {
	TotalUsers    int `json:"total_users"`
	SkillUsers    int `json:"skill_users"`
	MCPUsers      int `json:"mcp_users"`
	SubagentUsers int `json:"subagent_users"`
	CommandUsers  int `json:"command_users"`
	FileOpUsers   int `json:"file_op_users"`
}

// UserToolCount is one row of a single user's top-tool list.
type UserToolCount struct {
	Tool  string `json:"tool"`
	Count int    `json:"count"`
}

// UserTimelinePoint is one day of a single user's activity.
type UserTimelinePoint struct {
	Date      string `json:"date"`
	Messages  int    `json:"messages"`
	Sessions  int    `json:"sessions"`
	LimitHits int    `json:"limit_hits"`
}
