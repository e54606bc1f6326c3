package models

import "time"

// Alert severities.
const (
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Alert comparisons.
const (
	CompareGT = "gt"
	CompareLT = "lt"
	CompareEQ = "eq"
)

// Alert transitions carried by AlertEvent.
const (
	TransitionFired    = "fired"
	TransitionResolved = "resolved"
)

// AlertRule is a declarative threshold rule evaluated against registry
// snapshots. ForDuration must be at least EvaluationInterval; a rule that
// cannot survive a single evaluation cycle can never debounce.
type AlertRule struct {
	Name               string            `json:"name"`
	Severity           string            `json:"severity"`
	MetricName         string            `json:"metric_name"`
	LabelFilter        map[string]string `json:"label_filter,omitempty"`
	Comparison         string            `json:"comparison"`
	Threshold          float64           `json:"threshold"`
	ForDuration        time.Duration     `json:"for_duration"`
	EvaluationInterval time.Duration     `json:"evaluation_interval"`
}

// Alert lifecycle phases. A rule instance can never move from inactive
// straight to firing; the pending phase is mandatory.
const (
	AlertInactive = "inactive"
	AlertPending  = "pending"
	AlertFiring   = "firing"
)

// AlertState is the evaluator-owned state of one rule applied to one label
// combination.
type AlertState struct {
	RuleName       string    `json:"rule_name"`
	SeriesLabels   string    `json:"series_labels"`
	Phase          string    `json:"phase"`
	ViolationSince time.Time `json:"violation_since,omitempty"`
}

// AlertEvent is emitted exactly once per inactive-to-firing transition and
// once per firing-to-inactive resolution.
type AlertEvent struct {
	RuleName        string            `json:"rule_name"`
	Severity        string            `json:"severity"`
	Transition      string            `json:"transition"`
	Labels          map[string]string `json:"labels,omitempty"`
	Timestamp       time.Time         `json:"timestamp"`
	TriggeringValue float64           `json:"triggering_value"`
}
