package configs

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/streamsense/observability/internal/alerting"
	"github.com/streamsense/observability/internal/models"
)

// ruleFile is the on-disk shape of one alert rule. Durations are plain
// seconds so operators can edit the file by hand.
type ruleFile struct {
	Name                      string            `json:"name"`
	Severity                  string            `json:"severity"`
	MetricName                string            `json:"metric_name"`
	LabelFilter               map[string]string `json:"label_filter,omitempty"`
	Comparison                string            `json:"comparison"`
	Threshold                 float64           `json:"threshold"`
	ForDurationSeconds        int               `json:"for_duration_seconds"`
	EvaluationIntervalSeconds int               `json:"evaluation_interval_seconds"`
}

// LoadRules reads and validates alert rules from a JSON file. Validation
// failures name the offending rule so misconfiguration is caught at startup.
func LoadRules(path string) ([]models.AlertRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}

	var raw []ruleFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing rules file: %w", err)
	}

	rules := make([]models.AlertRule, 0, len(raw))
	for _, r := range raw {
		rule := models.AlertRule{
			Name:               r.Name,
			Severity:           r.Severity,
			MetricName:         r.MetricName,
			LabelFilter:        r.LabelFilter,
			Comparison:         r.Comparison,
			Threshold:          r.Threshold,
			ForDuration:        time.Duration(r.ForDurationSeconds) * time.Second,
			EvaluationInterval: time.Duration(r.EvaluationIntervalSeconds) * time.Second,
		}
		if err := alerting.ValidateRule(rule); err != nil {
			return nil, fmt.Errorf("rule %q: %w", rule.Name, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}
