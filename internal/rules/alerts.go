package rules

import "github.com/leadworks/qualifier/internal/types"

// TriggeredAlerts returns the enabled alert configurations whose match
// volume threshold the given count meets or exceeds. Delivery belongs to
// the notification system; the engine only decides which thresholds fired.
func TriggeredAlerts(rule *types.Rule, matchCount int64) []types.AlertConfig {
	var fired []types.AlertConfig
	for _, a := range rule.Alerts {
		if a.Enabled && matchCount >= a.Threshold {
			fired = append(fired, a)
		}
	}
	return fired
}
