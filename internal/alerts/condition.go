package alerts

import (
	"strconv"
	"strings"
)

// evalCondition evaluates a rule condition string against a Stats sample.
//
// Supported expressions (field operator value):
//
//	fast_fill_pct > 95
//	slow_fill_pct > 95
//	evictions_pm > 120
//	feed_uptime_pct < 99
//	feed_state == down
//	feed_state == degraded
//
// Returns (fires bool, triggering value float64).
// Returns (false, 0) if the expression cannot be parsed or the field is unknown.
func evalCondition(cond string, stats Stats) (bool, float64) {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return false, 0
	}
	field, op, rhs := parts[0], parts[1], parts[2]

	if field == "feed_state" {
		if op == "==" {
			return stats.FeedState == rhs, 0
		}
		return false, 0
	}

	v, ok := numericField(field, stats)
	if !ok {
		return false, 0
	}
	threshold, err := strconv.ParseFloat(rhs, 64)
	if err != nil {
		return false, 0
	}
	return compareFloat(v, op, threshold), v
}

// numericField maps a field name to its value in the sample.
func numericField(field string, stats Stats) (float64, bool) {
	switch field {
	case "fast_fill_pct":
		return stats.FastFillPct, true
	case "slow_fill_pct":
		return stats.SlowFillPct, true
	case "evictions_pm":
		return stats.EvictionsPM, true
	case "feed_uptime_pct":
		return stats.FeedUptimePct, true
	default:
		return 0, false
	}
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	default:
		return false
	}
}
