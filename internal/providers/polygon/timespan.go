package polygon

import "strconv"

// NormalizeTimespan maps a human timeframe label to a provider
// multiplier/timespan pair. Accepted labels: "day", "week", "hour", "240"
// (4-hour bars), and any parseable positive integer (minute bars).
func NormalizeTimespan(timeframe string) (multiplier int, timespan string, ok bool) {
	switch timeframe {
	case "day", "daily", "1d":
		return 1, "day", true
	case "week", "1w":
		return 1, "week", true
	case "hour", "1h", "60":
		return 1, "hour", true
	case "240", "4h":
		return 4, "hour", true
	}
	if n, err := strconv.Atoi(timeframe); err == nil && n > 0 {
		return n, "minute", true
	}
	// "5m" style labels
	if len(timeframe) > 1 && timeframe[len(timeframe)-1] == 'm' {
		if n, err := strconv.Atoi(timeframe[:len(timeframe)-1]); err == nil && n > 0 {
			return n, "minute", true
		}
	}
	return 0, "", false
}
