package models

import (
	"fmt"
	"time"
)

// IntervalDuration converts a kline interval such as "1m", "15m", "4h" or "1d" to a duration.
func IntervalDuration(interval string) (time.Duration, error) {
	switch interval {
	case "1m":
		return time.Minute, nil
	case "3m":
		return 3 * time.Minute, nil
	case "5m":
		return 5 * time.Minute, nil
	case "15m":
		return 15 * time.Minute, nil
	case "30m":
		return 30 * time.Minute, nil
	case "1h":
		return time.Hour, nil
	case "2h":
		return 2 * time.Hour, nil
	case "4h":
		return 4 * time.Hour, nil
	case "6h":
		return 6 * time.Hour, nil
	case "8h":
		return 8 * time.Hour, nil
	case "12h":
		return 12 * time.Hour, nil
	case "1d":
		return 24 * time.Hour, nil
	case "1w":
		return 7 * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("unsupported interval %q", interval)
}

// PeriodsPerYear is the annualization factor for returns sampled once per interval.
func PeriodsPerYear(interval string) float64 {
	d, err := IntervalDuration(interval)
	if err != nil {
		return 252
	}
	return float64(365*24*time.Hour) / float64(d)
}

// SameUTCDate reports whether a and b fall on the same calendar day in UTC.
func SameUTCDate(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
