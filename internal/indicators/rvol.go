package indicators

import (
	"fmt"
	"time"

	"candle-scanner/internal/market"
)

// RVOL defaults.
const (
	DefaultRVOLLookbackDays  = 10
	DefaultRVOLBucketMinutes = 5
)

// IsPremarket reports whether t falls in the premarket window (4:00-9:30
// local time).
func IsPremarket(t time.Time, loc *time.Location) bool {
	m := minutesOfDay(t, loc)
	return m >= PremarketStart.minutes() && m < RegularStart.minutes()
}

// IsRegularHours reports whether t falls in regular trading hours
// (9:30-16:00 local time).
func IsRegularHours(t time.Time, loc *time.Location) bool {
	m := minutesOfDay(t, loc)
	return m >= RegularStart.minutes() && m < RegularEnd.minutes()
}

// TimeBucket returns the time-of-day bucket label for t, e.g. "09:35" with
// 5-minute buckets.
func TimeBucket(t time.Time, loc *time.Location, bucketMinutes int) string {
	m := minutesOfDay(t, loc)
	start := m / bucketMinutes * bucketMinutes
	return fmt.Sprintf("%02d:%02d", start/60, start%60)
}

func sessionFilter(t time.Time, loc *time.Location, session string) bool {
	if session == "premarket" {
		return IsPremarket(t, loc)
	}
	return IsRegularHours(t, loc)
}

// VolumeProfile averages volume per time-of-day bucket over the most recent
// lookbackDays distinct dates in the historical bars, restricted to the given
// session ("premarket" or "regular").
func VolumeProfile(history market.Series, loc *time.Location, session string, lookbackDays, bucketMinutes int) map[string]float64 {
	type acc struct {
		sum float64
		n   int
	}

	// Most recent lookbackDays distinct dates.
	seen := map[string]bool{}
	var dates []string
	for i := len(history) - 1; i >= 0; i-- {
		d := history[i].Time.In(loc).Format("2006-01-02")
		if !seen[d] {
			seen[d] = true
			dates = append(dates, d)
		}
	}
	keep := map[string]bool{}
	for i, d := range dates {
		if i >= lookbackDays {
			break
		}
		keep[d] = true
	}

	byBucket := map[string]*acc{}
	for _, b := range history {
		if !sessionFilter(b.Time, loc, session) {
			continue
		}
		if !keep[b.Time.In(loc).Format("2006-01-02")] {
			continue
		}
		key := TimeBucket(b.Time, loc, bucketMinutes)
		a := byBucket[key]
		if a == nil {
			a = &acc{}
			byBucket[key] = a
		}
		a.sum += b.Volume
		a.n++
	}

	out := make(map[string]float64, len(byBucket))
	for k, a := range byBucket {
		out[k] = a.sum / float64(a.n)
	}
	return out
}

// RVOLTimeOfDay computes the time-of-day relative volume: today's volume in
// the current bucket divided by the historical average for the same bucket
// and session. Falls back to 1.0 when no baseline exists.
func RVOLTimeOfDay(today, history market.Series, loc *time.Location, lookbackDays, bucketMinutes int) (float64, string) {
	if len(today) == 0 {
		return 1.0, ""
	}
	now := today.Last().Time
	session := "regular"
	if IsPremarket(now, loc) {
		session = "premarket"
	}

	profile := VolumeProfile(history, loc, session, lookbackDays, bucketMinutes)
	bucket := TimeBucket(now, loc, bucketMinutes)
	avg, ok := profile[bucket]
	if !ok || avg == 0 {
		return 1.0, session
	}

	bucketVolume := 0.0
	for _, b := range today {
		if sessionFilter(b.Time, loc, session) && TimeBucket(b.Time, loc, bucketMinutes) == bucket {
			bucketVolume += b.Volume
		}
	}
	return bucketVolume / avg, session
}

// RVOLCumulative computes today's total session volume against the average
// daily session volume over the historical bars. Falls back to 1.0 when no
// baseline exists.
func RVOLCumulative(today, history market.Series, loc *time.Location, session string) float64 {
	todayVolume := 0.0
	for _, b := range today {
		if sessionFilter(b.Time, loc, session) {
			todayVolume += b.Volume
		}
	}

	daily := map[string]float64{}
	for _, b := range history {
		if sessionFilter(b.Time, loc, session) {
			daily[b.Time.In(loc).Format("2006-01-02")] += b.Volume
		}
	}
	if len(daily) == 0 {
		return 1.0
	}
	sum := 0.0
	for _, v := range daily {
		sum += v
	}
	avg := sum / float64(len(daily))
	if avg == 0 {
		return 1.0
	}
	return todayVolume / avg
}
