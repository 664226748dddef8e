package lunch

import (
	"math"
	"time"

	"github.com/dustin/go-humanize"
)

var (
	minuteMagnitudes = []humanize.RelTimeMagnitude{
		{D: time.Minute, Format: "less than a minute", DivBy: 1},
		{D: 2 * time.Minute, Format: "1 minute", DivBy: 1},
		{D: math.MaxInt64, Format: "%d minutes", DivBy: time.Minute},
	}
	hourMagnitudes = []humanize.RelTimeMagnitude{
		{D: 2 * time.Hour, Format: "1 hour", DivBy: 1},
		{D: math.MaxInt64, Format: "%d hours", DivBy: time.Hour},
	}
)

// Span renders d with at most two units, e.g. "2 hours 5 minutes".
func Span(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	if d < time.Hour {
		return span(d, minuteMagnitudes)
	}
	hours := d.Truncate(time.Hour)
	out := span(hours, hourMagnitudes)
	if rest := d - hours; rest >= time.Minute {
		out += " " + span(rest, minuteMagnitudes)
	}
	return out
}

func span(d time.Duration, mags []humanize.RelTimeMagnitude) string {
	var base time.Time
	return humanize.CustomRelTime(base.Add(d), base, "", "", mags)
}
