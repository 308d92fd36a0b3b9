// Package httpx reads rate-limit hints from connector API responses.
package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Backoff returns how long to hold off after a throttled response. It reads
// Retry-After as delay-seconds or an HTTP date, then X-RateLimit-Reset as an
// RFC 3339 timestamp or unix seconds. The result is capped at max when max
// is positive; fallback is used when no hint is present or it already passed.
func Backoff(resp *http.Response, now time.Time, fallback, max time.Duration) time.Duration {
	wait := fallback
	if resp != nil {
		if d, ok := hint(resp.Header, now); ok {
			wait = d
		}
	}
	if max > 0 && wait > max {
		wait = max
	}
	return wait
}

func hint(h http.Header, now time.Time) (time.Duration, bool) {
	if ra := strings.TrimSpace(h.Get("Retry-After")); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil {
			return time.Duration(secs) * time.Second, secs > 0
		}
		if at, err := http.ParseTime(ra); err == nil {
			return until(at, now)
		}
	}
	if reset := strings.TrimSpace(h.Get("X-RateLimit-Reset")); reset != "" {
		if at, err := time.Parse(time.RFC3339, reset); err == nil {
			return until(at, now)
		}
		if unix, err := strconv.ParseInt(reset, 10, 64); err == nil {
			return until(time.Unix(unix, 0), now)
		}
	}
	return 0, false
}

func until(at, now time.Time) (time.Duration, bool) {
	d := at.Sub(now)
	return d, d > 0
}
