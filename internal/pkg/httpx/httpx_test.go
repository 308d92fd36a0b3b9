package httpx

import (
	"net/http"
	"strconv"
	"testing"
	"time"
)

func respWith(kv ...string) *http.Response {
	h := http.Header{}
	for i := 0; i+1 < len(kv); i += 2 {
		h.Set(kv[i], kv[i+1])
	}
	return &http.Response{Header: h}
}

func TestBackoff(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		resp *http.Response
		max  time.Duration
		want time.Duration
	}{
		{"no hint", respWith(), 0, 5 * time.Second},
		{"nil response", nil, 0, 5 * time.Second},
		{"seconds", respWith("Retry-After", "12"), 0, 12 * time.Second},
		{"seconds capped", respWith("Retry-After", "120"), 10 * time.Second, 10 * time.Second},
		{"zero seconds", respWith("Retry-After", "0"), 0, 5 * time.Second},
		{"http date", respWith("Retry-After", now.Add(90*time.Second).Format(http.TimeFormat)), 0, 90 * time.Second},
		{"date in the past", respWith("Retry-After", now.Add(-time.Minute).Format(http.TimeFormat)), 0, 5 * time.Second},
		{"reset rfc3339", respWith("X-RateLimit-Reset", now.Add(30*time.Second).Format(time.RFC3339)), 0, 30 * time.Second},
		{"reset unix", respWith("X-RateLimit-Reset", strconv.FormatInt(now.Add(45*time.Second).Unix(), 10)), 0, 45 * time.Second},
		{"garbage", respWith("Retry-After", "soon"), 0, 5 * time.Second},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Backoff(tc.resp, now, 5*time.Second, tc.max); got != tc.want {
				t.Fatalf("want=%v got=%v", tc.want, got)
			}
		})
	}
}
