package cfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// RateLimit allows Requests per Per window.
type RateLimit struct {
	Requests int
	Per      time.Duration
}

// Interval is the steady-state spacing between requests.
func (r RateLimit) Interval() time.Duration {
	if r.Requests <= 0 {
		return 0
	}
	return r.Per / time.Duration(r.Requests)
}

func (r RateLimit) String() string {
	return fmt.Sprintf("%d/%s", r.Requests, r.Per)
}

// ParseRateLimit parses strings such as "50/minute" or "10/s".
func ParseRateLimit(v string) (RateLimit, error) {
	count, unit, ok := strings.Cut(strings.TrimSpace(v), "/")
	if !ok {
		return RateLimit{}, fmt.Errorf("rate limit %q must look like N/unit", v)
	}
	n, err := strconv.Atoi(strings.TrimSpace(count))
	if err != nil || n <= 0 {
		return RateLimit{}, fmt.Errorf("rate limit %q has an invalid request count", v)
	}

	var per time.Duration
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "s", "sec", "second":
		per = time.Second
	case "m", "min", "minute":
		per = time.Minute
	case "h", "hour":
		per = time.Hour
	case "d", "day":
		per = 24 * time.Hour
	default:
		return RateLimit{}, fmt.Errorf("rate limit %q has an unknown unit", v)
	}
	return RateLimit{Requests: n, Per: per}, nil
}

func parseRateLimits(def, predictions, health string) (RateLimits, error) {
	var (
		out RateLimits
		err error
	)
	if out.Default, err = ParseRateLimit(def); err != nil {
		return RateLimits{}, err
	}
	if out.Predictions, err = ParseRateLimit(predictions); err != nil {
		return RateLimits{}, err
	}
	if out.Health, err = ParseRateLimit(health); err != nil {
		return RateLimits{}, err
	}
	return out, nil
}

// resolvePEM returns v unchanged when it holds PEM text and otherwise reads
// it as a path to a PEM file.
func resolvePEM(v string) (string, error) {
	if v == "" || strings.Contains(v, "-----BEGIN") {
		return v, nil
	}
	data, err := os.ReadFile(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
