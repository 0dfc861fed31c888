// Package period handles auction period ticker parsing. An auction may be
// created with a plain opaque id, or with a period ticker from which the
// start and end timestamps are derived.
package period

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// tickerRegex matches: AUC-{YYYYMMDD}-{HH}
// Example: AUC-20250815-14 — the one-hour trading period starting at
// 14:00 UTC on 2025-08-15.
var tickerRegex = regexp.MustCompile(`^AUC-(\d{8})-(\d{2})$`)

// ErrInvalidTicker is returned when a string does not parse as a period ticker.
var ErrInvalidTicker = errors.New("period: invalid ticker format")

// Period represents a parsed auction trading period.
type Period struct {
	Ticker string    `json:"ticker"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
}

// Parse parses and validates a period ticker string.
// Format: AUC-{YYYYMMDD}-{HH}, hours in [00,23], all times UTC.
func Parse(ticker string) (*Period, error) {
	matches := tickerRegex.FindStringSubmatch(ticker)
	if matches == nil {
		return nil, fmt.Errorf("%w: %s (expected AUC-{YYYYMMDD}-{HH})", ErrInvalidTicker, ticker)
	}

	start, err := time.Parse("20060102-15", matches[1]+"-"+matches[2])
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTicker, ticker)
	}

	return &Period{
		Ticker: ticker,
		Start:  start,
		End:    start.Add(time.Hour),
	}, nil
}

// IsTicker reports whether the string looks like a period ticker at all,
// so callers can fall back to treating it as an opaque auction id.
func IsTicker(s string) bool {
	return tickerRegex.MatchString(s)
}
