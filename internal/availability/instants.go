/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package availability

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/daisho-wakazashi/keybook/internal/models"
)

// ErrInvalidBatch is returned when the raw payload is not a list.
var ErrInvalidBatch = errors.New("availability batch is not a list")

// zonedLayouts carry their own offset.
var zonedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04Z07:00",
}

// localLayouts are read in the reference location.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// Span is a half-open interval produced by merging instants.
type Span struct {
	Start time.Time
	End   time.Time
}

// DecodeBatch decodes a serialized list of raw values. Non-string elements are
// kept in their JSON form so that they are reported as unparseable instants
// rather than failing the batch.
func DecodeBatch(raw string) ([]string, error) {
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBatch, err)
	}
	if items == nil {
		return nil, ErrInvalidBatch
	}

	values := make([]string, 0, len(items))
	for _, item := range items {
		item = bytes.TrimSpace(item)
		var s string
		// null decodes into a string without error, so only quoted items qualify.
		if len(item) == 0 || item[0] != '"' || json.Unmarshal(item, &s) != nil {
			values = append(values, string(item))
			continue
		}
		values = append(values, s)
	}
	return values, nil
}

// ParseInstant parses one raw time point. Values without an offset are read in
// loc. The result is in UTC at minute precision.
func ParseInstant(raw string, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty instant")
	}
	if loc == nil {
		loc = time.UTC
	}

	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return normalize(t), nil
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return normalize(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized instant %q", raw)
}

func normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Minute)
}

// MergeInstants deduplicates and sorts instants, partitions them by calendar
// day in loc and merges each day's run of quantum-spaced instants into maximal
// spans. The output is chronological and independent of input order.
func MergeInstants(instants []time.Time, loc *time.Location) []Span {
	if len(instants) == 0 {
		return nil
	}
	if loc == nil {
		loc = time.UTC
	}

	sorted := slices.Clone(instants)
	slices.SortFunc(sorted, func(a, b time.Time) int { return a.Compare(b) })
	sorted = slices.CompactFunc(sorted, func(a, b time.Time) bool { return a.Equal(b) })

	var spans []Span
	for _, day := range partitionByDay(sorted, loc) {
		spans = append(spans, mergeDay(day)...)
	}
	return spans
}

// partitionByDay splits sorted instants into consecutive same-day groups.
func partitionByDay(sorted []time.Time, loc *time.Location) [][]time.Time {
	var (
		days    [][]time.Time
		current []time.Time
		lastKey string
	)
	for _, t := range sorted {
		key := t.In(loc).Format(time.DateOnly)
		if len(current) > 0 && key != lastKey {
			days = append(days, current)
			current = nil
		}
		current = append(current, t)
		lastKey = key
	}
	if len(current) > 0 {
		days = append(days, current)
	}
	return days
}

func mergeDay(instants []time.Time) []Span {
	var spans []Span
	for _, t := range instants {
		if n := len(spans); n > 0 && spans[n-1].End.Equal(t) {
			spans[n-1].End = t.Add(models.Quantum)
			continue
		}
		spans = append(spans, Span{Start: t, End: t.Add(models.Quantum)})
	}
	return spans
}

// WeekRange returns the Sunday-start week containing date, in loc.
func WeekRange(date time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	d := date.In(loc)
	midnight := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	start := midnight.AddDate(0, 0, -int(midnight.Weekday()))
	return start, start.AddDate(0, 0, 7)
}
