// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cron

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule is a parsed cron expression.
type Schedule struct {
	expression  string
	minutes     bitset64
	hours       bitset64
	daysOfMonth bitset64
	months      bitset64
	daysOfWeek  bitset64

	// Restricted day fields combine with OR instead of AND.
	dayOfMonthRestricted bool
	dayOfWeekRestricted  bool
}

type bitset64 uint64

func (b bitset64) has(value int) bool { return b&(1<<uint(value)) != 0 }
func (b *bitset64) set(value int)     { *b |= 1 << uint(value) }

var shortcuts = map[string]string{
	"@hourly":   "0 * * * *",
	"@daily":    "0 0 * * *",
	"@midnight": "0 0 * * *",
	"@weekly":   "0 0 * * 0",
	"@monthly":  "0 0 1 * *",
	"@yearly":   "0 0 1 1 *",
	"@annually": "0 0 1 1 *",
}

// fieldSpec describes the bounds of one of the five fields.
type fieldSpec struct {
	name      string
	minimum   int
	maximum   int
	foldSeven bool
}

var fieldSpecs = [5]fieldSpec{
	{name: "minute", minimum: 0, maximum: 59},
	{name: "hour", minimum: 0, maximum: 23},
	{name: "day-of-month", minimum: 1, maximum: 31},
	{name: "month", minimum: 1, maximum: 12},
	{name: "day-of-week", minimum: 0, maximum: 7, foldSeven: true},
}

// Parse parses a cron expression or shortcut.
func Parse(expression string) (Schedule, error) {
	trimmed := strings.TrimSpace(expression)
	if expanded, ok := shortcuts[strings.ToLower(trimmed)]; ok {
		trimmed = expanded
	}
	fields := strings.Fields(trimmed)
	if len(fields) != 5 {
		return Schedule{}, fmt.Errorf("cron: expected 5 fields, got %d", len(fields))
	}

	var sets [5]bitset64
	for index, spec := range fieldSpecs {
		bits, err := parseField(fields[index], spec)
		if err != nil {
			return Schedule{}, fmt.Errorf("cron: %s field: %w", spec.name, err)
		}
		sets[index] = bits
	}

	return Schedule{
		expression:           expression,
		minutes:              sets[0],
		hours:                sets[1],
		daysOfMonth:          sets[2],
		months:               sets[3],
		daysOfWeek:           sets[4],
		dayOfMonthRestricted: !strings.HasPrefix(fields[2], "*"),
		dayOfWeekRestricted:  !strings.HasPrefix(fields[4], "*"),
	}, nil
}

// String returns the expression the schedule was parsed from.
func (s Schedule) String() string { return s.expression }

// Next returns the earliest minute strictly after t that matches the
// schedule. It fails for schedules with no occurrence within four
// years (for example 31 February).
func (s Schedule) Next(t time.Time) (time.Time, error) {
	t = t.UTC().Truncate(time.Minute).Add(time.Minute)
	limit := t.AddDate(4, 0, 0)

	for t.Before(limit) {
		if !s.months.has(int(t.Month())) {
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC)
			continue
		}
		if !s.matchesDay(t) {
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, time.UTC)
			continue
		}
		if !s.hours.has(t.Hour()) {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, time.UTC)
			continue
		}
		if !s.minutes.has(t.Minute()) {
			t = t.Add(time.Minute)
			continue
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("cron: %q has no occurrence within 4 years of %s", s.expression, t.Format(time.RFC3339))
}

func (s Schedule) matchesDay(t time.Time) bool {
	dayOfMonth := s.daysOfMonth.has(t.Day())
	dayOfWeek := s.daysOfWeek.has(int(t.Weekday()))
	if s.dayOfMonthRestricted && s.dayOfWeekRestricted {
		return dayOfMonth || dayOfWeek
	}
	return dayOfMonth && dayOfWeek
}

func parseField(field string, spec fieldSpec) (bitset64, error) {
	var result bitset64
	for _, term := range strings.Split(field, ",") {
		bits, err := parseTerm(term, spec)
		if err != nil {
			return 0, err
		}
		result |= bits
	}
	if result == 0 {
		return 0, fmt.Errorf("field %q produces empty set", field)
	}
	return result, nil
}

// parseTerm parses *, */N, V, V-V or V-V/N.
func parseTerm(term string, spec fieldSpec) (bitset64, error) {
	rangeExpression, stepExpression, hasStep := strings.Cut(term, "/")
	step := 1
	if hasStep {
		parsed, err := strconv.Atoi(stepExpression)
		if err != nil {
			return 0, fmt.Errorf("invalid step %q: %w", stepExpression, err)
		}
		if parsed <= 0 {
			return 0, fmt.Errorf("step must be positive, got %d", parsed)
		}
		step = parsed
	}

	start, end := spec.minimum, spec.maximum
	if rangeExpression != "*" {
		startText, endText, isRange := strings.Cut(rangeExpression, "-")
		var err error
		if start, err = strconv.Atoi(startText); err != nil {
			return 0, fmt.Errorf("invalid value %q: %w", startText, err)
		}
		end = start
		if isRange {
			if end, err = strconv.Atoi(endText); err != nil {
				return 0, fmt.Errorf("invalid range end %q: %w", endText, err)
			}
			if start > end {
				return 0, fmt.Errorf("range start %d > end %d", start, end)
			}
		} else if hasStep {
			// "5/15" means from 5 to the maximum in steps of 15.
			end = spec.maximum
		}
	}
	if start < spec.minimum || end > spec.maximum {
		return 0, fmt.Errorf("value out of range [%d-%d]: got %d-%d", spec.minimum, spec.maximum, start, end)
	}

	var result bitset64
	for value := start; value <= end; value += step {
		if spec.foldSeven && value == 7 {
			result.set(0)
			continue
		}
		result.set(value)
	}
	return result, nil
}
