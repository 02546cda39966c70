package trigger

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// cronField is one position of a cron expression: either a wildcard or a
// fixed integer.
type cronField struct {
	hasValue bool
	value    int
}

func (f cronField) matches(actual int) bool {
	return !f.hasValue || f.value == actual
}

// CronExpression is the five-field cron dialect accepted by cron triggers:
// minute hour day-of-month month day-of-week, each field "*" or a single
// integer in range. Day-of-week counts Sunday as 0.
type CronExpression struct {
	minute     cronField
	hour       cronField
	dayOfMonth cronField
	month      cronField
	dayOfWeek  cronField

	valid bool
}

// ParseCronExpression parses an expression or returns an error describing
// the offending field.
func ParseCronExpression(expression string) (CronExpression, error) {
	var parsed CronExpression

	fields := strings.Fields(expression)
	if len(fields) != 5 {
		return parsed, fmt.Errorf("expected 5 fields, got %d in %q", len(fields), expression)
	}

	positions := []struct {
		target *cronField
		min    int
		max    int
	}{
		{&parsed.minute, 0, 59},
		{&parsed.hour, 0, 23},
		{&parsed.dayOfMonth, 1, 31},
		{&parsed.month, 1, 12},
		{&parsed.dayOfWeek, 0, 6},
	}

	for i, position := range positions {
		field, err := parseCronField(fields[i], position.min, position.max)
		if err != nil {
			return CronExpression{}, fmt.Errorf("invalid field in expression %q: %w", expression, err)
		}

		*position.target = field
	}

	parsed.valid = true

	return parsed, nil
}

func parseCronField(field string, min, max int) (cronField, error) {
	if field == "*" {
		return cronField{}, nil
	}

	value, err := strconv.Atoi(field)
	if err != nil {
		return cronField{}, fmt.Errorf("field %q is not an integer or wildcard", field)
	}

	if value < min || value > max {
		return cronField{}, fmt.Errorf("field value %d out of range [%d, %d]", value, min, max)
	}

	return cronField{hasValue: true, value: value}, nil
}

func (c CronExpression) Valid() bool {
	return c.valid
}

// maxSearchMinutes bounds the next-fire search at one year.
const maxSearchMinutes = 60 * 24 * 366

// ComputeNext finds the first wall-clock minute after ref that matches every
// present field, stepping in one-minute increments over the local broken-down
// time. When no match exists within a year it returns ref, which callers
// treat as permanently disabled for this cycle.
func (c CronExpression) ComputeNext(ref time.Time) time.Time {
	if !c.valid {
		return ref
	}

	candidate := ref.Truncate(time.Minute).Add(time.Minute)

	for i := 0; i < maxSearchMinutes; i++ {
		local := candidate.Local()

		if c.minute.matches(local.Minute()) &&
			c.hour.matches(local.Hour()) &&
			c.dayOfMonth.matches(local.Day()) &&
			c.month.matches(int(local.Month())) &&
			c.dayOfWeek.matches(int(local.Weekday())) {
			return candidate
		}

		candidate = candidate.Add(time.Minute)
	}

	return ref
}
