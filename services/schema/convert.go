package schema

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// numericRegex accepts integers, decimals and scientific notation
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"1/2/2006", "01/02/2006",
	"1-2-2006", "01-02-2006",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01",
}

// CleanCell trims whitespace and surrounding quotes
func CleanCell(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"'`)
}

// ParseNumber parses a strictly numeric cell
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if !numericRegex.MatchString(s) {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// ParseDate parses a calendar date or timestamp in UTC. Values without a
// '-' or '/' separator are never dates.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if !strings.ContainsAny(s, "-/") {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// ParseBool accepts only the literal forms true and false, in any case
func ParseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true":
		return true, true
	case "false":
		return false, true
	default:
		return false, false
	}
}

// NumberOf coerces a rule operand or cell to a number. Strings must be strictly numeric.
func NumberOf(v any) (float64, bool) {
	switch x := v.(type) {
	case nil, bool:
		return 0, false
	case string:
		return ParseNumber(x)
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, false
	}
	return f, true
}

// DateOf coerces a rule operand or cell to a UTC time
func DateOf(v any) (time.Time, bool) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return x.UTC(), true
	case string:
		return ParseDate(x)
	}
	return time.Time{}, false
}

// StringOf renders a rule operand for text comparison
func StringOf(v any) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(cast.ToString(v))
}

// ListOf expands an `in` operand: a JSON array or a comma-separated string
func ListOf(v any) []string {
	if s, ok := v.(string); ok {
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	items, err := cast.ToSliceE(v)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, StringOf(item))
	}
	return out
}
