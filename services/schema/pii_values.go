package schema

import (
	"regexp"
	"strings"

	"github.com/samber/lo"
)

// ValueKind names a recognisable kind of personal value
type ValueKind string

const (
	ValueKindEmail      ValueKind = "email"
	ValueKindSSN        ValueKind = "ssn"
	ValueKindCreditCard ValueKind = "credit_card"
	ValueKindIPAddress  ValueKind = "ip_address"
)

var (
	emailValue = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)
	ssnValue   = regexp.MustCompile(`^[0-9]{3}-[0-9]{2}-[0-9]{4}$`)
	cardValue  = regexp.MustCompile(`^[0-9][0-9 \-]{11,21}[0-9]$`)
	ipv4Value  = regexp.MustCompile(`^(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)$`)
)

// ClassifyValue returns the kind of personal value a whole cell holds, or
// "" when it matches none. Patterns are anchored; free text mentioning an
// email is not an email cell.
func ClassifyValue(cell string) ValueKind {
	cell = strings.TrimSpace(cell)
	switch {
	case cell == "":
		return ""
	case emailValue.MatchString(cell):
		return ValueKindEmail
	case ssnValue.MatchString(cell) && plausibleSSN(strings.ReplaceAll(cell, "-", "")):
		return ValueKindSSN
	case ipv4Value.MatchString(cell):
		return ValueKindIPAddress
	case cardValue.MatchString(cell) && luhnValid(cell):
		return ValueKindCreditCard
	}
	return ""
}

// samplesLookPersonal reports whether at least half of the samples classify
// as personal values
func samplesLookPersonal(samples []string) bool {
	if len(samples) == 0 {
		return false
	}
	hits := lo.CountBy(samples, func(s string) bool { return ClassifyValue(s) != "" })
	return hits*2 >= len(samples)
}

func plausibleSSN(s string) bool {
	if len(s) != 9 {
		return false
	}
	if s[:3] == "000" || s[3:5] == "00" || s[5:] == "0000" {
		return false
	}
	return !strings.HasPrefix(s, "666") && !strings.HasPrefix(s, "9")
}

func luhnValid(number string) bool {
	number = strings.NewReplacer(" ", "", "-", "").Replace(number)
	if len(number) < 13 || len(number) > 19 {
		return false
	}

	sum := 0
	second := false
	for i := len(number) - 1; i >= 0; i-- {
		digit := int(number[i] - '0')
		if second {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
		second = !second
	}
	return sum%10 == 0
}
