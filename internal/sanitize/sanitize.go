// Package sanitize screens raw request values against a fixed denylist of
// fragments commonly seen in SQL injection attempts.
//
// It is a denylist, not a substitute for parameter binding.
package sanitize

import (
	"strconv"
	"strings"
)

// Denylist is matched case-sensitively with no normalization.
var Denylist = []string{"1==1", ";", "=", `" OR ""="`}

// ContainsBlocked reports whether any value contains any denylist entry.
func ContainsBlocked(values ...string) bool {
	for _, blocked := range Denylist {
		for _, v := range values {
			if strings.Contains(v, blocked) {
				return true
			}
		}
	}
	return false
}

// EqualsBlocked reports whether value is exactly one of the denylist entries.
func EqualsBlocked(value string) bool {
	for _, blocked := range Denylist {
		if value == blocked {
			return true
		}
	}
	return false
}

// FormatFloat renders a number the way it is screened: shortest decimal form.
func FormatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func FormatInt(n int) string {
	return strconv.Itoa(n)
}
