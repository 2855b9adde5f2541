package intake

import (
	"regexp"
	"strings"
)

const (
	minPhoneDigits = 10
	maxPhoneDigits = 15
)

var emailPattern = regexp.MustCompile(`^\S+@\S+\.\S+$`)

// NormalizePhoneDigits strips everything but digits and drops a leading US
// country code from 11-digit numbers.
func NormalizePhoneDigits(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == 11 && digits[0] == '1' {
		return digits[1:]
	}
	return digits
}

// IsLikelyValidPhone reports whether the normalized number has 10-15 digits.
func IsLikelyValidPhone(input string) bool {
	n := len(NormalizePhoneDigits(input))
	return n >= minPhoneDigits && n <= maxPhoneDigits
}

// FormatUSPhone renders the first ten digits as (AAA) PPP-LLLL, formatting only
// the groups that have been typed so far.
func FormatUSPhone(input string) string {
	digits := NormalizePhoneDigits(input)
	if len(digits) > 10 {
		digits = digits[:10]
	}
	switch {
	case len(digits) == 0:
		return ""
	case len(digits) <= 3:
		return "(" + digits
	case len(digits) <= 6:
		return "(" + digits[:3] + ") " + digits[3:]
	default:
		return "(" + digits[:3] + ") " + digits[3:6] + "-" + digits[6:]
	}
}

// IsValidEmail applies a permissive local@domain.tld check. It is not RFC 5322.
func IsValidEmail(input string) bool {
	return emailPattern.MatchString(strings.TrimSpace(input))
}
