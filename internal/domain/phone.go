package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// e164Pattern is deliberately strict: leading +, non-zero country code, 8-15
// digits total. Reconciliation depends on exact string equality of canonical
// numbers, so normalization must be the single place formatting is forgiven.
var e164Pattern = regexp.MustCompile(`^\+[1-9][0-9]{7,14}$`)

// CanonicalPhoneNumber strips common formatting characters and validates the
// result as E.164. Everything downstream (sessions, rate limits, directory
// lookups) keys on the returned string.
func CanonicalPhoneNumber(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: phone number is required", ErrInvalidInput)
	}

	var b strings.Builder
	for i, r := range trimmed {
		switch {
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
			// formatting noise, dropped
		default:
			return "", fmt.Errorf("%w: unexpected character %q", ErrInvalidPhoneFormat, r)
		}
	}

	canonical := b.String()
	if !e164Pattern.MatchString(canonical) {
		return "", fmt.Errorf("%w: %q is not E.164", ErrInvalidPhoneFormat, raw)
	}
	return canonical, nil
}
