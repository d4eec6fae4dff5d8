package domain

import (
	"errors"
	"testing"
)

func TestCanonicalPhoneNumber(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"bare e164", "+14155550177", "+14155550177"},
		{"spaces and dashes", "+1 415-555-0177", "+14155550177"},
		{"parentheses", "+1 (415) 555.0177", "+14155550177"},
		{"surrounding whitespace", "  +447911123456 ", "+447911123456"},
		{"short valid", "+3712345678", "+3712345678"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := CanonicalPhoneNumber(tc.raw)
			if err != nil {
				t.Fatalf("unexpected error for %q: %v", tc.raw, err)
			}
			if got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestCanonicalPhoneNumberRejects(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  string
		want error
	}{
		{"empty", "", ErrInvalidInput},
		{"missing plus", "14155550177", ErrInvalidPhoneFormat},
		{"zero country code", "+04155550177", ErrInvalidPhoneFormat},
		{"too short", "+1234567", ErrInvalidPhoneFormat},
		{"too long", "+1234567890123456", ErrInvalidPhoneFormat},
		{"letters", "+1415555a177", ErrInvalidPhoneFormat},
		{"plus not leading", "41+55550177", ErrInvalidPhoneFormat},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := CanonicalPhoneNumber(tc.raw); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v for %q, got %v", tc.want, tc.raw, err)
			}
		})
	}
}
