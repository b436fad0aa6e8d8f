// Package normalizers canonicalises contact touchpoints before matching.
package normalizers

import (
	"strings"
)

// Normalizer maps a raw value to its canonical form.
type Normalizer func(string) string

// Chain applies normalizers left to right.
func Chain(normalizers ...Normalizer) Normalizer {
	return func(s string) string {
		for _, n := range normalizers {
			s = n(s)
		}
		return s
	}
}

func Trim(s string) string {
	return strings.TrimSpace(s)
}

func Lowercase(s string) string {
	return strings.ToLower(s)
}

// DigitsOnly keeps the ASCII digits 0-9 and drops everything else.
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

var (
	email = Chain(Trim, Lowercase)
	phone = Chain(DigitsOnly)
)

// NormalizeEmail lowercases and trims. It returns nil for nil or blank input.
func NormalizeEmail(raw *string) *string {
	return optional(raw, email)
}

// NormalizePhone strips non-digits. It returns nil for nil input or when no digits remain.
func NormalizePhone(raw *string) *string {
	return optional(raw, phone)
}

// Observation normalises both touchpoints of an incoming observation.
func Observation(rawEmail, rawPhone *string) (*string, *string) {
	return NormalizeEmail(rawEmail), NormalizePhone(rawPhone)
}

func optional(raw *string, n Normalizer) *string {
	if raw == nil {
		return nil
	}
	v := n(*raw)
	if v == "" {
		return nil
	}
	return &v
}
