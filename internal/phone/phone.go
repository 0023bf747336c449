// Package phone normalizes customer phone numbers to E.164.
package phone

import (
	"errors"
	"strings"
)

var ErrInvalidPhone = errors.New("invalid phone number")

// Normalize strips formatting from raw and returns it in E.164 form. A bare
// ten-digit national number gets defaultCountry prepended; anything already
// carrying that country code just gains the leading plus.
func Normalize(raw, defaultCountry string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case len(digits) == 10:
		digits = defaultCountry + digits
	case len(digits) < 8 || len(digits) > 15:
		return "", ErrInvalidPhone
	}

	return "+" + digits, nil
}
