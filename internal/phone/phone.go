// Package phone normalizes Mexican WhatsApp numbers to E.164 digits (no '+').
package phone

import (
	"errors"
	"regexp"
	"strings"
)

var ErrInvalidPhone = errors.New("Teléfono inválido. Usa 10 dígitos (MX) o 52 + 10 dígitos.")

var nonDigits = regexp.MustCompile(`\D`)

// Normalize accepts 10 local digits or 52 + 10 digits, with any punctuation,
// and returns '52XXXXXXXXXX'.
func Normalize(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", errors.New("Teléfono vacío")
	}
	digits := nonDigits.ReplaceAllString(raw, "")
	switch {
	case len(digits) == 10:
		return "52" + digits, nil
	case len(digits) == 12 && strings.HasPrefix(digits, "52"):
		return digits, nil
	}
	return "", ErrInvalidPhone
}

func FormatPlus(digits string) string {
	if digits == "" {
		return ""
	}
	return "+" + digits
}
