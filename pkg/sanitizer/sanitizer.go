package sanitizer

import (
	"strings"
	"unicode"
)

type Strategy func(string) string

type Pipeline []Strategy

func (p Pipeline) Apply(s string) string {
	for _, fn := range p {
		s = fn(s)
	}
	return s
}

func trimAndLower(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)
	return s
}

func dropControl(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// SanitizeEmail lowercases and trims an address. Accounts are keyed by the result.
func SanitizeEmail(input string) string {
	return Pipeline{trimAndLower}.Apply(input)
}

// SanitizeName produces a display name with single spaces and no control characters.
func SanitizeName(input string) string {
	return Pipeline{dropControl, TrimAndNormalize}.Apply(input)
}
