// Package validate checks user supplied text before it is stored.
package validate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// String validation errors
var (
	ErrEmpty             = errors.New("string is empty")
	ErrStringTooShort    = errors.New("string is too short")
	ErrStringTooLong     = errors.New("string is too long")
	ErrInvalidCharacters = errors.New("string contains invalid characters")
	ErrDisallowedWord    = errors.New("string contains a disallowed word")
)

// StringConstraints defines validation constraints for a string.
type StringConstraints struct {
	MinLength       int            // Minimum length in runes (0 = no minimum)
	MaxLength       int            // Maximum length in runes (0 = no maximum)
	AllowedPattern  *regexp.Regexp // Optional regex the whole string must match
	DisallowedWords []string       // Case-insensitive substrings that reject the string
	AllowEmpty      bool
	TrimSpace       bool
}

// String validates s against constraints and returns the (optionally
// trimmed) string.
func String(s string, constraints StringConstraints) (string, error) {
	if constraints.TrimSpace {
		s = strings.TrimSpace(s)
	}

	if s == "" {
		if !constraints.AllowEmpty {
			return "", ErrEmpty
		}
		return s, nil
	}

	// Count characters, not bytes.
	length := utf8.RuneCountInString(s)
	if constraints.MinLength > 0 && length < constraints.MinLength {
		return "", fmt.Errorf("%w: got %d chars, need at least %d", ErrStringTooShort, length, constraints.MinLength)
	}
	if constraints.MaxLength > 0 && length > constraints.MaxLength {
		return "", fmt.Errorf("%w: got %d chars, maximum is %d", ErrStringTooLong, length, constraints.MaxLength)
	}

	if constraints.AllowedPattern != nil && !constraints.AllowedPattern.MatchString(s) {
		return "", fmt.Errorf("%w: does not match required pattern", ErrInvalidCharacters)
	}

	if len(constraints.DisallowedWords) > 0 {
		lower := strings.ToLower(s)
		for _, word := range constraints.DisallowedWords {
			if strings.Contains(lower, strings.ToLower(word)) {
				return "", fmt.Errorf("%w: %q", ErrDisallowedWord, word)
			}
		}
	}

	return s, nil
}
