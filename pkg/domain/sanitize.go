package domain

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxTextBytes bounds a single inbound text part.
const MaxTextBytes = 64 << 10

var (
	ErrInputTooLarge = errors.New("input exceeds maximum allowed size")
	ErrInvalidUTF8   = errors.New("input contains invalid UTF-8 sequences")
)

// SanitizeText enforces limit (0 disables it), validates UTF-8 and strips
// control characters other than newline, tab and carriage return.
// Oversized input is rejected rather than truncated.
func SanitizeText(input string, limit int) (string, error) {
	if limit > 0 && len(input) > limit {
		return "", fmt.Errorf("%w: size=%d limit=%d", ErrInputTooLarge, len(input), limit)
	}
	if !utf8.ValidString(input) {
		return "", ErrInvalidUTF8
	}

	clean := true
	for _, r := range input {
		if unicode.IsControl(r) && !isSafeControl(r) {
			clean = false
			break
		}
	}
	if clean {
		return input, nil
	}

	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if !unicode.IsControl(r) || isSafeControl(r) {
			b.WriteRune(r)
		}
	}
	return b.String(), nil
}

func isSafeControl(r rune) bool {
	return r == '\n' || r == '\t' || r == '\r'
}

// Sanitize cleans every text part of m in place.
func (m *Message) Sanitize(limit int) error {
	for i := range m.Parts {
		if m.Parts[i].Text == "" {
			continue
		}
		clean, err := SanitizeText(m.Parts[i].Text, limit)
		if err != nil {
			return fmt.Errorf("part %d: %w", i, err)
		}
		m.Parts[i].Text = clean
	}
	return nil
}
