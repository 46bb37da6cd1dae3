package logger

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxPathLength is the maximum length for URL paths in logs
	MaxPathLength = 500
	// MaxSpokenTextLength caps text handed to the speech engine and echoed in logs
	MaxSpokenTextLength = 300
	// MaxGeneralStringLength is the maximum length for general strings in logs
	MaxGeneralStringLength = 2000
)

// SanitizePath sanitizes a URL path for safe logging: valid UTF-8, no control
// characters, bounded length.
func SanitizePath(path string) string {
	return sanitize(path, MaxPathLength)
}

// SanitizeSpokenText prepares user-provided task names for the speech engine
// and for log fields. Task names reach the shell-exec TTS collaborator, so
// control characters are stripped and the length is capped before handoff.
func SanitizeSpokenText(text string) string {
	return strings.TrimSpace(sanitize(text, MaxSpokenTextLength))
}

func sanitize(s string, maxLen int) string {
	if s == "" {
		return ""
	}

	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}

	var builder strings.Builder
	builder.Grow(len(s))
	for _, r := range s {
		if unicode.IsPrint(r) || r == ' ' {
			builder.WriteRune(r)
		}
	}
	s = builder.String()

	if len(s) > maxLen {
		s = s[:maxLen] + "..."
	}
	return s
}
