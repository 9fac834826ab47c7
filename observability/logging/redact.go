package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue is the placeholder written instead of secret values.
const RedactedValue = "[REDACTED]"

// MaskField returns an attribute that hides value while still recording
// whether it was set.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" {
		return slog.String(key, "")
	}
	return slog.String(key, RedactedValue)
}
