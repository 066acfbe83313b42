package providers

import (
	"context"
	"errors"
	"net"
	"regexp"
	"strings"

	"github.com/Ramsey-B/fern/pkg/auth"
)

const (
	// ReconnectMessage replaces an expired or revoked Google Ads grant
	ReconnectMessage = "Google Ads access has expired or was revoked. Disconnect and reconnect the integration."

	// TimeoutMessage replaces deadline and network timeout failures
	TimeoutMessage = "The provider did not respond in time. Try again later."

	// FallbackMessage is used when an error carries no usable text
	FallbackMessage = "An unexpected error occurred"

	// MaxMessageLength bounds the normalized message stored as last_error
	MaxMessageLength = 500
)

var redactions = []*regexp.Regexp{
	// stripe secret and restricted keys
	regexp.MustCompile(`\b(sk|rk)_(live|test)_[A-Za-z0-9]+`),
	// google access and refresh tokens
	regexp.MustCompile(`ya29\.[A-Za-z0-9._\-]+`),
	regexp.MustCompile(`1//[A-Za-z0-9._\-]+`),
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._\-]+`),
	regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`),
}

// Normalize converts any error into a message that is safe to show a user and store on the job
func Normalize(err error) string {
	if err == nil {
		return FallbackMessage
	}

	if auth.IsInvalidGrant(err) {
		return ReconnectMessage
	}

	if isTimeout(err) {
		return TimeoutMessage
	}

	return Sanitize(err.Error())
}

// Sanitize strips token-like substrings and anything after the first line, then bounds the length
func Sanitize(message string) string {
	if idx := strings.IndexAny(message, "\r\n"); idx >= 0 {
		message = message[:idx]
	}

	for _, re := range redactions {
		message = re.ReplaceAllString(message, "[redacted]")
	}

	message = strings.TrimSpace(message)
	if message == "" {
		return FallbackMessage
	}

	if runes := []rune(message); len(runes) > MaxMessageLength {
		message = string(runes[:MaxMessageLength])
	}
	return message
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
