package providers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrBlocked signals that a provider refused a prompt on content-policy grounds.
var ErrBlocked = errors.New("no image was generated, the prompt might have been blocked")

// RateLimitError is returned when a provider answers 429.
type RateLimitError struct {
	Message    string
	RetryAfter time.Duration
	StatusCode int
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry after %s)", e.Message, e.RetryAfter)
	}
	return e.Message
}

// IsRateLimitError unwraps err to a RateLimitError if it is one.
func IsRateLimitError(err error) (*RateLimitError, bool) {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle, true
	}
	return nil, false
}

// IsBlocked reports whether err is a content-policy rejection.
// Providers phrase these differently, so the message is inspected as well.
func IsBlocked(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrBlocked) {
		return true
	}
	return isBlockedMessage(err.Error())
}

func isBlockedMessage(msg string) bool {
	if strings.Contains(msg, "SAFETY") {
		return true
	}
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "blocked") ||
		strings.Contains(lower, "content_policy_violation") ||
		strings.Contains(lower, "safety system")
}

// parseRetryAfter reads a Retry-After header in either seconds or HTTP-date form.
func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
