package oracle

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dailyalchemy/internal/apperr"
)

type httpStatusCoder interface {
	HTTPStatusCode() int
}

func isRetryableHTTPStatus(code int) bool {
	if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests {
		return true
	}
	return code >= 500 && code <= 599
}

// isRetryable classifies transport failures. Schema problems and caller
// cancellation are never retried here.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, apperr.ErrInvalidOracleResponse) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var sc httpStatusCoder
	if errors.As(err, &sc) {
		return isRetryableHTTPStatus(sc.HTTPStatusCode())
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

type retryAfterer interface {
	RetryAfter() time.Duration
}

func retryAfterDuration(err error, fallback, max time.Duration) time.Duration {
	sleepFor := fallback
	var ra retryAfterer
	if errors.As(err, &ra) && ra.RetryAfter() > 0 {
		sleepFor = ra.RetryAfter()
	}
	if max > 0 && sleepFor > max {
		sleepFor = max
	}
	return sleepFor
}

func parseRetryAfter(h http.Header) time.Duration {
	if ra := strings.TrimSpace(h.Get("Retry-After")); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}
