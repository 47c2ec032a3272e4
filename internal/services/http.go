package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ClassifyHTTPFailure tags a transport-level error from an external service
// call. Timeouts and canceled deadlines become retryable timeout errors,
// everything else counts as a transient network failure.
func ClassifyHTTPFailure(stage, operation string, err error) error {
	marker := ErrTransient
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		marker = ErrTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		marker = ErrTimeout
	}
	return Wrap(marker, stage, operation, "request failed", err)
}

// ClassifyHTTPStatus tags a non-2xx response. Rate limiting, upstream
// timeouts, and server errors are retryable; other client errors are
// permanent.
func ClassifyHTTPStatus(stage, operation string, status int, body []byte) error {
	marker := ErrPermanent
	switch {
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		marker = ErrTimeout
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		marker = ErrTransient
	}
	detail := strings.TrimSpace(string(body))
	if len(detail) > 256 {
		detail = detail[:256]
	}
	return Wrap(marker, stage, operation, fmt.Sprintf("http %d: %s", status, detail), nil)
}
