package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel markers for failure classification. Stage handlers and service
// clients tag errors with one of these so the workflow manager and the HTTP
// layer can map them to retry behavior and status codes without inspecting
// message text.
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrTimeout    = errors.New("timeout")
	ErrTransient  = errors.New("transient failure")
	ErrPermanent  = errors.New("permanent failure")
)

// Kind is the string classification of a failure.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindTimeout    Kind = "timeout"
	KindTransient  Kind = "transient"
	KindPermanent  Kind = "permanent"
	KindInternal   Kind = "internal"
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// ClassifyKind maps an error to its failure kind. Context deadline errors
// count as timeouts even when no marker was attached.
func ClassifyKind(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrTransient):
		return KindTransient
	case errors.Is(err, ErrPermanent):
		return KindPermanent
	default:
		return KindInternal
	}
}

// IsRetryable reports whether a stage failure should be retried with backoff.
// Timeouts and transient external-service failures are retryable; validation,
// permanent, and unclassified internal errors are not.
func IsRetryable(err error) bool {
	switch ClassifyKind(err) {
	case KindTimeout, KindTransient:
		return true
	default:
		return false
	}
}

// IsNotFound reports whether the error is tagged as a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports whether the error is tagged as a state conflict, such as
// a lost compare-and-swap race or a duplicate artifact write.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// Detail captures the classified pieces of a stage failure for logging and
// error records.
type Detail struct {
	Kind    Kind
	Message string
	Cause   error
}

// Details extracts a Detail from an error, trimming the sentinel prefix from
// the message so user-facing records stay readable.
func Details(err error) Detail {
	if err == nil {
		return Detail{Kind: KindInternal}
	}
	kind := ClassifyKind(err)
	message := err.Error()
	for _, marker := range []error{ErrValidation, ErrNotFound, ErrConflict, ErrTimeout, ErrTransient, ErrPermanent} {
		prefix := marker.Error() + ": "
		if strings.HasPrefix(message, prefix) {
			message = strings.TrimPrefix(message, prefix)
			break
		}
	}
	return Detail{Kind: kind, Message: strings.TrimSpace(message), Cause: err}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
