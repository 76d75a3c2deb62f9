package retry

import (
	"context"
	"errors"
	"net/http"
	"time"
)

const incorrectStateCode = "IncorrectState"

// RetryOnStatus retries remote errors whose HTTP status is one of codes.
func RetryOnStatus(codes ...int) ShouldRetryFunc {
	allowed := make(map[int]struct{}, len(codes))
	for _, code := range codes {
		allowed[code] = struct{}{}
	}

	return func(err error, _ int, _ time.Duration) bool {
		status, ok := StatusCode(err)
		if !ok {
			return false
		}

		_, retryable := allowed[status]

		return retryable
	}
}

// RetryOnTransportError retries network-level failures.
func RetryOnTransportError() ShouldRetryFunc {
	return func(err error, _ int, _ time.Duration) bool {
		return IsTransport(err)
	}
}

// AnyOf retries when at least one predicate allows it.
func AnyOf(predicates ...ShouldRetryFunc) ShouldRetryFunc {
	return func(err error, attempt int, elapsed time.Duration) bool {
		for _, predicate := range predicates {
			if predicate != nil && predicate(err, attempt, elapsed) {
				return true
			}
		}

		return false
	}
}

// WithinElapsed limits predicate to failures observed before limit has elapsed.
func WithinElapsed(limit time.Duration, predicate ShouldRetryFunc) ShouldRetryFunc {
	return func(err error, attempt int, elapsed time.Duration) bool {
		if limit > 0 && elapsed >= limit {
			return false
		}

		return predicate != nil && predicate(err, attempt, elapsed)
	}
}

// DefaultShouldRetry retries transport failures, throttling, server errors other than 501 and
// 409 conflicts reporting IncorrectState. Context errors are never retried.
func DefaultShouldRetry(err error, _ int, _ time.Duration) bool {
	if err == nil || isContextError(err) {
		return false
	}

	if IsTransport(err) {
		return true
	}

	status, ok := StatusCode(err)
	if !ok {
		return false
	}

	switch {
	case status == http.StatusTooManyRequests:
		return true
	case status == http.StatusConflict:
		code, _ := ServiceCode(err)

		return code == incorrectStateCode
	case status == http.StatusNotImplemented:
		return false
	default:
		return status >= http.StatusInternalServerError
	}
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
