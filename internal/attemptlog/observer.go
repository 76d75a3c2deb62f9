// Package attemptlog logs retry attempts through zap and forwards them to another observer.
package attemptlog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"oci-call-executor/pkg/retry"
)

type observer struct {
	logger   *zap.Logger
	delegate retry.Observer
}

// NewObserver decorates delegate so every attempt is also written to logger. A nil logger
// returns delegate unchanged; a nil delegate only logs.
//
//nolint:ireturn // callers install the result on a retry.Executor.
func NewObserver(logger *zap.Logger, delegate retry.Observer) retry.Observer {
	if logger == nil {
		return delegate
	}

	return &observer{
		logger:   logger,
		delegate: delegate,
	}
}

func (o *observer) OnAttempt(attempt retry.Attempt) {
	fields := []zap.Field{
		zap.String("operation", attempt.Operation),
		zap.Int("attempt", attempt.Number),
		zap.String("outcome", attempt.Outcome.String()),
		zap.Duration("duration", attempt.Duration),
		zap.Duration("elapsed", attempt.Elapsed),
	}

	if attempt.Err != nil {
		fields = append(fields, zap.Error(attempt.Err))

		if status, ok := retry.StatusCode(attempt.Err); ok {
			fields = append(fields, zap.Int("status", status))
		}

		if code, ok := retry.ServiceCode(attempt.Err); ok && code != "" {
			fields = append(fields, zap.String("code", code))
		}
	}

	if attempt.Outcome == retry.OutcomeRetry {
		fields = append(fields, zap.Duration("delay", attempt.Delay))
	}

	if entry := o.logger.Check(levelFor(attempt.Outcome), message(attempt.Outcome)); entry != nil {
		entry.Write(fields...)
	}

	if o.delegate != nil {
		o.delegate.OnAttempt(attempt)
	}
}

func levelFor(outcome retry.Outcome) zapcore.Level {
	switch outcome {
	case retry.OutcomeSuccess:
		return zapcore.DebugLevel
	case retry.OutcomeRetry:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

func message(outcome retry.Outcome) string {
	switch outcome {
	case retry.OutcomeSuccess:
		return "call attempt succeeded"
	case retry.OutcomeRetry:
		return "call attempt failed, retrying"
	case retry.OutcomeExhausted:
		return "call failed, retries exhausted"
	case retry.OutcomeCanceled:
		return "call canceled"
	default:
		return "call failed"
	}
}
