package retry

import (
	"context"
	"time"
)

// Outcome classifies what the executor decided after an attempt.
type Outcome int

const (
	// OutcomeSuccess means the operation returned without error.
	OutcomeSuccess Outcome = iota
	// OutcomeRetry means the failure was retryable and another attempt follows.
	OutcomeRetry
	// OutcomeTerminal means the failure was not retryable, or no policy was configured.
	OutcomeTerminal
	// OutcomeExhausted means the failure was retryable but the attempt cap was reached.
	OutcomeExhausted
	// OutcomeCanceled means the caller's context ended.
	OutcomeCanceled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetry:
		return "retry"
	case OutcomeTerminal:
		return "terminal"
	case OutcomeExhausted:
		return "exhausted"
	case OutcomeCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Attempt describes one invocation of the operation. It is handed to the Observer and then
// discarded.
type Attempt struct {
	Operation string
	Number    int
	StartedAt time.Time
	Duration  time.Duration
	Elapsed   time.Duration
	Err       error
	Outcome   Outcome
	Delay     time.Duration
	// Skipped marks a cancellation seen before attempt Number was invoked. No call was made,
	// and Err holds the context error.
	Skipped bool
}

// Observer receives a record of every attempt. Implementations must be safe for concurrent use
// when the Executor is shared.
type Observer interface {
	OnAttempt(attempt Attempt)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(attempt Attempt)

// OnAttempt implements Observer.
func (f ObserverFunc) OnAttempt(attempt Attempt) {
	f(attempt)
}

// Sleeper suspends the caller for delay, returning early with ctx.Err() when ctx ends.
type Sleeper func(ctx context.Context, delay time.Duration) error

// Executor runs operations under a Policy. The zero value and a nil *Executor are usable.
type Executor struct {
	now      func() time.Time
	sleep    Sleeper
	observer Observer
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithClock overrides the time source used for elapsed-time computation.
func WithClock(clock func() time.Time) ExecutorOption {
	return func(e *Executor) {
		if clock != nil {
			e.now = clock
		}
	}
}

// WithSleeper overrides how the executor waits between attempts.
func WithSleeper(sleeper Sleeper) ExecutorOption {
	return func(e *Executor) {
		if sleeper != nil {
			e.sleep = sleeper
		}
	}
}

// WithObserver installs the attempt hook.
func WithObserver(observer Observer) ExecutorOption {
	return func(e *Executor) {
		e.observer = observer
	}
}

// NewExecutor builds an Executor using the wall clock and a context-aware timer.
func NewExecutor(opts ...ExecutorOption) *Executor {
	executor := &Executor{
		now:      time.Now,
		sleep:    sleepContext,
		observer: nil,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(executor)
		}
	}

	return executor
}

// Do runs op under policy. A nil policy performs exactly one attempt.
func (e *Executor) Do(
	ctx context.Context,
	policy *Policy,
	op func(ctx context.Context) error,
) error {
	if op == nil {
		return errNilOperation
	}

	_, err := Call(ctx, e, policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})

	return err
}

// Call runs op under policy and returns the first successful result.
//
// A nil policy performs exactly one attempt. A non-retryable failure is returned unchanged;
// a retryable failure that reaches the attempt cap is wrapped in *RetriesExhaustedError.
// The context is checked before each attempt, after each failure and while waiting, and its
// end surfaces as *CancellationError.
func Call[T any](
	ctx context.Context,
	exec *Executor,
	policy *Policy,
	op func(ctx context.Context) (T, error),
) (T, error) {
	var zero T

	if op == nil {
		return zero, errNilOperation
	}

	if ctx == nil {
		ctx = context.Background()
	}

	now := exec.clock()
	name := OperationName(ctx)
	start := now()

	var lastErr error

	for attempt := 1; ; attempt++ {
		ctxErr := ctx.Err()
		if ctxErr != nil {
			exec.notifySkipped(name, attempt, start, now, ctxErr)

			return zero, &CancellationError{Attempts: attempt - 1, Err: ctxErr, Last: lastErr}
		}

		startedAt := now()
		result, err := op(ctx)
		finishedAt := now()

		record := Attempt{
			Operation: name,
			Number:    attempt,
			StartedAt: startedAt,
			Duration:  finishedAt.Sub(startedAt),
			Elapsed:   finishedAt.Sub(start),
			Err:       err,
			Outcome:   OutcomeSuccess,
			Delay:     0,
			Skipped:   false,
		}

		if err == nil {
			exec.notify(record)

			return result, nil
		}

		lastErr = err

		ctxErr = ctx.Err()
		if ctxErr != nil {
			record.Outcome = OutcomeCanceled
			exec.notify(record)

			return zero, &CancellationError{Attempts: attempt, Err: ctxErr, Last: err}
		}

		if policy == nil || !policy.ShouldRetry(err, attempt, record.Elapsed) {
			record.Outcome = OutcomeTerminal
			exec.notify(record)

			return zero, err
		}

		if policy.exhausted(attempt) {
			record.Outcome = OutcomeExhausted
			exec.notify(record)

			return zero, &RetriesExhaustedError{Attempts: attempt, Err: err}
		}

		record.Outcome = OutcomeRetry
		record.Delay = policy.Delay(attempt)
		exec.notify(record)

		waitErr := exec.sleeper()(ctx, record.Delay)
		if waitErr != nil {
			exec.notifySkipped(name, attempt+1, start, now, waitErr)

			return zero, &CancellationError{Attempts: attempt, Err: waitErr, Last: err}
		}
	}
}

func (e *Executor) clock() func() time.Time {
	if e == nil || e.now == nil {
		return time.Now
	}

	return e.now
}

func (e *Executor) sleeper() Sleeper {
	if e == nil || e.sleep == nil {
		return sleepContext
	}

	return e.sleep
}

func (e *Executor) notify(attempt Attempt) {
	if e == nil || e.observer == nil {
		return
	}

	e.observer.OnAttempt(attempt)
}

func (e *Executor) notifySkipped(
	name string,
	number int,
	start time.Time,
	now func() time.Time,
	err error,
) {
	at := now()

	e.notify(Attempt{
		Operation: name,
		Number:    number,
		StartedAt: at,
		Duration:  0,
		Elapsed:   at.Sub(start),
		Err:       err,
		Outcome:   OutcomeCanceled,
		Delay:     0,
		Skipped:   true,
	})
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type operationNameKey struct{}

// WithOperationName labels attempts made under ctx for observers.
func WithOperationName(ctx context.Context, name string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}

	return context.WithValue(ctx, operationNameKey{}, name)
}

// OperationName returns the label set by WithOperationName.
func OperationName(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	name, _ := ctx.Value(operationNameKey{}).(string)

	return name
}
