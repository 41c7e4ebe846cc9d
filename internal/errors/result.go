package errors

// Status is the outcome of a best-effort step.
type Status int

const (
	// StatusOk means the step produced a value.
	StatusOk Status = iota
	// StatusSkip means the step deliberately produced nothing.
	StatusSkip
	// StatusError means the step failed; the caller decides whether to log or propagate.
	StatusError
)

// String returns the string representation of Status.
func (s Status) String() string {
	switch s {
	case StatusOk:
		return "ok"
	case StatusSkip:
		return "skip"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Result carries the outcome of a best-effort step: Ok(value), Skip or Error(err).
type Result[T any] struct {
	Value  T
	Status Status
	Err    error
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] {
	return Result[T]{Value: v, Status: StatusOk}
}

// Skip reports that the step intentionally produced nothing.
func Skip[T any]() Result[T] {
	return Result[T]{Status: StatusSkip}
}

// Fail wraps an error.
func Fail[T any](err error) Result[T] {
	return Result[T]{Status: StatusError, Err: err}
}

// From builds a Result from a conventional (value, error) pair.
func From[T any](v T, err error) Result[T] {
	if err != nil {
		return Fail[T](err)
	}
	return Ok(v)
}

// Attempt runs fn and reports its error as a Result.
func Attempt(fn func() error) Result[struct{}] {
	return From(struct{}{}, fn())
}

// IsOk reports whether the step succeeded.
func (r Result[T]) IsOk() bool { return r.Status == StatusOk }

// IsSkip reports whether the step was skipped.
func (r Result[T]) IsSkip() bool { return r.Status == StatusSkip }

// IsError reports whether the step failed.
func (r Result[T]) IsError() bool { return r.Status == StatusError }

// Unwrap returns the value and error in conventional form. Skip yields the zero value and nil.
func (r Result[T]) Unwrap() (T, error) {
	return r.Value, r.Err
}

// DebugLogger receives tolerated step failures.
type DebugLogger interface {
	Debugf(format string, args ...interface{})
}

// Handle logs a failed step at debug level and returns the value, so the
// caller continues as if the step had been skipped.
func (r Result[T]) Handle(log DebugLogger, step string) T {
	if r.IsError() && log != nil {
		log.Debugf("%s: %v", step, r.Err)
	}
	return r.Value
}

// Must returns the value and panics when the step failed.
func (r Result[T]) Must() T {
	if r.IsError() {
		panic(r.Err)
	}
	return r.Value
}
