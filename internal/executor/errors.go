package executor

import "errors"

// TransientError marks a sink failure worth retrying: the sink was
// temporarily unavailable, overloaded, or lost the session. Sinks wrap their
// own errors; the executor only inspects the classification.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient sink failure: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a sink failure that retrying cannot fix, such as a
// malformed statement or a constraint mismatch.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return "permanent sink failure: " + e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Transient wraps err as retryable. It returns nil for a nil err.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// Permanent wraps err as non-retryable. It returns nil for a nil err.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsTransient reports whether err is classified as retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
