package worker

import (
	"errors"
	"fmt"
)

// JobError lets a handler classify its own failure. Permanent failures skip
// the remaining attempt budget; anything unclassified is treated as
// retryable, since transient infrastructure trouble is the common case.
type JobError struct {
	Reason    string
	Permanent bool
	Err       error
}

func (e *JobError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *JobError) Unwrap() error { return e.Err }

// Permanent wraps err as a failure that must not be retried.
func Permanent(reason string, err error) *JobError {
	return &JobError{Reason: reason, Permanent: true, Err: err}
}

// Retryable wraps err as a failure worth another attempt.
func Retryable(reason string, err error) *JobError {
	return &JobError{Reason: reason, Err: err}
}

func classify(err error) (reason string, permanent bool) {
	var jobErr *JobError
	if errors.As(err, &jobErr) {
		return jobErr.Error(), jobErr.Permanent
	}
	return err.Error(), false
}
