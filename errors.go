package boxdrive

import (
	"errors"
	"fmt"
)

// Sentinel errors for the object-store error taxonomy, shared by every
// ObjectStore implementation and translated to S3 error codes by the facade.
var (
	// ErrNoSuchBucket indicates the target bucket does not exist.
	ErrNoSuchBucket = errors.New("no such bucket")
	// ErrNoSuchKey indicates the target object does not exist, or is the
	// reserved placeholder key.
	ErrNoSuchKey = errors.New("no such key")
	// ErrBucketAlreadyExists indicates a create-bucket collision.
	ErrBucketAlreadyExists = errors.New("bucket already exists")
	// ErrInvalidArgument indicates a bucket-name or key validation failure.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrRemote indicates the backing remote returned an unexpected status.
	ErrRemote = errors.New("remote store error")

	// ErrBackendUnavailable indicates a dependency (GitLab, Redis, S3, GCS) is
	// failing and a circuit breaker or lock has given up.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// Lock errors, surfaced by the optional cross-process coordination layer.
	ErrLockHeld       = errors.New("lock already held by another process")
	ErrLockTimeout    = errors.New("failed to acquire lock within timeout")
	ErrLockNotFound   = errors.New("lock not found")
	ErrInvalidLockKey = errors.New("invalid lock key")

	ErrInvalidConfig = errors.New("invalid configuration")
)

// ErrorWithContext adds structured context to an error for logging without
// breaking errors.Is/errors.As chains.
type ErrorWithContext struct {
	Err     error
	Context map[string]interface{}
}

func (e *ErrorWithContext) Error() string {
	if len(e.Context) == 0 {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v (context: %+v)", e.Err, e.Context)
}

func (e *ErrorWithContext) Unwrap() error {
	return e.Err
}

// WithContext adds context to an error.
func WithContext(err error, context map[string]interface{}) error {
	if err == nil {
		return nil
	}
	return &ErrorWithContext{
		Err:     err,
		Context: context,
	}
}

// IsNoSuchBucket reports whether err is (or wraps) ErrNoSuchBucket.
func IsNoSuchBucket(err error) bool {
	return errors.Is(err, ErrNoSuchBucket)
}

// IsNoSuchKey reports whether err is (or wraps) ErrNoSuchKey.
func IsNoSuchKey(err error) bool {
	return errors.Is(err, ErrNoSuchKey)
}

// IsBucketAlreadyExists reports whether err is (or wraps) ErrBucketAlreadyExists.
func IsBucketAlreadyExists(err error) bool {
	return errors.Is(err, ErrBucketAlreadyExists)
}

// IsNotFound reports whether err denotes any "does not exist" condition.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNoSuchBucket) || errors.Is(err, ErrNoSuchKey)
}

// IsInvalidArgument reports whether err is (or wraps) ErrInvalidArgument.
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

// IsRetryable reports whether err is safe to retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrBackendUnavailable) ||
		errors.Is(err, ErrLockHeld) ||
		errors.Is(err, ErrLockTimeout) ||
		errors.Is(err, ErrRemote)
}
