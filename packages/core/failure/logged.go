package failure

import (
	"errors"

	"go.uber.org/zap"
)

// Logged marks an error that has already been written to the log.
type Logged struct {
	Err error
}

func (e *Logged) Error() string { return e.Err.Error() }

func (e *Logged) Unwrap() error { return e.Err }

// MarkLogged wraps err in the already-logged marker. Nil and already marked
// errors are returned unchanged.
func MarkLogged(err error) error {
	if err == nil || IsLogged(err) {
		return err
	}
	return &Logged{Err: err}
}

// IsLogged reports whether err, or anything it wraps, carries the marker.
func IsLogged(err error) bool {
	var target *Logged
	return errors.As(err, &target)
}

// Unmark strips the marker from the head of the chain and returns the raw cause.
func Unmark(err error) error {
	for {
		l, ok := err.(*Logged)
		if !ok {
			return err
		}
		err = l.Err
	}
}

// Propagate applies the log-once rule to err as it crosses a frame boundary.
// The first caller to see an unmarked error logs it and marks it. Later
// callers pass it through untouched. Only the top-level caller gets the raw
// cause back.
func Propagate(log *zap.Logger, err error, topLevel bool, fields ...zap.Field) error {
	if err == nil {
		return nil
	}
	if !IsLogged(err) {
		Log(log, err, fields...)
		err = MarkLogged(err)
	}
	if topLevel {
		return Unmark(err)
	}
	return err
}

// Log writes a single entry for err at the level matching its kind.
func Log(log *zap.Logger, err error, fields ...zap.Field) {
	if log == nil {
		return
	}
	fields = append(fields, zap.Error(err))
	switch {
	case IsExpectedMismatch(err):
		log.Error("unexpected error outcome", fields...)
	case IsStep(err):
		log.Error("step failed", fields...)
	case IsValidation(err):
		log.Warn("validation failed", fields...)
	case IsSkip(err):
		log.Info("unit skipped", fields...)
	case IsConfiguration(err):
		log.Error("configuration error", fields...)
	default:
		log.Error("step failed", fields...)
	}
}
