package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/lu-zhengda/termchat/internal/logging"
	"github.com/lu-zhengda/termchat/internal/provider"
	"github.com/lu-zhengda/termchat/internal/store"
	"github.com/rs/zerolog"
)

var (
	ErrEmptyMessage   = errors.New("message is empty")
	ErrMessageTooLong = errors.New("message is too long")
	ErrThreadNotFound = store.ErrThreadNotFound

	// ErrStaleRefresh is returned by a refresh whose response arrived after a
	// newer refresh of the same target had started. Its result was discarded.
	ErrStaleRefresh = errors.New("refresh superseded by a newer one")
)

// ValidationError rejects a message before anything is stored or sent.
type ValidationError struct {
	Err    error
	Length int
	Max    int
}

func (e *ValidationError) Error() string {
	if errors.Is(e.Err, ErrMessageTooLong) {
		return fmt.Sprintf("%v (%d bytes, limit %d)", e.Err, e.Length, e.Max)
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Silent reports whether the UI should ignore the rejection without telling
// the user, which is the case for blank input.
func (e *ValidationError) Silent() bool {
	return errors.Is(e.Err, ErrEmptyMessage)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// logFailure starts a log event for a failed server call. Failures reaching
// or coming from the server are expected while offline and logged at warn;
// anything else is an error. The error text has credentials masked.
func logFailure(log zerolog.Logger, err error) *zerolog.Event {
	var ev *zerolog.Event
	switch {
	case errors.Is(err, context.Canceled):
		ev = log.Debug()
	case provider.IsNetworkError(err):
		ev = log.Warn()
	default:
		ev = log.Error()
	}
	return ev.Str(zerolog.ErrorFieldName, redactErr(err))
}

func redactErr(err error) string {
	return logging.Redact(err.Error())
}
