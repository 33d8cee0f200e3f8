package web

import "errors"

// shutdownError is a type used to help with the graceful termination of the service.
type shutdownError struct {
	Message string
	Err     error
}

// NewShutdownError returns an error that causes the framework to signal
// a graceful shutdown.
func NewShutdownError(message string) error {
	return &shutdownError{Message: message}
}

// WrapShutdownError returns an error carrying the cause that made the
// framework signal a graceful shutdown.
func WrapShutdownError(err error) error {
	return &shutdownError{Message: err.Error(), Err: err}
}

// Error is the implementation of the error interface.
func (se *shutdownError) Error() string {
	return se.Message
}

// Unwrap returns the cause of the shutdown.
func (se *shutdownError) Unwrap() error {
	return se.Err
}

// IsShutdown checks to see if the shutdown error is contained
// in the specified error value.
func IsShutdown(err error) bool {
	var se *shutdownError
	return errors.As(err, &se)
}

// getShutdown returns the shutdown error contained in the specified error.
func getShutdown(err error) *shutdownError {
	var se *shutdownError
	if !errors.As(err, &se) {
		return nil
	}
	return se
}

func errorIs(err error, target error) bool {
	return err != nil && errors.Is(err, target)
}
