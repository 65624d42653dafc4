package errors

import "fmt"

// ConfigValidationError wraps the joined result of Config.Validate.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return fmt.Sprintf("lightmq: invalid configuration: %v", e.Err)
}

func (e ConfigValidationError) Unwrap() error { return e.Err }

// NewConfigValidationError returns nil when err is nil.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}

// ValidationError reports a bad or missing argument. It is always returned
// synchronously to the caller that supplied the argument.
type ValidationError struct {
	Field string
	Err   error
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v (%s)", e.Err, e.Field)
}

func (e ValidationError) Unwrap() error { return e.Err }

// NewValidationError returns nil when err is nil.
func NewValidationError(field string, err error) error {
	if err == nil {
		return nil
	}
	return ValidationError{Field: field, Err: err}
}

// StateError reports an operation that is not valid in the client's current
// lifecycle state.
type StateError struct {
	Op    string
	State string
	Err   error
}

func (e StateError) Error() string {
	return fmt.Sprintf("lightmq: cannot %s while %s: %v", e.Op, e.State, e.Err)
}

func (e StateError) Unwrap() error { return e.Err }

// NewStateError returns nil when err is nil.
func NewStateError(op, state string, err error) error {
	if err == nil {
		return nil
	}
	return StateError{Op: op, State: state, Err: err}
}

// TransportError carries a failure reported by the transport engine. It is only
// ever delivered asynchronously, through a callback or the error event.
type TransportError struct {
	Op      string
	Address string
	Err     error
}

func (e TransportError) Error() string {
	if e.Address == "" {
		return fmt.Sprintf("lightmq: %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("lightmq: %s %s failed: %v", e.Op, e.Address, e.Err)
}

func (e TransportError) Unwrap() error { return e.Err }

// NewTransportError returns nil when err is nil.
func NewTransportError(op, address string, err error) error {
	if err == nil {
		return nil
	}
	return TransportError{Op: op, Address: address, Err: err}
}
