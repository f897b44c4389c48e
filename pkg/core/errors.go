package core

import (
	"errors"
	"fmt"
)

// PropertyNotFoundError reports a Get or Delete on an absent property when
// no default was supplied. It is recoverable: the caller decides.
type PropertyNotFoundError struct {
	Entity    string
	Property  string
	Namespace Namespace
}

func (e *PropertyNotFoundError) Error() string {
	return fmt.Sprintf("property %q not found on entity %q (%s)", e.Property, e.Entity, e.Namespace)
}

// IsPropertyNotFound reports whether err is (or wraps) a
// PropertyNotFoundError.
func IsPropertyNotFound(err error) bool {
	var target *PropertyNotFoundError
	return errors.As(err, &target)
}

// StorageError wraps a backend I/O or serialization failure. It always
// propagates to the caller; the core never retries or swallows it.
type StorageError struct {
	Op     string
	Entity string
	Err    error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed for entity %q: %v", e.Op, e.Entity, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// WrapStorage wraps err as a StorageError unless it already is one or is a
// PropertyNotFoundError (which is not a storage fault).
func WrapStorage(op, entity string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) || IsPropertyNotFound(err) {
		return err
	}
	return &StorageError{Op: op, Entity: entity, Err: err}
}

// HandlerError records a failure inside a handler body. The bus catches it
// at the per-handler boundary, logs it, surfaces it through the event
// context metadata and keeps executing the remaining handlers.
type HandlerError struct {
	EventType string
	Handler   string
	Err       error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %q failed for event %q: %v", e.Handler, e.EventType, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// FilterError records a failure inside a filter predicate. The offending
// handler is skipped; other handlers proceed.
type FilterError struct {
	EventType string
	Handler   string
	Err       error
}

func (e *FilterError) Error() string {
	return fmt.Sprintf("filter for handler %q failed on event %q: %v", e.Handler, e.EventType, e.Err)
}

func (e *FilterError) Unwrap() error { return e.Err }
