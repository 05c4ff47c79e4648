package domain

import (
	"errors"
	"fmt"
	"strings"
)

type NotFoundError struct {
	Resource string
	Err      error
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e NotFoundError) Unwrap() error { return e.Err }

type ValidationError struct {
	Field string
	Msg   string
	Err   error
}

func (e ValidationError) Error() string {
	if e.Msg != "" && e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Msg)
	}
	if e.Msg != "" {
		return e.Msg
	}
	if e.Field != "" {
		return fmt.Sprintf("invalid %s", e.Field)
	}
	return "validation error"
}

func (e ValidationError) Unwrap() error { return e.Err }

type ConflictError struct {
	Resource string
	Msg      string
	Err      error
}

func (e ConflictError) Error() string {
	switch {
	case e.Msg != "" && e.Resource != "":
		return fmt.Sprintf("%s conflict: %s", e.Resource, e.Msg)
	case e.Msg != "":
		return e.Msg
	case e.Resource != "":
		return fmt.Sprintf("%s conflict", e.Resource)
	default:
		return "conflict"
	}
}

func (e ConflictError) Unwrap() error { return e.Err }

type InternalError struct {
	Msg string
	Err error
}

func (e InternalError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return "internal error"
}

func (e InternalError) Unwrap() error { return e.Err }

// CapacityExceededError means at least one day lacks free, unblocked units.
// Dates holds every failing day as YYYY-MM-DD.
type CapacityExceededError struct {
	ResourceID string
	Dates      []string
}

func (e CapacityExceededError) Error() string {
	if len(e.Dates) == 0 {
		return fmt.Sprintf("capacity exceeded for %s", e.ResourceID)
	}
	return fmt.Sprintf("capacity exceeded for %s on %s", e.ResourceID, strings.Join(e.Dates, ","))
}

// InvalidStateError is returned for hold transitions from the wrong status.
type InvalidStateError struct {
	HoldID string
	Status string
	Op     string
}

func (e InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s hold %s in status %s", e.Op, e.HoldID, e.Status)
}

// InvalidRangeError covers empty date ranges and non-positive quantities.
type InvalidRangeError struct {
	Field string
	Msg   string
}

func (e InvalidRangeError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// StorageUnavailableError wraps infrastructure failures. It is the only retryable class;
// nothing was committed when it is returned.
type StorageUnavailableError struct {
	Op  string
	Err error
}

func (e StorageUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("storage unavailable during %s", e.Op)
	}
	return fmt.Sprintf("storage unavailable during %s: %v", e.Op, e.Err)
}

func (e StorageUnavailableError) Unwrap() error { return e.Err }

func IsNotFound(err error) bool {
	var target NotFoundError
	return errors.As(err, &target)
}

func IsValidation(err error) bool {
	var target ValidationError
	return errors.As(err, &target)
}

func IsConflict(err error) bool {
	var target ConflictError
	return errors.As(err, &target)
}

func IsCapacityExceeded(err error) bool {
	var target CapacityExceededError
	return errors.As(err, &target)
}

func IsInvalidState(err error) bool {
	var target InvalidStateError
	return errors.As(err, &target)
}

func IsInvalidRange(err error) bool {
	var target InvalidRangeError
	return errors.As(err, &target)
}

func IsStorageUnavailable(err error) bool {
	var target StorageUnavailableError
	return errors.As(err, &target)
}

// UnavailableDates extracts the failing days from a CapacityExceededError chain.
func UnavailableDates(err error) []string {
	var target CapacityExceededError
	if errors.As(err, &target) {
		return target.Dates
	}
	return nil
}

// Code returns the stable error class name used in API payloads and metric labels.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case IsCapacityExceeded(err):
		return "CapacityExceeded"
	case IsInvalidState(err):
		return "InvalidState"
	case IsInvalidRange(err):
		return "InvalidRange"
	case IsValidation(err):
		return "ValidationError"
	case IsNotFound(err):
		return "NotFound"
	case IsConflict(err):
		return "Conflict"
	case IsStorageUnavailable(err):
		return "StorageUnavailable"
	default:
		return "InternalError"
	}
}
