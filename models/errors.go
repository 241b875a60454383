package models

import (
	"errors"
	"fmt"
)

// ErrCacheInvariant marks internal bookkeeping bugs in the result cache.
var ErrCacheInvariant = errors.New("cache invariant violated")

// DecodeError means the payload could not be interpreted as an image.
type DecodeError struct {
	Message string
	Cause   error
}

func (e *DecodeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("decode: %s: %v", e.Message, e.Cause)
	}
	return "decode: " + e.Message
}

func (e *DecodeError) Unwrap() error { return e.Cause }

// LocatorError is raised by a face detection backend. It never leaves
// the face locator.
type LocatorError struct {
	Stage   string
	Message string
	Cause   error
}

func (e *LocatorError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("locator %s: %s: %v", e.Stage, e.Message, e.Cause)
	}
	return fmt.Sprintf("locator %s: %s", e.Stage, e.Message)
}

func (e *LocatorError) Unwrap() error { return e.Cause }

// InferenceError means the classifier forward pass failed.
type InferenceError struct {
	Message string
	Cause   error
}

func (e *InferenceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("inference: %s: %v", e.Message, e.Cause)
	}
	return "inference: " + e.Message
}

func (e *InferenceError) Unwrap() error { return e.Cause }
