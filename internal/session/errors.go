package session

import (
	"errors"
	"fmt"
)

// LifecycleError represents a misuse of the session/trial state machine
// detected at the call site.
//
// Lifecycle errors include:
//   - Invalid transition: Begin/End called out of sequence
//   - No such trial/block: position requested outside the valid range
//   - Path not found: session Begin given a missing base path
//   - Uninitialized use: persisting or querying before Begin
//
// Errors are raised synchronously where detected and never silently
// corrected, so the foreground control flow can react immediately.
// "No such trial" is deliberately distinct so callers can tell the
// normal end-of-experiment signal apart from a programming bug.
type LifecycleError struct {
	// Code identifies the error category.
	Code LifecycleErrorCode

	// Message is a human-readable description.
	Message string

	// TrialNum and BlockNum identify the affected position, when known.
	TrialNum int
	BlockNum int
}

// LifecycleErrorCode categorizes lifecycle errors.
type LifecycleErrorCode string

const (
	// ErrCodeInvalidTransition indicates Begin/End called out of sequence.
	ErrCodeInvalidTransition LifecycleErrorCode = "INVALID_TRANSITION"

	// ErrCodeNoSuchTrial indicates a trial position outside the valid range.
	ErrCodeNoSuchTrial LifecycleErrorCode = "NO_SUCH_TRIAL"

	// ErrCodeNoSuchBlock indicates a block position outside the valid range.
	ErrCodeNoSuchBlock LifecycleErrorCode = "NO_SUCH_BLOCK"

	// ErrCodePathNotFound indicates a base path that does not exist.
	ErrCodePathNotFound LifecycleErrorCode = "PATH_NOT_FOUND"

	// ErrCodeUninitialized indicates session use before Begin completed.
	ErrCodeUninitialized LifecycleErrorCode = "UNINITIALIZED_USE"
)

// Error implements the error interface.
func (e *LifecycleError) Error() string {
	if e.TrialNum != 0 {
		return fmt.Sprintf("%s: %s (trial=%d)", e.Code, e.Message, e.TrialNum)
	}
	if e.BlockNum != 0 {
		return fmt.Sprintf("%s: %s (block=%d)", e.Code, e.Message, e.BlockNum)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsInvalidTransition reports whether err is an out-of-sequence
// Begin/End. Uses errors.As to handle wrapped errors.
func IsInvalidTransition(err error) bool {
	return hasCode(err, ErrCodeInvalidTransition)
}

// IsNoSuchTrial reports whether err is an out-of-range trial request.
func IsNoSuchTrial(err error) bool {
	return hasCode(err, ErrCodeNoSuchTrial)
}

// IsNoSuchBlock reports whether err is an out-of-range block request.
func IsNoSuchBlock(err error) bool {
	return hasCode(err, ErrCodeNoSuchBlock)
}

// IsPathNotFound reports whether err is a missing base path.
func IsPathNotFound(err error) bool {
	return hasCode(err, ErrCodePathNotFound)
}

// IsUninitialized reports whether err is use-before-Begin.
func IsUninitialized(err error) bool {
	return hasCode(err, ErrCodeUninitialized)
}

func hasCode(err error, code LifecycleErrorCode) bool {
	var le *LifecycleError
	if errors.As(err, &le) {
		return le.Code == code
	}
	return false
}

func newInvalidTransition(message string, trialNum int) *LifecycleError {
	return &LifecycleError{
		Code:     ErrCodeInvalidTransition,
		Message:  message,
		TrialNum: trialNum,
	}
}

func newNoSuchTrial(message string) *LifecycleError {
	return &LifecycleError{Code: ErrCodeNoSuchTrial, Message: message}
}

func newNoSuchBlock(message string) *LifecycleError {
	return &LifecycleError{Code: ErrCodeNoSuchBlock, Message: message}
}

func newPathNotFound(path string) *LifecycleError {
	return &LifecycleError{
		Code:    ErrCodePathNotFound,
		Message: fmt.Sprintf("base path does not exist: %s", path),
	}
}

func newUninitialized(message string) *LifecycleError {
	return &LifecycleError{Code: ErrCodeUninitialized, Message: message}
}
