// Package apierr defines the stable error taxonomy surfaced to callers of
// the broker's HTTP API (spec §7). Every error that crosses a component
// boundary inside the executor gets classified into one of these codes
// before it reaches a session result or an HTTP response.
package apierr

import "fmt"

// Code is one of the stable, caller-visible error codes from spec §7.
type Code string

const (
	CodeValidation               Code = "VALIDATION"
	CodeElementNotFound          Code = "ELEMENT_NOT_FOUND"
	CodeElementNotInteractable   Code = "ELEMENT_NOT_INTERACTABLE"
	CodeCatalogOutdated          Code = "CATALOG_OUTDATED"
	CodeInvalidIndex             Code = "INVALID_INDEX"
	CodeNavigationTimeout        Code = "NAVIGATION_TIMEOUT"
	CodeActionTimeout            Code = "ACTION_TIMEOUT"
	CodePageLoadTimeout          Code = "PAGE_LOAD_TIMEOUT"
	CodeUnsupportedAction        Code = "UNSUPPORTED_ACTION"
	CodeSharedBrowserUnavailable Code = "SHARED_BROWSER_UNAVAILABLE"
	CodeExecutionError           Code = "EXECUTION_ERROR"

	// Non-retryable locator/target failures distinguished from the generic
	// ELEMENT_NOT_FOUND so the executor's retry policy (§4.7) can classify
	// them without string matching.
	CodeLocator       Code = "LOCATOR"
	CodeTargetNotFound Code = "TARGET_NOT_FOUND"
	CodeDryRunFail     Code = "DRY_RUN_FAIL"
	CodePressKeyFailed Code = "PRESS_KEY_FAILED"
)

// nonRetryable mirrors spec §4.7's explicit list. Anything not in this set
// is treated as retryable (Playwright/CDP transient errors and the generic
// EXECUTION_ERROR catch-all).
var nonRetryable = map[Code]bool{
	CodeValidation:        true,
	CodeLocator:           true,
	CodeTargetNotFound:    true,
	CodeElementNotFound:   true,
	CodeDryRunFail:        true,
	CodePressKeyFailed:    true,
	CodeInvalidIndex:      true,
	CodeUnsupportedAction: true,
}

// Error is a typed, classified error carrying the stable code plus
// optional structured details for the HTTP error envelope.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Retryable reports whether the executor's backoff loop (§4.7) should
// retry an action that failed with this error.
func (e *Error) Retryable() bool {
	return !nonRetryable[e.Code]
}

// New builds a classified error with no details.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap classifies an underlying error under code, preserving it for
// errors.Is/As and logging.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// WithDetails sets structured detail fields on e and returns e itself, so
// callers can chain it onto New/Wrap.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// As extracts the first *Error found by walking err's single-error Unwrap
// chain, returning ok=false if err does not carry one.
func As(err error) (*Error, bool) {
	var target *Error
	if err == nil {
		return nil, false
	}
	if e, ok := err.(*Error); ok {
		return e, true
	}
	type unwrapper interface{ Unwrap() error }
	for {
		u, ok := err.(unwrapper)
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
		if e, ok := err.(*Error); ok {
			target = e
			return target, true
		}
		if err == nil {
			return nil, false
		}
	}
}
