package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// ValidationFailed indicates malformed input rejected before any write began
	ValidationFailed ErrorCode = "VALIDATION_FAILED"
	// TransactionFailed indicates a transaction was rolled back
	TransactionFailed ErrorCode = "TRANSACTION_FAILED"
	// SchemaUpgradeFailed indicates the store could not be brought to the latest schema
	SchemaUpgradeFailed ErrorCode = "SCHEMA_UPGRADE_FAILED"
	// NotFound indicates the addressed record does not exist
	NotFound ErrorCode = "NOT_FOUND"
	// TableNotInScope indicates a transaction touched a table it did not declare
	TableNotInScope ErrorCode = "TABLE_NOT_IN_SCOPE"
	// UnknownTable indicates a table name absent from the schema registry
	UnknownTable ErrorCode = "UNKNOWN_TABLE"
	// StoreClosed indicates the store was used after Close
	StoreClosed ErrorCode = "STORE_CLOSED"
	// InvalidSetting indicates a settings update outside its allowed range
	InvalidSetting ErrorCode = "INVALID_SETTING"
	// BackendUnavailable indicates a remote backend is not reachable
	BackendUnavailable ErrorCode = "BACKEND_UNAVAILABLE"
	// InternalError indicates unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// FixActionType represents the type of fix action
type FixActionType string

const (
	// RunCommand suggests running a command
	RunCommand FixActionType = "run-command"
	// EditConfig suggests changing a configuration value
	EditConfig FixActionType = "edit-config"
)

// FixAction represents a suggested fix for an error
type FixAction struct {
	Type        FixActionType `json:"type"`
	Command     string        `json:"command,omitempty"`
	Safe        bool          `json:"safe,omitempty"`
	Description string        `json:"description,omitempty"`
	Key         string        `json:"key,omitempty"`
}

// ValidationIssue pinpoints one rejected input value.
type ValidationIssue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// LedgerError represents a finledger error with code, message, and suggestions
type LedgerError struct {
	Code           ErrorCode   `json:"code"`
	Message        string      `json:"message"`
	Details        interface{} `json:"details,omitempty"`
	SuggestedFixes []FixAction `json:"suggestedFixes,omitempty"`
	cause          error       // Underlying error (not exported to JSON)
}

// New creates a LedgerError with the suggested fixes registered for its code.
func New(code ErrorCode, message string, cause error) *LedgerError {
	return &LedgerError{
		Code:           code,
		Message:        message,
		cause:          cause,
		SuggestedFixes: GetSuggestedFixes(code),
	}
}

// Newf is New with a formatted message and no cause.
func Newf(code ErrorCode, format string, args ...interface{}) *LedgerError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// Error implements the error interface
func (e *LedgerError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *LedgerError) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error
func (e *LedgerError) WithDetails(details interface{}) *LedgerError {
	e.Details = details
	return e
}

// Validation builds a VALIDATION_FAILED error carrying the issues as details.
func Validation(message string, issues []ValidationIssue) *LedgerError {
	return New(ValidationFailed, message, nil).WithDetails(issues)
}

// Issues extracts validation issues from err, if any.
func Issues(err error) []ValidationIssue {
	var le *LedgerError
	if !stderrors.As(err, &le) {
		return nil
	}
	issues, _ := le.Details.([]ValidationIssue)
	return issues
}

// CodeOf returns the code of the outermost LedgerError in err's chain,
// or InternalError when there is none.
func CodeOf(err error) ErrorCode {
	var le *LedgerError
	if stderrors.As(err, &le) {
		return le.Code
	}
	return InternalError
}

// Is reports whether any LedgerError in err's chain carries code.
func Is(err error, code ErrorCode) bool {
	for err != nil {
		if le, ok := err.(*LedgerError); ok && le.Code == code {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}

// ErrorActions maps error codes to suggested fix actions
var ErrorActions = map[ErrorCode][]FixAction{
	SchemaUpgradeFailed: {
		{
			Type:        RunCommand,
			Command:     "finledger export backup.json.zst",
			Safe:        true,
			Description: "Back up the store before resetting it",
		},
		{
			Type:        EditConfig,
			Key:         "mode",
			Description: "Set mode to development to allow a destructive reset",
		},
	},
	BackendUnavailable: {
		{
			Type:        EditConfig,
			Key:         "backend.dsn",
			Description: "Check the remote backend connection string",
		},
	},
	StoreClosed: {
		{
			Type:        RunCommand,
			Command:     "finledger migrate",
			Safe:        true,
			Description: "Reopen and migrate the store",
		},
	},
}

// GetSuggestedFixes returns suggested fixes for an error code
func GetSuggestedFixes(code ErrorCode) []FixAction {
	if fixes, ok := ErrorActions[code]; ok {
		return fixes
	}
	return nil
}
