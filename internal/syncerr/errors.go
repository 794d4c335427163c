// Package syncerr provides the structured error type used by the
// synchronization engine and its backend adapters. Every error carries a
// category so callers can tell a bad configuration from a failed DDL
// statement with errors.Is.
package syncerr

import (
	"errors"
	"fmt"
)

// Category classifies errors by the stage of a run that produced them.
type Category string

const (
	CategoryConfiguration Category = "CONFIGURATION"
	CategoryExtraction    Category = "EXTRACTION"
	CategoryDefinition    Category = "DEFINITION"
	CategoryUnsupported   Category = "UNSUPPORTED_OPERATION"
	CategoryExecution     Category = "EXECUTION"
)

// Error codes.
const (
	// Configuration
	CodeUnknownBackend = "UNKNOWN_BACKEND"
	CodeAlreadyRun     = "ALREADY_RUN"

	// Extraction
	CodeCatalogRead = "CATALOG_READ"

	// Definition
	CodeDuplicateTable  = "DUPLICATE_TABLE"
	CodeDuplicateField  = "DUPLICATE_FIELD"
	CodeDuplicateIndex  = "DUPLICATE_INDEX"
	CodeNonNumeric      = "NON_NUMERIC_DEFAULT"
	CodeInvalidOption   = "INVALID_OPTION"
	CodeInvalidName     = "INVALID_NAME"
	CodeRoutineFailed   = "ROUTINE_FAILED"
	CodeInvalidDocument = "INVALID_DOCUMENT"

	// Unsupported
	CodeAlterField = "ALTER_FIELD"

	// Execution
	CodeDDLFailed = "DDL_FAILED"
)

// Category sentinels for errors.Is.
var (
	ErrConfiguration = &Error{Category: CategoryConfiguration}
	ErrExtraction    = &Error{Category: CategoryExtraction}
	ErrDefinition    = &Error{Category: CategoryDefinition}
	ErrUnsupported   = &Error{Category: CategoryUnsupported}
	ErrExecution     = &Error{Category: CategoryExecution}
)

// Error is the structured error returned by every stage of a run.
type Error struct {
	Category Category
	Code     string
	Message  string
	Table    string
	Details  map[string]any
	Cause    error
}

func (e *Error) Error() string {
	prefix := fmt.Sprintf("[%s:%s]", e.Category, e.Code)
	if e.Table != "" {
		prefix += " " + e.Table + ":"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s %s", prefix, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on category, and on code too when the target sets one.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	if e.Category != t.Category {
		return false
	}
	return t.Code == "" || e.Code == t.Code
}

func New(category Category, code, message string) *Error {
	return &Error{Category: category, Code: code, Message: message}
}

func Wrap(category Category, code, message string, cause error) *Error {
	return &Error{Category: category, Code: code, Message: message, Cause: cause}
}

// Newf is New with a formatted message.
func Newf(category Category, code, format string, args ...any) *Error {
	return New(category, code, fmt.Sprintf(format, args...))
}

// ForTable returns a copy bound to a table name.
func (e *Error) ForTable(table string) *Error {
	cp := *e
	cp.Table = table
	return &cp
}

// WithDetails returns a copy of the error with additional details.
func (e *Error) WithDetails(details map[string]any) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

// GetCategory extracts the category from an error chain, "" if none.
func GetCategory(err error) Category {
	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}
	return ""
}

// GetCode extracts the code from an error chain, "" if none.
func GetCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// InTable binds err to table when it is an *Error without one; other
// errors pass through unchanged.
func InTable(err error, table string) error {
	var e *Error
	if errors.As(err, &e) && e.Table == "" {
		return e.ForTable(table)
	}
	return err
}
