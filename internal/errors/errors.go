// Package errors provides error classification and handling for vmplex.
package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorType represents the classification of errors
type ErrorType int

const (
	// InvalidArgumentErrorType represents bad or missing command arguments
	InvalidArgumentErrorType ErrorType = iota

	// UnknownCommandErrorType represents a command name missing from the command table
	UnknownCommandErrorType

	// NotConnectedErrorType represents a command issued while no host is active
	NotConnectedErrorType

	// ConnectionErrorType represents connect or reconnect failures against a host
	ConnectionErrorType

	// ConfigParseErrorType represents a fatal problem in a configuration source
	ConfigParseErrorType

	// GroupFanoutErrorType represents a per-machine failure during group fan-out
	GroupFanoutErrorType

	// ExecutionErrorType represents a failed control-plane operation
	ExecutionErrorType

	// UnknownErrorType represents unclassified errors
	UnknownErrorType
)

// String returns a string representation of the error type
func (et ErrorType) String() string {
	switch et {
	case InvalidArgumentErrorType:
		return "invalid_argument"
	case UnknownCommandErrorType:
		return "unknown_command"
	case NotConnectedErrorType:
		return "not_connected"
	case ConnectionErrorType:
		return "connection"
	case ConfigParseErrorType:
		return "config_parse"
	case GroupFanoutErrorType:
		return "group_fanout"
	case ExecutionErrorType:
		return "execution"
	default:
		return "unknown"
	}
}

// ClassifiedError wraps an error with classification information
type ClassifiedError struct {
	Type     ErrorType
	Original error
	Message  string
	Line     int // source line for ConfigParseErrorType, 0 when not line-specific
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	msg := ce.Message
	if msg == "" && ce.Original != nil {
		msg = ce.Original.Error()
	} else if msg != "" && ce.Original != nil {
		msg = msg + ": " + ce.Original.Error()
	}
	if msg == "" {
		msg = "unknown error"
	}
	if ce.Type == ConfigParseErrorType && ce.Line > 0 {
		return fmt.Sprintf("line %d: %s", ce.Line, msg)
	}
	return msg
}

// Unwrap returns the original error for error unwrapping
func (ce *ClassifiedError) Unwrap() error {
	return ce.Original
}

// Is reports whether target is a ClassifiedError of the same type, so that
// errors.Is(err, &ClassifiedError{Type: T}) matches any error of type T.
func (ce *ClassifiedError) Is(target error) bool {
	t, ok := target.(*ClassifiedError)
	if !ok {
		return false
	}
	return t.Type == ce.Type && t.Message == "" && t.Original == nil
}

// Sentinels usable with errors.Is.
var (
	ErrInvalidArgument = &ClassifiedError{Type: InvalidArgumentErrorType}
	ErrUnknownCommand  = &ClassifiedError{Type: UnknownCommandErrorType}
	ErrNotConnected    = &ClassifiedError{Type: NotConnectedErrorType}
	ErrConnection      = &ClassifiedError{Type: ConnectionErrorType}
	ErrConfigParse     = &ClassifiedError{Type: ConfigParseErrorType}
	ErrGroupFanout     = &ClassifiedError{Type: GroupFanoutErrorType}
	ErrExecution       = &ClassifiedError{Type: ExecutionErrorType}
)

// TypeOf returns the classification of err, using the outermost
// ClassifiedError in the chain or the keyword heuristics otherwise.
func TypeOf(err error) ErrorType {
	if err == nil {
		return UnknownErrorType
	}
	return ClassifyError(err).Type
}

// ClassifyError analyzes an error and returns its classification
func ClassifyError(err error) *ClassifiedError {
	if err == nil {
		return nil
	}

	var ce *ClassifiedError
	if stderrors.As(err, &ce) {
		return ce
	}

	errStr := strings.ToLower(err.Error())

	if isConnectionError(errStr) {
		return &ClassifiedError{Type: ConnectionErrorType, Original: err}
	}

	if isArgumentError(errStr) {
		return &ClassifiedError{Type: InvalidArgumentErrorType, Original: err}
	}

	return &ClassifiedError{Type: UnknownErrorType, Original: err}
}

// isArgumentError checks if an error is related to bad input
func isArgumentError(errStr string) bool {
	argumentKeywords := []string{
		"invalid",
		"wrong arguments",
		"usage:",
		"missing",
		"out of range",
		"unclosed quotation",
		"eof found",
	}

	for _, keyword := range argumentKeywords {
		if strings.Contains(errStr, keyword) {
			return true
		}
	}

	return false
}

// isConnectionError checks if an error is related to network connectivity
func isConnectionError(errStr string) bool {
	connectionKeywords := []string{
		"connection refused",
		"connection reset",
		"connection lost",
		"connection closed",
		"network unreachable",
		"no route to host",
		"host unreachable",
		"broken pipe",
		"handshake failed",
		"unable to authenticate",
		"i/o timeout",
		"not connected",
	}

	for _, keyword := range connectionKeywords {
		if strings.Contains(errStr, keyword) {
			return true
		}
	}

	return false
}

// NewInvalidArgumentError creates a new invalid argument error
func NewInvalidArgumentError(message string, original error) *ClassifiedError {
	return &ClassifiedError{
		Type:     InvalidArgumentErrorType,
		Original: original,
		Message:  message,
	}
}

// NewUnknownCommandError creates a new unknown command error
func NewUnknownCommandError(command string) *ClassifiedError {
	return &ClassifiedError{
		Type:    UnknownCommandErrorType,
		Message: fmt.Sprintf("unknown command %s. Use 'help' to get commands", command),
	}
}

// NewNotConnectedError creates a new not connected error
func NewNotConnectedError(message string) *ClassifiedError {
	return &ClassifiedError{
		Type:    NotConnectedErrorType,
		Message: message,
	}
}

// NewConnectionError creates a new connection error
func NewConnectionError(message string, original error) *ClassifiedError {
	return &ClassifiedError{
		Type:     ConnectionErrorType,
		Original: original,
		Message:  message,
	}
}

// NewConfigParseError creates a new configuration parse error for line
func NewConfigParseError(line int, message string, original error) *ClassifiedError {
	return &ClassifiedError{
		Type:     ConfigParseErrorType,
		Original: original,
		Message:  message,
		Line:     line,
	}
}

// NewGroupFanoutError creates a new fan-out error
func NewGroupFanoutError(message string, original error) *ClassifiedError {
	return &ClassifiedError{
		Type:     GroupFanoutErrorType,
		Original: original,
		Message:  message,
	}
}

// NewExecutionError creates a new execution error
func NewExecutionError(message string, original error) *ClassifiedError {
	return &ClassifiedError{
		Type:     ExecutionErrorType,
		Original: original,
		Message:  message,
	}
}

// ErrorCollector collects and categorizes multiple errors
type ErrorCollector struct {
	errors map[ErrorType][]error
	count  int
}

// NewErrorCollector creates a new error collector
func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{
		errors: make(map[ErrorType][]error),
	}
}

// Add adds an error to the collector
func (ec *ErrorCollector) Add(err error) {
	if err == nil {
		return
	}

	classified := ClassifyError(err)
	ec.errors[classified.Type] = append(ec.errors[classified.Type], err)
	ec.count++
}

// Count returns the total number of errors
func (ec *ErrorCollector) Count() int {
	return ec.count
}

// CountByType returns the number of errors of a specific type
func (ec *ErrorCollector) CountByType(errorType ErrorType) int {
	return len(ec.errors[errorType])
}

// HasErrors returns true if there are any errors
func (ec *ErrorCollector) HasErrors() bool {
	return ec.count > 0
}

// GetErrorsByType returns all errors of a specific type
func (ec *ErrorCollector) GetErrorsByType(errorType ErrorType) []error {
	return ec.errors[errorType]
}

// Summary returns a summary of all collected errors
func (ec *ErrorCollector) Summary() string {
	if ec.count == 0 {
		return "no errors"
	}

	types := make([]ErrorType, 0, len(ec.errors))
	for errorType := range ec.errors {
		types = append(types, errorType)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	var parts []string
	for _, errorType := range types {
		if n := len(ec.errors[errorType]); n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, errorType.String()))
		}
	}

	return fmt.Sprintf("total: %d errors (%s)", ec.count, strings.Join(parts, ", "))
}
