package errors

import (
	stderrors "errors"
	"fmt"

	"github.com/yourusername/lolo-bridge/internal/database"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeInvalidSyntax indicates a command syntax error
	ErrorTypeInvalidSyntax ErrorType = "InvalidSyntax"

	// ErrorTypePermission indicates insufficient permissions
	ErrorTypePermission ErrorType = "Permission"

	// ErrorTypeDatabase indicates a database operation failure
	ErrorTypeDatabase ErrorType = "Database"

	// ErrorTypeTransportTransient indicates a dropped or timed out connection.
	// Supervisors retry these forever; users only ever see a "down for Ns" notice.
	ErrorTypeTransportTransient ErrorType = "TransportTransient"

	// ErrorTypeProtocolMalformed indicates an unparseable chat line or backend frame
	ErrorTypeProtocolMalformed ErrorType = "ProtocolMalformed"

	// ErrorTypeCommandExecution indicates a command handler returned an error or panicked
	ErrorTypeCommandExecution ErrorType = "CommandExecution"

	// ErrorTypePrivilegedOp indicates a pending admin operation could not complete
	ErrorTypePrivilegedOp ErrorType = "PrivilegedOp"

	// ErrorTypeTrustBoundary indicates bundle code was refused by the loader's capability gate
	ErrorTypeTrustBoundary ErrorType = "TrustBoundary"

	// ErrorTypeUnexpected indicates an unexpected/unknown error
	ErrorTypeUnexpected ErrorType = "Unexpected"

	// ErrorTypeNotFound indicates a resource was not found
	ErrorTypeNotFound ErrorType = "NotFound"

	// ErrorTypeValidation indicates invalid input data
	ErrorTypeValidation ErrorType = "Validation"
)

// BotError represents a structured error with type and user-friendly message
type BotError struct {
	Type           ErrorType
	UserMessage    string // Message to send to the user
	InternalError  error  // Original error for logging
	InternalDetail string // Additional detail for logging
}

// Error implements the error interface
func (e *BotError) Error() string {
	if e.InternalError != nil {
		return fmt.Sprintf("%s: %s (internal: %v)", e.Type, e.UserMessage, e.InternalError)
	}
	if e.InternalDetail != "" {
		return fmt.Sprintf("%s: %s (detail: %s)", e.Type, e.UserMessage, e.InternalDetail)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.UserMessage)
}

// Unwrap returns the underlying error
func (e *BotError) Unwrap() error {
	return e.InternalError
}

// NewInvalidSyntaxError creates an error for invalid command syntax.
// The user message is the usage line itself.
func NewInvalidSyntaxError(commandName, usage string) *BotError {
	return &BotError{
		Type:           ErrorTypeInvalidSyntax,
		UserMessage:    usage,
		InternalDetail: fmt.Sprintf("command=%s", commandName),
	}
}

// NewPermissionError creates an error for insufficient permissions
func NewPermissionError(requiredLevel database.PermissionLevel) *BotError {
	return &BotError{
		Type:           ErrorTypePermission,
		UserMessage:    "Permission denied",
		InternalDetail: fmt.Sprintf("required_level=%s", PermissionLevelName(requiredLevel)),
	}
}

// NewDatabaseError creates an error for database operation failures
func NewDatabaseError(operation string, err error) *BotError {
	return &BotError{
		Type:           ErrorTypeDatabase,
		UserMessage:    "A database error occurred. Please try again later.",
		InternalError:  err,
		InternalDetail: fmt.Sprintf("operation=%s", operation),
	}
}

// NewTransportError wraps a connection failure on the named transport
func NewTransportError(transport string, err error) *BotError {
	return &BotError{
		Type:           ErrorTypeTransportTransient,
		UserMessage:    fmt.Sprintf("%s connection lost", transport),
		InternalError:  err,
		InternalDetail: fmt.Sprintf("transport=%s", transport),
	}
}

// NewMalformedError records a payload that could not be parsed
func NewMalformedError(source, payload string, err error) *BotError {
	if len(payload) > 200 {
		payload = payload[:200] + "..."
	}
	return &BotError{
		Type:           ErrorTypeProtocolMalformed,
		UserMessage:    fmt.Sprintf("Malformed %s payload dropped", source),
		InternalError:  err,
		InternalDetail: fmt.Sprintf("payload=%q", payload),
	}
}

// NewCommandExecutionError converts a handler failure into the standard user-facing text
func NewCommandExecutionError(prefix, command, caller string, err error) *BotError {
	return &BotError{
		Type:           ErrorTypeCommandExecution,
		UserMessage:    fmt.Sprintf("Error executing command %s%s.", prefix, command),
		InternalError:  err,
		InternalDetail: fmt.Sprintf("command=%s, caller=%s", command, caller),
	}
}

// NewPrivilegedOpError reports a pending admin operation that did not complete
func NewPrivilegedOpError(userMessage, nick string, err error) *BotError {
	return &BotError{
		Type:           ErrorTypePrivilegedOp,
		UserMessage:    userMessage,
		InternalError:  err,
		InternalDetail: fmt.Sprintf("target=%s", nick),
	}
}

// NewTrustBoundaryError reports bundle code refused by the loader
func NewTrustBoundaryError(bundle, reason string) *BotError {
	return &BotError{
		Type:           ErrorTypeTrustBoundary,
		UserMessage:    fmt.Sprintf("Plugin %s refused: %s", bundle, reason),
		InternalDetail: fmt.Sprintf("bundle=%s", bundle),
	}
}

// NewUnexpectedError creates an error for unexpected failures
func NewUnexpectedError(err error) *BotError {
	return &BotError{
		Type:          ErrorTypeUnexpected,
		UserMessage:   "An unexpected error occurred. Please try again later.",
		InternalError: err,
	}
}

// NewNotFoundError creates an error for resources that don't exist
func NewNotFoundError(resourceType, resourceName string) *BotError {
	return &BotError{
		Type:           ErrorTypeNotFound,
		UserMessage:    fmt.Sprintf("%s '%s' not found.", resourceType, resourceName),
		InternalDetail: fmt.Sprintf("resource_type=%s, resource_name=%s", resourceType, resourceName),
	}
}

// NewValidationError creates an error for invalid input data
func NewValidationError(message string) *BotError {
	return &BotError{
		Type:        ErrorTypeValidation,
		UserMessage: message,
	}
}

// PermissionLevelName returns a human-readable name for a permission level
func PermissionLevelName(level database.PermissionLevel) string {
	return level.String()
}

// IsBotError checks if an error is, or wraps, a BotError
func IsBotError(err error) bool {
	_, ok := AsBotError(err)
	return ok
}

// AsBotError finds the first BotError in err's chain
func AsBotError(err error) (*BotError, bool) {
	var botErr *BotError
	if stderrors.As(err, &botErr) {
		return botErr, true
	}
	return nil, false
}
