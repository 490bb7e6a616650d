package errors

import (
	"fmt"

	"github.com/yourusername/lolo-bridge/internal/output"
)

const unexpectedMessage = "An unexpected error occurred. Please try again later."

// ErrorHandler logs errors to the terminal and the error file and turns
// them into text that is safe to show in chat
type ErrorHandler struct {
	output *output.Output
}

// NewErrorHandler creates an ErrorHandler reporting through out
func NewErrorHandler(out *output.Output) *ErrorHandler {
	return &ErrorHandler{output: out}
}

// Handle logs err and returns its chat-facing message
func (h *ErrorHandler) Handle(err error) string {
	return h.report(err, "", "")
}

// HandleOp is Handle for an error that ends a tracked operation. The
// operation id is written to the error file.
func (h *ErrorHandler) HandleOp(err error, opID string) string {
	return h.report(err, "", opID)
}

// LogError logs err under context without producing a reply
func (h *ErrorHandler) LogError(err error, context string) {
	h.report(err, context, "")
}

func (h *ErrorHandler) report(err error, context, requestID string) string {
	if err == nil {
		return ""
	}

	entry := output.Entry{Type: string(ErrorTypeUnexpected), Err: err, RequestID: requestID}
	reply := unexpectedMessage

	if botErr, ok := AsBotError(err); ok {
		entry.Type = string(botErr.Type)
		entry.Message = botErr.UserMessage
		entry.Err = botErr.InternalError
		reply = botErr.UserMessage
	} else {
		entry.Message = "Unexpected error occurred"
	}

	if context != "" {
		entry.Message = fmt.Sprintf("%s: %s", context, entry.Message)
		if entry.Err != nil {
			entry.Err = fmt.Errorf("%s: %w", context, entry.Err)
		}
	}

	h.output.Report(entry)
	return reply
}
