package errors

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/lolo-bridge/internal/database"
	"github.com/yourusername/lolo-bridge/internal/output"
)

func TestNewCommandExecutionError_UserMessage(t *testing.T) {
	cause := stderrors.New("division by zero")
	err := NewCommandExecutionError("!", "calc", "alice!a@host", cause)

	assert.Equal(t, "Error executing command !calc.", err.UserMessage)
	assert.Equal(t, ErrorTypeCommandExecution, err.Type)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.InternalDetail, "caller=alice!a@host")
}

func TestAsBotError_FindsWrapped(t *testing.T) {
	inner := NewTrustBoundaryError("evil", "import os/exec not allowed")
	wrapped := fmt.Errorf("load: %w", inner)

	got, ok := AsBotError(wrapped)
	require.True(t, ok)
	assert.Same(t, inner, got)
	assert.True(t, IsBotError(wrapped))
	assert.False(t, IsBotError(stderrors.New("plain")))
}

func TestNewPermissionError(t *testing.T) {
	err := NewPermissionError(database.LevelAdmin)
	assert.Equal(t, "Permission denied", err.UserMessage)
	assert.Contains(t, err.InternalDetail, "Admin")
}

func TestNewMalformedError_TruncatesPayload(t *testing.T) {
	payload := make([]byte, 500)
	for i := range payload {
		payload[i] = 'x'
	}
	err := NewMalformedError("backend", string(payload), stderrors.New("invalid character"))
	assert.Less(t, len(err.InternalDetail), 250)
}

func TestErrorHandler_Handle(t *testing.T) {
	rec := output.NewRecordingLogger()
	logPath := filepath.Join(t.TempDir(), "error.log")
	out, err := output.NewOutput(rec, logPath, 0, 0)
	require.NoError(t, err)
	h := NewErrorHandler(out)

	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "bot error", err: NewValidationError("Invalid level Root"), want: "Invalid level Root"},
		{name: "generic", err: stderrors.New("boom"), want: "An unexpected error occurred. Please try again later."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, h.Handle(tt.err))
		})
	}

	msg := h.HandleOp(NewPrivilegedOpError("WHOIS failed for bob", "bob", nil), "op-42")
	assert.Equal(t, "WHOIS failed for bob", msg)

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Request ID: op-42")
}
