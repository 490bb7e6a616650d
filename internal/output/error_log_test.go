package output

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorLogger_WritesEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "error.log")
	el := NewErrorLogger(path, 1, 2)

	require.NoError(t, el.Write(Entry{Type: "CommandExecution", Message: "handler failed", Err: errors.New("boom"), RequestID: "req-1"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	entry := string(data)
	assert.Contains(t, entry, "ERROR: handler failed")
	assert.Contains(t, entry, "Type: CommandExecution")
	assert.Contains(t, entry, "Request ID: req-1")
	assert.Contains(t, entry, "Details: boom")
	assert.Contains(t, entry, "Stack Trace:")
}

func TestErrorLogger_Rotates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "error.log")
	el := NewErrorLogger(path, 1, 2)
	el.maxSize = 64 // rotate after a single entry

	for i := 0; i < 4; i++ {
		require.NoError(t, el.Write(Entry{Type: "Unexpected", Message: fmt.Sprintf("entry %d", i)}))
	}

	_, err := os.Stat(path + ".1")
	assert.NoError(t, err, "first rotation should exist")
	_, err = os.Stat(path + ".2")
	assert.NoError(t, err, "second rotation should exist")
	_, err = os.Stat(path + ".3")
	assert.True(t, os.IsNotExist(err), "rotation depth must be capped at maxFiles")

	current, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(current), "entry 3"))
}

func TestOutput_ReportAlsoPrints(t *testing.T) {
	rec := NewRecordingLogger()
	out, err := NewOutput(rec, filepath.Join(t.TempDir(), "logs", "error.log"), 0, 0)
	require.NoError(t, err)

	out.Report(Entry{Type: "Database", Message: "insert failed", Err: errors.New("locked")})

	assert.True(t, rec.Contains("Database: insert failed - locked"))
}
