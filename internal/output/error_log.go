package output

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

const (
	DefaultMaxLogSizeMB = 10
	DefaultMaxLogFiles  = 5
)

// Entry is one record in the error log file
type Entry struct {
	Type      string
	Message   string
	Err       error
	RequestID string // pending operation or request the error belongs to
}

func (e Entry) terminal() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Type, e.Message)
	}
	return fmt.Sprintf("%s: %s - %v", e.Type, e.Message, e.Err)
}

// ErrorLogger appends entries to a file, rotating it to path.1 ... path.N
// once it reaches the size limit
type ErrorLogger struct {
	path     string
	maxSize  int64
	maxFiles int

	mu sync.Mutex
}

// NewErrorLogger creates an ErrorLogger. Non-positive limits use the defaults.
func NewErrorLogger(path string, maxSizeMB, maxFiles int) *ErrorLogger {
	if maxSizeMB <= 0 {
		maxSizeMB = DefaultMaxLogSizeMB
	}
	if maxFiles <= 0 {
		maxFiles = DefaultMaxLogFiles
	}
	return &ErrorLogger{
		path:     path,
		maxSize:  int64(maxSizeMB) << 20,
		maxFiles: maxFiles,
	}
}

// Write appends entry with a timestamp and the caller's stack
func (l *ErrorLogger) Write(entry Entry) error {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] ERROR: %s\n", time.Now().Format("2006-01-02 15:04:05"), entry.Message)
	fmt.Fprintf(&b, "Type: %s\n", entry.Type)
	if entry.RequestID != "" {
		fmt.Fprintf(&b, "Request ID: %s\n", entry.RequestID)
	}
	if entry.Err != nil {
		fmt.Fprintf(&b, "Details: %v\n", entry.Err)
	}
	b.WriteString("Stack Trace:\n")
	writeStack(&b, 3)
	b.WriteString("\n")

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.rotateIfFull(); err != nil {
		return fmt.Errorf("failed to rotate log: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open error log: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.WriteString(b.String()); err != nil {
		return fmt.Errorf("failed to write to error log: %w", err)
	}
	return nil
}

func (l *ErrorLogger) rotated(n int) string {
	return fmt.Sprintf("%s.%d", l.path, n)
}

func (l *ErrorLogger) rotateIfFull() error {
	info, err := os.Stat(l.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Size() < l.maxSize {
		return nil
	}

	if err := os.Remove(l.rotated(l.maxFiles)); err != nil && !os.IsNotExist(err) {
		return err
	}
	for n := l.maxFiles - 1; n >= 1; n-- {
		if err := os.Rename(l.rotated(n), l.rotated(n+1)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return os.Rename(l.path, l.rotated(1))
}

func writeStack(b *strings.Builder, skip int) {
	pcs := make([]uintptr, 32)
	frames := runtime.CallersFrames(pcs[:runtime.Callers(skip, pcs)])
	for {
		frame, more := frames.Next()
		fmt.Fprintf(b, "  at %s (%s:%d)\n", frame.Function, filepath.Base(frame.File), frame.Line)
		if !more {
			return
		}
	}
}

// EnsureLogDirectory creates the directory holding logPath
func EnsureLogDirectory(logPath string) error {
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}
