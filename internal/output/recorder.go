package output

import (
	"fmt"
	"strings"
	"sync"
)

// RecordingLogger keeps every line in memory. Tests in other packages use it
// to assert on what was logged.
type RecordingLogger struct {
	mu    sync.Mutex
	lines []string
}

// NewRecordingLogger creates an empty RecordingLogger
func NewRecordingLogger() *RecordingLogger {
	return &RecordingLogger{}
}

func (r *RecordingLogger) add(level, format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, level+": "+fmt.Sprintf(format, args...))
}

func (r *RecordingLogger) Info(format string, args ...interface{}) { r.add("INFO", format, args...) }
func (r *RecordingLogger) Success(format string, args ...interface{}) {
	r.add("SUCCESS", format, args...)
}
func (r *RecordingLogger) Warning(format string, args ...interface{}) {
	r.add("WARNING", format, args...)
}
func (r *RecordingLogger) Error(format string, args ...interface{}) { r.add("ERROR", format, args...) }

func (r *RecordingLogger) ChannelMessage(channel, nick, message string) {
	r.add("CHANNEL", "%s <%s> %s", channel, nick, message)
}

func (r *RecordingLogger) PrivateMessage(nick, message string) {
	r.add("PM", "%s: %s", nick, message)
}

func (r *RecordingLogger) Traffic(transport, direction, line string) {
	r.add("TRAFFIC", "%s %s %s", transport, direction, line)
}

// Lines returns a copy of everything recorded so far
func (r *RecordingLogger) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.lines))
	copy(out, r.lines)
	return out
}

// Contains reports whether any recorded line contains substr
func (r *RecordingLogger) Contains(substr string) bool {
	for _, line := range r.Lines() {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}
