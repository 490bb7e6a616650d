package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yourusername/lolo-bridge/internal/irc"
)

// Request is the frame sent for every forwarded chat line. Prompt and
// Context are only set for mentions of the bot.
type Request struct {
	Line    string `json:"line"`
	Prompt  string `json:"prompt,omitempty"`
	Context string `json:"context,omitempty"`
}

// Lines is a response body. On the wire it is either a single string or an
// array of strings.
type Lines []string

// UnmarshalJSON accepts a JSON string or an array of strings
func (l *Lines) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = Lines{s}
		return nil
	}

	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("response must be a string or an array of strings: %w", err)
	}
	*l = many
	return nil
}

// Response is a reply from the command server. An empty Target means the
// primary channel.
type Response struct {
	Response Lines  `json:"response"`
	Target   string `json:"target,omitempty"`
}

const frameTypeHeartbeat = "heartbeat"

type heartbeatFrame struct {
	Type string `json:"type"`
}

var heartbeatPayload = mustMarshal(heartbeatFrame{Type: frameTypeHeartbeat})

// inboundFrame is the union of every frame the command server sends
type inboundFrame struct {
	Type     string `json:"type"`
	Response *Lines `json:"response"`
	Target   string `json:"target"`
}

// decodeFrame parses one text frame. It reports heartbeat=true for a
// heartbeat frame and returns the response otherwise.
func decodeFrame(data []byte) (resp *Response, heartbeat bool, err error) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, false, fmt.Errorf("invalid JSON frame: %w", err)
	}

	if frame.Type == frameTypeHeartbeat {
		return nil, true, nil
	}
	if frame.Type != "" {
		return nil, false, fmt.Errorf("unknown frame type %q", frame.Type)
	}
	if frame.Response == nil {
		return nil, false, fmt.Errorf("frame has no response field")
	}

	return &Response{Response: *frame.Response, Target: frame.Target}, false, nil
}

func mustMarshal(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

// MarkerKind identifies a response marker
type MarkerKind int

const (
	MarkerPrivmsg MarkerKind = iota + 1
	MarkerJoin
	MarkerPart
)

const (
	markerSep     = "::"
	privmsgPrefix = "__PRIVMSG__" + markerSep
	joinPrefix    = "__JOIN__" + markerSep
	partPrefix    = "__PART__" + markerSep
)

// Marker is a response string that asks the bridge to act on IRC instead of
// printing text
type Marker struct {
	Kind   MarkerKind
	Target string
	Text   string // PRIVMSG only
}

// IsMarker reports whether s starts like a marker, valid or not
func IsMarker(s string) bool {
	return strings.HasPrefix(s, privmsgPrefix) || strings.HasPrefix(s, joinPrefix) || strings.HasPrefix(s, partPrefix)
}

// ParseMarker recognises __PRIVMSG__::target::message, __JOIN__::channel and
// __PART__::channel. The message part may itself contain "::". Markers whose
// target is not a single IRC parameter are rejected.
func ParseMarker(s string) (Marker, bool) {
	var m Marker
	switch {
	case strings.HasPrefix(s, privmsgPrefix):
		parts := strings.SplitN(strings.TrimPrefix(s, privmsgPrefix), markerSep, 2)
		if len(parts) != 2 {
			return Marker{}, false
		}
		m = Marker{Kind: MarkerPrivmsg, Target: parts[0], Text: parts[1]}
	case strings.HasPrefix(s, joinPrefix):
		m = Marker{Kind: MarkerJoin, Target: strings.TrimPrefix(s, joinPrefix)}
	case strings.HasPrefix(s, partPrefix):
		m = Marker{Kind: MarkerPart, Target: strings.TrimPrefix(s, partPrefix)}
	default:
		return Marker{}, false
	}
	if !irc.ValidTarget(m.Target) {
		return Marker{}, false
	}
	return m, true
}

// PrivmsgMarker builds a marker that sends message to target
func PrivmsgMarker(target, message string) string {
	return privmsgPrefix + target + markerSep + message
}

// JoinMarker builds a marker that joins channel
func JoinMarker(channel string) string {
	return joinPrefix + channel
}

// PartMarker builds a marker that parts channel
func PartMarker(channel string) string {
	return partPrefix + channel
}
