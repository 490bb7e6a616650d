package irc

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"gopkg.in/irc.v4"
)

const ctcpDelim = "\x01"

// ParseCTCP extracts the command and arguments from a CTCP message
func ParseCTCP(message string) (command, args string, ok bool) {
	if len(message) < 2 || !strings.HasPrefix(message, ctcpDelim) || !strings.HasSuffix(message, ctcpDelim) {
		return "", "", false
	}

	parts := strings.SplitN(strings.Trim(message, ctcpDelim), " ", 2)
	command = strings.ToUpper(parts[0])
	if len(parts) > 1 {
		args = parts[1]
	}
	return command, args, true
}

// ctcpReply answers CTCP VERSION, PING and TIME queries. handled is true
// for every CTCP query except ACTION, which is ordinary chat and is passed
// on. reply is nil when the query needs no answer.
func ctcpReply(msg *irc.Message, now time.Time) (reply *irc.Message, handled bool) {
	if msg.Prefix == nil || len(msg.Params) != 2 {
		return nil, false
	}
	command, args, ok := ParseCTCP(msg.Params[1])
	if !ok || command == "ACTION" {
		return nil, false
	}

	var text string
	switch command {
	case "VERSION":
		text = fmt.Sprintf("Lolo IRC bridge / %s %s", runtime.GOOS, runtime.GOARCH)
	case "PING":
		text = args
	case "TIME":
		text = now.Format(time.RFC1123)
	default:
		return nil, true
	}

	return &irc.Message{
		Command: "NOTICE",
		Params:  []string{msg.Prefix.Name, ctcpDelim + command + " " + text + ctcpDelim},
	}, true
}
