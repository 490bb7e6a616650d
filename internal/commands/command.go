package commands

import (
	"github.com/yourusername/lolo-bridge/internal/database"
)

// Handler runs one command. channel is where the reply goes: the channel for
// channel messages, the caller's nick for private messages. An empty reply
// sends nothing.
type Handler func(channel, nick string, args []string) (string, error)

// Registration describes one registered command
type Registration struct {
	// Name is the case-folded command name without prefix
	Name    string
	Handler Handler

	// Bundle is the plugin that owns the command; empty for built-ins
	Bundle string

	// Help is a one-line description shown by help listings
	Help string

	// Level is the minimum permission level needed to run the command
	Level database.PermissionLevel
}

// IsBuiltin reports whether the command was registered by the bridge itself
func (r Registration) IsBuiltin() bool {
	return r.Bundle == ""
}

// Invocation is one parsed command call together with its caller
type Invocation struct {
	// Name is the lower-cased command name, Prefix the prefix it was typed with
	Name   string
	Prefix string
	Args   []string

	// Channel is empty for private messages
	Channel  string
	Nick     string
	Hostmask string
	Level    database.PermissionLevel
	IsPM     bool
}

// ReplyTarget returns the channel, or the caller's nick for private messages
func (inv Invocation) ReplyTarget() string {
	if inv.IsPM || inv.Channel == "" {
		return inv.Nick
	}
	return inv.Channel
}

// Result is what the dispatcher hands back for delivery
type Result struct {
	// Message may be empty, or a response marker understood by the bridge
	Message string
	Target  string
}
