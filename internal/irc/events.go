package irc

import (
	"strings"

	"gopkg.in/irc.v4"
)

// Event is something the chat side reports to the coordinator. Events are
// delivered in the order the server sent them.
type Event interface {
	isEvent()
}

// PublicMessage is a PRIVMSG to a channel
type PublicMessage struct {
	Source  Identity
	Channel string
	Text    string
	Raw     string
}

// PrivateMessage is a PRIVMSG addressed to the bot
type PrivateMessage struct {
	Source Identity
	Text   string
	Raw    string
}

// Join reports someone, possibly the bot, joining a channel
type Join struct {
	Source  Identity
	Channel string
}

// Part reports someone, possibly the bot, leaving a channel
type Part struct {
	Source  Identity
	Channel string
}

// NickChange reports a nick change
type NickChange struct {
	Source  Identity
	NewNick string
}

// Welcome is sent once registration completes (RPL_WELCOME)
type Welcome struct {
	Nick string
}

// WhoisReply carries RPL_WHOISUSER (311)
type WhoisReply struct {
	Nick     string
	User     string
	Host     string
	Realname string
}

// Identity returns the looked-up user's identity
func (w WhoisReply) Identity() Identity {
	return Identity{Nick: w.Nick, User: w.User, Host: w.Host}
}

// WhoisEnd carries RPL_ENDOFWHOIS (318)
type WhoisEnd struct {
	Nick string
}

// Disconnect is sent when a session ends for any reason other than shutdown
type Disconnect struct {
	Err error
}

func (PublicMessage) isEvent()  {}
func (PrivateMessage) isEvent() {}
func (Join) isEvent()           {}
func (Part) isEvent()           {}
func (NickChange) isEvent()     {}
func (Welcome) isEvent()        {}
func (WhoisReply) isEvent()     {}
func (WhoisEnd) isEvent()       {}
func (Disconnect) isEvent()     {}

// toEvent maps a server message onto an Event. Messages the coordinator has
// no use for return ok=false.
func toEvent(msg *irc.Message) (Event, bool) {
	switch msg.Command {
	case "PRIVMSG":
		src, ok := IdentityFromPrefix(msg.Prefix)
		if !ok || len(msg.Params) != 2 {
			return nil, false
		}
		target, text := msg.Params[0], msg.Params[1]
		if IsChannel(target) {
			return PublicMessage{Source: src, Channel: target, Text: text, Raw: rawLine(msg)}, true
		}
		return PrivateMessage{Source: src, Text: text, Raw: rawLine(msg)}, true

	case "JOIN":
		src, ok := IdentityFromPrefix(msg.Prefix)
		if !ok || len(msg.Params) < 1 {
			return nil, false
		}
		return Join{Source: src, Channel: msg.Params[0]}, true

	case "PART":
		src, ok := IdentityFromPrefix(msg.Prefix)
		if !ok || len(msg.Params) < 1 {
			return nil, false
		}
		return Part{Source: src, Channel: msg.Params[0]}, true

	case "NICK":
		src, ok := IdentityFromPrefix(msg.Prefix)
		if !ok || len(msg.Params) < 1 {
			return nil, false
		}
		return NickChange{Source: src, NewNick: msg.Params[0]}, true

	case "311": // RPL_WHOISUSER <me> <nick> <user> <host> * :<realname>
		if len(msg.Params) < 4 {
			return nil, false
		}
		reply := WhoisReply{Nick: msg.Params[1], User: msg.Params[2], Host: msg.Params[3]}
		if len(msg.Params) >= 6 {
			reply.Realname = msg.Params[5]
		}
		return reply, true

	case "318": // RPL_ENDOFWHOIS <me> <nick> :End of /WHOIS list
		if len(msg.Params) < 2 {
			return nil, false
		}
		return WhoisEnd{Nick: msg.Params[1]}, true
	}
	return nil, false
}

// rawLine re-serializes msg with the last parameter always in trailing form,
// so ":alice!a@host PRIVMSG #chan :hi" comes back byte for byte.
// Message.String drops the colon for one-word trailing params.
func rawLine(msg *irc.Message) string {
	var b strings.Builder
	b.WriteString((&irc.Message{Tags: msg.Tags, Prefix: msg.Prefix, Command: msg.Command}).String())
	for i, p := range msg.Params {
		if i == len(msg.Params)-1 {
			b.WriteString(" :")
		} else {
			b.WriteString(" ")
		}
		b.WriteString(p)
	}
	return b.String()
}
