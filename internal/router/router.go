// Package router turns raw chat lines into the single action the
// coordinator should take for them.
package router

import (
	"fmt"
	"regexp"
	"strings"

	ircv4 "gopkg.in/irc.v4"

	"github.com/yourusername/lolo-bridge/internal/config"
	"github.com/yourusername/lolo-bridge/internal/database"
	"github.com/yourusername/lolo-bridge/internal/errors"
	"github.com/yourusername/lolo-bridge/internal/irc"
	"github.com/yourusername/lolo-bridge/internal/output"
)

// Message is a parsed PRIVMSG
type Message struct {
	Source    irc.Identity
	Target    string
	Body      string
	IsChannel bool
	Raw       string
}

// ReplyTarget is where answers go: the channel, or the sender for private
// messages
func (m Message) ReplyTarget() string {
	if m.IsChannel {
		return m.Target
	}
	return m.Source.Nick
}

// logKey is the message-log channel: the channel, or the peer nick for
// private messages
func (m Message) logKey() string {
	return m.ReplyTarget()
}

// Action is the outcome of routing one line
type Action interface {
	isAction()
}

// NoAction means the line is dropped
type NoAction struct{}

// AdminCommand is an "admin user add|remove|set" request. Args starts at
// "user".
type AdminCommand struct {
	Message Message
	Args    []string
	Prefix  string
}

// LocalCommand is a prefixed command for the dispatcher
type LocalCommand struct {
	Message   Message
	Name      string
	Args      []string
	Prefix    string
	IsChannel bool
}

// Mention is a line that names the bot. Prompt has the nick removed and
// Context holds earlier lines of the same channel, oldest first.
type Mention struct {
	Message Message
	Prompt  string
	Context string
}

// ForwardRaw sends Line to the backend unchanged
type ForwardRaw struct {
	Line string
}

func (NoAction) isAction()     {}
func (AdminCommand) isAction() {}
func (LocalCommand) isAction() {}
func (Mention) isAction()      {}
func (ForwardRaw) isAction()   {}

// adminSubcommands are resolved through WHOIS instead of the dispatcher
var adminSubcommands = map[string]bool{"add": true, "remove": true, "set": true}

// Router classifies inbound lines. It is used from the coordinator's loop
// only.
type Router struct {
	cfg     *config.Config
	db      *database.DB
	logger  output.Logger
	errors  *errors.ErrorHandler
	botNick func() string
}

// New creates a router. botNick returns the bot's current nick.
func New(cfg *config.Config, db *database.DB, errHandler *errors.ErrorHandler, logger output.Logger, botNick func() string) *Router {
	return &Router{
		cfg:     cfg,
		db:      db,
		logger:  logger,
		errors:  errHandler,
		botNick: botNick,
	}
}

// Parse extracts sender, target and body from ":nick!user@host PRIVMSG
// target :body". Anything else is rejected.
func Parse(raw string) (Message, bool) {
	msg, err := ircv4.ParseMessage(raw)
	if err != nil || msg.Command != "PRIVMSG" || len(msg.Params) != 2 {
		return Message{}, false
	}
	src, ok := irc.IdentityFromPrefix(msg.Prefix)
	if !ok {
		return Message{}, false
	}
	return Message{
		Source:    src,
		Target:    msg.Params[0],
		Body:      msg.Params[1],
		IsChannel: irc.IsChannel(msg.Params[0]),
		Raw:       raw,
	}, true
}

// Route classifies one raw PRIVMSG line
func (r *Router) Route(raw string) Action {
	msg, ok := Parse(raw)
	if !ok {
		r.logger.Warning("%v", errors.NewMalformedError("chat line", raw, fmt.Errorf("not a PRIVMSG from a user")))
		return NoAction{}
	}

	if r.ignored(msg.Source) {
		return NoAction{}
	}

	prefix := r.prefixFor(msg)

	if args, ok := adminArgs(msg.Body, prefix); ok {
		return AdminCommand{Message: msg, Args: args, Prefix: prefix}
	}

	var logID int64
	if secret(msg.Body, prefix) {
		r.logger.Info("%s invoked %sverify", msg.Source.Nick, prefix)
	} else {
		logID = r.logMessage(msg)
	}

	if strings.HasPrefix(msg.Body, prefix) {
		fields := strings.Fields(msg.Body[len(prefix):])
		if len(fields) == 0 {
			return NoAction{}
		}
		name := strings.ToLower(fields[0])
		if msg.IsChannel && r.disabled(msg.Target, name) {
			r.logger.Info("Command '%s%s' invoked in %s but is disabled.", prefix, name, msg.Target)
			return NoAction{}
		}
		return LocalCommand{
			Message:   msg,
			Name:      name,
			Args:      fields[1:],
			Prefix:    prefix,
			IsChannel: msg.IsChannel,
		}
	}

	if prompt, mentioned := StripNick(msg.Body, r.botNick()); mentioned {
		m := Mention{Message: msg, Prompt: prompt}
		if msg.IsChannel {
			m.Context = r.context(msg.Target, logID)
		}
		return m
	}

	return ForwardRaw{Line: raw}
}

// RouteEvent handles joins, parts and nick changes: they are logged and
// forwarded as "<nick!user@host> VERB <arg>"
func (r *Router) RouteEvent(ev irc.Event) Action {
	var (
		src                     irc.Identity
		eventType, channel, msg string
		line                    string
	)

	switch e := ev.(type) {
	case irc.Join:
		src = e.Source
		eventType, channel = database.EventTypeJoin, e.Channel
		msg = fmt.Sprintf("%s joined %s", src.Nick, e.Channel)
		line = fmt.Sprintf("%s JOIN %s", src, e.Channel)
	case irc.Part:
		src = e.Source
		eventType, channel = database.EventTypePart, e.Channel
		msg = fmt.Sprintf("%s left %s", src.Nick, e.Channel)
		line = fmt.Sprintf("%s PART %s", src, e.Channel)
	case irc.NickChange:
		src = e.Source
		eventType, channel = database.EventTypeNickChange, e.NewNick
		msg = fmt.Sprintf("%s is now %s", src.Nick, e.NewNick)
		line = fmt.Sprintf("%s NICK %s", src, e.NewNick)
	default:
		return NoAction{}
	}

	if r.ignored(src) {
		return NoAction{}
	}

	r.logger.Info("%s", msg)
	if err := r.db.LogEvent(eventType, channel, src.Nick, src.String(), msg); err != nil {
		r.errors.LogError(errors.NewDatabaseError("log event", err), "event logging")
	}
	return ForwardRaw{Line: line}
}

func (r *Router) ignored(src irc.Identity) bool {
	level, err := r.db.LevelForHostmask(src.String())
	if err != nil {
		r.errors.LogError(errors.NewDatabaseError("get user level", err), "routing")
		return false
	}
	return level == database.LevelIgnored
}

// prefixFor returns the channel's prefix, or the default for private
// messages
func (r *Router) prefixFor(msg Message) string {
	def := r.cfg.Bot.CommandPrefix
	if !msg.IsChannel {
		return def
	}
	setting, err := r.db.GetChannelSetting(msg.Target, def)
	if err != nil {
		r.errors.LogError(errors.NewDatabaseError("get channel setting", err), "routing")
		return def
	}
	return setting.Prefix
}

func (r *Router) disabled(channel, command string) bool {
	setting, err := r.db.GetChannelSetting(channel, r.cfg.Bot.CommandPrefix)
	if err != nil {
		r.errors.LogError(errors.NewDatabaseError("get channel setting", err), "routing")
		return false
	}
	return setting.IsDisabled(command)
}

// adminArgs matches "<prefix>admin user add|remove|set ..." and returns the
// fields from "user" on
func adminArgs(body, prefix string) ([]string, bool) {
	if !strings.HasPrefix(body, prefix) {
		return nil, false
	}
	fields := strings.Fields(body[len(prefix):])
	if len(fields) < 3 || !strings.EqualFold(fields[0], "admin") || fields[1] != "user" {
		return nil, false
	}
	if !adminSubcommands[fields[2]] {
		return nil, false
	}
	return fields[1:], true
}

// secret reports whether body is a verify invocation, whose argument is the
// owner password and must stay out of the terminal and the message log
func secret(body, prefix string) bool {
	if !strings.HasPrefix(body, prefix) {
		return false
	}
	fields := strings.Fields(body[len(prefix):])
	return len(fields) > 0 && strings.EqualFold(fields[0], "verify")
}

func (r *Router) logMessage(msg Message) int64 {
	if msg.IsChannel {
		r.logger.ChannelMessage(msg.Target, msg.Source.Nick, msg.Body)
	} else {
		r.logger.PrivateMessage(msg.Source.Nick, msg.Body)
	}

	entry := &database.Message{
		Channel:  msg.logKey(),
		Nick:     msg.Source.Nick,
		Hostmask: msg.Source.String(),
		Content:  msg.Body,
	}
	if err := r.db.LogMessage(entry); err != nil {
		r.errors.LogError(errors.NewDatabaseError("log message", err), "message logging")
		return 0
	}
	return entry.ID
}

// context formats the lines logged for channel before beforeID
func (r *Router) context(channel string, beforeID int64) string {
	if beforeID == 0 {
		return ""
	}
	msgs, err := r.db.RecentMessages(channel, r.cfg.Bot.ContextLines, beforeID)
	if err != nil {
		r.errors.LogError(errors.NewDatabaseError("fetch context", err), "mention context")
		return ""
	}

	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, fmt.Sprintf("[%s] <%s> %s", m.Timestamp.Format("15:04"), m.Nick, m.Content))
	}
	return strings.Join(lines, "\n")
}

// StripNick reports whether body names nick as a whole word, ignoring case,
// and returns body with every such mention and its trailing " :!,?" removed
func StripNick(body, nick string) (prompt string, mentioned bool) {
	if nick == "" {
		return "", false
	}
	quoted := regexp.QuoteMeta(nick)
	if !regexp.MustCompile(`(?i)\b` + quoted + `\b`).MatchString(body) {
		return "", false
	}
	prompt = regexp.MustCompile(`(?i)\b`+quoted+`\b[ :!,?]*`).ReplaceAllString(body, "")
	return strings.Join(strings.Fields(prompt), " "), true
}
