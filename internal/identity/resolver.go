// Package identity applies privileged user changes once a WHOIS lookup has
// told us the target's full hostmask.
package identity

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/lolo-bridge/internal/database"
	"github.com/yourusername/lolo-bridge/internal/errors"
	"github.com/yourusername/lolo-bridge/internal/irc"
	"github.com/yourusername/lolo-bridge/internal/output"
	"github.com/yourusername/lolo-bridge/internal/router"
	"github.com/yourusername/lolo-bridge/internal/user"
)

// Action is the change a pending op applies
type Action string

const (
	ActionAdd    Action = "add"
	ActionRemove Action = "remove"
	ActionSet    Action = "set"
)

// PendingOp is an admin request waiting for its WHOIS answer
type PendingOp struct {
	ID                  string
	Action              Action
	Level               database.PermissionLevel // unused for remove
	Nick                string
	Channel             string // where the outcome is reported
	RequestedBy         string
	RequestedByHostmask string
	Created             time.Time
}

// Chat is the part of the chat supervisor the resolver needs
type Chat interface {
	Whois(nick string) error
	Privmsg(target, text string) error
}

// Resolver owns the pending-op table. It is not safe for concurrent use;
// the coordinator calls it from its event loop.
type Resolver struct {
	users   *user.Manager
	db      *database.DB
	chat    Chat
	errors  *errors.ErrorHandler
	logger  output.Logger
	timeout time.Duration
	now     func() time.Time

	pending map[string]PendingOp // lower-cased nick
}

// NewResolver creates a resolver. Pending ops older than timeout are
// dropped by Expire.
func NewResolver(db *database.DB, chat Chat, errHandler *errors.ErrorHandler, logger output.Logger, timeout time.Duration) *Resolver {
	return &Resolver{
		users:   user.NewManager(db),
		db:      db,
		chat:    chat,
		errors:  errHandler,
		logger:  logger,
		timeout: timeout,
		now:     time.Now,
		pending: make(map[string]PendingOp),
	}
}

// Pending returns the op waiting on nick
func (r *Resolver) Pending(nick string) (PendingOp, bool) {
	op, ok := r.pending[strings.ToLower(nick)]
	return op, ok
}

// Len returns the number of pending ops
func (r *Resolver) Len() int {
	return len(r.pending)
}

// HandleAdmin starts "admin user add|remove|set NICK [LEVEL]". args begins
// with "user". Every outcome is one message to the caller's reply target.
func (r *Resolver) HandleAdmin(cmd router.AdminCommand) {
	msg, args := cmd.Message, cmd.Args
	reply := msg.ReplyTarget()
	prefix := cmd.Prefix
	if prefix == "" {
		prefix = "!"
	}

	callerLevel, err := r.users.Level(msg.Source.String())
	if err != nil {
		r.say(reply, r.errors.Handle(errors.NewDatabaseError("get user level", err)))
		return
	}
	if !user.CanAdminister(callerLevel) {
		r.say(reply, "Permission denied")
		return
	}

	if len(args) < 3 {
		r.say(reply, fmt.Sprintf("Usage: %sadmin user add|remove|set NICK [LEVEL]", prefix))
		return
	}

	op := PendingOp{
		ID:                  uuid.NewString(),
		Action:              Action(args[1]),
		Nick:                args[2],
		Channel:             reply,
		RequestedBy:         msg.Source.Nick,
		RequestedByHostmask: msg.Source.String(),
		Created:             r.now(),
	}

	if op.Action == ActionAdd || op.Action == ActionSet {
		if len(args) != 4 {
			r.say(reply, fmt.Sprintf("Usage: %sadmin user add|set NICK LEVEL", prefix))
			return
		}
		name := capitalize(args[3])
		level, err := database.ParseLevel(name)
		if err != nil {
			r.say(reply, fmt.Sprintf("Invalid level %s", name))
			return
		}
		if !user.CanGrant(callerLevel, level) {
			r.say(reply, "Permission denied")
			return
		}
		op.Level = level
	}

	key := strings.ToLower(op.Nick)
	if prev, ok := r.pending[key]; ok {
		r.logger.Warning("Pending %s for %s (request %s) replaced by %s (request %s)",
			prev.Action, prev.Nick, prev.ID, op.Action, op.ID)
	}
	r.pending[key] = op

	if err := r.chat.Whois(op.Nick); err != nil {
		delete(r.pending, key)
		r.fail(op, err)
		return
	}
	r.logger.Info("Looking up %s for %s (request %s)", op.Nick, op.RequestedBy, op.ID)
	r.say(reply, fmt.Sprintf("Looking up hostmask for %s...", op.Nick))
}

// Resolved applies the op waiting on the reply's nick. It reports false
// when nothing was pending.
func (r *Resolver) Resolved(reply irc.WhoisReply) bool {
	key := strings.ToLower(reply.Nick)
	op, ok := r.pending[key]
	if !ok {
		return false
	}
	delete(r.pending, key)

	hostmask := reply.Identity().String()
	var (
		text   string
		action string
		err    error
	)
	switch op.Action {
	case ActionRemove:
		err = r.users.Remove(hostmask)
		text = fmt.Sprintf("User %s removed", reply.Nick)
		action = database.AuditUserRemove
	case ActionSet:
		err = r.users.SetLevel(reply.Nick, hostmask, op.Level)
		text = fmt.Sprintf("User %s set to %s", reply.Nick, op.Level)
		action = database.AuditUserSet
	default:
		err = r.users.SetLevel(reply.Nick, hostmask, op.Level)
		text = fmt.Sprintf("User %s added as %s", reply.Nick, op.Level)
		action = database.AuditUserAdd
	}

	if err != nil {
		r.fail(op, errors.NewDatabaseError("update user", err))
		return true
	}

	details := fmt.Sprintf("hostmask=%s", hostmask)
	if op.Action != ActionRemove {
		details += fmt.Sprintf(" level=%s", op.Level)
	}
	r.audit(op, action, details, "success")
	r.logger.Success("%s (request %s)", text, op.ID)
	r.say(op.Channel, text)
	return true
}

// Failed ends the op waiting on nick with a failure notice. A WHOIS end
// after a successful reply finds nothing pending and reports false.
func (r *Resolver) Failed(nick string) bool {
	key := strings.ToLower(nick)
	op, ok := r.pending[key]
	if !ok {
		return false
	}
	delete(r.pending, key)
	r.fail(op, fmt.Errorf("no WHOIS reply"))
	return true
}

// Expire fails every op older than the lookup timeout and returns how many
// were dropped
func (r *Resolver) Expire(now time.Time) int {
	if r.timeout <= 0 {
		return 0
	}

	var stale []string
	for key, op := range r.pending {
		if now.Sub(op.Created) > r.timeout {
			stale = append(stale, key)
		}
	}
	sort.Strings(stale)

	for _, key := range stale {
		op := r.pending[key]
		delete(r.pending, key)
		r.fail(op, fmt.Errorf("lookup expired after %v", r.timeout))
	}
	return len(stale)
}

func (r *Resolver) fail(op PendingOp, cause error) {
	text := r.errors.HandleOp(errors.NewPrivilegedOpError(fmt.Sprintf("WHOIS failed for %s", op.Nick), op.Nick, cause), op.ID)
	r.audit(op, database.AuditUserLookupFail, fmt.Sprintf("action=%s request=%s", op.Action, op.ID), cause.Error())
	r.say(op.Channel, text)
}

func (r *Resolver) audit(op PendingOp, action, details, result string) {
	if err := r.db.LogAuditAction(op.RequestedBy, op.RequestedByHostmask, action, op.Nick, details, result); err != nil {
		r.errors.LogError(errors.NewDatabaseError("audit log", err), "identity resolution")
	}
}

func (r *Resolver) say(target, text string) {
	if err := r.chat.Privmsg(target, text); err != nil {
		r.logger.Error("Failed to send to %s: %v", target, err)
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	s = strings.ToLower(s)
	return strings.ToUpper(s[:1]) + s[1:]
}
