package commands

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/yourusername/lolo-bridge/internal/config"
	"github.com/yourusername/lolo-bridge/internal/database"
	"github.com/yourusername/lolo-bridge/internal/output"
	"github.com/yourusername/lolo-bridge/internal/user"
)

// Bundle loader errors the admin command reports specially
var (
	ErrBundleLoaded    = stderrors.New("bundle already loaded")
	ErrBundleNotLoaded = stderrors.New("bundle not loaded")
)

// BundleManager is the plugin loader as seen by the admin command
type BundleManager interface {
	Available() ([]string, error)
	Loaded() []string
	Load(id string) error
	Unload(id string) ([]string, error)
	Reload(id string) ([]string, error)
	Fetch(ctx context.Context, url string) (string, error)
	Install(id string) error
}

// Followup is the loop-side half of a command whose slow part ran in the
// background. Finish runs on the event loop; a non-empty result goes to
// Target.
type Followup struct {
	Target string
	Finish func() string
}

// ChannelList is the runtime auto-join list edited by admin channels
type ChannelList interface {
	Add(channel string) bool
	Remove(channel string) bool
	AutoJoin() []string
}

// Deps bundles what the built-in commands need
type Deps struct {
	Config     *config.Config
	ConfigPath string // empty disables persisting channel list edits
	DB         *database.DB
	Users      *user.Manager
	Dispatcher *Dispatcher
	Bundles    BundleManager // nil disables admin plugin
	Channels   ChannelList
	Logger     output.Logger

	// Context bounds plugin downloads; defaults to context.Background
	Context   context.Context
	StartTime time.Time
}

// Builtins holds shared state for the bridge's own commands
type Builtins struct {
	Deps
	followups chan Followup
}

// RegisterBuiltins registers every built-in command on the dispatcher's registry
func RegisterBuiltins(deps Deps) *Builtins {
	if deps.Context == nil {
		deps.Context = context.Background()
	}
	if deps.StartTime.IsZero() {
		deps.StartTime = time.Now()
	}
	b := &Builtins{Deps: deps, followups: make(chan Followup, 8)}

	registry := deps.Dispatcher.Registry()
	for _, reg := range []Registration{
		{Name: "ping", Handler: b.ping, Help: "Ping the bot.", Level: database.LevelNormal},
		{Name: "test", Handler: b.test, Help: "Check the bot is answering.", Level: database.LevelNormal},
		{Name: "about", Handler: b.about, Help: "Show information about the bot.", Level: database.LevelNormal},
		{Name: "uptime", Handler: b.uptime, Help: "Show bot uptime.", Level: database.LevelNormal},
		{Name: "status", Handler: b.status, Help: "Show bot status.", Level: database.LevelNormal},
		{Name: "version", Handler: b.version, Help: "Show bot version.", Level: database.LevelNormal},
		{Name: "commands", Handler: b.listCommands, Help: "List all registered commands.", Level: database.LevelNormal},
		{Name: "help", Handler: b.listCommands, Help: "List all registered commands.", Level: database.LevelNormal},
		{Name: "reload", Handler: b.reloadHint, Help: "Explain how to reload plugins.", Level: database.LevelNormal},
		{Name: "echo", Handler: b.echo, Help: "Echo back the input.", Level: database.LevelNormal},
		{Name: "say", Handler: b.say, Help: "Say something in a channel or private message.", Level: database.LevelAdmin},
		{Name: "join", Handler: b.join, Help: "Join a channel.", Level: database.LevelAdmin},
		{Name: "part", Handler: b.part, Help: "Leave a channel.", Level: database.LevelAdmin},
		{Name: "prefix", Handler: b.prefix, Help: "Show or set the channel command prefix.", Level: database.LevelNormal},
		{Name: "enable", Handler: b.enable, Help: "Enable a command in this channel.", Level: database.LevelAdmin},
		{Name: "disable", Handler: b.disable, Help: "Disable a command in this channel.", Level: database.LevelAdmin},
		{Name: "verify", Handler: b.verify, Help: "Verify yourself as the bot owner (PM only).", Level: database.LevelNormal},
		{Name: "admin", Handler: b.admin, Help: "User, channel and plugin administration.", Level: database.LevelAdmin},
	} {
		registry.RegisterCommand(reg)
	}
	return b
}

// Followups delivers the results of background work. The event loop must
// drain it and call Finish.
func (b *Builtins) Followups() <-chan Followup {
	return b.followups
}

// background runs work on its own goroutine and queues the function it
// returns for the event loop
func (b *Builtins) background(target string, work func(ctx context.Context) func() string) {
	go func() {
		finish := work(b.Context)
		select {
		case b.followups <- Followup{Target: target, Finish: finish}:
		case <-b.Context.Done():
		}
	}()
}

// caller returns the invocation being dispatched
func (b *Builtins) caller() Invocation {
	return b.Dispatcher.Caller()
}

// usagePrefix is the prefix the caller typed, "!" when unknown
func (b *Builtins) usagePrefix() string {
	if p := b.caller().Prefix; p != "" {
		return p
	}
	return "!"
}

// audit writes an audit entry; failures are logged, never returned
func (b *Builtins) audit(action, target, details, result string) {
	b.auditAs(b.caller(), action, target, details, result)
}

// auditAs is audit for work that finishes after dispatch has returned
func (b *Builtins) auditAs(inv Invocation, action, target, details, result string) {
	if err := b.DB.LogAuditAction(inv.Nick, inv.Hostmask, action, target, details, result); err != nil {
		b.Logger.Warning("Failed to log audit action %s: %v", action, err)
	}
}
