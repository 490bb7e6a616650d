// Package bridge wires the chat and backend supervisors together around a
// single event loop. Everything the loop calls runs on its goroutine.
package bridge

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yourusername/lolo-bridge/internal/backend"
	"github.com/yourusername/lolo-bridge/internal/commands"
	"github.com/yourusername/lolo-bridge/internal/config"
	"github.com/yourusername/lolo-bridge/internal/database"
	"github.com/yourusername/lolo-bridge/internal/errors"
	"github.com/yourusername/lolo-bridge/internal/identity"
	"github.com/yourusername/lolo-bridge/internal/irc"
	"github.com/yourusername/lolo-bridge/internal/normalize"
	"github.com/yourusername/lolo-bridge/internal/output"
	"github.com/yourusername/lolo-bridge/internal/router"
)

// DefaultExpiryInterval is how often stale identity lookups are swept
const DefaultExpiryInterval = 10 * time.Second

// Chat is the chat-side supervisor
type Chat interface {
	Run(ctx context.Context) error
	Events() <-chan irc.Event
	CurrentNick() string
	Privmsg(target, text string) error
	Join(channel string) error
	Part(channel string) error
	Whois(nick string) error
	Quit(message string) error
}

// Backend is the command-server supervisor
type Backend interface {
	Run(ctx context.Context) error
	Responses() <-chan backend.Response
	Send(req backend.Request) error
	Down() (time.Duration, bool)
	Close()
}

// Bundles reloads plugin bundles whose files changed
type Bundles interface {
	IsLoaded(id string) bool
	Reload(id string) ([]string, error)
}

// Watcher reports changed bundle ids
type Watcher interface {
	Run(ctx context.Context, changed chan<- string) error
}

// Deps is everything the coordinator is built from. Bundles, Watcher and
// Followups are optional.
type Deps struct {
	Config     *config.Config
	DB         *database.DB
	Logger     output.Logger
	Errors     *errors.ErrorHandler
	Chat       Chat
	Backend    Backend
	Dispatcher *commands.Dispatcher
	Bundles    Bundles
	Watcher    Watcher
	Followups  <-chan commands.Followup
}

// Bridge is the coordinator
type Bridge struct {
	cfg        *config.Config
	db         *database.DB
	logger     output.Logger
	errors     *errors.ErrorHandler
	chat       Chat
	backend    Backend
	dispatcher *commands.Dispatcher
	bundles    Bundles
	watcher    Watcher
	followups  <-chan commands.Followup
	router     *router.Router
	resolver   *identity.Resolver

	expiryInterval time.Duration
	reloads        chan string

	mu         sync.Mutex
	cancelChat context.CancelFunc
	chatDone   chan struct{}
}

// New creates a coordinator
func New(deps Deps) *Bridge {
	b := &Bridge{
		cfg:            deps.Config,
		db:             deps.DB,
		logger:         deps.Logger,
		errors:         deps.Errors,
		chat:           deps.Chat,
		backend:        deps.Backend,
		dispatcher:     deps.Dispatcher,
		bundles:        deps.Bundles,
		watcher:        deps.Watcher,
		followups:      deps.Followups,
		expiryInterval: DefaultExpiryInterval,
		reloads:        make(chan string, 8),
		chatDone:       make(chan struct{}),
	}
	b.router = router.New(deps.Config, deps.DB, deps.Errors, deps.Logger, deps.Chat.CurrentNick)
	b.resolver = identity.NewResolver(deps.DB, deps.Chat, deps.Errors, deps.Logger, deps.Config.Limits.GetWhoisTimeoutDuration())
	return b
}

// Run starts both supervisors, the bundle watcher and the event loop, and
// returns once all of them have stopped
func (b *Bridge) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	chatCtx, cancelChat := context.WithCancel(ctx)
	b.mu.Lock()
	b.cancelChat = cancelChat
	b.mu.Unlock()
	defer cancelChat()

	g.Go(func() error {
		defer close(b.chatDone)
		return b.chat.Run(chatCtx)
	})
	g.Go(func() error {
		return b.backend.Run(ctx)
	})
	if b.watcher != nil && b.bundles != nil {
		g.Go(func() error {
			return b.watcher.Run(ctx, b.reloads)
		})
	}
	g.Go(func() error {
		return b.loop(ctx)
	})

	return g.Wait()
}

// StopChat ends the chat session, sending QUIT, and waits for the chat
// supervisor to return. The rest of the bridge keeps running.
func (b *Bridge) StopChat() {
	b.mu.Lock()
	cancel := b.cancelChat
	b.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-b.chatDone
}

func (b *Bridge) loop(ctx context.Context) error {
	ticker := time.NewTicker(b.expiryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-b.chat.Events():
			b.handleEvent(ev)
		case resp := <-b.backend.Responses():
			b.deliver(resp)
		case id := <-b.reloads:
			b.reloadBundle(id)
		case f := <-b.followups:
			if reply := f.Finish(); reply != "" {
				b.deliverString(f.Target, reply)
			}
		case now := <-ticker.C:
			if n := b.resolver.Expire(now); n > 0 {
				b.logger.Warning("Expired %d pending user lookup(s)", n)
			}
		}
	}
}

func (b *Bridge) handleEvent(ev irc.Event) {
	switch e := ev.(type) {
	case irc.PublicMessage:
		b.handleAction(b.router.Route(e.Raw))
	case irc.PrivateMessage:
		b.handleAction(b.router.Route(e.Raw))
	case irc.Join, irc.Part, irc.NickChange:
		b.handleAction(b.router.RouteEvent(e))
	case irc.WhoisReply:
		b.resolver.Resolved(e)
	case irc.WhoisEnd:
		b.resolver.Failed(e.Nick)
	case irc.Welcome:
		b.logger.Info("Chat session ready as %s", e.Nick)
	case irc.Disconnect:
		if e.Err != nil {
			b.logger.Warning("Chat connection lost: %v", e.Err)
		} else {
			b.logger.Warning("Chat connection lost")
		}
	}
}

func (b *Bridge) handleAction(action router.Action) {
	switch a := action.(type) {
	case router.LocalCommand:
		b.runCommand(a)
	case router.AdminCommand:
		b.resolver.HandleAdmin(a)
	case router.Mention:
		b.mention(a)
	case router.ForwardRaw:
		b.forward(backend.Request{Line: a.Line})
	}
}

func (b *Bridge) runCommand(cmd router.LocalCommand) {
	msg := cmd.Message
	level, err := b.db.LevelForHostmask(msg.Source.String())
	if err != nil {
		b.errors.LogError(errors.NewDatabaseError("get user level", err), "command dispatch")
		level = database.LevelNormal
	}

	result, handled := b.dispatcher.Dispatch(commands.Invocation{
		Name:     cmd.Name,
		Prefix:   cmd.Prefix,
		Args:     cmd.Args,
		Channel:  msg.Target,
		Nick:     msg.Source.Nick,
		Hostmask: msg.Source.String(),
		Level:    level,
		IsPM:     !cmd.IsChannel,
	})
	if !handled || result.Message == "" {
		return
	}
	b.deliverString(result.Target, result.Message)
}

func (b *Bridge) mention(m router.Mention) {
	if m.Prompt == "" {
		b.say(m.Message.ReplyTarget(), fmt.Sprintf("Hello %s! How can I help you?", m.Message.Source.Nick))
		return
	}
	if down, isDown := b.backend.Down(); isDown {
		b.reportDown(down)
		return
	}

	err := b.backend.Send(backend.Request{Line: m.Message.Raw, Prompt: m.Prompt, Context: m.Context})
	if err != nil {
		b.logger.Warning("Failed to forward mention: %v", err)
		if down, isDown := b.backend.Down(); isDown {
			b.reportDown(down)
		}
	}
}

func (b *Bridge) reportDown(down time.Duration) {
	b.say(b.cfg.Bot.Channel, fmt.Sprintf("Command server is down for %ds", int(down.Seconds())))
}

func (b *Bridge) forward(req backend.Request) {
	err := b.backend.Send(req)
	if err == nil || stderrors.Is(err, backend.ErrBackendDown) {
		return
	}
	b.errors.LogError(errors.NewTransportError("backend", err), "forward")
}

// deliver relays one backend response. Strings are handled in order.
func (b *Bridge) deliver(resp backend.Response) {
	target := resp.Target
	if target == "" {
		target = b.cfg.Bot.Channel
	}
	if !irc.ValidTarget(target) {
		b.logger.Warning("%v", errors.NewMalformedError("backend", target, fmt.Errorf("invalid response target")))
		return
	}
	for _, s := range resp.Response {
		b.deliverString(target, s)
	}
}

// deliverString acts on a marker, or sends text to target as normalized
// lines
func (b *Bridge) deliverString(target, s string) {
	marker, ok := backend.ParseMarker(s)
	if !ok {
		if backend.IsMarker(s) {
			b.logger.Warning("%v", errors.NewMalformedError("backend", s, fmt.Errorf("invalid marker target")))
			return
		}
		b.say(target, s)
		return
	}

	switch marker.Kind {
	case backend.MarkerPrivmsg:
		b.say(marker.Target, marker.Text)
	case backend.MarkerJoin:
		if err := b.chat.Join(marker.Target); err != nil {
			b.logger.Error("Failed to join %s: %v", marker.Target, err)
		}
	case backend.MarkerPart:
		if err := b.chat.Part(marker.Target); err != nil {
			b.logger.Error("Failed to part %s: %v", marker.Target, err)
		}
	}
}

// say splits text for the wire, sends it and logs each line as the bot's
func (b *Bridge) say(target, text string) {
	nick := b.chat.CurrentNick()
	for _, line := range normalize.Split(text, b.cfg.Server.MaxMessageLength) {
		if err := b.chat.Privmsg(target, line); err != nil {
			b.logger.Error("Failed to send to %s: %v", target, err)
			return
		}

		if irc.IsChannel(target) {
			b.logger.ChannelMessage(target, nick, line)
		} else {
			b.logger.PrivateMessage(target, line)
		}
		entry := &database.Message{
			Channel:  target,
			Nick:     nick,
			Hostmask: nick,
			Content:  line,
			IsBot:    true,
		}
		if err := b.db.LogMessage(entry); err != nil {
			b.errors.LogError(errors.NewDatabaseError("log message", err), "bot message logging")
		}
	}
}

func (b *Bridge) reloadBundle(id string) {
	if !b.bundles.IsLoaded(id) {
		return
	}
	removed, err := b.bundles.Reload(id)
	if err != nil {
		b.logger.Error("Failed to reload plugin %s after change: %v", id, err)
		return
	}
	b.logger.Success("Reloaded plugin %s after change (replaced: %s)", id, strings.Join(removed, ", "))
}
