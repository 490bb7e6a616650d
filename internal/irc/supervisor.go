// Package irc keeps the bridge connected to the IRC network and turns
// server traffic into Events for the coordinator.
package irc

import (
	"context"
	"crypto/tls"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/irc.v4"

	"github.com/yourusername/lolo-bridge/internal/backoff"
	"github.com/yourusername/lolo-bridge/internal/config"
	"github.com/yourusername/lolo-bridge/internal/errors"
	"github.com/yourusername/lolo-bridge/internal/output"
)

// ErrNotConnected is returned by outbound operations while no session is up
var ErrNotConnected = stderrors.New("not connected to IRC")

// ErrInvalidTarget is returned for a channel or nick that cannot be put on the wire
var ErrInvalidTarget = stderrors.New("invalid IRC target")

const (
	dialTimeout = 30 * time.Second
	quitMessage = "Lolo bridge shutting down"
)

// State is the supervisor's connection state
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	}
	return "unknown"
}

// DialFunc opens the raw connection to the server
type DialFunc func(ctx context.Context) (net.Conn, error)

// Supervisor owns the IRC connection. Run connects, serves and reconnects
// with exponential backoff until its context ends.
type Supervisor struct {
	cfg      *config.Config
	channels *ChannelList
	logger   output.Logger
	policy   *backoff.Policy
	dial     DialFunc
	events   chan Event

	mu       sync.Mutex
	state    State
	delay    time.Duration
	client   *irc.Client
	conn     net.Conn
	cancel   context.CancelFunc
	welcomed bool
	nick     string
	quitting bool
}

// NewSupervisor creates a supervisor for the server in cfg
func NewSupervisor(cfg *config.Config, channels *ChannelList, logger output.Logger) *Supervisor {
	s := &Supervisor{
		cfg:      cfg,
		channels: channels,
		logger:   logger,
		policy: backoff.New(
			cfg.Limits.GetReconnectDelayMinDuration(),
			cfg.Limits.GetReconnectDelayMaxDuration(),
		),
		events: make(chan Event, 64),
		nick:   cfg.Server.Nickname,
	}
	s.dial = s.dialServer
	return s
}

// Events returns the channel inbound events are delivered on
func (s *Supervisor) Events() <-chan Event {
	return s.events
}

// State returns the connection state and, while reconnecting, the delay
// before the next attempt
func (s *Supervisor) State() (State, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.delay
}

// CurrentNick returns the nick the server last confirmed
func (s *Supervisor) CurrentNick() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nick
}

func (s *Supervisor) setState(state State, delay time.Duration) {
	s.mu.Lock()
	s.state = state
	s.delay = delay
	s.mu.Unlock()
}

func (s *Supervisor) dialServer(ctx context.Context) (net.Conn, error) {
	address := net.JoinHostPort(s.cfg.Server.Address, strconv.Itoa(s.cfg.Server.Port))
	dialer := &net.Dialer{Timeout: dialTimeout}

	if s.cfg.Server.TLS {
		s.logger.Info("Connecting to %s with TLS...", address)
		tlsDialer := &tls.Dialer{
			NetDialer: dialer,
			Config:    &tls.Config{ServerName: s.cfg.Server.Address},
		}
		conn, err := tlsDialer.DialContext(ctx, "tcp", address)
		if err != nil {
			return nil, fmt.Errorf("TLS connection failed: %w", err)
		}
		return conn, nil
	}

	s.logger.Info("Connecting to %s...", address)
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("connection failed: %w", err)
	}
	return conn, nil
}

// Run keeps a session open until ctx ends or Quit is called. It returns nil
// on shutdown; transport errors only ever lead to another attempt.
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.setState(Disconnected, 0)

	for {
		if ctx.Err() != nil || s.isQuitting() {
			return nil
		}

		s.setState(Connecting, 0)
		connected, welcomed, err := s.session(ctx)
		if ctx.Err() != nil || s.isQuitting() {
			return nil
		}

		if welcomed {
			s.policy.Reset()
		}
		if err != nil {
			s.logger.Error("IRC session ended: %v", errors.NewTransportError("irc", err))
		}
		if connected {
			s.emit(ctx, Disconnect{Err: err})
		}

		delay := s.policy.Next()
		s.setState(Reconnecting, delay)
		s.logger.Warning("Reconnecting to IRC in %v...", delay)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil
		}
	}
}

// session dials and serves one connection. connected reports whether the
// dial succeeded and welcomed whether registration completed.
func (s *Supervisor) session(ctx context.Context) (connected, welcomed bool, err error) {
	conn, err := s.dial(ctx)
	if err != nil {
		return false, false, err
	}

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	client := irc.NewClient(conn, irc.ClientConfig{
		Nick:          s.cfg.Server.Nickname,
		User:          s.cfg.Server.Username,
		Name:          s.cfg.Server.Realname,
		PingFrequency: s.cfg.Server.GetPingFrequencyDuration(),
		PingTimeout:   s.cfg.Server.GetPingTimeoutDuration(),
		SendLimit:     s.cfg.Limits.GetSendLimitDuration(),
		SendBurst:     s.cfg.Limits.SendBurst,
		Handler:       s.handler(sessCtx),
	})

	s.mu.Lock()
	s.client = client
	s.conn = conn
	s.cancel = cancel
	s.welcomed = false
	s.mu.Unlock()

	// The client only notices cancellation once its read fails, so the
	// socket is closed here. On shutdown QUIT goes out first.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		<-sessCtx.Done()
		if ctx.Err() != nil {
			s.writeQuit(conn, quitMessage)
		}
		_ = conn.Close()
	}()

	err = client.RunContext(sessCtx)
	cancel()
	<-closed

	s.mu.Lock()
	welcomed = s.welcomed
	s.client = nil
	s.conn = nil
	s.cancel = nil
	s.mu.Unlock()

	if ctx.Err() != nil || stderrors.Is(err, context.Canceled) {
		err = nil
	}
	return true, welcomed, err
}

func (s *Supervisor) handler(ctx context.Context) irc.HandlerFunc {
	return func(c *irc.Client, msg *irc.Message) {
		s.logger.Traffic("irc", "<<", msg.String())

		switch msg.Command {
		case "001": // RPL_WELCOME
			s.onWelcome(ctx, c, msg)
			return

		case "NOTICE":
			from := "server"
			if msg.Prefix != nil && msg.Name != "" {
				from = msg.Name
			}
			s.logger.Info("Notice from %s: %s", from, msg.Trailing())
			return

		case "ERROR":
			s.logger.Error("IRC Error: %s", msg.Trailing())
			if !s.isQuitting() {
				s.Reconnect("server error: " + msg.Trailing())
			}
			return

		case "PRIVMSG":
			if reply, handled := ctcpReply(msg, time.Now()); handled {
				if reply != nil {
					if err := c.WriteMessage(reply); err != nil {
						s.logger.Error("Failed to send CTCP reply: %v", err)
					}
				}
				return
			}

		case "NICK":
			s.onNick(msg)
		}

		if ev, ok := toEvent(msg); ok {
			s.emit(ctx, ev)
		}
	}
}

func (s *Supervisor) onWelcome(ctx context.Context, c *irc.Client, msg *irc.Message) {
	nick := s.cfg.Server.Nickname
	if len(msg.Params) > 0 && msg.Params[0] != "" {
		nick = msg.Params[0]
	}

	s.mu.Lock()
	s.welcomed = true
	s.nick = nick
	s.state = Connected
	s.delay = 0
	s.mu.Unlock()
	s.logger.Success("Registered as %s: %s", nick, msg.Trailing())

	if err := s.identifyNickServ(c); err != nil {
		s.logger.Error("NickServ authentication failed: %v", err)
	}

	for _, channel := range s.channels.JoinOrder() {
		s.logger.Info("Joining channel %s", channel)
		if err := c.WriteMessage(&irc.Message{Command: "JOIN", Params: []string{channel}}); err != nil {
			s.logger.Error("Failed to join %s: %v", channel, err)
		}
	}

	s.emit(ctx, Welcome{Nick: nick})
}

func (s *Supervisor) onNick(msg *irc.Message) {
	if msg.Prefix == nil || len(msg.Params) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.EqualFold(msg.Name, s.nick) {
		s.nick = msg.Params[0]
		s.logger.Success("Nickname changed to: %s", s.nick)
	}
}

func (s *Supervisor) emit(ctx context.Context, ev Event) {
	select {
	case s.events <- ev:
	case <-ctx.Done():
	}
}

// Reconnect drops the live session so Run connects again. The handler calls
// it when the server sends ERROR. It does nothing while a connect or backoff
// wait is already under way.
func (s *Supervisor) Reconnect(reason string) {
	s.mu.Lock()
	state, cancel := s.state, s.cancel
	s.mu.Unlock()

	switch {
	case state == Connecting || state == Reconnecting:
		s.logger.Warning("Reconnection already in progress")
	case state == Connected && cancel != nil:
		s.logger.Warning("Triggering reconnection: %s", reason)
		s.setState(Reconnecting, s.policy.Peek())
		cancel()
	}
}

func (s *Supervisor) isQuitting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quitting
}

// write sends msg on the live session
func (s *Supervisor) write(msg *irc.Message) error {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()

	if client == nil {
		return ErrNotConnected
	}
	if err := client.WriteMessage(msg); err != nil {
		return fmt.Errorf("failed to send %s: %w", msg.Command, err)
	}
	s.logger.Traffic("irc", ">>", msg.String())
	return nil
}

// Privmsg sends text to a channel or nick. CR and LF in text are replaced.
func (s *Supervisor) Privmsg(target, text string) error {
	if !ValidTarget(target) {
		return fmt.Errorf("%w: %q", ErrInvalidTarget, target)
	}
	text = strings.NewReplacer("\r", " ", "\n", " ").Replace(text)
	return s.write(&irc.Message{Command: "PRIVMSG", Params: []string{target, text}})
}

// Join joins channel
func (s *Supervisor) Join(channel string) error {
	if !ValidTarget(channel) {
		return fmt.Errorf("%w: %q", ErrInvalidTarget, channel)
	}
	return s.write(&irc.Message{Command: "JOIN", Params: []string{channel}})
}

// Part leaves channel
func (s *Supervisor) Part(channel string) error {
	if !ValidTarget(channel) {
		return fmt.Errorf("%w: %q", ErrInvalidTarget, channel)
	}
	return s.write(&irc.Message{Command: "PART", Params: []string{channel}})
}

// Whois asks the server for nick's identity. The answer arrives as a
// WhoisReply and/or WhoisEnd event.
func (s *Supervisor) Whois(nick string) error {
	if !ValidTarget(nick) {
		return fmt.Errorf("%w: %q", ErrInvalidTarget, nick)
	}
	return s.write(&irc.Message{Command: "WHOIS", Params: []string{nick}})
}

// Quit sends QUIT and ends the session. Run returns instead of
// reconnecting.
func (s *Supervisor) Quit(message string) error {
	s.mu.Lock()
	conn, cancel := s.conn, s.cancel
	s.quitting = true
	s.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}
	if message == "" {
		message = quitMessage
	}
	s.writeQuit(conn, message)
	cancel()
	return nil
}

// writeQuit bypasses the client's send queue, which may already be
// stopped when the session is torn down
func (s *Supervisor) writeQuit(w io.Writer, message string) {
	line := (&irc.Message{Command: "QUIT", Params: []string{message}}).String()
	if _, err := io.WriteString(w, line+"\r\n"); err != nil {
		s.logger.Error("Failed to send QUIT message: %v", err)
		return
	}
	s.logger.Traffic("irc", ">>", line)
	s.logger.Info("Sent QUIT message")
}
