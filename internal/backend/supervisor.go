// Package backend keeps the websocket link to the command server alive and
// carries requests and responses over it.
package backend

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yourusername/lolo-bridge/internal/backoff"
	"github.com/yourusername/lolo-bridge/internal/config"
	"github.com/yourusername/lolo-bridge/internal/errors"
	"github.com/yourusername/lolo-bridge/internal/output"
)

// ErrBackendDown is returned by Send while no session is live
var ErrBackendDown = stderrors.New("command server is down")

const (
	writeTimeout = 10 * time.Second
	closeTimeout = 2 * time.Second
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

// session is one websocket connection. Its heartbeat awaiter lives and dies
// with it.
type session struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	awaiter chan struct{}

	closeOnce sync.Once
}

func (sess *session) write(data []byte) error {
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()

	if err := sess.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return sess.conn.WriteMessage(websocket.TextMessage, data)
}

// await installs a fresh awaiter, replacing any earlier one
func (sess *session) await() <-chan struct{} {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.awaiter = make(chan struct{})
	return sess.awaiter
}

// resolve completes the pending awaiter. It reports false when none is
// pending.
func (sess *session) resolve() bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.awaiter == nil {
		return false
	}
	close(sess.awaiter)
	sess.awaiter = nil
	return true
}

func (sess *session) close(graceful bool) {
	sess.closeOnce.Do(func() {
		if graceful {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = sess.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeTimeout))
		}
		_ = sess.conn.Close()
	})
}

// Supervisor owns the websocket link. Run connects, serves and reconnects
// with exponential backoff until its context ends.
type Supervisor struct {
	url       string
	logger    output.Logger
	policy    *backoff.Policy
	dialer    *websocket.Dialer
	interval  time.Duration
	timeout   time.Duration
	now       func() time.Time
	responses chan Response

	mu        sync.Mutex
	state     State
	delay     time.Duration
	sess      *session
	downSince time.Time
	closed    bool
}

// NewSupervisor creates a supervisor for the command server in cfg
func NewSupervisor(cfg *config.Config, logger output.Logger) *Supervisor {
	return &Supervisor{
		url:    cfg.Backend.URL,
		logger: logger,
		policy: backoff.New(
			cfg.Limits.GetReconnectDelayMinDuration(),
			cfg.Limits.GetReconnectDelayMaxDuration(),
		),
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.Backend.GetHandshakeTimeoutDuration(),
		},
		interval:  cfg.Backend.GetHeartbeatIntervalDuration(),
		timeout:   cfg.Backend.GetHeartbeatTimeoutDuration(),
		now:       time.Now,
		responses: make(chan Response, 64),
	}
}

// Responses returns the channel decoded responses are delivered on
func (s *Supervisor) Responses() <-chan Response {
	return s.responses
}

// State returns the connection state and, while reconnecting, the delay
// before the next attempt
func (s *Supervisor) State() (State, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.delay
}

func (s *Supervisor) setState(state State, delay time.Duration) {
	s.mu.Lock()
	s.state = state
	s.delay = delay
	s.mu.Unlock()
}

// Down reports whether no session is live and for how long that has been
// noticed. The first call that finds the link down starts the clock.
func (s *Supervisor) Down() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess != nil {
		return 0, false
	}
	now := s.now()
	if s.downSince.IsZero() {
		s.downSince = now
	}
	return now.Sub(s.downSince), true
}

// DownFor returns how long the backend has been down, or zero while it is
// up or before any failure has been noticed
func (s *Supervisor) DownFor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess != nil || s.downSince.IsZero() {
		return 0
	}
	return s.now().Sub(s.downSince)
}

// markDownLocked records the first moment the link was seen down
func (s *Supervisor) markDownLocked() {
	if s.downSince.IsZero() {
		s.downSince = s.now()
	}
}

// Send writes req on the live session. It returns ErrBackendDown while no
// session is live; a failed write ends the session.
func (s *Supervisor) Send(req Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	s.mu.Lock()
	sess := s.sess
	if sess == nil {
		s.markDownLocked()
	}
	s.mu.Unlock()

	if sess == nil {
		return ErrBackendDown
	}
	if err := sess.write(data); err != nil {
		s.drop(sess, fmt.Sprintf("write failed: %v", err))
		return fmt.Errorf("%w: %v", ErrBackendDown, err)
	}
	s.logger.Traffic("backend", ">>", string(data))
	return nil
}

// drop clears sess as the live session and closes its socket, which ends
// its reader. It is a no-op for a session that is already gone.
func (s *Supervisor) drop(sess *session, reason string) {
	s.mu.Lock()
	if s.sess == sess {
		s.sess = nil
		s.markDownLocked()
		s.logger.Warning("Command server connection lost: %s", reason)
	}
	s.mu.Unlock()
	sess.close(false)
}

// Run keeps a session open until ctx ends or Close is called. It returns
// nil on shutdown; transport errors only ever lead to another attempt.
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.setState(Disconnected, 0)

	for {
		if ctx.Err() != nil || s.isClosed() {
			return nil
		}

		s.setState(Connecting, 0)
		if err := s.session(ctx); err != nil {
			s.logger.Error("Command server session ended: %v", errors.NewTransportError("backend", err))
		}
		if ctx.Err() != nil || s.isClosed() {
			return nil
		}

		delay := s.policy.Next()
		s.setState(Reconnecting, delay)
		s.logger.Warning("Reconnecting to command server in %v...", delay)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil
		}
	}
}

// session dials and serves one connection until it fails or ctx ends
func (s *Supervisor) session(ctx context.Context) error {
	s.logger.Info("Connecting to command server at %s...", s.url)
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		s.mu.Lock()
		s.markDownLocked()
		s.mu.Unlock()
		return fmt.Errorf("dial failed: %w", err)
	}

	sess := &session{conn: conn}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		sess.close(true)
		return nil
	}
	s.sess = sess
	s.downSince = time.Time{}
	s.state = Connected
	s.delay = 0
	s.mu.Unlock()
	s.policy.Reset()
	s.logger.Success("Connected to command server")

	sessCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		<-sessCtx.Done()
		if ctx.Err() != nil {
			sess.close(true)
		}
	}()
	go func() {
		defer wg.Done()
		s.heartbeat(sessCtx, sess)
	}()

	err = s.read(ctx, sess)
	s.drop(sess, fmt.Sprintf("read failed: %v", err))
	cancel()
	wg.Wait()

	if ctx.Err() != nil || s.isClosed() || isNormalClose(err) {
		return nil
	}
	return err
}

// read delivers frames until the connection fails
func (s *Supervisor) read(ctx context.Context, sess *session) error {
	for {
		messageType, payload, err := sess.conn.ReadMessage()
		if err != nil {
			return err
		}
		if messageType != websocket.TextMessage {
			continue
		}
		s.logger.Traffic("backend", "<<", string(payload))

		resp, heartbeat, err := decodeFrame(payload)
		if err != nil {
			s.logger.Warning("%v", errors.NewMalformedError("backend frame", string(payload), err))
			continue
		}
		if heartbeat {
			// an unsolicited heartbeat is the server's own check; echo it
			if !sess.resolve() {
				if err := sess.write(heartbeatPayload); err != nil {
					return err
				}
			}
			continue
		}

		select {
		case s.responses <- *resp:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// heartbeat checks the session every interval. A check that is not
// answered within the timeout drops the session.
func (s *Supervisor) heartbeat(ctx context.Context, sess *session) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		reply := sess.await()
		if err := sess.write(heartbeatPayload); err != nil {
			s.drop(sess, fmt.Sprintf("heartbeat write failed: %v", err))
			return
		}

		timer := time.NewTimer(s.timeout)
		select {
		case <-reply:
			timer.Stop()
		case <-timer.C:
			s.drop(sess, fmt.Sprintf("no heartbeat reply within %v", s.timeout))
			return
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// Close ends the live session with a close frame and stops Run from
// dialing again
func (s *Supervisor) Close() {
	s.mu.Lock()
	sess := s.sess
	s.sess = nil
	s.closed = true
	s.mu.Unlock()

	if sess != nil {
		sess.close(true)
		s.logger.Info("Command server connection closed")
	}
}

func (s *Supervisor) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func isNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
