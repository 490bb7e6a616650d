package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/yourusername/lolo-bridge/internal/backoff"
	"github.com/yourusername/lolo-bridge/internal/config"
	"github.com/yourusername/lolo-bridge/internal/output"
)

func TestDecodeFrame(t *testing.T) {
	tests := []struct {
		name      string
		frame     string
		want      *Response
		heartbeat bool
		wantErr   bool
	}{
		{name: "heartbeat", frame: `{"type":"heartbeat"}`, heartbeat: true},
		{name: "single string", frame: `{"response":"pong"}`, want: &Response{Response: Lines{"pong"}}},
		{
			name:  "array with target",
			frame: `{"response":["a","b"],"target":"#chan"}`,
			want:  &Response{Response: Lines{"a", "b"}, Target: "#chan"},
		},
		{name: "empty array", frame: `{"response":[]}`, want: &Response{Response: Lines{}}},
		{name: "not json", frame: `pong`, wantErr: true},
		{name: "missing response", frame: `{"target":"#chan"}`, wantErr: true},
		{name: "unknown type", frame: `{"type":"hello"}`, wantErr: true},
		{name: "number response", frame: `{"response":42}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, heartbeat, err := decodeFrame([]byte(tt.frame))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.heartbeat, heartbeat)
			assert.Equal(t, tt.want, resp)
		})
	}
}

func TestRequestEncoding(t *testing.T) {
	data, err := json.Marshal(Request{Line: ":a!b@c PRIVMSG #x :hi"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"line":":a!b@c PRIVMSG #x :hi"}`, string(data))

	data, err = json.Marshal(Request{Line: "l", Prompt: "p", Context: "c"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"line":"l","prompt":"p","context":"c"}`, string(data))

	assert.JSONEq(t, `{"type":"heartbeat"}`, string(heartbeatPayload))
}

func TestParseMarker(t *testing.T) {
	tests := []struct {
		in   string
		want Marker
		ok   bool
	}{
		{in: "__PRIVMSG__::#chan::hello", want: Marker{Kind: MarkerPrivmsg, Target: "#chan", Text: "hello"}, ok: true},
		{in: "__PRIVMSG__::bob::a::b", want: Marker{Kind: MarkerPrivmsg, Target: "bob", Text: "a::b"}, ok: true},
		{in: "__PRIVMSG__::#chan", ok: false},
		{in: "__PRIVMSG__::::text", ok: false},
		{in: "__JOIN__::#new", want: Marker{Kind: MarkerJoin, Target: "#new"}, ok: true},
		{in: "__PART__::#old", want: Marker{Kind: MarkerPart, Target: "#old"}, ok: true},
		{in: "__JOIN__::", ok: false},
		{in: "__JOIN__::#a\r\nPRIVMSG NickServ :DROP", ok: false},
		{in: "__PART__::#a,#b", ok: false},
		{in: "__PRIVMSG__::bob smith::hi", ok: false},
		{in: "__PRIVMSG__::#c\x00::hi", ok: false},
		{in: "__PRIVMSG__:::evil::hi", ok: false},
		{in: "plain text", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.in != "plain text", IsMarker(tt.in))
			got, ok := ParseMarker(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}

	m, ok := ParseMarker(PrivmsgMarker("#c", "x"))
	require.True(t, ok)
	assert.Equal(t, "x", m.Text)
	assert.Equal(t, Marker{Kind: MarkerJoin, Target: "#c"}, mustMarker(t, JoinMarker("#c")))
	assert.Equal(t, Marker{Kind: MarkerPart, Target: "#c"}, mustMarker(t, PartMarker("#c")))
}

func mustMarker(t *testing.T, s string) Marker {
	t.Helper()
	m, ok := ParseMarker(s)
	require.True(t, ok, s)
	return m
}

func TestSessionAwaiter(t *testing.T) {
	sess := &session{}
	assert.False(t, sess.resolve(), "nothing pending")

	first := sess.await()
	second := sess.await()
	assert.True(t, sess.resolve())
	assert.False(t, sess.resolve())

	select {
	case <-second:
	default:
		t.Fatal("the live awaiter was not resolved")
	}
	select {
	case <-first:
		t.Fatal("a replaced awaiter must not be resolved")
	default:
	}
}

func TestSupervisor_DownClock(t *testing.T) {
	s := newTestSupervisor("ws://127.0.0.1:1")
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	now := t0
	s.now = func() time.Time { return now }

	assert.Zero(t, s.DownFor(), "nothing has failed yet")
	assert.ErrorIs(t, s.Send(Request{Line: "x"}), ErrBackendDown)

	now = t0.Add(30 * time.Second)
	down, isDown := s.Down()
	assert.True(t, isDown)
	assert.Equal(t, 30*time.Second, down)
	assert.Equal(t, 30*time.Second, s.DownFor())

	// later failures keep the first timestamp
	assert.ErrorIs(t, s.Send(Request{Line: "y"}), ErrBackendDown)
	now = t0.Add(45 * time.Second)
	assert.Equal(t, 45*time.Second, s.DownFor())
}

func TestSupervisor_SendAndReceive(t *testing.T) {
	defer goleak.VerifyNone(t)

	fb := newFakeBackend(t)
	defer fb.Close()

	s := newTestSupervisor(fb.URL())
	ctx, cancel := context.WithCancel(context.Background())
	done := runSupervisor(ctx, s)

	c := fb.Accept(t)
	waitState(t, s, Connected)
	_, isDown := s.Down()
	assert.False(t, isDown)

	require.NoError(t, s.Send(Request{Line: ":a!b@c PRIVMSG #x :hi", Prompt: "hi"}))
	assert.JSONEq(t, `{"line":":a!b@c PRIVMSG #x :hi","prompt":"hi"}`, c.Next(t))

	c.Send(t, `{"response":["one","two"],"target":"#x"}`)
	assert.Equal(t, Response{Response: Lines{"one", "two"}, Target: "#x"}, nextResponse(t, s))

	// malformed frames are dropped and the session survives
	c.Send(t, `{not json`)
	c.Send(t, `{"response":"still here"}`)
	assert.Equal(t, Response{Response: Lines{"still here"}}, nextResponse(t, s))

	require.NoError(t, s.Send(Request{Line: "after"}))
	assert.JSONEq(t, `{"line":"after"}`, c.Next(t))

	cancel()
	c.ExpectClose(t, websocket.CloseNormalClosure)
	require.NoError(t, wait(t, done))

	state, _ := s.State()
	assert.Equal(t, Disconnected, state)
	assert.ErrorIs(t, s.Send(Request{Line: "late"}), ErrBackendDown)
}

func TestSupervisor_HeartbeatKeepsSessionAlive(t *testing.T) {
	defer goleak.VerifyNone(t)

	fb := newFakeBackend(t)
	defer fb.Close()

	s := newTestSupervisor(fb.URL())
	s.interval = 20 * time.Millisecond
	s.timeout = 500 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	done := runSupervisor(ctx, s)

	c := fb.Accept(t)
	for i := 0; i < 3; i++ {
		assert.JSONEq(t, `{"type":"heartbeat"}`, c.Next(t))
		c.Send(t, `{"type":"heartbeat"}`)
	}
	waitState(t, s, Connected)
	fb.ExpectNoConnection(t, 50*time.Millisecond)

	cancel()
	require.NoError(t, wait(t, done))
}

func TestSupervisor_AnswersServerHeartbeat(t *testing.T) {
	defer goleak.VerifyNone(t)

	fb := newFakeBackend(t)
	defer fb.Close()

	s := newTestSupervisor(fb.URL())
	ctx, cancel := context.WithCancel(context.Background())
	done := runSupervisor(ctx, s)

	c := fb.Accept(t)
	waitState(t, s, Connected)

	// the server checks first; nothing of ours is pending so it gets an echo
	c.Send(t, `{"type":"heartbeat"}`)
	assert.JSONEq(t, `{"type":"heartbeat"}`, c.Next(t))
	c.Send(t, `{"type":"heartbeat"}`)
	assert.JSONEq(t, `{"type":"heartbeat"}`, c.Next(t))

	// the echo is not mistaken for a response
	c.Send(t, `{"response":"ok"}`)
	assert.Equal(t, Response{Response: Lines{"ok"}}, nextResponse(t, s))
	waitState(t, s, Connected)

	cancel()
	require.NoError(t, wait(t, done))
}

func TestSupervisor_MissedHeartbeatReconnects(t *testing.T) {
	defer goleak.VerifyNone(t)

	fb := newFakeBackend(t)
	defer fb.Close()

	s := newTestSupervisor(fb.URL())
	s.interval = 20 * time.Millisecond
	s.timeout = 50 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	done := runSupervisor(ctx, s)

	c1 := fb.Accept(t)
	assert.JSONEq(t, `{"type":"heartbeat"}`, c1.Next(t))
	c1.Send(t, `{"type":"heartbeat"}`)
	assert.JSONEq(t, `{"type":"heartbeat"}`, c1.Next(t))

	// second check goes unanswered: the socket is dropped and a new one dialled
	c1.ExpectClosed(t)
	c2 := fb.Accept(t)
	waitState(t, s, Connected)
	assert.Zero(t, s.DownFor(), "a fresh session clears the down marker")

	// a late reply on the dead socket cannot touch the new session
	assert.JSONEq(t, `{"type":"heartbeat"}`, c2.Next(t))
	c2.Send(t, `{"type":"heartbeat"}`)

	cancel()
	require.NoError(t, wait(t, done))
}

func TestSupervisor_ServerCloseReconnects(t *testing.T) {
	defer goleak.VerifyNone(t)

	fb := newFakeBackend(t)
	defer fb.Close()

	s := newTestSupervisor(fb.URL())
	ctx, cancel := context.WithCancel(context.Background())
	done := runSupervisor(ctx, s)

	c1 := fb.Accept(t)
	waitState(t, s, Connected)
	c1.Close()

	fb.Accept(t)
	waitState(t, s, Connected)
	require.NoError(t, s.Send(Request{Line: "again"}))

	cancel()
	require.NoError(t, wait(t, done))
}

func TestSupervisor_CloseSendsCloseFrame(t *testing.T) {
	defer goleak.VerifyNone(t)

	fb := newFakeBackend(t)
	defer fb.Close()

	s := newTestSupervisor(fb.URL())
	s.policy = backoff.New(time.Hour, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	done := runSupervisor(ctx, s)

	c := fb.Accept(t)
	waitState(t, s, Connected)

	s.Close()
	c.ExpectClose(t, websocket.CloseNormalClosure)
	assert.ErrorIs(t, s.Send(Request{Line: "x"}), ErrBackendDown)

	cancel()
	require.NoError(t, wait(t, done))
}

func TestSupervisor_CloseStopsRun(t *testing.T) {
	defer goleak.VerifyNone(t)

	fb := newFakeBackend(t)
	defer fb.Close()

	s := newTestSupervisor(fb.URL())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := runSupervisor(ctx, s)

	c := fb.Accept(t)
	waitState(t, s, Connected)

	// ctx is still live: Run must return on its own and not redial
	s.Close()
	c.ExpectClose(t, websocket.CloseNormalClosure)
	require.NoError(t, wait(t, done))
	fb.ExpectNoConnection(t, 100*time.Millisecond)

	state, _ := s.State()
	assert.Equal(t, Disconnected, state)
}

func TestSupervisor_DialFailureBacksOff(t *testing.T) {
	defer goleak.VerifyNone(t)

	fb := newFakeBackend(t)
	url := fb.URL()
	fb.Close()

	s := newTestSupervisor(url)
	s.policy = backoff.New(time.Hour, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	done := runSupervisor(ctx, s)

	waitState(t, s, Reconnecting)
	_, delay := s.State()
	assert.Equal(t, time.Hour, delay)
	_, isDown := s.Down()
	assert.True(t, isDown)

	cancel()
	require.NoError(t, wait(t, done))
}

func newTestSupervisor(url string) *Supervisor {
	cfg := config.DefaultConfig()
	cfg.Backend.URL = url
	s := NewSupervisor(cfg, output.NopLogger{})
	s.policy = backoff.New(10*time.Millisecond, 40*time.Millisecond)
	s.interval = time.Hour
	return s
}

func runSupervisor(ctx context.Context, s *Supervisor) <-chan error {
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	return done
}

func wait(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
		return nil
	}
}

func waitState(t *testing.T, s *Supervisor, want State) {
	t.Helper()
	require.Eventually(t, func() bool {
		state, _ := s.State()
		return state == want
	}, 2*time.Second, 5*time.Millisecond, "state never became %s", want)
}

func nextResponse(t *testing.T, s *Supervisor) Response {
	t.Helper()
	select {
	case resp := <-s.Responses():
		return resp
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a response")
		return Response{}
	}
}

// fakeBackend is an httptest websocket server that hands each accepted
// connection to the test
type fakeBackend struct {
	srv   *httptest.Server
	conns chan *fakeConn

	mu       sync.Mutex
	accepted []*fakeConn
}

type fakeConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	frames  chan string
	closeCh chan error
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()

	fb := &fakeBackend{conns: make(chan *fakeConn, 8)}
	upgrader := websocket.Upgrader{}
	fb.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fc := &fakeConn{conn: conn, frames: make(chan string, 64), closeCh: make(chan error, 1)}
		fb.mu.Lock()
		fb.accepted = append(fb.accepted, fc)
		fb.mu.Unlock()

		go fc.read()
		fb.conns <- fc
	}))
	return fb
}

func (fb *fakeBackend) URL() string {
	return "ws" + strings.TrimPrefix(fb.srv.URL, "http")
}

func (fb *fakeBackend) Accept(t *testing.T) *fakeConn {
	t.Helper()
	select {
	case c := <-fb.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a connection")
		return nil
	}
}

func (fb *fakeBackend) ExpectNoConnection(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case <-fb.conns:
		t.Fatal("unexpected reconnect")
	case <-time.After(d):
	}
}

func (fb *fakeBackend) Close() {
	fb.srv.Close()
	fb.mu.Lock()
	defer fb.mu.Unlock()
	for _, c := range fb.accepted {
		c.Close()
	}
}

func (c *fakeConn) read() {
	defer close(c.frames)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.closeCh <- err
			return
		}
		c.frames <- string(data)
	}
}

func (c *fakeConn) Send(t *testing.T, frame string) {
	t.Helper()
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	require.NoError(t, c.conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func (c *fakeConn) Close() {
	_ = c.conn.Close()
}

// Next returns the next frame the client sent
func (c *fakeConn) Next(t *testing.T) string {
	t.Helper()
	select {
	case frame, ok := <-c.frames:
		if !ok {
			t.Fatal("connection closed while waiting for a frame")
		}
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a frame")
		return ""
	}
}

// ExpectClosed drains frames until the client hangs up
func (c *fakeConn) ExpectClosed(t *testing.T) error {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-c.frames:
			if !ok {
				return <-c.closeCh
			}
		case <-timeout:
			t.Fatal("timed out waiting for the client to disconnect")
			return nil
		}
	}
}

// ExpectClose waits for a close frame with code
func (c *fakeConn) ExpectClose(t *testing.T, code int) {
	t.Helper()
	err := c.ExpectClosed(t)
	assert.True(t, websocket.IsCloseError(err, code), "got %v", err)
}
