package plugins

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/yourusername/lolo-bridge/internal/commands"
	"github.com/yourusername/lolo-bridge/internal/config"
	"github.com/yourusername/lolo-bridge/internal/errors"
	"github.com/yourusername/lolo-bridge/internal/output"
)

const diceSource = `package dice

import (
	"strconv"
	"strings"
)

func Commands() []string { return []string{"roll", "Flip"} }

func Help(name string) string { return "dice " + name }

func Handle(name, channel, nick string, args []string) (string, error) {
	switch name {
	case "roll":
		return nick + " rolled " + strconv.Itoa(len(args)) + " in " + channel, nil
	case "flip":
		return strings.ToUpper("heads"), nil
	}
	return "", nil
}
`

const dice2Source = `package dice

func Commands() []string { return []string{"roll"} }

func Handle(name, channel, nick string, args []string) (string, error) {
	return "v2", nil
}
`

const evilSource = `package evil

import "os"

func Commands() []string { return []string{"rm"} }

func Handle(name, channel, nick string, args []string) (string, error) {
	return "", os.RemoveAll("/")
}
`

const noHandleSource = `package half

func Commands() []string { return []string{"half"} }
`

func newTestLoader(t *testing.T) (*Loader, *commands.Registry, config.PluginsConfig) {
	t.Helper()
	cfg := config.DefaultConfig().Plugins
	cfg.Dir = t.TempDir()
	registry := commands.NewRegistry()
	return NewLoader(cfg, registry, output.NopLogger{}), registry, cfg
}

func writeBundle(t *testing.T, dir, id, src string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, id+".go"), []byte(src), 0o644))
}

func call(t *testing.T, registry *commands.Registry, name string, args ...string) string {
	t.Helper()
	reg, ok := registry.Get(name)
	require.True(t, ok, "command %s should be registered", name)
	msg, err := reg.Handler("#chan", "alice", args)
	require.NoError(t, err)
	return msg
}

func TestLoader_LoadUnload(t *testing.T) {
	loader, registry, cfg := newTestLoader(t)
	writeBundle(t, cfg.Dir, "dice", diceSource)

	require.NoError(t, loader.Load("dice"))
	assert.Equal(t, []string{"dice"}, loader.Loaded())
	assert.Equal(t, "alice rolled 2 in #chan", call(t, registry, "roll", "1", "2"))
	assert.Equal(t, "HEADS", call(t, registry, "flip"))

	reg, _ := registry.Get("roll")
	assert.Equal(t, "dice", reg.Bundle)
	assert.Equal(t, "dice roll", reg.Help)

	assert.ErrorIs(t, loader.Load("dice"), ErrAlreadyLoaded)

	removed, err := loader.Unload("dice")
	require.NoError(t, err)
	assert.Equal(t, []string{"flip", "roll"}, removed)
	assert.False(t, registry.Has("roll"))
	assert.Empty(t, loader.Loaded())

	_, err = loader.Unload("dice")
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestLoader_UnloadKeepsBuiltins(t *testing.T) {
	loader, registry, cfg := newTestLoader(t)
	registry.Register("ping", func(string, string, []string) (string, error) { return "pong", nil }, "")
	writeBundle(t, cfg.Dir, "dice", diceSource)

	require.NoError(t, loader.Load("dice"))
	_, err := loader.Unload("dice")
	require.NoError(t, err)
	assert.Equal(t, []string{"ping"}, registry.List())
}

func TestLoader_Reload(t *testing.T) {
	loader, registry, cfg := newTestLoader(t)
	writeBundle(t, cfg.Dir, "dice", diceSource)
	require.NoError(t, loader.Load("dice"))

	writeBundle(t, cfg.Dir, "dice", dice2Source)
	removed, err := loader.Reload("dice")
	require.NoError(t, err)
	assert.Equal(t, []string{"flip", "roll"}, removed)
	assert.Equal(t, "v2", call(t, registry, "roll"))
	assert.False(t, registry.Has("flip"))

	// a broken reload leaves the bundle unloaded
	writeBundle(t, cfg.Dir, "dice", "package dice\nfunc Commands( {")
	_, err = loader.Reload("dice")
	require.Error(t, err)
	assert.False(t, loader.IsLoaded("dice"))
	assert.False(t, registry.Has("roll"))

	// reload of a bundle that is not loaded simply loads it
	writeBundle(t, cfg.Dir, "dice", diceSource)
	removed, err = loader.Reload("dice")
	require.NoError(t, err)
	assert.Empty(t, removed)
	assert.True(t, loader.IsLoaded("dice"))
}

func TestLoader_RejectsForbiddenImports(t *testing.T) {
	loader, registry, cfg := newTestLoader(t)
	writeBundle(t, cfg.Dir, "evil", evilSource)

	err := loader.Load("evil")
	require.Error(t, err)
	botErr, ok := errors.AsBotError(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrorTypeTrustBoundary, botErr.Type)
	assert.Contains(t, botErr.UserMessage, `"os"`)
	assert.False(t, registry.Has("rm"))
	assert.False(t, loader.IsLoaded("evil"))
}

func TestLoader_BadBundles(t *testing.T) {
	loader, _, cfg := newTestLoader(t)
	writeBundle(t, cfg.Dir, "half", noHandleSource)

	assert.Error(t, loader.Load("half"))
	assert.Error(t, loader.Load("missing"))
	assert.Error(t, loader.Load("../etc/passwd"))
	assert.Empty(t, loader.Loaded())
}

func TestLoader_AvailableAndLoadAll(t *testing.T) {
	loader, registry, cfg := newTestLoader(t)
	writeBundle(t, cfg.Dir, "dice", diceSource)
	writeBundle(t, cfg.Dir, "evil", evilSource)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Dir, "notes.txt"), []byte("x"), 0o644))

	available, err := loader.Available()
	require.NoError(t, err)
	assert.Equal(t, []string{"dice", "evil"}, available)

	n, err := loader.LoadAll()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, registry.Has("roll"))
}

func TestFetchAndInstall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/dice.go":
			_, _ = w.Write([]byte(diceSource))
		case "/huge.go":
			_, _ = w.Write([]byte(strings.Repeat("/", 3*1024)))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	defer fetchClient.CloseIdleConnections()
	srvURL, err := url.Parse(srv.URL)
	require.NoError(t, err)

	loader, registry, cfg := newTestLoader(t)
	ctx := context.Background()

	_, err = loader.Fetch(ctx, srv.URL+"/dice.go")
	assert.ErrorIs(t, err, ErrFetchDisabled)

	loader.cfg.AllowFetch = true
	loader.cfg.MaxFetchKB = 2

	_, err = loader.Fetch(ctx, srv.URL+"/dice.txt")
	botErr, ok := errors.AsBotError(err)
	require.True(t, ok)
	assert.Equal(t, "Plugin URL must end with .go", botErr.UserMessage)

	_, err = loader.Fetch(ctx, srv.URL+"/dice.go")
	botErr, ok = errors.AsBotError(err)
	require.True(t, ok, "host not in allow-list")
	assert.Equal(t, errors.ErrorTypeTrustBoundary, botErr.Type)

	loader.cfg.AllowedHosts = []string{srvURL.Hostname()}

	id, err := loader.Fetch(ctx, srv.URL+"/dice.go")
	require.NoError(t, err)
	assert.Equal(t, "dice", id)
	_, err = os.Stat(filepath.Join(cfg.Dir, "dice.go"))
	require.NoError(t, err)
	assert.False(t, registry.Has("roll"), "fetching alone registers nothing")

	require.NoError(t, loader.Install(id))
	assert.True(t, registry.Has("roll"))

	// installing a bundle that is already loaded reloads it
	id, err = loader.Fetch(ctx, srv.URL+"/dice.go")
	require.NoError(t, err)
	require.NoError(t, loader.Install(id))
	assert.True(t, loader.IsLoaded("dice"))

	_, err = loader.Fetch(ctx, srv.URL+"/huge.go")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds 2 KB")

	_, err = loader.Fetch(ctx, srv.URL+"/gone.go")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 404")
}

func TestWatcher_ReportsWrites(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	w, err := NewWatcher(dir, output.NopLogger{})
	require.NoError(t, err)
	w.SetDebounce(50 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	changed := make(chan string, 4)
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, changed) }()

	writeBundle(t, dir, "dice", diceSource)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.md"), []byte("x"), 0o644))

	select {
	case id := <-changed:
		assert.Equal(t, "dice", id)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not report the bundle write")
	}

	cancel()
	require.NoError(t, <-done)
}
