// Package plugins loads command bundles: single Go source files interpreted
// at runtime, each in its own interpreter, and registered with a tag so they
// can be unloaded again as a unit.
package plugins

import (
	"fmt"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/yourusername/lolo-bridge/internal/commands"
	"github.com/yourusername/lolo-bridge/internal/config"
	"github.com/yourusername/lolo-bridge/internal/database"
	"github.com/yourusername/lolo-bridge/internal/errors"
	"github.com/yourusername/lolo-bridge/internal/output"
)

// Loader errors shared with the admin command
var (
	ErrAlreadyLoaded = commands.ErrBundleLoaded
	ErrNotLoaded     = commands.ErrBundleNotLoaded
)

// bundleID limits ids to names that are safe as file names
var bundleID = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Exported symbols every bundle provides
type (
	commandsFunc func() []string
	handleFunc   func(name, channel, nick string, args []string) (string, error)
	helpFunc     func(name string) string
)

type bundle struct {
	id       string
	interp   *interp.Interpreter
	commands []string
}

// Loader loads, unloads and fetches bundles for one registry
type Loader struct {
	cfg      config.PluginsConfig
	registry *commands.Registry
	logger   output.Logger
	symbols  interp.Exports
	allowed  map[string]bool

	mu      sync.Mutex
	bundles map[string]*bundle
}

// NewLoader creates a loader for the bundle directory in cfg
func NewLoader(cfg config.PluginsConfig, registry *commands.Registry, logger output.Logger) *Loader {
	allowed := make(map[string]bool, len(cfg.AllowedImports))
	for _, pkg := range cfg.AllowedImports {
		allowed[pkg] = true
	}

	return &Loader{
		cfg:      cfg,
		registry: registry,
		logger:   logger,
		symbols:  allowedSymbols(allowed),
		allowed:  allowed,
		bundles:  make(map[string]*bundle),
	}
}

// allowedSymbols keeps only the stdlib packages a bundle may import. The
// interpreter cannot resolve anything outside this set.
func allowedSymbols(allowed map[string]bool) interp.Exports {
	exports := make(interp.Exports)
	for key, symbols := range stdlib.Symbols {
		// keys are "import/path/pkgname"
		i := strings.LastIndex(key, "/")
		if i < 0 {
			continue
		}
		if allowed[key[:i]] {
			exports[key] = symbols
		}
	}
	return exports
}

// Dir returns the bundle directory
func (l *Loader) Dir() string {
	return l.cfg.Dir
}

// Path returns the source file for bundle id
func (l *Loader) Path(id string) string {
	return filepath.Join(l.cfg.Dir, id+".go")
}

// Available lists the bundle ids present in the bundle directory
func (l *Loader) Available() ([]string, error) {
	entries, err := os.ReadDir(l.cfg.Dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read plugin dir: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		if id := strings.TrimSuffix(name, ".go"); bundleID.MatchString(id) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Loaded lists the loaded bundle ids
func (l *Loader) Loaded() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	ids := make([]string, 0, len(l.bundles))
	for id := range l.bundles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// IsLoaded reports whether bundle id is loaded
func (l *Loader) IsLoaded(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.bundles[id]
	return ok
}

// Load interprets bundle id and registers its commands
func (l *Loader) Load(id string) error {
	if !bundleID.MatchString(id) {
		return errors.NewTrustBoundaryError(id, "invalid bundle name")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, loaded := l.bundles[id]; loaded {
		return ErrAlreadyLoaded
	}

	src, err := os.ReadFile(l.Path(id))
	if err != nil {
		return fmt.Errorf("failed to read plugin %s: %w", id, err)
	}

	b, err := l.interpret(id, string(src))
	if err != nil {
		return err
	}
	l.bundles[id] = b
	l.logger.Success("Loaded plugin %s (%s)", id, strings.Join(b.commands, ", "))
	return nil
}

// interpret checks the bundle's imports, evaluates it in a fresh
// interpreter and registers its commands
func (l *Loader) interpret(id, src string) (*bundle, error) {
	pkgName, err := l.checkImports(id, src)
	if err != nil {
		return nil, err
	}

	i := interp.New(interp.Options{})
	if err := i.Use(l.symbols); err != nil {
		return nil, fmt.Errorf("failed to load symbols: %w", err)
	}
	if _, err := i.Eval(src); err != nil {
		return nil, fmt.Errorf("failed to evaluate plugin %s: %w", id, err)
	}

	var list commandsFunc
	if err := lookup(i, pkgName, "Commands", &list); err != nil {
		return nil, err
	}
	var handle handleFunc
	if err := lookup(i, pkgName, "Handle", &handle); err != nil {
		return nil, err
	}
	var help helpFunc
	if err := lookup(i, pkgName, "Help", &help); err != nil {
		help = nil
	}

	names, err := callCommands(list)
	if err != nil {
		return nil, fmt.Errorf("plugin %s: %w", id, err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("plugin %s exports no commands", id)
	}

	b := &bundle{id: id, interp: i}
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if owner, exists := l.registry.Bundle(name); exists && owner == "" {
			l.logger.Warning("Plugin %s overrides built-in command %s", id, name)
		}

		cmdName := name
		reg := commands.Registration{
			Name:   cmdName,
			Bundle: id,
			Level:  database.LevelNormal,
			Handler: func(channel, nick string, args []string) (string, error) {
				return handle(cmdName, channel, nick, args)
			},
		}
		if help != nil {
			reg.Help = help(cmdName)
		}
		l.registry.RegisterCommand(reg)
		b.commands = append(b.commands, cmdName)
	}
	sort.Strings(b.commands)
	return b, nil
}

// checkImports parses the bundle's import block and rejects anything not in
// plugins.allowed_imports. It returns the package name.
func (l *Loader) checkImports(id, src string) (string, error) {
	file, err := parser.ParseFile(token.NewFileSet(), id+".go", src, parser.ImportsOnly)
	if err != nil {
		return "", fmt.Errorf("failed to parse plugin %s: %w", id, err)
	}

	var forbidden []string
	for _, spec := range file.Imports {
		pkg, err := strconv.Unquote(spec.Path.Value)
		if err != nil {
			return "", fmt.Errorf("failed to parse plugin %s: bad import %s", id, spec.Path.Value)
		}
		if !l.allowed[pkg] {
			forbidden = append(forbidden, strconv.Quote(pkg))
		}
	}
	if len(forbidden) > 0 {
		return "", errors.NewTrustBoundaryError(id, fmt.Sprintf("import %s is not allowed", strings.Join(forbidden, ", ")))
	}
	return file.Name.Name, nil
}

// lookup resolves pkg.name in the interpreter and stores it in target,
// which must point to a function variable of the expected type
func lookup(i *interp.Interpreter, pkg, name string, target interface{}) error {
	v, err := i.Eval(pkg + "." + name)
	if err != nil {
		return fmt.Errorf("plugin does not export %s: %w", name, err)
	}
	if !v.IsValid() {
		return fmt.Errorf("plugin does not export %s", name)
	}

	var ok bool
	switch t := target.(type) {
	case *commandsFunc:
		var fn func() []string
		fn, ok = v.Interface().(func() []string)
		*t = fn
	case *handleFunc:
		var fn func(string, string, string, []string) (string, error)
		fn, ok = v.Interface().(func(string, string, string, []string) (string, error))
		*t = fn
	case *helpFunc:
		var fn func(string) string
		fn, ok = v.Interface().(func(string) string)
		*t = fn
	}
	if !ok {
		return fmt.Errorf("plugin export %s has the wrong signature", name)
	}
	return nil
}

func callCommands(list commandsFunc) (names []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("Commands panicked: %v", r)
		}
	}()
	return list(), nil
}

// Unload removes bundle id's commands and drops its interpreter
func (l *Loader) Unload(id string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.unloadLocked(id)
}

func (l *Loader) unloadLocked(id string) ([]string, error) {
	if _, loaded := l.bundles[id]; !loaded {
		return nil, ErrNotLoaded
	}
	delete(l.bundles, id)
	removed := l.registry.UnregisterBundle(id)
	l.logger.Info("Unloaded plugin %s (removed: %s)", id, strings.Join(removed, ", "))
	return removed, nil
}

// Reload unloads bundle id when loaded, then loads it again. A failed load
// leaves the bundle unloaded.
func (l *Loader) Reload(id string) ([]string, error) {
	l.mu.Lock()
	var removed []string
	if _, loaded := l.bundles[id]; loaded {
		removed, _ = l.unloadLocked(id)
	}
	l.mu.Unlock()

	if err := l.Load(id); err != nil {
		return removed, err
	}
	return removed, nil
}

// LoadAll loads every bundle in the directory. Failures are logged and do
// not stop the remaining bundles; the number loaded is returned.
func (l *Loader) LoadAll() (int, error) {
	ids, err := l.Available()
	if err != nil {
		return 0, err
	}

	loaded := 0
	for _, id := range ids {
		if err := l.Load(id); err != nil {
			l.logger.Error("Failed to load plugin %s: %v", id, err)
			continue
		}
		loaded++
	}
	return loaded, nil
}
