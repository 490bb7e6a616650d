package commands

import (
	"sort"
	"strings"
	"sync"

	"github.com/yourusername/lolo-bridge/internal/database"
)

// Registry maps command names to their registrations
type Registry struct {
	commands map[string]Registration
	mu       sync.RWMutex
}

// NewRegistry creates a new command registry
func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[string]Registration),
	}
}

// Register adds or replaces a Normal-level command owned by bundle
func (r *Registry) Register(name string, handler Handler, bundle string) {
	r.RegisterCommand(Registration{
		Name:    name,
		Handler: handler,
		Bundle:  bundle,
		Level:   database.LevelNormal,
	})
}

// RegisterCommand adds or replaces a command. The last registration for a
// name wins.
func (r *Registry) RegisterCommand(reg Registration) {
	reg.Name = strings.ToLower(reg.Name)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[reg.Name] = reg
}

// UnregisterBundle removes every command owned by bundle and returns their
// names in sorted order. Built-ins are never removed.
func (r *Registry) UnregisterBundle(bundle string) []string {
	if bundle == "" {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	for name, reg := range r.commands {
		if reg.Bundle == bundle {
			delete(r.commands, name)
			removed = append(removed, name)
		}
	}
	sort.Strings(removed)
	return removed
}

// Get retrieves a command by name
func (r *Registry) Get(name string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, exists := r.commands[strings.ToLower(name)]
	return reg, exists
}

// Has checks if a command exists in the registry
func (r *Registry) Has(name string) bool {
	_, exists := r.Get(name)
	return exists
}

// Bundle returns the owning bundle of a command, "" for built-ins
func (r *Registry) Bundle(name string) (string, bool) {
	reg, exists := r.Get(name)
	return reg.Bundle, exists
}

// List returns all registered command names, sorted
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered commands
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

// HasPermission checks if a user's permission level meets the required level
func HasPermission(userLevel, required database.PermissionLevel) bool {
	// Ignored users have no permissions
	if userLevel == database.LevelIgnored {
		return false
	}
	return userLevel >= required
}
