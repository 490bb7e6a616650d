package user

import (
	"fmt"

	"github.com/yourusername/lolo-bridge/internal/database"
)

// Manager handles permission lookups and owner bootstrap on top of the store
type Manager struct {
	db *database.DB
}

// NewManager creates a new user manager
func NewManager(db *database.DB) *Manager {
	return &Manager{db: db}
}

// Level returns the permission level for a full nick!user@host hostmask
func (m *Manager) Level(hostmask string) (database.PermissionLevel, error) {
	level, err := m.db.LevelForHostmask(hostmask)
	if err != nil {
		return database.LevelNormal, fmt.Errorf("failed to look up level for %s: %w", hostmask, err)
	}
	return level, nil
}

// SetLevel creates or updates the user identified by hostmask
func (m *Manager) SetLevel(nick, hostmask string, level database.PermissionLevel) error {
	return m.db.UpsertUser(nick, hostmask, level)
}

// Remove deletes the user identified by hostmask. Removing an unknown user is not an error.
func (m *Manager) Remove(hostmask string) error {
	_, err := m.db.DeleteUserByHostmask(hostmask)
	return err
}

// List returns every known user
func (m *Manager) List() ([]*database.User, error) {
	return m.db.ListUsers()
}

// HasOwner checks if an owner exists
func (m *Manager) HasOwner() (bool, error) {
	return m.db.HasOwner()
}
