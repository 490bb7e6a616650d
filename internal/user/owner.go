package user

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/lolo-bridge/internal/database"
)

// bot_settings key holding the bcrypt hash
const ownerPasswordKey = "owner_password_hash"

// BcryptCost is the work factor for the owner password hash
const BcryptCost = 12

var (
	ErrInvalidPassword = errors.New("invalid password")
	ErrOwnerExists     = errors.New("owner already exists")
	ErrNoPassword      = errors.New("no owner password set")
)

// SetOwnerPassword replaces the owner password used by ClaimOwner
func (m *Manager) SetOwnerPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	return m.db.SetSetting(ownerPasswordKey, string(hash))
}

// HasOwnerPassword reports whether SetOwnerPassword has run
func (m *Manager) HasOwnerPassword() (bool, error) {
	hash, err := m.db.GetSetting(ownerPasswordKey)
	return hash != "", err
}

// VerifyOwnerPassword compares password with the stored hash
func (m *Manager) VerifyOwnerPassword(password string) (bool, error) {
	hash, err := m.db.GetSetting(ownerPasswordKey)
	if err != nil {
		return false, err
	}
	if hash == "" {
		return false, ErrNoPassword
	}

	err = bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return err == nil, err
}

// ClaimOwner promotes hostmask to Owner. It only succeeds once, while no
// owner exists, and only with the owner password.
func (m *Manager) ClaimOwner(nick, hostmask, password string) error {
	exists, err := m.HasOwner()
	if err != nil {
		return err
	}
	if exists {
		return ErrOwnerExists
	}

	ok, err := m.VerifyOwnerPassword(password)
	if err != nil {
		return fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok {
		return ErrInvalidPassword
	}
	return m.db.UpsertUser(nick, hostmask, database.LevelOwner)
}
