package user

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/lolo-bridge/internal/database"
)

func TestClaimOwner(t *testing.T) {
	m := NewManager(database.NewTestDB(t))

	has, err := m.HasOwnerPassword()
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, m.SetOwnerPassword("hunter2"))

	err = m.ClaimOwner("mallory", "mallory!m@evil", "guess")
	assert.ErrorIs(t, err, ErrInvalidPassword)

	require.NoError(t, m.ClaimOwner("alice", "alice!a@host", "hunter2"))
	level, err := m.Level("alice!a@host")
	require.NoError(t, err)
	assert.Equal(t, database.LevelOwner, level)

	err = m.ClaimOwner("bob", "bob!b@host", "hunter2")
	assert.ErrorIs(t, err, ErrOwnerExists)
}

func TestVerifyOwnerPassword_NoneSet(t *testing.T) {
	m := NewManager(database.NewTestDB(t))
	_, err := m.VerifyOwnerPassword("x")
	assert.ErrorIs(t, err, ErrNoPassword)
}

func TestSetLevelAndRemove(t *testing.T) {
	m := NewManager(database.NewTestDB(t))

	require.NoError(t, m.SetLevel("bob", "bob!b@host", database.LevelIgnored))
	level, err := m.Level("bob!b@host")
	require.NoError(t, err)
	assert.Equal(t, database.LevelIgnored, level)

	require.NoError(t, m.Remove("bob!b@host"))
	require.NoError(t, m.Remove("bob!b@host"))
	level, err = m.Level("bob!b@host")
	require.NoError(t, err)
	assert.Equal(t, database.LevelNormal, level)
}

func TestCanGrant(t *testing.T) {
	tests := []struct {
		name   string
		actor  database.PermissionLevel
		target database.PermissionLevel
		want   bool
	}{
		{"owner grants owner", database.LevelOwner, database.LevelOwner, true},
		{"owner grants admin", database.LevelOwner, database.LevelAdmin, true},
		{"admin grants admin", database.LevelAdmin, database.LevelAdmin, true},
		{"admin cannot grant owner", database.LevelAdmin, database.LevelOwner, false},
		{"normal cannot grant", database.LevelNormal, database.LevelIgnored, false},
		{"ignored cannot grant", database.LevelIgnored, database.LevelNormal, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanGrant(tt.actor, tt.target))
		})
	}
}
