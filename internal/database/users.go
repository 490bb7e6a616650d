package database

import (
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// PermissionLevel orders what a hostmask may do. Ignored users are dropped
// before anything else sees their lines.
type PermissionLevel int

const (
	LevelIgnored PermissionLevel = iota
	LevelNormal
	LevelAdmin
	LevelOwner
)

var levelNames = [...]string{"Ignored", "Normal", "Admin", "Owner"}

func (l PermissionLevel) String() string {
	if l < LevelIgnored || l > LevelOwner {
		return "Unknown"
	}
	return levelNames[l]
}

// ParseLevel accepts a level name in any case
func ParseLevel(s string) (PermissionLevel, error) {
	for i, name := range levelNames {
		if strings.EqualFold(name, s) {
			return PermissionLevel(i), nil
		}
	}
	return 0, fmt.Errorf("invalid permission level: %s", s)
}

// User is a known hostmask and its level
type User struct {
	ID        int64
	Nick      string
	Hostmask  string
	Level     PermissionLevel
	CreatedAt time.Time
	UpdatedAt time.Time
}

const userColumns = "id, nick, hostmask, level, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	u := &User{}
	if err := row.Scan(&u.ID, &u.Nick, &u.Hostmask, &u.Level, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return u, nil
}

// UpsertUser stores level for hostmask, refreshing the nick it was last seen with
func (db *DB) UpsertUser(nick, hostmask string, level PermissionLevel) error {
	now := time.Now()
	_, err := db.conn.Exec(`INSERT INTO users (nick, hostmask, level, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(hostmask) DO UPDATE SET
			nick = excluded.nick, level = excluded.level, updated_at = excluded.updated_at`,
		nick, hostmask, level, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert user %s: %w", hostmask, err)
	}
	return nil
}

// GetUserByHostmask returns nil, nil when the hostmask is unknown
func (db *DB) GetUserByHostmask(hostmask string) (*User, error) {
	row := db.conn.QueryRow("SELECT "+userColumns+" FROM users WHERE hostmask = ?", hostmask)
	u, err := scanUser(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", hostmask, err)
	}
	return u, nil
}

// LevelForHostmask defaults unknown hostmasks to LevelNormal
func (db *DB) LevelForHostmask(hostmask string) (PermissionLevel, error) {
	u, err := db.GetUserByHostmask(hostmask)
	switch {
	case err != nil:
		return LevelNormal, err
	case u == nil:
		return LevelNormal, nil
	}
	return u.Level, nil
}

// DeleteUserByHostmask reports whether a row was removed
func (db *DB) DeleteUserByHostmask(hostmask string) (bool, error) {
	res, err := db.conn.Exec("DELETE FROM users WHERE hostmask = ?", hostmask)
	if err != nil {
		return false, fmt.Errorf("failed to delete user %s: %w", hostmask, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListUsers orders by level, highest first, then nick
func (db *DB) ListUsers() ([]*User, error) {
	rows, err := db.conn.Query("SELECT " + userColumns + " FROM users ORDER BY level DESC, nick ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// HasOwner reports whether any hostmask holds LevelOwner
func (db *DB) HasOwner() (bool, error) {
	var exists bool
	err := db.conn.QueryRow("SELECT EXISTS(SELECT 1 FROM users WHERE level = ?)", LevelOwner).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check for owner: %w", err)
	}
	return exists, nil
}
