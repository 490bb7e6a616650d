package database

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ChannelSetting holds the per-channel command prefix and disabled commands
type ChannelSetting struct {
	Channel          string
	Prefix           string
	DisabledCommands []string // sorted, lower-case
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsDisabled reports whether command is disabled in this channel
func (s *ChannelSetting) IsDisabled(command string) bool {
	command = strings.ToLower(command)
	for _, c := range s.DisabledCommands {
		if c == command {
			return true
		}
	}
	return false
}

// GetChannelSetting returns the setting for channel, creating it with
// defaultPrefix on first access
func (db *DB) GetChannelSetting(channel, defaultPrefix string) (*ChannelSetting, error) {
	key := strings.ToLower(channel)
	now := time.Now()
	_, err := db.conn.Exec(`
		INSERT INTO channel_settings (channel, prefix, disabled_commands, created_at, updated_at)
		VALUES (?, ?, '', ?, ?)
		ON CONFLICT(channel) DO NOTHING
	`, key, defaultPrefix, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create channel setting: %w", err)
	}

	setting := &ChannelSetting{}
	var disabled string
	err = db.conn.QueryRow(`
		SELECT channel, prefix, disabled_commands, created_at, updated_at
		FROM channel_settings
		WHERE channel = ?
	`, key).Scan(&setting.Channel, &setting.Prefix, &disabled, &setting.CreatedAt, &setting.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get channel setting: %w", err)
	}
	setting.DisabledCommands = splitCommandList(disabled)
	return setting, nil
}

// SetChannelPrefix changes the command prefix for channel
func (db *DB) SetChannelPrefix(channel, prefix string) error {
	if _, err := db.GetChannelSetting(channel, prefix); err != nil {
		return err
	}
	_, err := db.conn.Exec(`UPDATE channel_settings SET prefix = ?, updated_at = ? WHERE channel = ?`,
		prefix, time.Now(), strings.ToLower(channel))
	if err != nil {
		return fmt.Errorf("failed to set channel prefix: %w", err)
	}
	return nil
}

// SetCommandDisabled adds or removes command from the channel's disabled set
func (db *DB) SetCommandDisabled(channel, defaultPrefix, command string, disabled bool) error {
	setting, err := db.GetChannelSetting(channel, defaultPrefix)
	if err != nil {
		return err
	}

	set := make(map[string]struct{}, len(setting.DisabledCommands)+1)
	for _, c := range setting.DisabledCommands {
		set[c] = struct{}{}
	}
	command = strings.ToLower(command)
	if disabled {
		set[command] = struct{}{}
	} else {
		delete(set, command)
	}

	names := make([]string, 0, len(set))
	for c := range set {
		names = append(names, c)
	}
	sort.Strings(names)

	_, err = db.conn.Exec(`UPDATE channel_settings SET disabled_commands = ?, updated_at = ? WHERE channel = ?`,
		strings.Join(names, ","), time.Now(), strings.ToLower(channel))
	if err != nil {
		return fmt.Errorf("failed to update disabled commands: %w", err)
	}
	return nil
}

func splitCommandList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, c := range strings.Split(s, ",") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// GetSetting retrieves a bot setting by key
func (db *DB) GetSetting(key string) (string, error) {
	var value string
	query := `SELECT value FROM bot_settings WHERE key = ?`
	err := db.conn.QueryRow(query, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting: %w", err)
	}
	return value, nil
}

// SetSetting sets a bot setting
func (db *DB) SetSetting(key, value string) error {
	query := `
		INSERT INTO bot_settings (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`
	_, err := db.conn.Exec(query, key, value, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set setting: %w", err)
	}
	return nil
}
