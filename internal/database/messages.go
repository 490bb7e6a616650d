package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/yourusername/lolo-bridge/internal/output"
)

// Event types stored alongside chat lines. Plain messages have none.
const (
	EventTypeMessage    = ""
	EventTypeJoin       = "JOIN"
	EventTypePart       = "PART"
	EventTypeNickChange = "NICK"
)

// Message is one logged chat line or membership event. Channel holds the
// peer nick for private conversations.
type Message struct {
	ID        int64
	Timestamp time.Time
	Channel   string
	Nick      string
	Hostmask  string
	Content   string
	IsBot     bool
	EventType string
}

const messageColumns = "id, timestamp, channel, nick, hostmask, content, is_bot, event_type"

func scanMessage(rows *sql.Rows) (*Message, error) {
	m := &Message{}
	err := rows.Scan(&m.ID, &m.Timestamp, &m.Channel, &m.Nick, &m.Hostmask, &m.Content, &m.IsBot, &m.EventType)
	return m, err
}

// LogMessage appends msg to the log, stamping it with the current time when
// Timestamp is zero, and sets msg.ID
func (db *DB) LogMessage(msg *Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	res, err := db.conn.Exec(`INSERT INTO messages
		(timestamp, channel, nick, hostmask, content, is_bot, event_type)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.Timestamp, msg.Channel, msg.Nick, msg.Hostmask, msg.Content, msg.IsBot, msg.EventType)
	if err != nil {
		return fmt.Errorf("failed to log message: %w", err)
	}
	if msg.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("failed to read message id: %w", err)
	}
	return nil
}

// LogEvent records a join, part or nick change
func (db *DB) LogEvent(eventType, channel, nick, hostmask, content string) error {
	return db.LogMessage(&Message{
		Channel:   channel,
		Nick:      nick,
		Hostmask:  hostmask,
		Content:   content,
		EventType: eventType,
	})
}

// RecentMessages returns the last limit plain messages logged for channel,
// oldest first. A positive beforeID only considers rows logged before it.
func (db *DB) RecentMessages(channel string, limit int, beforeID int64) ([]*Message, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := db.conn.Query(`SELECT `+messageColumns+` FROM (
			SELECT `+messageColumns+` FROM messages
			WHERE channel = ? AND event_type = '' AND (? <= 0 OR id < ?)
			ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, channel, beforeID, beforeID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// CleanupOldMessages deletes log rows older than retentionDays
func (db *DB) CleanupOldMessages(retentionDays int, logger output.Logger) error {
	if retentionDays <= 0 {
		return fmt.Errorf("retention days must be positive, got %d", retentionDays)
	}

	start := time.Now()
	cutoff := start.AddDate(0, 0, -retentionDays)
	res, err := db.conn.Exec("DELETE FROM messages WHERE timestamp < ?", cutoff)
	if err != nil {
		logger.Error("Message cleanup failed: %v", err)
		return fmt.Errorf("failed to delete old messages: %w", err)
	}
	n, _ := res.RowsAffected()
	logger.Success("Pruned %d message(s) older than %d days in %s", n, retentionDays, time.Since(start).Round(time.Millisecond))
	return nil
}
