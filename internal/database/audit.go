package database

import (
	"database/sql"
	"fmt"
	"time"
)

// Audit actions
const (
	AuditUserAdd        = "user_add"
	AuditUserSet        = "user_set"
	AuditUserRemove     = "user_remove"
	AuditUserLookupFail = "user_lookup_failed"
	AuditOwnerVerify    = "owner_verify"
	AuditVerifyInChan   = "verify_channel_attempt"
	AuditPrefix         = "channel_prefix"
	AuditCommandToggle  = "command_toggle"
	AuditChannelList    = "autojoin_change"
	AuditPlugin         = "plugin"
)

// AuditEntry is one privileged action. Target and Details may be empty.
type AuditEntry struct {
	ID            int64
	Timestamp     time.Time
	ActorNick     string
	ActorHostmask string
	Action        string
	Target        string
	Details       string
	Result        string
}

// nullIfEmpty stores empty optional columns as NULL
func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// LogAuditAction appends a privileged action to the audit trail
func (db *DB) LogAuditAction(actorNick, actorHostmask, action, target, details, result string) error {
	_, err := db.conn.Exec(`INSERT INTO audit_log
		(timestamp, actor_nick, actor_hostmask, action_type, target_user, details, result)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		time.Now(), actorNick, actorHostmask, action, nullIfEmpty(target), nullIfEmpty(details), result)
	if err != nil {
		return fmt.Errorf("failed to log audit action %s: %w", action, err)
	}
	return nil
}

// GetAuditLog pages through the audit trail, newest first
func (db *DB) GetAuditLog(limit, offset int) ([]AuditEntry, error) {
	rows, err := db.conn.Query(`SELECT id, timestamp, actor_nick, actor_hostmask, action_type,
			COALESCE(target_user, ''), COALESCE(details, ''), result
		FROM audit_log ORDER BY id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.ActorNick, &e.ActorHostmask,
			&e.Action, &e.Target, &e.Details, &e.Result); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
