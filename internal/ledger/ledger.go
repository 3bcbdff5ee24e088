// Package ledger persists per-user warning state in SQLite. The invariant
// count == number of active history rows holds after every successful
// operation: the durable write commits before any caller observes the new
// count, and a failed write leaves both unchanged.
package ledger

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"go-guardian/internal/models"
	"go-guardian/pkg/util"
)

const (
	writeRetries    = 3
	writeRetryDelay = 50 * time.Millisecond
)

type Ledger struct {
	db *sql.DB
}

// Open creates or opens the ledger database at path.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping ledger database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}

	l := &Ledger{db: db}
	if err := l.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return l, nil
}

func (l *Ledger) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS warnings (
		guild_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		fired_tier INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (guild_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS warning_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		guild_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		reason TEXT NOT NULL,
		issuer TEXT NOT NULL,
		cleared INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_history_user ON warning_history(guild_id, user_id);

	CREATE TABLE IF NOT EXISTS event_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		guild_id TEXT NOT NULL,
		subject_id TEXT NOT NULL,
		action TEXT NOT NULL,
		severity TEXT NOT NULL,
		outcome TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT '',
		timestamp INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_event_logs_guild ON event_logs(guild_id);
	CREATE INDEX IF NOT EXISTS idx_event_logs_timestamp ON event_logs(timestamp);
	`
	_, err := l.db.Exec(schema)
	return err
}

// HistoryEntry is one warning in a user's record.
type HistoryEntry struct {
	Reason  string
	Issuer  string
	Cleared bool
	At      time.Time
}

// WarningRecord is the current state for one (guild, user) pair. Count
// covers active warnings only; History keeps cleared rows for audit.
type WarningRecord struct {
	Count     int
	FiredTier int
	History   []HistoryEntry
}

// Warn appends to history and increments the count in one transaction,
// retrying transient failures with bounded backoff. It returns the new
// count and the fired-tier watermark. On exhausted retries nothing is
// committed and a StorageError is returned: the caller never sees a count
// the database does not hold.
func (l *Ledger) Warn(guildID, userID uint64, reason, issuer string) (count, firedTier int, err error) {
	var lastErr error
	for attempt := 0; attempt < writeRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(writeRetryDelay * time.Duration(attempt))
		}
		count, firedTier, lastErr = l.warnOnce(guildID, userID, reason, issuer)
		if lastErr == nil {
			return count, firedTier, nil
		}
	}
	return 0, 0, &models.StorageError{Op: "warn", Err: lastErr}
}

func (l *Ledger) warnOnce(guildID, userID uint64, reason, issuer string) (int, int, error) {
	gid := util.SnowflakeString(guildID)
	uid := util.SnowflakeString(userID)
	now := time.Now().Unix()

	tx, err := l.db.Begin()
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO warnings (guild_id, user_id, count, updated_at) VALUES (?, ?, 1, ?)
		ON CONFLICT(guild_id, user_id) DO UPDATE SET count = count + 1, updated_at = ?`,
		gid, uid, now, now); err != nil {
		return 0, 0, err
	}

	if _, err := tx.Exec(`
		INSERT INTO warning_history (guild_id, user_id, reason, issuer, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		gid, uid, reason, issuer, now); err != nil {
		return 0, 0, err
	}

	var count, firedTier int
	if err := tx.QueryRow(`SELECT count, fired_tier FROM warnings WHERE guild_id = ? AND user_id = ?`,
		gid, uid).Scan(&count, &firedTier); err != nil {
		return 0, 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}
	return count, firedTier, nil
}

// Clear resets the count and the fired-tier watermark to zero. History rows
// are retained, flagged cleared, for audit integrity.
func (l *Ledger) Clear(guildID, userID uint64) error {
	gid := util.SnowflakeString(guildID)
	uid := util.SnowflakeString(userID)
	now := time.Now().Unix()

	var lastErr error
	for attempt := 0; attempt < writeRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(writeRetryDelay * time.Duration(attempt))
		}
		lastErr = func() error {
			tx, err := l.db.Begin()
			if err != nil {
				return err
			}
			defer tx.Rollback()

			if _, err := tx.Exec(`
				UPDATE warnings SET count = 0, fired_tier = 0, updated_at = ?
				WHERE guild_id = ? AND user_id = ?`, now, gid, uid); err != nil {
				return err
			}
			if _, err := tx.Exec(`
				UPDATE warning_history SET cleared = 1
				WHERE guild_id = ? AND user_id = ? AND cleared = 0`, gid, uid); err != nil {
				return err
			}
			return tx.Commit()
		}()
		if lastErr == nil {
			return nil
		}
	}
	return &models.StorageError{Op: "clear", Err: lastErr}
}

// Current returns the warning record for a user. Read-only, no side
// effects; a user with no record has count zero and empty history.
func (l *Ledger) Current(guildID, userID uint64) (WarningRecord, error) {
	gid := util.SnowflakeString(guildID)
	uid := util.SnowflakeString(userID)

	var rec WarningRecord
	err := l.db.QueryRow(`SELECT count, fired_tier FROM warnings WHERE guild_id = ? AND user_id = ?`,
		gid, uid).Scan(&rec.Count, &rec.FiredTier)
	if err != nil && err != sql.ErrNoRows {
		return WarningRecord{}, &models.StorageError{Op: "current", Err: err}
	}

	rows, err := l.db.Query(`
		SELECT reason, issuer, cleared, created_at FROM warning_history
		WHERE guild_id = ? AND user_id = ? ORDER BY id`, gid, uid)
	if err != nil {
		return WarningRecord{}, &models.StorageError{Op: "current history", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var entry HistoryEntry
		var cleared int
		var created int64
		if err := rows.Scan(&entry.Reason, &entry.Issuer, &cleared, &created); err != nil {
			return WarningRecord{}, &models.StorageError{Op: "current history scan", Err: err}
		}
		entry.Cleared = cleared != 0
		entry.At = time.Unix(created, 0)
		rec.History = append(rec.History, entry)
	}
	if err := rows.Err(); err != nil {
		return WarningRecord{}, &models.StorageError{Op: "current history rows", Err: err}
	}
	return rec, nil
}

// MarkTierFired persists the watermark so a restart cannot re-fire an
// already issued tier.
func (l *Ledger) MarkTierFired(guildID, userID uint64, tier int) error {
	_, err := l.db.Exec(`
		UPDATE warnings SET fired_tier = ? WHERE guild_id = ? AND user_id = ? AND fired_tier < ?`,
		tier, util.SnowflakeString(guildID), util.SnowflakeString(userID), tier)
	if err != nil {
		return &models.StorageError{Op: "mark tier fired", Err: err}
	}
	return nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}
