package ledger

import (
	"encoding/json"
	"time"

	"go-guardian/internal/audit"
	"go-guardian/pkg/util"
)

// RecordAudit mirrors an audit record into the event_logs table. Implements
// audit.Mirror; failures here are logged by the sink, never escalated.
func (l *Ledger) RecordAudit(rec audit.Record) error {
	detail := ""
	if len(rec.Detail) > 0 {
		if data, err := json.Marshal(rec.Detail); err == nil {
			detail = string(data)
		}
	}

	_, err := l.db.Exec(`
		INSERT INTO event_logs (guild_id, subject_id, action, severity, outcome, detail, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		util.SnowflakeString(rec.GuildID),
		util.SnowflakeString(rec.SubjectID),
		rec.Action, rec.Severity, rec.Outcome, detail,
		rec.Timestamp.Unix())
	return err
}

// RecentAudit returns up to limit mirrored records for a guild, newest
// first. Display rendering is the caller's concern.
func (l *Ledger) RecentAudit(guildID uint64, limit int) ([]audit.Record, error) {
	rows, err := l.db.Query(`
		SELECT guild_id, subject_id, action, severity, outcome, detail, timestamp
		FROM event_logs WHERE guild_id = ? ORDER BY id DESC LIMIT ?`,
		util.SnowflakeString(guildID), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []audit.Record
	for rows.Next() {
		var rec audit.Record
		var gid, sid, detail string
		var ts int64
		if err := rows.Scan(&gid, &sid, &rec.Action, &rec.Severity, &rec.Outcome, &detail, &ts); err != nil {
			return nil, err
		}
		rec.GuildID, _ = util.ParseSnowflake(gid)
		rec.SubjectID, _ = util.ParseSnowflake(sid)
		if detail != "" {
			json.Unmarshal([]byte(detail), &rec.Detail)
		}
		rec.Timestamp = time.Unix(ts, 0)
		out = append(out, rec)
	}
	return out, rows.Err()
}
