package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/soyeahso/crewdesk/internal/hooks"
)

// CallRecord is one entry in the call log.
type CallRecord struct {
	ID          int64     `json:"id"`
	CallID      string    `json:"callId"`
	Event       string    `json:"event"`
	CallerID    uint64    `json:"callerId"`
	CallerLogin string    `json:"callerLogin"`
	ProjectID   *uint64   `json:"projectId,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// CallLog records call lifecycle events.
type CallLog struct {
	db *DB
}

// NewCallLog creates a call log using the given database.
func NewCallLog(db *DB) *CallLog {
	return &CallLog{db: db}
}

// Record appends r. A zero CreatedAt means now.
func (l *CallLog) Record(r CallRecord) (*CallRecord, error) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	var project sql.NullInt64
	if r.ProjectID != nil {
		project = sql.NullInt64{Int64: int64(*r.ProjectID), Valid: true}
	}
	res, err := l.db.sql.Exec(
		`INSERT INTO call_log (call_id, event, caller_id, caller_login, project_id, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.CallID, r.Event, int64(r.CallerID), r.CallerLogin, project, r.Detail,
		r.CreatedAt.Format(time.DateTime),
	)
	if err != nil {
		return nil, fmt.Errorf("recording call %s: %w", r.CallID, err)
	}
	r.ID, _ = res.LastInsertId()
	return &r, nil
}

// Recent returns up to limit records, newest first.
func (l *CallLog) Recent(limit int) ([]CallRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.sql.Query(
		`SELECT id, call_id, event, caller_id, caller_login, project_id, detail, created_at
		 FROM call_log ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying call log: %w", err)
	}
	defer rows.Close()

	var out []CallRecord
	for rows.Next() {
		var (
			r         CallRecord
			callerID  int64
			project   sql.NullInt64
			createdAt string
		)
		if err := rows.Scan(&r.ID, &r.CallID, &r.Event, &callerID, &r.CallerLogin, &project, &r.Detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning call log: %w", err)
		}
		r.CallerID = uint64(callerID)
		if project.Valid {
			p := uint64(project.Int64)
			r.ProjectID = &p
		}
		r.CreatedAt, _ = time.Parse(time.DateTime, createdAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Subscribe records every call lifecycle event emitted on hm.
func (l *CallLog) Subscribe(hm *hooks.Manager) {
	hm.OnEach(hooks.CallEvents, "call-log", func(_ context.Context, p hooks.Payload) error {
		_, err := l.Record(recordFromPayload(p))
		return err
	})
}

func recordFromPayload(p hooks.Payload) CallRecord {
	r := CallRecord{Event: p.Event}
	r.CallID, _ = p.Data["id"].(string)
	r.CallerID, _ = p.Data["callerId"].(uint64)
	r.CallerLogin, _ = p.Data["callerLogin"].(string)
	if id, ok := p.Data["projectId"].(uint64); ok {
		r.ProjectID = &id
	}
	switch {
	case p.Data["error"] != nil:
		r.Detail, _ = p.Data["error"].(string)
	case p.Data["next"] != nil:
		r.Detail, _ = p.Data["next"].(string)
	}
	return r
}
