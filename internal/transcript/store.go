// Package transcript persists a per-turn audit trail for every call.
package transcript

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TurnRecord is one immutable row of the call audit trail. It captures what
// the caller said, what the agent replied, and why.
type TurnRecord struct {
	ID            string          `json:"id"`
	CallID        string          `json:"call_id"`
	TenantID      string          `json:"tenant_id,omitempty"`
	Sequence      int             `json:"sequence"`
	Utterance     string          `json:"utterance,omitempty"`
	Reply         string          `json:"reply,omitempty"`
	Intent        string          `json:"intent,omitempty"`
	Stage         string          `json:"stage,omitempty"`
	Action        string          `json:"action,omitempty"`
	GuardReasons  []string        `json:"guard_reasons,omitempty"`
	Details       json.RawMessage `json:"details,omitempty"`
	LatencyMillis int64           `json:"latency_ms"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Store writes and reads turn records from Postgres.
type Store struct {
	db *sql.DB
}

// NewStore creates a transcript store over an open database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// RecordTurn appends one turn to the audit trail.
func (s *Store) RecordTurn(ctx context.Context, rec TurnRecord) error {
	if rec.CallID == "" {
		return fmt.Errorf("transcript: call_id required")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	guardJSON, err := json.Marshal(rec.GuardReasons)
	if err != nil {
		return fmt.Errorf("transcript: marshal guard reasons: %w", err)
	}

	query := `
		INSERT INTO call_turns (
			id, call_id, tenant_id, sequence, utterance, reply,
			intent, stage, action, guard_reasons, details, latency_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err = s.db.ExecContext(ctx, query,
		rec.ID,
		rec.CallID,
		nullString(rec.TenantID),
		rec.Sequence,
		nullString(rec.Utterance),
		nullString(rec.Reply),
		nullString(rec.Intent),
		nullString(rec.Stage),
		nullString(rec.Action),
		guardJSON,
		rec.Details,
		rec.LatencyMillis,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("transcript: failed to record turn: %w", err)
	}
	return nil
}

// ListByCall returns the turns of one call, oldest first.
func (s *Store) ListByCall(ctx context.Context, callID string, limit int) ([]TurnRecord, error) {
	query := `
		SELECT id, call_id, tenant_id, sequence, utterance, reply,
			   intent, stage, action, guard_reasons, details, latency_ms, created_at
		FROM call_turns
		WHERE call_id = $1
		ORDER BY sequence ASC
	`
	args := []interface{}{callID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("transcript: failed to query turns: %w", err)
	}
	defer rows.Close()

	var records []TurnRecord
	for rows.Next() {
		var rec TurnRecord
		var tenantID, utterance, reply, intent, stage, action sql.NullString
		var guardJSON, detailsJSON []byte
		err := rows.Scan(
			&rec.ID, &rec.CallID, &tenantID, &rec.Sequence, &utterance, &reply,
			&intent, &stage, &action, &guardJSON, &detailsJSON, &rec.LatencyMillis, &rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("transcript: failed to scan turn: %w", err)
		}
		rec.TenantID = tenantID.String
		rec.Utterance = utterance.String
		rec.Reply = reply.String
		rec.Intent = intent.String
		rec.Stage = stage.String
		rec.Action = action.String
		if len(guardJSON) > 0 {
			if err := json.Unmarshal(guardJSON, &rec.GuardReasons); err != nil {
				return nil, fmt.Errorf("transcript: failed to decode guard reasons: %w", err)
			}
		}
		if len(detailsJSON) > 0 {
			rec.Details = json.RawMessage(detailsJSON)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("transcript: rows: %w", err)
	}
	return records, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
