package transcript

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_RecordTurn(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)

	tests := []struct {
		name    string
		rec     TurnRecord
		wantErr bool
	}{
		{
			name: "records a booking turn",
			rec: TurnRecord{
				CallID:    "call-123",
				Sequence:  1,
				Utterance: "I'd like to book for tomorrow morning",
				Reply:     "I have two openings tomorrow morning.",
				Intent:    "booking",
				Stage:     "offer-slots",
				Action:    "speak",
			},
		},
		{
			name: "records a guarded turn",
			rec: TurnRecord{
				CallID:       "call-123",
				Sequence:     2,
				Reply:        "I'm sorry, I wasn't able to finish booking that.",
				GuardReasons: []string{"guard:unverified_success_claim"},
			},
		},
		{
			name:    "missing call id is rejected",
			rec:     TurnRecord{Sequence: 1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.wantErr {
				mock.ExpectExec("INSERT INTO call_turns").
					WillReturnResult(sqlmock.NewResult(1, 1))
			}

			err := store.RecordTurn(context.Background(), tt.rec)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ListByCall(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "call_id", "tenant_id", "sequence", "utterance", "reply",
		"intent", "stage", "action", "guard_reasons", "details", "latency_ms", "created_at",
	}).
		AddRow("t1", "call-123", "clinic-1", 1, "hi", "Thanks for calling, how can I help?",
			"greeting", "greeting", "speak", []byte(`null`), nil, int64(120), now).
		AddRow("t2", "call-123", "clinic-1", 2, "book me in", "What day works for you?",
			"booking", "collect-time", "speak", []byte(`["guard:terminal_rebook_prompt"]`), []byte(`{"slot":2}`), int64(340), now)

	mock.ExpectQuery("SELECT (.+) FROM call_turns").
		WithArgs("call-123").
		WillReturnRows(rows)

	records, err := store.ListByCall(context.Background(), "call-123", 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 1, records[0].Sequence)
	assert.Nil(t, records[0].Details)
	assert.Equal(t, "booking", records[1].Intent)
	assert.Equal(t, []string{"guard:terminal_rebook_prompt"}, records[1].GuardReasons)
	assert.JSONEq(t, `{"slot":2}`, string(records[1].Details))
	assert.NoError(t, mock.ExpectationsWereMet())
}
