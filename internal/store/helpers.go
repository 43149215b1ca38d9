package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/BTreeMap/FormFlow/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// rowScanner abstracts sql.Row and sql.Rows for the shared scan helpers.
type rowScanner interface {
	Scan(dest ...any) error
}

// marshalJSON encodes v for a TEXT column, returning nil for empty input so
// the column stays NULL.
func marshalJSON(v interface{}) (interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal failed: %w", err)
	}
	s := string(data)
	if s == "null" {
		return nil, nil
	}
	return s, nil
}

// scanSessionState scans one session_states row.
func scanSessionState(row rowScanner) (models.SessionState, error) {
	var st models.SessionState
	var userID, completedJSON, answersJSON sql.NullString
	err := row.Scan(
		&st.SessionID, &st.AppID, &userID, &st.PhaseIndex,
		&completedJSON, &st.Finished, &answersJSON,
		&st.CreatedAt, &st.UpdatedAt,
	)
	if err != nil {
		return st, err
	}
	st.UserID = userID.String
	if completedJSON.Valid {
		if err := json.Unmarshal([]byte(completedJSON.String), &st.Completed); err != nil {
			return st, fmt.Errorf("failed to decode completed phases: %w", err)
		}
	}
	st.Answers = models.Answers{}
	if answersJSON.Valid {
		if err := json.Unmarshal([]byte(answersJSON.String), &st.Answers); err != nil {
			return st, fmt.Errorf("failed to decode answers: %w", err)
		}
	}
	return st, nil
}

// scanRun scans one runs row.
func scanRun(row rowScanner) (models.Run, error) {
	var r models.Run
	var userID, messagesJSON, score sql.NullString
	var passed sql.NullBool
	err := row.Scan(
		&r.ID, &r.SessionID, &r.AppID, &userID, &r.PhaseIndex, &r.Status,
		&messagesJSON, &passed, &score, &r.RequestSkip, &r.NoSubmit,
		&r.Satisfaction, &r.CreatedAt,
	)
	if err != nil {
		return r, err
	}
	r.UserID = userID.String
	r.Score = score.String
	if passed.Valid {
		v := passed.Bool
		r.Passed = &v
	}
	if messagesJSON.Valid {
		if err := json.Unmarshal([]byte(messagesJSON.String), &r.Messages); err != nil {
			return r, fmt.Errorf("failed to decode run messages: %w", err)
		}
	}
	return r, nil
}

// nullableBool converts an optional bool for a nullable column.
func nullableBool(b *bool) interface{} {
	if b == nil {
		return nil
	}
	return *b
}
