package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"agentcore/internal/domain"
)

// ErrNotFound indicates the record does not exist. It wraps
// domain.ErrNotFound so the dispatch loop can route a missing
// conversation to the caller instead of the model.
var ErrNotFound = fmt.Errorf("record not found: %w", domain.ErrNotFound)

// Session is a session entity.
type Session struct {
	ID             string          `json:"id"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	Metadata       json.RawMessage `json:"metadata"`
	Model          string          `json:"model"`           // model in use
	Scenario       string          `json:"scenario"`        // scenario kind: chat/scheduled/channel
	SelectedSkills []string        `json:"selected_skills"` // selected skill IDs; empty means all
}

// CreateSession creates a new session.
// Optional args: model (string), scenario (string).
func (db *DB) CreateSession(metadata json.RawMessage, opts ...interface{}) (*Session, error) {
	return db.CreateSessionWithID(uuid.New().String(), metadata, opts...)
}

// CreateSessionWithID creates a new session with a caller-supplied ID.
// Optional args: model (string), scenario (string).
func (db *DB) CreateSessionWithID(id string, metadata json.RawMessage, opts ...interface{}) (*Session, error) {
	now := time.Now()

	if metadata == nil {
		metadata = json.RawMessage("{}")
	}

	// parse optional args
	model := ""
	scenario := "chat" // defaults to the chat scenario
	for i := 0; i < len(opts); i += 2 {
		if i+1 >= len(opts) {
			break
		}
		key, ok1 := opts[i].(string)
		val, ok2 := opts[i+1].(string)
		if !ok1 || !ok2 {
			continue
		}
		switch key {
		case "model":
			model = val
		case "scenario":
			scenario = val
		}
	}

	_, err := db.Exec(
		"INSERT INTO sessions (id, created_at, updated_at, metadata, model, scenario) VALUES (?, ?, ?, ?, ?, ?)",
		id, now, now, string(metadata), model, scenario,
	)
	if err != nil {
		return nil, err
	}

	return &Session{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  metadata,
		Model:     model,
		Scenario:  scenario,
	}, nil
}

// CreateSession creates a session within a transaction.
func (tx *Tx) CreateSession(metadata json.RawMessage) (*Session, error) {
	return tx.CreateSessionWithID(uuid.New().String(), metadata)
}

// CreateSessionWithID creates a session with a caller-supplied ID within a transaction.
func (tx *Tx) CreateSessionWithID(id string, metadata json.RawMessage) (*Session, error) {
	now := time.Now()

	if metadata == nil {
		metadata = json.RawMessage("{}")
	}

	_, err := tx.Exec(
		"INSERT INTO sessions (id, created_at, updated_at, metadata) VALUES (?, ?, ?, ?)",
		id, now, now, string(metadata),
	)
	if err != nil {
		return nil, err
	}

	return &Session{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  metadata,
	}, nil
}

// GetSession reads a session.
func (db *DB) GetSession(id string) (*Session, error) {
	var s Session
	var metadataStr string
	var selectedSkillsStr string

	err := db.QueryRow(
		"SELECT id, created_at, updated_at, metadata, COALESCE(model, ''), COALESCE(scenario, 'chat'), COALESCE(selected_skills, '') FROM sessions WHERE id = ?",
		id,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt, &metadataStr, &s.Model, &s.Scenario, &selectedSkillsStr)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	s.Metadata = json.RawMessage(metadataStr)
	s.SelectedSkills = parseSelectedSkills(selectedSkillsStr)
	return &s, nil
}

// UpdateSession updates a session's metadata.
func (db *DB) UpdateSession(id string, metadata json.RawMessage) error {
	now := time.Now()

	result, err := db.Exec(
		"UPDATE sessions SET metadata = ?, updated_at = ? WHERE id = ?",
		string(metadata), now, id,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// UpdateSessionModel updates a session's model.
func (db *DB) UpdateSessionModel(id string, model string) error {
	now := time.Now()

	result, err := db.Exec(
		"UPDATE sessions SET model = ?, updated_at = ? WHERE id = ?",
		model, now, id,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// DeleteSession deletes a session.
func (db *DB) DeleteSession(id string) error {
	result, err := db.Exec("DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// ListSessions lists sessions.
func (db *DB) ListSessions(limit, offset int) ([]*Session, error) {
	query := "SELECT id, created_at, updated_at, metadata, COALESCE(model, ''), COALESCE(scenario, 'chat'), COALESCE(selected_skills, '') FROM sessions ORDER BY updated_at DESC"
	args := []any{}

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	if offset > 0 {
		query += " OFFSET ?"
		args = append(args, offset)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		var s Session
		var metadataStr string
		var selectedSkillsStr string

		if err := rows.Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt, &metadataStr, &s.Model, &s.Scenario, &selectedSkillsStr); err != nil {
			return nil, err
		}

		s.Metadata = json.RawMessage(metadataStr)
		s.SelectedSkills = parseSelectedSkills(selectedSkillsStr)
		sessions = append(sessions, &s)
	}

	return sessions, rows.Err()
}

// UpdateSessionSkills updates a session's selected skill list.
func (db *DB) UpdateSessionSkills(id string, skillIDs []string) error {
	now := time.Now()

	skillsStr := formatSelectedSkills(skillIDs)

	result, err := db.Exec(
		"UPDATE sessions SET selected_skills = ?, updated_at = ? WHERE id = ?",
		skillsStr, now, id,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// parseSelectedSkills parses the selected-skills column.
// An empty string returns nil (meaning "all skills"); a JSON array is parsed as given.
func parseSelectedSkills(s string) []string {
	if s == "" {
		return nil
	}
	var skills []string
	if err := json.Unmarshal([]byte(s), &skills); err != nil {
		// Fallback: try a comma-separated format
		parts := strings.Split(s, ",")
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				skills = append(skills, p)
			}
		}
		return skills
	}
	return skills
}

// formatSelectedSkills formats a skill list for storage.
// nil or empty returns "" (meaning "all skills"); a non-empty list is JSON-encoded.
func formatSelectedSkills(skillIDs []string) string {
	if len(skillIDs) == 0 {
		return ""
	}
	data, err := json.Marshal(skillIDs)
	if err != nil {
		return ""
	}
	return string(data)
}
