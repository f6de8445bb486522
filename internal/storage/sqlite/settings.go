// ABOUTME: Settings storage operations for SQLite
// ABOUTME: Lazy default rows, full-replace writes, active-population reads
package sqlite

import (
	"context"
	"fmt"

	"github.com/harper/veil/internal/models"
)

// SettingsStore handles settings persistence
type SettingsStore struct {
	db *DB
}

// NewSettingsStore creates a new SettingsStore
func NewSettingsStore(db *DB) *SettingsStore {
	return &SettingsStore{db: db}
}

// GetOrCreate reads a user's settings, inserting the default-false row on
// first access.
func (s *SettingsStore) GetOrCreate(ctx context.Context, userID int64) (models.Settings, error) {
	var row models.Settings
	if _, err := s.db.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO settings (user_id) VALUES (?)`, userID); err != nil {
		return row, fmt.Errorf("failed to create settings row for user %d: %w", userID, err)
	}
	if err := s.db.conn.GetContext(ctx, &row,
		`SELECT * FROM settings WHERE user_id = ?`, userID); err != nil {
		return row, fmt.Errorf("failed to get settings for user %d: %w", userID, err)
	}
	return row, nil
}

// Put replaces a user's settings row in full.
func (s *SettingsStore) Put(ctx context.Context, row models.Settings) error {
	_, err := s.db.conn.NamedExecContext(ctx, `
		INSERT OR REPLACE INTO settings
			(user_id, gpt, lowercase, punctuation, notify_comments, notify_replies, dms, persona_dms)
		VALUES
			(:user_id, :gpt, :lowercase, :punctuation, :notify_comments, :notify_replies, :dms, :persona_dms)
	`, row)
	if err != nil {
		return fmt.Errorf("failed to put settings for user %d: %w", row.UserID, err)
	}
	return nil
}

// ActivePopulation returns the settings rows of every user who used a
// persona after the cutoff (unix seconds). Feeds the entropy estimate.
func (s *SettingsStore) ActivePopulation(ctx context.Context, cutoff int64) ([]models.Settings, error) {
	var rows []models.Settings
	err := s.db.conn.SelectContext(ctx, &rows, `
		SELECT s.* FROM settings s
		WHERE EXISTS(SELECT 1 FROM personas p WHERE p.user_id = s.user_id AND p.last_used > ?)
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to load active settings population: %w", err)
	}
	return rows, nil
}
