// ABOUTME: Persona storage operations for SQLite
// ABOUTME: Lifecycle, recency ordering, and active-name conflict queries
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sqlite3 "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/harper/veil/internal/models"
)

// ErrDuplicate is returned when an insert or rename violates one of the
// partial unique indexes on active personas.
var ErrDuplicate = errors.New("duplicate persona")

func isUniqueViolation(err error) bool {
	var se *sqlite3.Error
	return errors.As(err, &se) && se.Code() == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE
}

// PersonaStore handles persona persistence
type PersonaStore struct {
	db *DB
}

// NewPersonaStore creates a new PersonaStore
func NewPersonaStore(db *DB) *PersonaStore {
	return &PersonaStore{db: db}
}

// Insert stores a new persona and returns its id. Returns ErrDuplicate when
// the name is held by an active persona, or when an active stock persona
// already exists for the user and this is another one.
func (s *PersonaStore) Insert(ctx context.Context, p *models.Persona) (int64, error) {
	res, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO personas (user_id, name, temp, stock, last_used, active)
		VALUES (?, ?, ?, ?, ?, 1)
	`, p.UserID, p.Name, p.Temp, p.Stock, p.LastUsed)
	if isUniqueViolation(err) {
		return 0, fmt.Errorf("persona %q: %w", p.Name, ErrDuplicate)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to insert persona: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read persona id: %w", err)
	}
	p.ID = id
	p.Active = true
	return id, nil
}

// GetByID retrieves a persona by id regardless of the active flag. Returns
// nil when no row exists.
func (s *PersonaStore) GetByID(ctx context.Context, id int64) (*models.Persona, error) {
	var p models.Persona
	err := s.db.conn.GetContext(ctx, &p, `SELECT * FROM personas WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get persona %d: %w", id, err)
	}
	return &p, nil
}

// GetActiveByName retrieves an active persona by exact name. Returns nil
// when no active persona has the name.
func (s *PersonaStore) GetActiveByName(ctx context.Context, name string) (*models.Persona, error) {
	var p models.Persona
	err := s.db.conn.GetContext(ctx, &p, `SELECT * FROM personas WHERE active AND name = ?`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get persona %q: %w", name, err)
	}
	return &p, nil
}

// ListActive returns a user's active personas, most recently used first.
func (s *PersonaStore) ListActive(ctx context.Context, userID int64) ([]models.Persona, error) {
	var personas []models.Persona
	err := s.db.conn.SelectContext(ctx, &personas, `
		SELECT * FROM personas WHERE active AND user_id = ? ORDER BY last_used DESC, id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list personas for user %d: %w", userID, err)
	}
	return personas, nil
}

// NameExists reports whether any active persona carries the exact name.
func (s *PersonaStore) NameExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.db.conn.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM personas WHERE active AND name = ?)`, name)
	if err != nil {
		return false, fmt.Errorf("failed to check name %q: %w", name, err)
	}
	return exists, nil
}

// HasActiveStock reports whether the user has an active auto-named persona.
func (s *PersonaStore) HasActiveStock(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := s.db.conn.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM personas WHERE active AND stock AND user_id = ?)`, userID)
	if err != nil {
		return false, fmt.Errorf("failed to check stock persona for user %d: %w", userID, err)
	}
	return exists, nil
}

// LatestStockLastUsed returns the newest last_used among the user's stock
// personas, active or not, so a replacement keeps its recency slot. Zero
// when the user never had one.
func (s *PersonaStore) LatestStockLastUsed(ctx context.Context, userID int64) (int64, error) {
	var ts int64
	err := s.db.conn.GetContext(ctx, &ts,
		`SELECT COALESCE(MAX(last_used), 0) FROM personas WHERE stock AND user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to read stock recency for user %d: %w", userID, err)
	}
	return ts, nil
}

// Rename changes a persona's name. Returns ErrDuplicate when the name is
// held by another active persona.
func (s *PersonaStore) Rename(ctx context.Context, id int64, name string) error {
	_, err := s.db.conn.ExecContext(ctx, `UPDATE personas SET name = ? WHERE id = ?`, name, id)
	if isUniqueViolation(err) {
		return fmt.Errorf("persona %q: %w", name, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to rename persona %d: %w", id, err)
	}
	return nil
}

// Touch records relay activity on a persona.
func (s *PersonaStore) Touch(ctx context.Context, id int64, ts int64) error {
	_, err := s.db.conn.ExecContext(ctx, `UPDATE personas SET last_used = ? WHERE id = ?`, ts, id)
	if err != nil {
		return fmt.Errorf("failed to touch persona %d: %w", id, err)
	}
	return nil
}

// Deactivate soft-deletes a persona by id.
func (s *PersonaStore) Deactivate(ctx context.Context, id int64) error {
	_, err := s.db.conn.ExecContext(ctx, `UPDATE personas SET active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate persona %d: %w", id, err)
	}
	return nil
}

// DeactivateNamed soft-deletes a user's active persona by name, reporting
// whether a row matched.
func (s *PersonaStore) DeactivateNamed(ctx context.Context, userID int64, name string) (bool, error) {
	res, err := s.db.conn.ExecContext(ctx,
		`UPDATE personas SET active = 0 WHERE active AND user_id = ? AND name = ?`, userID, name)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate persona %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// PurgeTemporary soft-deletes every temporary persona and returns the count.
func (s *PersonaStore) PurgeTemporary(ctx context.Context) (int64, error) {
	res, err := s.db.conn.ExecContext(ctx, `UPDATE personas SET active = 0 WHERE active AND temp`)
	if err != nil {
		return 0, fmt.Errorf("failed to purge temporary personas: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n, nil
}
