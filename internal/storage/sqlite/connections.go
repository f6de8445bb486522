// ABOUTME: Connection edge and selected-persona storage for SQLite
// ABOUTME: Edge queries run both directions; tx variants serve the graph
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/harper/veil/internal/models"
)

// ConnectionStore handles anonymous-link edges and the selected-persona map
type ConnectionStore struct {
	db *DB
}

// NewConnectionStore creates a new ConnectionStore
func NewConnectionStore(db *DB) *ConnectionStore {
	return &ConnectionStore{db: db}
}

const counterpartsQuery = `
	SELECT b_kind AS kind, b_id AS id FROM connections WHERE a_kind = ? AND a_id = ?
	UNION ALL
	SELECT a_kind AS kind, a_id AS id FROM connections WHERE b_kind = ? AND b_id = ?
`

// Counterparts returns every endpoint linked to e, in insertion order.
func (s *ConnectionStore) Counterparts(ctx context.Context, e models.Endpoint) ([]models.Endpoint, error) {
	return counterparts(ctx, s.db.conn, e)
}

// CounterpartsIn is Counterparts inside an open transaction.
func (s *ConnectionStore) CounterpartsIn(ctx context.Context, tx *sqlx.Tx, e models.Endpoint) ([]models.Endpoint, error) {
	return counterparts(ctx, tx, e)
}

func counterparts(ctx context.Context, q sqlx.QueryerContext, e models.Endpoint) ([]models.Endpoint, error) {
	var peers []models.Endpoint
	err := sqlx.SelectContext(ctx, q, &peers, counterpartsQuery, e.Kind, e.ID, e.Kind, e.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load counterparts of %s: %w", e, err)
	}
	return peers, nil
}

// InsertIn records a new edge inside an open transaction.
func (s *ConnectionStore) InsertIn(ctx context.Context, tx *sqlx.Tx, a, b models.Endpoint) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO connections (a_kind, a_id, b_kind, b_id) VALUES (?, ?, ?, ?)`,
		a.Kind, a.ID, b.Kind, b.ID)
	if err != nil {
		return fmt.Errorf("failed to insert connection %s-%s: %w", a, b, err)
	}
	return nil
}

// DeleteFor removes the edge touching e and returns it. The second return is
// false when e held no edge.
func (s *ConnectionStore) DeleteFor(ctx context.Context, e models.Endpoint) (models.Connection, bool, error) {
	var row struct {
		AKind models.EndpointKind `db:"a_kind"`
		AID   int64               `db:"a_id"`
		BKind models.EndpointKind `db:"b_kind"`
		BID   int64               `db:"b_id"`
	}
	err := s.db.conn.GetContext(ctx, &row, `
		DELETE FROM connections
		WHERE (a_kind = ?1 AND a_id = ?2) OR (b_kind = ?1 AND b_id = ?2)
		RETURNING a_kind, a_id, b_kind, b_id
	`, e.Kind, e.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Connection{}, false, nil
	}
	if err != nil {
		return models.Connection{}, false, fmt.Errorf("failed to delete connection for %s: %w", e, err)
	}
	return models.Connection{
		A: models.Endpoint{Kind: row.AKind, ID: row.AID},
		B: models.Endpoint{Kind: row.BKind, ID: row.BID},
	}, true, nil
}

// Selected returns the user's selected persona joined against active
// personas, so a dangling selection reads as absent (nil).
func (s *ConnectionStore) Selected(ctx context.Context, userID int64) (*models.Persona, error) {
	var p models.Persona
	err := s.db.conn.GetContext(ctx, &p, `
		SELECT personas.* FROM selected_personas
		INNER JOIN personas ON personas.id = selected_personas.persona_id
		WHERE selected_personas.user_id = ? AND personas.active
	`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read selected persona for user %d: %w", userID, err)
	}
	return &p, nil
}

// Select records which persona the user is acting as.
func (s *ConnectionStore) Select(ctx context.Context, userID, personaID int64) error {
	return selectPersona(ctx, s.db.conn, userID, personaID)
}

// SelectIn is Select inside an open transaction.
func (s *ConnectionStore) SelectIn(ctx context.Context, tx *sqlx.Tx, userID, personaID int64) error {
	return selectPersona(ctx, tx, userID, personaID)
}

func selectPersona(ctx context.Context, q sqlx.ExecerContext, userID, personaID int64) error {
	_, err := q.ExecContext(ctx,
		`INSERT OR REPLACE INTO selected_personas (user_id, persona_id) VALUES (?, ?)`,
		userID, personaID)
	if err != nil {
		return fmt.Errorf("failed to select persona %d for user %d: %w", personaID, userID, err)
	}
	return nil
}

// ClearSelected removes the user's selection; they act as themself again.
func (s *ConnectionStore) ClearSelected(ctx context.Context, userID int64) error {
	_, err := s.db.conn.ExecContext(ctx,
		`DELETE FROM selected_personas WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("failed to clear selected persona for user %d: %w", userID, err)
	}
	return nil
}
