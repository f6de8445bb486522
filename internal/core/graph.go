// ABOUTME: Connection graph: pairwise anonymous links with exclusivity
// ABOUTME: Connect/disconnect serialize globally; all mutations commit atomically
package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/harper/veil/internal/models"
	"github.com/harper/veil/internal/storage/sqlite"
)

// Graph tracks which endpoints are anonymously linked. Every endpoint holds
// at most one edge; channels are the exception, carrying one edge per party
// bridged through them (the router handles that fan-out).
type Graph struct {
	db    *sqlite.DB
	conns *sqlite.ConnectionStore
	log   zerolog.Logger

	// mu serializes the connect/disconnect critical sections only, not the
	// whole store. Go mutexes hand the lock to starved waiters, so blocked
	// connect attempts run in arrival order.
	mu sync.Mutex
}

// NewGraph creates a Graph over the connection store.
func NewGraph(db *sqlite.DB, conns *sqlite.ConnectionStore, log zerolog.Logger) *Graph {
	return &Graph{
		db:    db,
		conns: conns,
		log:   log.With().Str("component", "graph").Logger(),
	}
}

// ConnectRequest describes one logical connection-forming operation.
type ConnectRequest struct {
	Us     models.Endpoint
	Target models.Endpoint

	// SelectUserID/SelectPersonaID, when set, record a persona selection in
	// the same transaction as the edge (a user with no active identity gets
	// one picked for them on connect). If any later check fails the
	// selection rolls back with everything else.
	SelectUserID    int64
	SelectPersonaID int64
}

// Connect atomically forms the edge Us-Target. Fails with
// ErrAlreadyConnected if Us holds an edge, ErrTargetConnected if a
// non-channel target does. Nothing externally visible happens here;
// counterpart notification is the caller's job after Connect returns, so a
// rollback never needs compensating messages.
func (g *Graph) Connect(ctx context.Context, req ConnectRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	err := g.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if req.SelectPersonaID != 0 {
			if err := g.conns.SelectIn(ctx, tx, req.SelectUserID, req.SelectPersonaID); err != nil {
				return err
			}
		}

		peers, err := g.conns.CounterpartsIn(ctx, tx, req.Us)
		if err != nil {
			return err
		}
		if len(peers) > 0 {
			return ErrAlreadyConnected
		}

		// Channels may hold any number of edges; everything else is
		// exclusive.
		if req.Target.Kind != models.EndpointChannel {
			peers, err = g.conns.CounterpartsIn(ctx, tx, req.Target)
			if err != nil {
				return err
			}
			if len(peers) > 0 {
				return ErrTargetConnected
			}
		}

		return g.conns.InsertIn(ctx, tx, req.Us, req.Target)
	})
	if err != nil {
		return err
	}

	g.log.Info().Stringer("us", req.Us).Stringer("target", req.Target).Msg("connected")
	return nil
}

// Lookup returns the endpoint(s) linked to e: zero or one for users and
// personas, any number for channels.
func (g *Graph) Lookup(ctx context.Context, e models.Endpoint) ([]models.Endpoint, error) {
	return g.conns.Counterparts(ctx, e)
}

// Disconnect tears down e's edge and returns the counterpart so the caller
// can notify it. ErrNotConnected when e holds no edge.
func (g *Graph) Disconnect(ctx context.Context, e models.Endpoint) (models.Endpoint, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	conn, found, err := g.conns.DeleteFor(ctx, e)
	if err != nil {
		return models.Endpoint{}, err
	}
	if !found {
		return models.Endpoint{}, ErrNotConnected
	}
	other, ok := conn.Other(e)
	if !ok {
		return models.Endpoint{}, fmt.Errorf("deleted edge %v does not contain %s", conn, e)
	}

	g.log.Info().Stringer("us", e).Stringer("counterpart", other).Msg("disconnected")
	return other, nil
}
