// ABOUTME: Persona registry: identity ownership, naming rules, lifecycle
// ABOUTME: Auto-creates a pool-named persona on first anonymous-identity use
package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/harper/veil/internal/models"
	"github.com/harper/veil/internal/storage/sqlite"
)

// Registry owns persona identity and lifecycle.
type Registry struct {
	personas *sqlite.PersonaStore
	pool     *NamePool
	log      zerolog.Logger
	now      func() time.Time
}

// NewRegistry creates a Registry over the persona store.
func NewRegistry(personas *sqlite.PersonaStore, pool *NamePool, log zerolog.Logger) *Registry {
	return &Registry{
		personas: personas,
		pool:     pool,
		log:      log.With().Str("component", "registry").Logger(),
		now:      time.Now,
	}
}

// ListActive returns the user's active personas, most recently used first.
// If the user has no active stock persona, one is created with a fresh pool
// name first, so every user always has at least one anonymous identity.
func (r *Registry) ListActive(ctx context.Context, userID int64) ([]models.Persona, error) {
	hasStock, err := r.personas.HasActiveStock(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !hasStock {
		if err := r.createStock(ctx, userID); err != nil {
			return nil, err
		}
	}
	return r.personas.ListActive(ctx, userID)
}

func (r *Registry) createStock(ctx context.Context, userID int64) error {
	for attempt := 0; attempt < 4; attempt++ {
		name, err := r.randomFreeName(ctx)
		if err != nil {
			return err
		}
		// A replacement inherits the recency slot of the user's previous
		// stock persona so it does not jump to the top of the list.
		lastUsed, err := r.personas.LatestStockLastUsed(ctx, userID)
		if err != nil {
			return err
		}
		p := &models.Persona{UserID: userID, Name: name, Temp: true, Stock: true, LastUsed: lastUsed}
		_, err = r.personas.Insert(ctx, p)
		if errors.Is(err, sqlite.ErrDuplicate) {
			// Either a concurrent request already made this user's stock
			// persona, or the drawn name was claimed between the free-name
			// check and the insert. The store's unique indexes decide.
			hasStock, herr := r.personas.HasActiveStock(ctx, userID)
			if herr != nil {
				return herr
			}
			if hasStock {
				return nil
			}
			continue
		}
		if err != nil {
			return err
		}
		r.log.Debug().Int64("user", userID).Str("name", name).Msg("created stock persona")
		return nil
	}
	return fmt.Errorf("could not draw a free stock persona name")
}

// randomFreeName draws pool names until one does not collide with an active
// persona. Gives up after a few passes over the pool rather than spinning
// when every name is taken.
func (r *Registry) randomFreeName(ctx context.Context) (string, error) {
	for attempt := 0; attempt < r.pool.Size()*4; attempt++ {
		name := r.pool.Pick()
		taken, err := r.personas.NameExists(ctx, name)
		if err != nil {
			return "", err
		}
		if !taken {
			return name, nil
		}
	}
	return "", fmt.Errorf("name pool exhausted")
}

// validateName normalizes and checks a proposed persona name. Returns
// ErrNameConflict for every rule violation; callers cannot distinguish a
// collision from a reserved name, which keeps probing for taken names
// uninformative.
func (r *Registry) validateName(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrNameConflict
	}
	for _, c := range name {
		if !unicode.IsPrint(c) {
			return "", ErrNameConflict
		}
	}
	if strings.HasPrefix(name, reservedPrefix) {
		return "", ErrNameConflict
	}
	if strings.HasPrefix(name, "[") && strings.HasSuffix(name, "]") {
		return "", ErrNameConflict
	}
	taken, err := r.personas.NameExists(ctx, name)
	if err != nil {
		return "", err
	}
	if taken {
		return "", ErrNameConflict
	}
	return name, nil
}

// Create makes a new persona for the user. Elevated callers bypass name
// validation entirely (administrative override).
func (r *Registry) Create(ctx context.Context, userID int64, name string, temp, elevated bool) (*models.Persona, error) {
	if !elevated {
		var err error
		if name, err = r.validateName(ctx, name); err != nil {
			return nil, err
		}
	} else {
		name = strings.TrimSpace(name)
	}
	p := &models.Persona{UserID: userID, Name: name, Temp: temp}
	if _, err := r.personas.Insert(ctx, p); err != nil {
		// The pre-check races with concurrent creates; the store's unique
		// index is what actually decides the winner.
		if errors.Is(err, sqlite.ErrDuplicate) {
			return nil, ErrNameConflict
		}
		return nil, err
	}
	return p, nil
}

// Rename changes a persona's name under the same rules as Create.
func (r *Registry) Rename(ctx context.Context, personaID int64, name string, elevated bool) (*models.Persona, error) {
	p, err := r.personas.GetByID(ctx, personaID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("persona %d: %w", personaID, ErrNotFound)
	}
	if !elevated {
		if name, err = r.validateName(ctx, name); err != nil {
			return nil, err
		}
	} else {
		name = strings.TrimSpace(name)
	}
	if err := r.personas.Rename(ctx, personaID, name); err != nil {
		if errors.Is(err, sqlite.ErrDuplicate) {
			return nil, ErrNameConflict
		}
		return nil, err
	}
	p.Name = name
	return p, nil
}

// Get retrieves a persona by id, active or not.
func (r *Registry) Get(ctx context.Context, personaID int64) (*models.Persona, error) {
	p, err := r.personas.GetByID(ctx, personaID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("persona %d: %w", personaID, ErrNotFound)
	}
	return p, nil
}

// ResolveByName finds an active persona by exact name.
func (r *Registry) ResolveByName(ctx context.Context, name string) (*models.Persona, error) {
	p, err := r.personas.GetActiveByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("persona %q: %w", name, ErrNotFound)
	}
	return p, nil
}

// Deactivate soft-deletes a persona by id.
func (r *Registry) Deactivate(ctx context.Context, personaID int64) error {
	return r.personas.Deactivate(ctx, personaID)
}

// DeactivateNamed soft-deletes a user's persona by name.
func (r *Registry) DeactivateNamed(ctx context.Context, userID int64, name string) error {
	ok, err := r.personas.DeactivateNamed(ctx, userID, name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("persona %q: %w", name, ErrNotFound)
	}
	return nil
}

// PurgeTemporary deactivates every temporary persona. Used at the end of a
// game round to force an identity reset.
func (r *Registry) PurgeTemporary(ctx context.Context) (int64, error) {
	n, err := r.personas.PurgeTemporary(ctx)
	if err != nil {
		return 0, err
	}
	r.log.Info().Int64("purged", n).Msg("purged temporary personas")
	return n, nil
}

// Touch records relay activity on a persona, keeping it alive in recency
// ordering.
func (r *Registry) Touch(ctx context.Context, personaID int64) error {
	return r.personas.Touch(ctx, personaID, r.now().Unix())
}
