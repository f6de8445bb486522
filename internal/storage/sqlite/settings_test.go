// ABOUTME: Tests for settings storage: lazy rows, full replace, population
package sqlite

import (
	"context"
	"testing"

	"github.com/harper/veil/internal/models"
)

func TestSettingsGetOrCreateDefaults(t *testing.T) {
	db := newTestDB(t)
	store := NewSettingsStore(db)
	ctx := context.Background()

	got, err := store.GetOrCreate(ctx, 7)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if got.UserID != 7 {
		t.Errorf("UserID = %d, want 7", got.UserID)
	}
	if len(got.Enabled()) != 0 {
		t.Errorf("new row has enabled flags: %v", got.Enabled())
	}

	// Second read returns the same lazily-created row, not another insert.
	var count int
	if err := db.Conn().Get(&count, `SELECT COUNT(*) FROM settings`); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("settings rows = %d, want 1", count)
	}
}

func TestSettingsPutReplacesRow(t *testing.T) {
	db := newTestDB(t)
	store := NewSettingsStore(db)
	ctx := context.Background()

	if err := store.Put(ctx, models.SettingsFromNames(3, []string{"gpt", "dms"})); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := store.Put(ctx, models.SettingsFromNames(3, []string{"lowercase"})); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := store.GetOrCreate(ctx, 3)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if got.GPT || got.DMs {
		t.Error("flags from the first write survived a full replace")
	}
	if !got.Lowercase {
		t.Error("Lowercase = false, want true")
	}
}

func TestSettingsActivePopulation(t *testing.T) {
	db := newTestDB(t)
	settings := NewSettingsStore(db)
	personas := NewPersonaStore(db)
	ctx := context.Background()

	// User 1 recently active, user 2 stale, user 3 has settings but no persona.
	if _, err := personas.Insert(ctx, &models.Persona{UserID: 1, Name: "fresh", LastUsed: 1000}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if _, err := personas.Insert(ctx, &models.Persona{UserID: 2, Name: "stale", LastUsed: 10}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	for _, id := range []int64{1, 2, 3} {
		if _, err := settings.GetOrCreate(ctx, id); err != nil {
			t.Fatalf("GetOrCreate(%d) error = %v", id, err)
		}
	}

	pop, err := settings.ActivePopulation(ctx, 500)
	if err != nil {
		t.Fatalf("ActivePopulation() error = %v", err)
	}
	if len(pop) != 1 || pop[0].UserID != 1 {
		t.Errorf("ActivePopulation() = %+v, want just user 1", pop)
	}
}
