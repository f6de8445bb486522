// ABOUTME: Settings service and the information-leakage entropy estimate
// ABOUTME: Entropy sums -log2 agreement odds across the five identity flags
package core

import (
	"context"
	"math"
	"time"

	"github.com/harper/veil/internal/models"
	"github.com/harper/veil/internal/storage/sqlite"
)

// activeWindow bounds the population used for the entropy estimate: users
// who used a persona within this window.
const activeWindow = 35 * 24 * time.Hour

// SettingsService stores per-user privacy preferences and estimates how
// identifiable a user's settings fingerprint is.
type SettingsService struct {
	store *sqlite.SettingsStore
	now   func() time.Time
}

// NewSettingsService creates a SettingsService over the settings store.
func NewSettingsService(store *sqlite.SettingsStore) *SettingsService {
	return &SettingsService{store: store, now: time.Now}
}

// Get reads a user's settings, creating the default row on first access.
func (s *SettingsService) Get(ctx context.Context, userID int64) (models.Settings, error) {
	return s.store.GetOrCreate(ctx, userID)
}

// Set replaces the user's settings with exactly the named flags enabled.
// Full replace, not patch: anything absent is disabled.
func (s *SettingsService) Set(ctx context.Context, userID int64, enabled []string) error {
	return s.store.Put(ctx, models.SettingsFromNames(userID, enabled))
}

// EntropyBits estimates how distinguishable the user's privacy fingerprint
// is from the recently active population. For each identity flag it adds
// -log2(P(agreement)) where P(agreement) is the fraction of recently active
// users whose value matches the subject's. Lower means less identifiable.
// Returns +Inf when some flag value is shared with nobody in the population
// (including the empty-population case): maximally identifiable.
func (s *SettingsService) EntropyBits(ctx context.Context, userID int64) (float64, error) {
	ours, err := s.Get(ctx, userID)
	if err != nil {
		return 0, err
	}

	cutoff := s.now().Add(-activeWindow).Unix()
	population, err := s.store.ActivePopulation(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if len(population) == 0 {
		return math.Inf(1), nil
	}

	var total float64
	for _, d := range models.SettingDescriptors {
		if !d.Identity {
			continue
		}
		ourValue, _ := ours.Flag(d.Name)
		matches := 0
		for _, theirs := range population {
			if v, _ := theirs.Flag(d.Name); v == ourValue {
				matches++
			}
		}
		if matches == 0 {
			return math.Inf(1), nil
		}
		total += -math.Log2(float64(matches) / float64(len(population)))
	}
	return total, nil
}
