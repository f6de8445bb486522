// ABOUTME: Tests for the settings service and the entropy estimate
package core

import (
	"context"
	"math"
	"testing"
	"time"
)

func TestSettingsSetIsFullReplace(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.settingsSvc.Set(ctx, 1, []string{"gpt", "dms"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := env.settingsSvc.Set(ctx, 1, []string{"lowercase"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := env.settingsSvc.Get(ctx, 1)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.GPT || got.DMs || !got.Lowercase {
		t.Errorf("settings after replace = %v", got.Enabled())
	}
}

// touchRecent marks a user as recently active by giving them a persona used
// now.
func touchRecent(t *testing.T, env *testEnv, userID int64, name string) {
	t.Helper()
	env.addPersona(t, userID, name, time.Now().Unix())
}

func TestEntropyMatchingPopulation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Two users with identical (default) settings, both recently active.
	touchRecent(t, env, 1, "one")
	touchRecent(t, env, 2, "two")
	for _, id := range []int64{1, 2} {
		if _, err := env.settingsSvc.Get(ctx, id); err != nil {
			t.Fatalf("Get(%d) error = %v", id, err)
		}
	}

	bits, err := env.settingsSvc.EntropyBits(ctx, 1)
	if err != nil {
		t.Fatalf("EntropyBits() error = %v", err)
	}
	// Everyone agrees on every flag: -log2(1) summed five times = 0.
	if bits != 0 {
		t.Errorf("EntropyBits() = %v, want 0", bits)
	}
}

func TestEntropySingleDistinguishingFlag(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	touchRecent(t, env, 1, "one")
	touchRecent(t, env, 2, "two")
	if err := env.settingsSvc.Set(ctx, 1, []string{"gpt"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := env.settingsSvc.Set(ctx, 2, []string{"gpt"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	touchRecent(t, env, 3, "three")
	if err := env.settingsSvc.Set(ctx, 3, nil); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	touchRecent(t, env, 4, "four")
	if err := env.settingsSvc.Set(ctx, 4, nil); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	// Population of 4; user 1's gpt=true matches 2 of 4 one bit;
	// every other flag matches all 4 zero bits each.
	bits, err := env.settingsSvc.EntropyBits(ctx, 1)
	if err != nil {
		t.Fatalf("EntropyBits() error = %v", err)
	}
	if math.Abs(bits-1) > 1e-9 {
		t.Errorf("EntropyBits() = %v, want 1", bits)
	}
}

func TestEntropyIsNonNegativeSum(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i, name := range []string{"a", "b", "c"} {
		touchRecent(t, env, int64(i+1), name)
	}
	if err := env.settingsSvc.Set(ctx, 1, []string{"gpt", "lowercase"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := env.settingsSvc.Set(ctx, 2, []string{"gpt"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := env.settingsSvc.Set(ctx, 3, []string{"lowercase", "dms"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	bits, err := env.settingsSvc.EntropyBits(ctx, 1)
	if err != nil {
		t.Fatalf("EntropyBits() error = %v", err)
	}
	if math.IsInf(bits, 1) || bits < 0 {
		t.Errorf("EntropyBits() = %v, want finite non-negative", bits)
	}
}

func TestEntropyNoMatchingPeerIsInfinite(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Subject is not recently active and the population is empty:
	// undefined, reported as maximal identifiability, never a crash.
	bits, err := env.settingsSvc.EntropyBits(ctx, 1)
	if err != nil {
		t.Fatalf("EntropyBits() error = %v", err)
	}
	if !math.IsInf(bits, 1) {
		t.Errorf("EntropyBits() = %v, want +Inf", bits)
	}

	// Subject stale, one active peer disagreeing on a flag: the subject's
	// value for gpt is matched by nobody.
	touchRecent(t, env, 2, "two")
	if err := env.settingsSvc.Set(ctx, 2, []string{"gpt"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := env.settingsSvc.Set(ctx, 1, nil); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	bits, err = env.settingsSvc.EntropyBits(ctx, 1)
	if err != nil {
		t.Fatalf("EntropyBits() error = %v", err)
	}
	if !math.IsInf(bits, 1) {
		t.Errorf("EntropyBits() = %v, want +Inf", bits)
	}
}

func TestEntropyIgnoresNotificationFlags(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	touchRecent(t, env, 1, "one")
	touchRecent(t, env, 2, "two")
	if err := env.settingsSvc.Set(ctx, 1, []string{"notify_comments", "notify_replies"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := env.settingsSvc.Set(ctx, 2, nil); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	bits, err := env.settingsSvc.EntropyBits(ctx, 1)
	if err != nil {
		t.Fatalf("EntropyBits() error = %v", err)
	}
	// Notification flags differ but are not identity flags: still 0 bits.
	if bits != 0 {
		t.Errorf("EntropyBits() = %v, want 0", bits)
	}
}
