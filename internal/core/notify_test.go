// ABOUTME: Tests for the notification dispatcher: gating and suppression
package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func newNotifyEnv(t *testing.T) (*testEnv, *Notifier) {
	t.Helper()
	env := newTestEnv(t)
	n := NewNotifier(env.settingsSvc, env.registry, env.gateway, zerolog.Nop())
	return env, n
}

func TestNotifyRespectsSettings(t *testing.T) {
	env, n := newNotifyEnv(t)
	ctx := context.Background()
	env.gateway.addUser(10, "parent")
	env.gateway.addUser(20, "replier")
	env.gateway.addUser(30, "actor")

	// Only the parent opted in.
	if err := env.settingsSvc.Set(ctx, 10, []string{"notify_comments"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := env.settingsSvc.Set(ctx, 20, nil); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	p := env.addPersona(t, 30, "masked", 0)

	err := n.Notify(ctx, NotifyRequest{
		ParentOwner: 10, ReplyOwner: 20,
		PersonaID: p.ID, UserID: 30,
		URL: "https://game.example/5", Content: "nice entry",
	})
	if err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	n.Wait()

	got := env.gateway.sentTo(10)
	if len(got) != 1 {
		t.Fatalf("parent notifications = %d, want 1", len(got))
	}
	if !strings.Contains(got[0].Text, "masked commented on your submission") ||
		!strings.Contains(got[0].Text, "<https://game.example/5>") ||
		!strings.Contains(got[0].Text, "nice entry") {
		t.Errorf("notification = %q", got[0].Text)
	}
	if len(env.gateway.sentTo(20)) != 0 {
		t.Error("replier notified despite disabled flag")
	}
}

func TestNotifyNeverNotifiesActor(t *testing.T) {
	env, n := newNotifyEnv(t)
	ctx := context.Background()
	env.gateway.addUser(10, "self")

	if err := env.settingsSvc.Set(ctx, 10, []string{"notify_comments", "notify_replies"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	err := n.Notify(ctx, NotifyRequest{
		ParentOwner: 10, ReplyOwner: 10,
		PersonaID: NoPersona, UserID: 10,
		URL: "https://game.example/1", Content: "talking to myself",
	})
	if err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	n.Wait()

	if got := env.gateway.allSent(); len(got) != 0 {
		t.Errorf("deliveries = %+v, want none for self-action", got)
	}
}

func TestNotifySameTargetAtMostOnce(t *testing.T) {
	env, n := newNotifyEnv(t)
	ctx := context.Background()
	env.gateway.addUser(10, "both")
	env.gateway.addUser(30, "actor")

	if err := env.settingsSvc.Set(ctx, 10, []string{"notify_comments", "notify_replies"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	err := n.Notify(ctx, NotifyRequest{
		ParentOwner: 10, ReplyOwner: 10,
		PersonaID: NoPersona, UserID: 30,
		URL: "https://game.example/2", Content: "hello",
	})
	if err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	n.Wait()

	if got := env.gateway.sentTo(10); len(got) != 1 {
		t.Errorf("notifications = %d, want at most one for a merged target", len(got))
	}
}

func TestNotifyAnonymousActorUsesMention(t *testing.T) {
	env, n := newNotifyEnv(t)
	ctx := context.Background()
	env.gateway.addUser(10, "parent")
	env.gateway.addUser(30, "actor")

	if err := env.settingsSvc.Set(ctx, 10, []string{"notify_comments"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	err := n.Notify(ctx, NotifyRequest{
		ParentOwner: 10,
		PersonaID:   NoPersona, UserID: 30,
		URL: "https://game.example/3", Content: "x",
	})
	if err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	n.Wait()

	got := env.gateway.sentTo(10)
	if len(got) != 1 || !strings.HasPrefix(got[0].Text, "<@30> ") {
		t.Errorf("notification = %+v, want mention prefix", got)
	}
}

func TestNotifyUnknownPersonaFails(t *testing.T) {
	env, n := newNotifyEnv(t)
	env.gateway.addUser(10, "parent")

	err := n.Notify(context.Background(), NotifyRequest{
		ParentOwner: 10, PersonaID: 777, UserID: 30,
		URL: "https://game.example/4", Content: "x",
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Notify() error = %v, want ErrNotFound", err)
	}
}

func TestNotifySendFailureIsSwallowed(t *testing.T) {
	env, n := newNotifyEnv(t)
	ctx := context.Background()
	env.gateway.addUser(10, "parent")
	env.gateway.failFor[10] = true

	if err := env.settingsSvc.Set(ctx, 10, []string{"notify_comments"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	err := n.Notify(ctx, NotifyRequest{
		ParentOwner: 10, PersonaID: NoPersona, UserID: 30,
		URL: "https://game.example/6", Content: "x",
	})
	if err != nil {
		t.Errorf("Notify() error = %v, want nil despite delivery failure", err)
	}
	n.Wait()
}
