// ABOUTME: Tests for the relay router, including channel bridging fan-out
package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/harper/veil/internal/models"
)

func newRouterEnv(t *testing.T, rewriter Rewriter) (*testEnv, *Router) {
	t.Helper()
	env := newTestEnv(t)
	tr := NewTransformer(env.settingsSvc, env.registry, rewriter, zerolog.Nop())
	router := NewRouter(env.graph, env.registry, env.conns, tr, env.gateway, zerolog.Nop())
	return env, router
}

func TestRelayDropsUnconnectedTraffic(t *testing.T) {
	env, router := newRouterEnv(t, nil)
	env.gateway.addUser(1, "alice")

	err := router.HandleInbound(context.Background(), models.Inbound{AuthorID: 1, Text: "hello"})
	if err != nil {
		t.Fatalf("HandleInbound() error = %v", err)
	}
	if got := env.gateway.allSent(); len(got) != 0 {
		t.Errorf("deliveries = %v, want none for unconnected sender", got)
	}
}

func TestRelayDirectUserToUser(t *testing.T) {
	env, router := newRouterEnv(t, nil)
	ctx := context.Background()
	env.gateway.addUser(1, "alice")
	env.gateway.addUser(2, "bob")

	p := env.addPersona(t, 1, "mask", 0)
	if err := env.conns.Select(ctx, 1, p.ID); err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if err := env.graph.Connect(ctx, ConnectRequest{Us: p.Endpoint(), Target: models.UserEndpoint(2)}); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := router.HandleInbound(ctx, models.Inbound{AuthorID: 1, Text: "psst"}); err != nil {
		t.Fatalf("HandleInbound() error = %v", err)
	}

	got := env.gateway.sentTo(2)
	if len(got) != 1 {
		t.Fatalf("deliveries to bob = %d, want 1", len(got))
	}
	if got[0].Text != "<mask> psst" {
		t.Errorf("delivered = %q, want persona-prefixed text", got[0].Text)
	}
}

func TestRelayPersonaCounterpartGoesToOwner(t *testing.T) {
	env, router := newRouterEnv(t, nil)
	ctx := context.Background()
	env.gateway.addUser(1, "alice")
	env.gateway.addUser(2, "bob")

	mine := env.addPersona(t, 1, "mine", 0)
	theirs := env.addPersona(t, 2, "theirs", 0)
	if err := env.conns.Select(ctx, 1, mine.ID); err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if err := env.graph.Connect(ctx, ConnectRequest{Us: mine.Endpoint(), Target: theirs.Endpoint()}); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := router.HandleInbound(ctx, models.Inbound{AuthorID: 1, Text: "hi"}); err != nil {
		t.Fatalf("HandleInbound() error = %v", err)
	}

	if got := env.gateway.sentTo(2); len(got) != 1 {
		t.Errorf("deliveries to owner = %d, want 1", len(got))
	}
}

// The end-to-end bridging scenario: A connects to channel C; B, via persona,
// is separately connected to C. A message from A reaches B's owning user and
// nobody else: not C itself, not A.
func TestRelayChannelBridging(t *testing.T) {
	env, router := newRouterEnv(t, nil)
	ctx := context.Background()
	env.gateway.addUser(1, "alice")
	env.gateway.addUser(2, "bob")
	env.gateway.addChannel(9, "game-talk")

	channel := models.ChannelEndpoint(9)
	if err := env.graph.Connect(ctx, ConnectRequest{Us: models.UserEndpoint(1), Target: channel}); err != nil {
		t.Fatalf("Connect(A) error = %v", err)
	}
	bobMask := env.addPersona(t, 2, "bobmask", 0)
	if err := env.graph.Connect(ctx, ConnectRequest{Us: bobMask.Endpoint(), Target: channel}); err != nil {
		t.Fatalf("Connect(B persona) error = %v", err)
	}

	if err := router.HandleInbound(ctx, models.Inbound{AuthorID: 1, Text: "anyone here?"}); err != nil {
		t.Fatalf("HandleInbound() error = %v", err)
	}

	all := env.gateway.allSent()
	if len(all) != 1 {
		t.Fatalf("deliveries = %+v, want exactly one (to bob)", all)
	}
	if all[0].UserID != 2 || all[0].ChannelID != 0 {
		t.Errorf("delivery target = %+v, want user 2", all[0])
	}
	if all[0].Text != "<alice> anyone here?" {
		t.Errorf("delivered = %q", all[0].Text)
	}
}

func TestRelayChannelTrafficIsNotTransformed(t *testing.T) {
	env, router := newRouterEnv(t, nil)
	ctx := context.Background()
	env.gateway.addUser(1, "Alice")
	env.gateway.addUser(2, "bob")
	env.gateway.addChannel(9, "lobby")

	// Channel messages relay as the channel; lowercase settings of the
	// author must not apply.
	if err := env.settingsSvc.Set(ctx, 1, []string{"lowercase"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	channel := models.ChannelEndpoint(9)
	if err := env.graph.Connect(ctx, ConnectRequest{Us: models.UserEndpoint(2), Target: channel}); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := router.HandleInbound(ctx, models.Inbound{AuthorID: 1, ChannelID: 9, Text: "LOUD Words"}); err != nil {
		t.Fatalf("HandleInbound() error = %v", err)
	}

	got := env.gateway.sentTo(2)
	if len(got) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(got))
	}
	if !strings.Contains(got[0].Text, "LOUD Words") {
		t.Errorf("delivered = %q, want untransformed text", got[0].Text)
	}
	if !strings.HasPrefix(got[0].Text, "<Alice>") {
		t.Errorf("delivered = %q, want author display name prefix", got[0].Text)
	}
}

func TestRelayTransformFailureAbortsMessage(t *testing.T) {
	rewriter := &fakeRewriter{err: errors.New("down")}
	env, router := newRouterEnv(t, rewriter)
	ctx := context.Background()
	env.gateway.addUser(1, "alice")
	env.gateway.addUser(2, "bob")

	p := env.addPersona(t, 1, "mask", 0)
	if err := env.conns.Select(ctx, 1, p.ID); err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if err := env.settingsSvc.Set(ctx, 1, []string{"gpt"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := env.graph.Connect(ctx, ConnectRequest{Us: p.Endpoint(), Target: models.UserEndpoint(2)}); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	err := router.HandleInbound(ctx, models.Inbound{AuthorID: 1, Text: "secret"})
	if !errors.Is(err, ErrRewriteUnavailable) {
		t.Fatalf("HandleInbound() error = %v, want ErrRewriteUnavailable", err)
	}
	if got := env.gateway.allSent(); len(got) != 0 {
		t.Errorf("deliveries = %v, want none after transform failure", got)
	}
}

func TestRelayPerRecipientFailuresAreIndependent(t *testing.T) {
	env, router := newRouterEnv(t, nil)
	ctx := context.Background()
	env.gateway.addUser(1, "alice")
	env.gateway.addUser(2, "bob")
	env.gateway.addUser(3, "carol")
	env.gateway.addChannel(9, "lobby")
	env.gateway.failFor[2] = true

	channel := models.ChannelEndpoint(9)
	if err := env.graph.Connect(ctx, ConnectRequest{Us: models.UserEndpoint(1), Target: channel}); err != nil {
		t.Fatalf("Connect(A) error = %v", err)
	}
	if err := env.graph.Connect(ctx, ConnectRequest{Us: models.UserEndpoint(2), Target: channel}); err != nil {
		t.Fatalf("Connect(B) error = %v", err)
	}
	if err := env.graph.Connect(ctx, ConnectRequest{Us: models.UserEndpoint(3), Target: channel}); err != nil {
		t.Fatalf("Connect(C) error = %v", err)
	}

	if err := router.HandleInbound(ctx, models.Inbound{AuthorID: 1, Text: "hi"}); err != nil {
		t.Fatalf("HandleInbound() error = %v", err)
	}
	if got := env.gateway.sentTo(3); len(got) != 1 {
		t.Errorf("carol deliveries = %d, want 1 despite bob failing", len(got))
	}
}

func TestRelayExcludesDepartedRecipients(t *testing.T) {
	env, router := newRouterEnv(t, nil)
	ctx := context.Background()
	env.gateway.addUser(1, "alice")
	// user 2 is not known to the gateway (departed)

	p := env.addPersona(t, 1, "mask", 0)
	if err := env.conns.Select(ctx, 1, p.ID); err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if err := env.graph.Connect(ctx, ConnectRequest{Us: p.Endpoint(), Target: models.UserEndpoint(2)}); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := router.HandleInbound(ctx, models.Inbound{AuthorID: 1, Text: "anyone?"}); err != nil {
		t.Fatalf("HandleInbound() error = %v", err)
	}
	if got := env.gateway.allSent(); len(got) != 0 {
		t.Errorf("deliveries = %v, want none", got)
	}
}

func TestRelayAttachmentsAreForwarded(t *testing.T) {
	env, router := newRouterEnv(t, nil)
	ctx := context.Background()
	env.gateway.addUser(1, "alice")
	env.gateway.addUser(2, "bob")

	p := env.addPersona(t, 1, "mask", 0)
	if err := env.conns.Select(ctx, 1, p.ID); err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if err := env.graph.Connect(ctx, ConnectRequest{Us: p.Endpoint(), Target: models.UserEndpoint(2)}); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	atts := []models.Attachment{{Name: "pic.png", URL: "https://cdn.example/pic.png"}}
	if err := router.HandleInbound(ctx, models.Inbound{AuthorID: 1, Text: "look", Attachments: atts}); err != nil {
		t.Fatalf("HandleInbound() error = %v", err)
	}

	got := env.gateway.sentTo(2)
	if len(got) != 1 || len(got[0].Attachments) != 1 || got[0].Attachments[0].Name != "pic.png" {
		t.Errorf("deliveries = %+v, want attachment forwarded", got)
	}
}
