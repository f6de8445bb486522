// ABOUTME: Shared test fixtures for the core services
// ABOUTME: Real in-memory sqlite store plus a recording fake gateway
package core

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/harper/veil/internal/models"
	"github.com/harper/veil/internal/storage/sqlite"
)

type testEnv struct {
	db       *sqlite.DB
	personas *sqlite.PersonaStore
	settings *sqlite.SettingsStore
	conns    *sqlite.ConnectionStore

	registry    *Registry
	settingsSvc *SettingsService
	graph       *Graph
	gateway     *fakeGateway
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := sqlite.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	env := &testEnv{
		db:       db,
		personas: sqlite.NewPersonaStore(db),
		settings: sqlite.NewSettingsStore(db),
		conns:    sqlite.NewConnectionStore(db),
		gateway:  newFakeGateway(),
	}
	log := zerolog.Nop()
	env.registry = NewRegistry(env.personas, DefaultNamePool(), log)
	env.settingsSvc = NewSettingsService(env.settings)
	env.graph = NewGraph(db, env.conns, log)
	return env
}

// addPersona inserts a persona directly, bypassing naming rules.
func (e *testEnv) addPersona(t *testing.T, userID int64, name string, lastUsed int64) *models.Persona {
	t.Helper()
	p := &models.Persona{UserID: userID, Name: name, LastUsed: lastUsed}
	if _, err := e.personas.Insert(context.Background(), p); err != nil {
		t.Fatalf("Insert(%s) error = %v", name, err)
	}
	return p
}

type sentMessage struct {
	UserID      int64
	ChannelID   int64
	Text        string
	Attachments []models.Attachment
}

// fakeGateway records deliveries and resolves users/channels from fixed maps.
type fakeGateway struct {
	mu       sync.Mutex
	sent     []sentMessage
	users    map[int64]string
	channels map[int64]string
	roles    map[int64][]int64
	failFor  map[int64]bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		users:    make(map[int64]string),
		channels: make(map[int64]string),
		roles:    make(map[int64][]int64),
		failFor:  make(map[int64]bool),
	}
}

func (g *fakeGateway) addUser(id int64, name string)    { g.users[id] = name }
func (g *fakeGateway) addChannel(id int64, name string) { g.channels[id] = name }

func (g *fakeGateway) SendUser(_ context.Context, userID int64, text string, attachments []models.Attachment) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failFor[userID] {
		return fmt.Errorf("user %d unreachable", userID)
	}
	g.sent = append(g.sent, sentMessage{UserID: userID, Text: text, Attachments: attachments})
	return nil
}

func (g *fakeGateway) SendChannel(_ context.Context, channelID int64, text string, attachments []models.Attachment) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, sentMessage{ChannelID: channelID, Text: text, Attachments: attachments})
	return nil
}

func (g *fakeGateway) UserDisplayName(userID int64) (string, bool) {
	name, ok := g.users[userID]
	return name, ok
}

func (g *fakeGateway) UserExists(userID int64) bool {
	_, ok := g.users[userID]
	return ok
}

func (g *fakeGateway) ChannelExists(channelID int64) bool {
	_, ok := g.channels[channelID]
	return ok
}

func (g *fakeGateway) ChannelDisplayName(channelID int64) (string, bool) {
	name, ok := g.channels[channelID]
	return name, ok
}

func (g *fakeGateway) MemberHasRole(userID, roleID int64) bool {
	for _, id := range g.roles[roleID] {
		if id == userID {
			return true
		}
	}
	return false
}

func (g *fakeGateway) CanSendToChannel(userID, channelID int64) bool {
	return g.UserExists(userID) && g.ChannelExists(channelID)
}

func (g *fakeGateway) RoleMembers(roleID int64) []int64 {
	return g.roles[roleID]
}

func (g *fakeGateway) UserByName(name string) (int64, bool) {
	for id, n := range g.users {
		if n == name {
			return id, true
		}
	}
	return 0, false
}

func (g *fakeGateway) ChannelByName(name string) (int64, bool) {
	for id, n := range g.channels {
		if n == name {
			return id, true
		}
	}
	return 0, false
}

// sentTo returns the messages delivered to a user's DMs.
func (g *fakeGateway) sentTo(userID int64) []sentMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []sentMessage
	for _, m := range g.sent {
		if m.UserID == userID && m.ChannelID == 0 {
			out = append(out, m)
		}
	}
	return out
}

func (g *fakeGateway) allSent() []sentMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]sentMessage(nil), g.sent...)
}
