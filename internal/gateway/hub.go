// ABOUTME: Websocket hub backing the chat platform seen by the relay
// ABOUTME: Tracks attached user and channel sockets and fans deliveries out
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/harper/veil/internal/models"
)

// Frame is the wire shape exchanged with attached sockets. Outbound frames
// carry From; inbound frames from a user socket may carry Channel to speak
// into a shared channel instead of the relay's DM surface.
type Frame struct {
	From        string              `json:"from,omitempty"`
	Channel     int64               `json:"channel,omitempty"`
	Text        string              `json:"text"`
	Attachments []models.Attachment `json:"attachments,omitempty"`
}

// InboundHandler consumes messages arriving from user sockets.
type InboundHandler func(ctx context.Context, msg models.Inbound)

// Hub is the websocket chat platform. Each socket attaches as either a user
// or a channel; the hub resolves names and permissions from what is attached
// plus role grants made at wiring time.
type Hub struct {
	log zerolog.Logger

	mu       sync.RWMutex
	users    map[int64]*client
	channels map[int64]*client
	roles    map[int64]map[int64]bool

	inbound InboundHandler
}

// NewHub creates an empty hub.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		log:      log.With().Str("component", "hub").Logger(),
		users:    make(map[int64]*client),
		channels: make(map[int64]*client),
		roles:    make(map[int64]map[int64]bool),
	}
}

// OnInbound registers the consumer of user-socket messages. Must be called
// before any socket attaches.
func (h *Hub) OnInbound(fn InboundHandler) {
	h.inbound = fn
}

// GrantRole marks users as members of a role. Role membership is
// configuration, not connection state; it survives detach.
func (h *Hub) GrantRole(roleID int64, userIDs ...int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.roles[roleID] == nil {
		h.roles[roleID] = make(map[int64]bool)
	}
	for _, id := range userIDs {
		h.roles[roleID][id] = true
	}
}

func (h *Hub) attach(c *client) {
	h.mu.Lock()
	var prev *client
	if c.channelID != 0 {
		prev = h.channels[c.channelID]
		h.channels[c.channelID] = c
	} else {
		prev = h.users[c.userID]
		h.users[c.userID] = c
	}
	h.mu.Unlock()

	// A reattach replaces the old socket.
	if prev != nil {
		prev.close()
	}
	h.log.Info().Int64("user", c.userID).Int64("channel", c.channelID).Str("name", c.name).Msg("attached")
}

func (h *Hub) detach(c *client) {
	h.mu.Lock()
	if c.channelID != 0 {
		if h.channels[c.channelID] == c {
			delete(h.channels, c.channelID)
		}
	} else if h.users[c.userID] == c {
		delete(h.users, c.userID)
	}
	h.mu.Unlock()
	h.log.Info().Int64("user", c.userID).Int64("channel", c.channelID).Msg("detached")
}

func (h *Hub) dispatch(ctx context.Context, c *client, f Frame) {
	if h.inbound == nil || c.channelID != 0 {
		// Channel sockets are delivery sinks, not authors.
		return
	}
	h.inbound(ctx, models.Inbound{
		AuthorID:    c.userID,
		ChannelID:   f.Channel,
		Text:        f.Text,
		Attachments: f.Attachments,
	})
}

func deliver(c *client, f Frame) error {
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return c.trySend(b)
}

// SendUser delivers a frame to an attached user socket.
func (h *Hub) SendUser(_ context.Context, userID int64, text string, attachments []models.Attachment) error {
	h.mu.RLock()
	c := h.users[userID]
	h.mu.RUnlock()
	if c == nil {
		return fmt.Errorf("user %d not attached", userID)
	}
	return deliver(c, Frame{Text: text, Attachments: attachments})
}

// SendChannel delivers a frame to an attached channel socket.
func (h *Hub) SendChannel(_ context.Context, channelID int64, text string, attachments []models.Attachment) error {
	h.mu.RLock()
	c := h.channels[channelID]
	h.mu.RUnlock()
	if c == nil {
		return fmt.Errorf("channel %d not attached", channelID)
	}
	return deliver(c, Frame{Text: text, Attachments: attachments})
}

// UserDisplayName resolves an attached user's name.
func (h *Hub) UserDisplayName(userID int64) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c := h.users[userID]
	if c == nil {
		return "", false
	}
	return c.name, true
}

// UserExists reports whether the user is attached.
func (h *Hub) UserExists(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.users[userID] != nil
}

// ChannelExists reports whether the channel is attached.
func (h *Hub) ChannelExists(channelID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channels[channelID] != nil
}

// ChannelDisplayName resolves an attached channel's name.
func (h *Hub) ChannelDisplayName(channelID int64) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c := h.channels[channelID]
	if c == nil {
		return "", false
	}
	return c.name, true
}

// MemberHasRole reports granted role membership.
func (h *Hub) MemberHasRole(userID, roleID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.roles[roleID][userID]
}

// CanSendToChannel reports whether a user may post in a channel. Both must
// be attached.
func (h *Hub) CanSendToChannel(userID, channelID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.users[userID] != nil && h.channels[channelID] != nil
}

// RoleMembers lists the users granted a role.
func (h *Hub) RoleMembers(roleID int64) []int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	members := make([]int64, 0, len(h.roles[roleID]))
	for id := range h.roles[roleID] {
		members = append(members, id)
	}
	return members
}

// UserByName resolves an attached user by name.
func (h *Hub) UserByName(name string) (int64, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, c := range h.users {
		if c.name == name {
			return id, true
		}
	}
	return 0, false
}

// ChannelByName resolves an attached channel by name.
func (h *Hub) ChannelByName(name string) (int64, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, c := range h.channels {
		if c.name == name {
			return id, true
		}
	}
	return 0, false
}
