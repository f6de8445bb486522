// ABOUTME: Gateway is the chat-platform collaborator seen by the core
// ABOUTME: The core never manages platform connections itself
package core

import (
	"context"

	"github.com/harper/veil/internal/models"
)

// Gateway is the chat platform as the relay sees it: message delivery plus
// member and endpoint resolution. Implementations live outside the core.
type Gateway interface {
	// SendUser delivers a direct message. Best-effort per recipient.
	SendUser(ctx context.Context, userID int64, text string, attachments []models.Attachment) error
	// SendChannel posts into a shared channel.
	SendChannel(ctx context.Context, channelID int64, text string, attachments []models.Attachment) error

	// UserDisplayName resolves a user's visible name. ok is false for
	// departed or unknown users.
	UserDisplayName(userID int64) (name string, ok bool)
	// UserExists reports whether the user is reachable on the platform.
	UserExists(userID int64) bool
	// ChannelExists reports whether the channel is reachable.
	ChannelExists(channelID int64) bool
	// ChannelDisplayName resolves a channel's visible name.
	ChannelDisplayName(channelID int64) (name string, ok bool)
	// MemberHasRole reports platform role membership.
	MemberHasRole(userID, roleID int64) bool
	// CanSendToChannel reports whether the user may post in the channel.
	CanSendToChannel(userID, channelID int64) bool
	// RoleMembers lists the users holding a role.
	RoleMembers(roleID int64) []int64

	// UserByName and ChannelByName resolve textual references.
	UserByName(name string) (int64, bool)
	ChannelByName(name string) (int64, bool)
}
