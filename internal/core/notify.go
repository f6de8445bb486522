// ABOUTME: Notification dispatcher for comment/reply side-channel alerts
// ABOUTME: Settings-gated, best-effort, never blocks the primary operation
package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// NotifyRequest describes one comment/reply event to fan out.
type NotifyRequest struct {
	// ParentOwner wrote the submission that was commented on; ReplyOwner
	// wrote the comment that was replied to. Either may be zero.
	ParentOwner int64
	ReplyOwner  int64
	// PersonaID is the acting persona, or NoPersona when the actor acted as
	// themself.
	PersonaID int64
	UserID    int64
	URL       string
	Content   string
}

// NoPersona marks an actor with no persona on the wire.
const NoPersona = -1

// Notifier sends best-effort asynchronous alerts, gated by the recipients'
// notification settings.
type Notifier struct {
	settings *SettingsService
	registry *Registry
	gateway  Gateway
	log      zerolog.Logger
	wg       sync.WaitGroup
}

// NewNotifier creates a Notifier.
func NewNotifier(settings *SettingsService, registry *Registry, gateway Gateway, log zerolog.Logger) *Notifier {
	return &Notifier{
		settings: settings,
		registry: registry,
		gateway:  gateway,
		log:      log.With().Str("component", "notifier").Logger(),
	}
}

// Notify alerts the parent and reply owners per their notification settings.
// The acting identity is never notified about its own action; when both
// owners are the same user the reply alert wins. Sends are asynchronous and
// failures are logged and swallowed.
func (n *Notifier) Notify(ctx context.Context, req NotifyRequest) error {
	name, err := n.actingName(ctx, req)
	if err != nil {
		return err
	}

	// target -> verb; a same-identity reply overwrites the comment alert so
	// at most one message goes out per user.
	verbs := make(map[int64]string)
	if req.ParentOwner != 0 {
		settings, err := n.settings.Get(ctx, req.ParentOwner)
		if err != nil {
			return err
		}
		if settings.NotifyComments {
			verbs[req.ParentOwner] = "commented on your submission"
		}
	}
	if req.ReplyOwner != 0 {
		settings, err := n.settings.Get(ctx, req.ReplyOwner)
		if err != nil {
			return err
		}
		if settings.NotifyReplies {
			verbs[req.ReplyOwner] = "replied to your comment"
		}
	}

	for target, verb := range verbs {
		if target == req.UserID {
			continue
		}
		if !n.gateway.UserExists(target) {
			continue
		}
		text := fmt.Sprintf("%s %s at <%s>:\n%s", name, verb, req.URL, req.Content)
		n.wg.Add(1)
		go func(target int64) {
			defer n.wg.Done()
			if err := n.gateway.SendUser(context.WithoutCancel(ctx), target, text, nil); err != nil {
				n.log.Warn().Err(err).Int64("target", target).Msg("notification failed")
			}
		}(target)
	}
	return nil
}

func (n *Notifier) actingName(ctx context.Context, req NotifyRequest) (string, error) {
	if req.PersonaID == NoPersona {
		return fmt.Sprintf("<@%d>", req.UserID), nil
	}
	p, err := n.registry.Get(ctx, req.PersonaID)
	if errors.Is(err, ErrNotFound) {
		return "", fmt.Errorf("acting persona %d: %w", req.PersonaID, ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	return p.Name, nil
}

// Wait blocks until all in-flight notification sends finish. Used on
// shutdown and in tests.
func (n *Notifier) Wait() {
	n.wg.Wait()
}
