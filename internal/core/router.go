// ABOUTME: Relay router: resolves sender identity and fans messages out
// ABOUTME: Channel counterparts bridge transitively to their own parties
package core

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/harper/veil/internal/models"
	"github.com/harper/veil/internal/storage/sqlite"
)

// Router resolves the delivery targets for inbound messages and delivers to
// each of them.
type Router struct {
	graph       *Graph
	registry    *Registry
	conns       *sqlite.ConnectionStore
	transformer *Transformer
	gateway     Gateway
	log         zerolog.Logger
}

// NewRouter creates a Router.
func NewRouter(graph *Graph, registry *Registry, conns *sqlite.ConnectionStore, transformer *Transformer, gateway Gateway, log zerolog.Logger) *Router {
	return &Router{
		graph:       graph,
		registry:    registry,
		conns:       conns,
		transformer: transformer,
		gateway:     gateway,
		log:         log.With().Str("component", "router").Logger(),
	}
}

// SenderIdentity resolves the endpoint and visible name a message is relayed
// as: the channel for channel traffic, otherwise the author's selected
// persona, otherwise the author themself.
func (r *Router) SenderIdentity(ctx context.Context, msg models.Inbound) (models.Endpoint, string, error) {
	if msg.ChannelID != 0 {
		return models.ChannelEndpoint(msg.ChannelID), r.displayName(msg.AuthorID), nil
	}
	selected, err := r.conns.Selected(ctx, msg.AuthorID)
	if err != nil {
		return models.Endpoint{}, "", err
	}
	if selected != nil {
		return selected.Endpoint(), selected.Name, nil
	}
	return models.UserEndpoint(msg.AuthorID), r.displayName(msg.AuthorID), nil
}

func (r *Router) displayName(userID int64) string {
	if name, ok := r.gateway.UserDisplayName(userID); ok {
		return name
	}
	return fmt.Sprintf("<@%d>", userID)
}

// HandleInbound relays one gateway message. Messages from identities with no
// connection are silently dropped; that is ordinary platform traffic, not an
// error. Transformation failures are fatal for the message. Per-recipient
// delivery failures are independent and never abort the rest of the fan-out.
func (r *Router) HandleInbound(ctx context.Context, msg models.Inbound) error {
	us, name, err := r.SenderIdentity(ctx, msg)
	if err != nil {
		return err
	}

	peers, err := r.graph.Lookup(ctx, us)
	if err != nil {
		return err
	}
	if len(peers) == 0 {
		return nil
	}

	text := msg.Text
	if us.Kind == models.EndpointPersona {
		text, err = r.transformer.Transform(ctx, text, us.ID, msg.AuthorID)
		if err != nil {
			return err
		}
	}

	recipients, err := r.resolveRecipients(ctx, us, msg.AuthorID, peers)
	if err != nil {
		return err
	}

	line := fmt.Sprintf("<%s> %s", name, text)
	var delivered int
	for _, target := range recipients {
		if err := r.gateway.SendUser(ctx, target, line, msg.Attachments); err != nil {
			r.log.Warn().Err(err).Int64("recipient", target).Msg("delivery failed")
			continue
		}
		delivered++
	}
	r.log.Debug().Stringer("us", us).Int("recipients", len(recipients)).Int("delivered", delivered).Msg("relayed")
	return nil
}

// resolveRecipients maps counterpart endpoints to concrete recipient users.
// A channel counterpart contributes the owning user of every other party
// bridged through it; the channel itself receives nothing, it is a shared
// rendezvous point rather than a recipient. The sender and unresolvable
// (departed) targets are excluded.
func (r *Router) resolveRecipients(ctx context.Context, us models.Endpoint, authorID int64, peers []models.Endpoint) ([]int64, error) {
	seen := make(map[int64]bool)
	for _, peer := range peers {
		switch peer.Kind {
		case models.EndpointUser:
			seen[peer.ID] = true
		case models.EndpointPersona:
			owner, err := r.personaOwner(ctx, peer.ID)
			if err != nil {
				return nil, err
			}
			if owner != 0 {
				seen[owner] = true
			}
		case models.EndpointChannel:
			parties, err := r.graph.Lookup(ctx, peer)
			if err != nil {
				return nil, err
			}
			for _, party := range parties {
				if party == us {
					continue
				}
				switch party.Kind {
				case models.EndpointUser:
					seen[party.ID] = true
				case models.EndpointPersona:
					owner, err := r.personaOwner(ctx, party.ID)
					if err != nil {
						return nil, err
					}
					if owner != 0 {
						seen[owner] = true
					}
				}
			}
		}
	}

	delete(seen, authorID)

	recipients := make([]int64, 0, len(seen))
	for id := range seen {
		if !r.gateway.UserExists(id) {
			continue
		}
		recipients = append(recipients, id)
	}
	sort.Slice(recipients, func(i, j int) bool { return recipients[i] < recipients[j] })
	return recipients, nil
}

func (r *Router) personaOwner(ctx context.Context, personaID int64) (int64, error) {
	p, err := r.registry.Get(ctx, personaID)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return p.UserID, nil
}
