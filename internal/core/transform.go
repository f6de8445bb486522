// ABOUTME: Privacy-preserving text transformation pipeline
// ABOUTME: Fixed step order: rewrite, then lowercase, then punctuation strip
package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// escapeMarker prefixes a single message to bypass all transformation.
const escapeMarker = `\`

// asciiPunctuation strips exactly the four characters the pipeline removes.
// Other punctuation is untouched.
var asciiPunctuation = strings.NewReplacer(",", "", "'", "", ".", "", "?", "")

// Rewriter is the external text rewriting service: one instruction, one
// message, one replacement. Fallible and synchronous.
type Rewriter interface {
	Rewrite(ctx context.Context, text string) (string, error)
}

// Transformer applies the enabled anonymization steps to outgoing text.
type Transformer struct {
	settings *SettingsService
	registry *Registry
	rewriter Rewriter // nil when no rewriting service is configured
	log      zerolog.Logger
}

// NewTransformer creates a Transformer. rewriter may be nil; messages from
// users with the gpt flag enabled then fail rather than degrade.
func NewTransformer(settings *SettingsService, registry *Registry, rewriter Rewriter, log zerolog.Logger) *Transformer {
	return &Transformer{
		settings: settings,
		registry: registry,
		rewriter: rewriter,
		log:      log.With().Str("component", "transform").Logger(),
	}
}

// Transform runs text through the user's enabled anonymization steps. The
// persona's recency is touched first, whatever the outcome: relay activity
// keeps personas alive in recency ordering. A leading escape marker is
// stripped and bypasses the whole pipeline for that one message.
func (t *Transformer) Transform(ctx context.Context, text string, personaID, userID int64) (string, error) {
	if err := t.registry.Touch(ctx, personaID); err != nil {
		return "", err
	}

	if strings.HasPrefix(text, escapeMarker) {
		return text[len(escapeMarker):], nil
	}

	settings, err := t.settings.Get(ctx, userID)
	if err != nil {
		return "", err
	}

	// Each step consumes the previous enabled step's output.
	if settings.GPT {
		if t.rewriter == nil {
			return "", ErrRewriteUnavailable
		}
		rewritten, err := t.rewriter.Rewrite(ctx, text)
		if err != nil {
			// Fail loudly: a partially anonymized message is worse than a
			// dropped one.
			return "", fmt.Errorf("%w: %v", ErrRewriteUnavailable, err)
		}
		text = rewritten
	}
	if settings.Lowercase {
		text = strings.ToLower(text)
	}
	if settings.Punctuation {
		text = asciiPunctuation.Replace(text)
	}
	return text, nil
}
