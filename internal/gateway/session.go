// ABOUTME: Command session layer between the hub and the relay core
// ABOUTME: Parses the !anon dialect and forwards everything else to the router
package gateway

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/harper/veil/internal/core"
	"github.com/harper/veil/internal/models"
	"github.com/harper/veil/internal/storage/sqlite"
)

const commandPrefix = "!anon"

// Session interprets inbound messages: !anon commands drive the connection
// graph, personas, and settings; everything else relays through the router.
// Command failures are replies to the invoker, never process errors.
type Session struct {
	registry *core.Registry
	settings *core.SettingsService
	graph    *core.Graph
	router   *core.Router
	conns    *sqlite.ConnectionStore
	gw       core.Gateway
	log      zerolog.Logger
}

// NewSession creates a Session.
func NewSession(registry *core.Registry, settings *core.SettingsService, graph *core.Graph, router *core.Router, conns *sqlite.ConnectionStore, gw core.Gateway, log zerolog.Logger) *Session {
	return &Session{
		registry: registry,
		settings: settings,
		graph:    graph,
		router:   router,
		conns:    conns,
		gw:       gw,
		log:      log.With().Str("component", "session").Logger(),
	}
}

// HandleInbound consumes one message from a user socket.
func (s *Session) HandleInbound(ctx context.Context, msg models.Inbound) {
	text := strings.TrimSpace(msg.Text)
	if strings.HasPrefix(text, "!") {
		if text == commandPrefix || strings.HasPrefix(text, commandPrefix+" ") {
			s.handleCommand(ctx, msg, strings.TrimSpace(strings.TrimPrefix(text, commandPrefix)))
		}
		// Other bot-prefixed messages never relay.
		return
	}
	if err := s.router.HandleInbound(ctx, msg); err != nil {
		s.log.Error().Err(err).Int64("author", msg.AuthorID).Msg("relay failed")
	}
}

func (s *Session) reply(ctx context.Context, msg models.Inbound, text string) {
	var err error
	if msg.ChannelID != 0 {
		err = s.gw.SendChannel(ctx, msg.ChannelID, text, nil)
	} else {
		err = s.gw.SendUser(ctx, msg.AuthorID, text, nil)
	}
	if err != nil {
		s.log.Warn().Err(err).Int64("author", msg.AuthorID).Msg("reply failed")
	}
}

func (s *Session) handleCommand(ctx context.Context, msg models.Inbound, args string) {
	sub, rest, _ := strings.Cut(args, " ")
	rest = strings.TrimSpace(rest)

	if sub == "who" || sub == "ls" {
		s.cmdWho(ctx, msg)
		return
	}
	if msg.ChannelID != 0 {
		s.reply(ctx, msg, "Anonymous relay commands only work in DMs.")
		return
	}

	switch sub {
	case "":
		s.reply(ctx, msg, "Usage: `!anon <target>`, `stop`, `switch`, `who`, `personas`, `cfg`.")
	case "stop", "rm", "leave":
		s.cmdStop(ctx, msg)
	case "switch", "cd":
		s.cmdSwitch(ctx, msg, rest)
	case "personas", "persona":
		s.cmdPersonas(ctx, msg, rest)
	case "cfg", "settings", "config", "opt", "options":
		s.cmdCfg(ctx, msg, rest)
	default:
		// Anything else is a connect target; names may contain spaces.
		s.cmdConnect(ctx, msg, strings.TrimSpace(args))
	}
}

// resolveTarget finds the endpoint a textual reference points at, trying
// channels, then users, then personas, then raw ids.
func (s *Session) resolveTarget(ctx context.Context, ref string) (models.Endpoint, bool) {
	if name, ok := strings.CutPrefix(ref, "#"); ok {
		if id, found := s.gw.ChannelByName(name); found {
			return models.ChannelEndpoint(id), true
		}
	}
	if id, ok := s.gw.ChannelByName(ref); ok {
		return models.ChannelEndpoint(id), true
	}
	if id, ok := s.gw.UserByName(ref); ok {
		return models.UserEndpoint(id), true
	}
	if p, err := s.registry.ResolveByName(ctx, ref); err == nil {
		return p.Endpoint(), true
	}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil && id > 0 {
		switch {
		case s.gw.ChannelExists(id):
			return models.ChannelEndpoint(id), true
		case s.gw.UserExists(id):
			return models.UserEndpoint(id), true
		default:
			if p, err := s.registry.Get(ctx, id); err == nil && p.Active {
				return p.Endpoint(), true
			}
		}
	}
	return models.Endpoint{}, false
}

// mention renders an endpoint the way replies refer to it.
func (s *Session) mention(ctx context.Context, e models.Endpoint) string {
	switch e.Kind {
	case models.EndpointUser:
		return fmt.Sprintf("<@%d>", e.ID)
	case models.EndpointChannel:
		if name, ok := s.gw.ChannelDisplayName(e.ID); ok {
			return "#" + name
		}
		return fmt.Sprintf("#%d", e.ID)
	case models.EndpointPersona:
		if p, err := s.registry.Get(ctx, e.ID); err == nil {
			return "**" + p.Name + "**"
		}
	}
	return e.String()
}

// identity returns the author's acting endpoint: the selected persona, or
// the bare user when nothing is selected.
func (s *Session) identity(ctx context.Context, userID int64) (models.Endpoint, string, error) {
	selected, err := s.conns.Selected(ctx, userID)
	if err != nil {
		return models.Endpoint{}, "", err
	}
	if selected != nil {
		return selected.Endpoint(), selected.Name, nil
	}
	name, _ := s.gw.UserDisplayName(userID)
	return models.UserEndpoint(userID), name, nil
}

// notifyEndpoint delivers a message to whoever is behind an endpoint:
// users directly, channels in place, personas via their owner.
func (s *Session) notifyEndpoint(ctx context.Context, e models.Endpoint, text string) {
	var err error
	switch e.Kind {
	case models.EndpointUser:
		err = s.gw.SendUser(ctx, e.ID, text, nil)
	case models.EndpointChannel:
		err = s.gw.SendChannel(ctx, e.ID, text, nil)
	case models.EndpointPersona:
		p, gerr := s.registry.Get(ctx, e.ID)
		if gerr != nil {
			err = gerr
			break
		}
		err = s.gw.SendUser(ctx, p.UserID, text, nil)
	}
	if err != nil {
		s.log.Warn().Err(err).Stringer("endpoint", e).Msg("notify failed")
	}
}

func (s *Session) cmdConnect(ctx context.Context, msg models.Inbound, ref string) {
	target, ok := s.resolveTarget(ctx, ref)
	if !ok {
		s.reply(ctx, msg, fmt.Sprintf("Couldn't find a persona, channel, or user called '%s'.", ref))
		return
	}

	req := core.ConnectRequest{Target: target}
	weName := ""

	selected, err := s.conns.Selected(ctx, msg.AuthorID)
	if err != nil {
		s.log.Error().Err(err).Msg("selected persona lookup failed")
		return
	}
	if selected != nil {
		req.Us = selected.Endpoint()
		weName = selected.Name
	} else {
		// Pick the first connection-free persona; the pick rides in the
		// connect transaction so a failed connect leaves no selection.
		personas, err := s.registry.ListActive(ctx, msg.AuthorID)
		if err != nil {
			s.log.Error().Err(err).Msg("persona list failed")
			return
		}
		for i := range personas {
			peers, err := s.conns.Counterparts(ctx, personas[i].Endpoint())
			if err != nil {
				s.log.Error().Err(err).Msg("counterpart lookup failed")
				return
			}
			if len(peers) == 0 {
				req.Us = personas[i].Endpoint()
				req.SelectUserID = msg.AuthorID
				req.SelectPersonaID = personas[i].ID
				weName = personas[i].Name
				break
			}
		}
		if req.Us.IsZero() {
			s.reply(ctx, msg, "You are already in a connection.")
			return
		}
	}

	there := "to them"
	var announce func(ctx context.Context)
	switch target.Kind {
	case models.EndpointChannel:
		there = "there"
		if !s.gw.CanSendToChannel(msg.AuthorID, target.ID) {
			s.reply(ctx, msg, "You don't have permission to send messages there.")
			return
		}
		announce = func(ctx context.Context) {
			s.notifyEndpoint(ctx, target, fmt.Sprintf("An anonymous user (%s) joined the channel.", weName))
		}
	case models.EndpointUser:
		cfg, err := s.settings.Get(ctx, target.ID)
		if err != nil {
			s.log.Error().Err(err).Msg("settings lookup failed")
			return
		}
		if !cfg.DMs {
			s.reply(ctx, msg, "Target doesn't accept anonymous DMs.")
			return
		}
		announce = func(ctx context.Context) {
			theirSelected, _ := s.conns.Selected(ctx, target.ID)
			if theirSelected != nil {
				s.notifyEndpoint(ctx, target, fmt.Sprintf("An anonymous user (%s) is messaging you. Use `!anon switch` to be able to respond to them.", weName))
			} else {
				s.notifyEndpoint(ctx, target, fmt.Sprintf("An anonymous user (%s) is messaging you. Messages you send from now on will be sent to them. Use `!anon stop` to hang up at any time.", weName))
			}
		}
	case models.EndpointPersona:
		p, err := s.registry.Get(ctx, target.ID)
		if err != nil {
			s.reply(ctx, msg, fmt.Sprintf("Couldn't find a persona, channel, or user called '%s'.", ref))
			return
		}
		cfg, err := s.settings.Get(ctx, p.UserID)
		if err != nil {
			s.log.Error().Err(err).Msg("settings lookup failed")
			return
		}
		if !cfg.PersonaDMs {
			s.reply(ctx, msg, "Target doesn't accept anonymous DMs via persona.")
			return
		}
		if !s.gw.UserExists(p.UserID) {
			s.reply(ctx, msg, fmt.Sprintf("A persona called '%s' exists, but its owner can't be found.", p.Name))
			return
		}
		announce = func(ctx context.Context) {
			theirSelected, _ := s.conns.Selected(ctx, p.UserID)
			if theirSelected == nil || theirSelected.ID != p.ID {
				s.notifyEndpoint(ctx, models.UserEndpoint(p.UserID), fmt.Sprintf("An anonymous user (%s) is messaging your persona **%s**. Use `!anon switch %s` to be able to respond to them.", weName, p.Name, p.Name))
			} else {
				s.notifyEndpoint(ctx, models.UserEndpoint(p.UserID), fmt.Sprintf("An anonymous user (%s) is messaging your persona **%s**. They do not know who controls it. Messages you send from now on will be sent to them. Use `!anon stop` to hang up at any time.", weName, p.Name))
			}
		}
	}

	err = s.graph.Connect(ctx, req)
	switch {
	case errors.Is(err, core.ErrAlreadyConnected):
		s.reply(ctx, msg, "You are already in a connection.")
		return
	case errors.Is(err, core.ErrTargetConnected):
		s.reply(ctx, msg, "Target is already in a connection.")
		return
	case err != nil:
		s.log.Error().Err(err).Msg("connect failed")
		return
	}

	// The edge is committed; only now does anyone hear about it.
	announce(ctx)
	s.reply(ctx, msg, fmt.Sprintf(
		"Now connected to %s as **%s**. Use `!anon stop` to disconnect.\n"+
			"Messages (except commands) sent here will be relayed %s. Disable automatic normalisation for a single message by prefixing it with `\\`.\n"+
			"**NOTE**: Full anonymity is not guaranteed. Privileged users can access your identity.",
		s.mention(ctx, target), weName, there))
}

func (s *Session) cmdStop(ctx context.Context, msg models.Inbound) {
	us, _, err := s.identity(ctx, msg.AuthorID)
	if err != nil {
		s.log.Error().Err(err).Msg("identity lookup failed")
		return
	}
	counterpart, err := s.graph.Disconnect(ctx, us)
	if errors.Is(err, core.ErrNotConnected) {
		s.reply(ctx, msg, fmt.Sprintf("%s is not connected anywhere.", s.mention(ctx, us)))
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("disconnect failed")
		return
	}
	s.notifyEndpoint(ctx, counterpart, fmt.Sprintf("%s disconnected.", s.mention(ctx, us)))
	s.reply(ctx, msg, fmt.Sprintf("Disconnected from %s.", s.mention(ctx, counterpart)))
}

func (s *Session) cmdSwitch(ctx context.Context, msg models.Inbound, ref string) {
	var to models.Endpoint
	if ref == "" {
		to = models.UserEndpoint(msg.AuthorID)
	} else {
		target, ok := s.resolveTarget(ctx, ref)
		if !ok {
			s.reply(ctx, msg, fmt.Sprintf("Couldn't find a persona, channel, or user called '%s'.", ref))
			return
		}
		// The reference may be one of our identities, or a place one of
		// them is connected.
		peers, err := s.graph.Lookup(ctx, target)
		if err != nil {
			s.log.Error().Err(err).Msg("lookup failed")
			return
		}
		for _, cand := range append([]models.Endpoint{target}, peers...) {
			if cand.Kind == models.EndpointUser && cand.ID == msg.AuthorID {
				to = cand
				break
			}
			if cand.Kind == models.EndpointPersona {
				p, err := s.registry.Get(ctx, cand.ID)
				if err == nil && p.UserID == msg.AuthorID && p.Active {
					to = cand
					break
				}
			}
		}
		if to.IsZero() {
			s.reply(ctx, msg, fmt.Sprintf("%s is not you nor one of your connections.", s.mention(ctx, target)))
			return
		}
	}

	var err error
	if to.Kind == models.EndpointUser {
		err = s.conns.ClearSelected(ctx, msg.AuthorID)
	} else {
		err = s.conns.Select(ctx, msg.AuthorID, to.ID)
	}
	if err != nil {
		s.log.Error().Err(err).Msg("switch failed")
		return
	}

	peers, err := s.graph.Lookup(ctx, to)
	if err == nil && len(peers) > 0 {
		s.reply(ctx, msg, fmt.Sprintf("Switched to %s. Your messages are now being sent to %s. Use `!anon stop` to disconnect.",
			s.mention(ctx, to), s.mention(ctx, peers[0])))
		return
	}
	s.reply(ctx, msg, fmt.Sprintf("Switched to %s.", s.mention(ctx, to)))
}

func (s *Session) cmdWho(ctx context.Context, msg models.Inbound) {
	if msg.ChannelID != 0 {
		peers, err := s.graph.Lookup(ctx, models.ChannelEndpoint(msg.ChannelID))
		if err != nil {
			s.log.Error().Err(err).Msg("lookup failed")
			return
		}
		if len(peers) == 0 {
			s.reply(ctx, msg, "Nobody!")
			return
		}
		lines := make([]string, 0, len(peers))
		for _, p := range peers {
			lines = append(lines, "- "+s.mention(ctx, p))
		}
		s.reply(ctx, msg, strings.Join(lines, "\n"))
		return
	}

	us, _, err := s.identity(ctx, msg.AuthorID)
	if err != nil {
		s.log.Error().Err(err).Msg("identity lookup failed")
		return
	}

	identities := []models.Endpoint{models.UserEndpoint(msg.AuthorID)}
	personas, err := s.registry.ListActive(ctx, msg.AuthorID)
	if err != nil {
		s.log.Error().Err(err).Msg("persona list failed")
		return
	}
	for i := range personas {
		identities = append(identities, personas[i].Endpoint())
	}

	main := fmt.Sprintf("You are not connected to anyone as %s.", s.mention(ctx, us))
	var alt []string
	for _, weAre := range identities {
		peers, err := s.graph.Lookup(ctx, weAre)
		if err != nil {
			s.log.Error().Err(err).Msg("lookup failed")
			return
		}
		for _, conn := range peers {
			if weAre == us {
				main = fmt.Sprintf("You are connected to %s as %s.", s.mention(ctx, conn), s.mention(ctx, us))
				continue
			}
			sw := "`!anon switch`"
			if weAre.Kind == models.EndpointPersona {
				if p, err := s.registry.Get(ctx, weAre.ID); err == nil {
					sw = fmt.Sprintf("`!anon switch %s`", p.Name)
				}
			}
			alt = append(alt, fmt.Sprintf("- %s (as %s; %s)", s.mention(ctx, conn), s.mention(ctx, weAre), sw))
		}
	}
	if len(alt) > 0 {
		main += "\n## Other connections\n" + strings.Join(alt, "\n")
	}
	s.reply(ctx, msg, main)
}

func (s *Session) cmdPersonas(ctx context.Context, msg models.Inbound, rest string) {
	sub, name, _ := strings.Cut(rest, " ")
	name = strings.TrimSpace(name)

	switch sub {
	case "":
		personas, err := s.registry.ListActive(ctx, msg.AuthorID)
		if err != nil {
			s.log.Error().Err(err).Msg("persona list failed")
			return
		}
		lines := make([]string, 0, len(personas))
		for i := range personas {
			line := "- **" + personas[i].Name + "**"
			if personas[i].Temp {
				line += " *(temp)*"
			}
			lines = append(lines, line)
		}
		s.reply(ctx, msg, strings.Join(lines, "\n"))
	case "add", "new", "create", "make":
		if _, err := s.registry.Create(ctx, msg.AuthorID, name, false, false); err != nil {
			if errors.Is(err, core.ErrNameConflict) {
				s.reply(ctx, msg, "That name is taken or reserved.")
				return
			}
			s.log.Error().Err(err).Msg("persona create failed")
			return
		}
		s.reply(ctx, msg, fmt.Sprintf("Created a persona named '%s'.", name))
	case "remove", "delete", "del", "rm", "nix":
		if err := s.registry.DeactivateNamed(ctx, msg.AuthorID, name); err != nil {
			if errors.Is(err, core.ErrNotFound) {
				s.reply(ctx, msg, fmt.Sprintf("You have no persona named '%s'.", name))
				return
			}
			s.log.Error().Err(err).Msg("persona remove failed")
			return
		}
		s.reply(ctx, msg, fmt.Sprintf("Deleted persona '%s'.", name))
	default:
		s.reply(ctx, msg, "Usage: `!anon personas [add <name> | remove <name>]`.")
	}
}

func cfgNorm(s string) string {
	return strings.ReplaceAll(s, "_", "-")
}

func (s *Session) cmdCfg(ctx context.Context, msg models.Inbound, rest string) {
	option, value, _ := strings.Cut(rest, " ")
	option = cfgNorm(strings.TrimSpace(option))
	value = strings.TrimSpace(value)

	cfg, err := s.settings.Get(ctx, msg.AuthorID)
	if err != nil {
		s.log.Error().Err(err).Msg("settings lookup failed")
		return
	}

	if value == "" {
		var lines []string
		for _, d := range models.SettingDescriptors {
			n := cfgNorm(d.Name)
			if option != "" && n != option {
				continue
			}
			on, _ := cfg.Flag(d.Name)
			v := "yes"
			if !on {
				v = "no"
			}
			lines = append(lines, fmt.Sprintf("**%s** (`!anon cfg %s %s`)\n%s", d.Display, n, v, d.Blurb))
		}
		if len(lines) == 0 {
			s.reply(ctx, msg, fmt.Sprintf("No option called '%s' exists.", option))
			return
		}
		bits, err := s.settings.EntropyBits(ctx, msg.AuthorID)
		if err != nil {
			s.log.Error().Err(err).Msg("entropy failed")
			return
		}
		footer := "Settings carry no identifiable information."
		if !math.IsInf(bits, 1) {
			footer = fmt.Sprintf("Settings have ~%.2f bits of identifiable information (lower is better)", bits)
		}
		s.reply(ctx, msg, strings.Join(lines, "\n\n")+"\n\n"+footer)
		return
	}

	enable, ok := parseYesNo(value)
	if !ok {
		s.reply(ctx, msg, fmt.Sprintf("'%s' is not a yes/no value.", value))
		return
	}

	var enabled []string
	seen := false
	for _, d := range models.SettingDescriptors {
		if cfgNorm(d.Name) == option {
			seen = true
			if enable {
				enabled = append(enabled, d.Name)
			}
			continue
		}
		if on, _ := cfg.Flag(d.Name); on {
			enabled = append(enabled, d.Name)
		}
	}
	if !seen {
		s.reply(ctx, msg, fmt.Sprintf("No option called '%s' exists.", option))
		return
	}
	if err := s.settings.Set(ctx, msg.AuthorID, enabled); err != nil {
		s.log.Error().Err(err).Msg("settings write failed")
		return
	}
	s.reply(ctx, msg, fmt.Sprintf("Set option '%s' to %v.", option, enable))
}

func parseYesNo(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "yes", "y", "true", "on", "1":
		return true, true
	case "no", "n", "false", "off", "0":
		return false, true
	}
	return false, false
}
