package hub

import (
	"strings"

	"github.com/wricardo/virtual-office/office/chat"
	"github.com/wricardo/virtual-office/office/presence"
	"github.com/wricardo/virtual-office/office/protocol"
)

func (h *Hub) dispatch(s Session, msg protocol.Inbound) {
	switch m := msg.(type) {
	case protocol.Hello:
		h.handleHello(s, m)
	case protocol.PositionUpdate:
		h.handlePosition(s, m)
	case protocol.GeneralChat:
		h.handleGeneralChat(s, m)
	case protocol.PrivateChat:
		h.handlePrivateChat(s, m)
	case protocol.ChallengeRequest:
		h.relayChallenge(s, m)
	case protocol.ChallengeResponse:
		h.relayResponse(s, m)
	case protocol.ReadySignal:
		h.relaySignal(s, m.Kind(), string(m.To), string(m.ChallengeID))
	case protocol.CancelRequest:
		h.relaySignal(s, m.Kind(), string(m.To), string(m.ChallengeID))
	case protocol.MoveRequest:
		h.relayMove(s, m)
	default:
		h.logger.Debugw("unsupported message", "id", s.ID(), "type", msg.Kind())
		h.sendError(s, protocol.ErrTextUnsupported, msg.Kind(), "")
	}
}

func (h *Hub) handleHello(s Session, m protocol.Hello) {
	now := h.now()
	pos := presence.SanitizePosition(h.bounds, m.Position.X.Float(), m.Position.Y.Float(), string(m.Position.Direction))

	p := presence.Player{
		ID:          s.ID(),
		Name:        presence.SanitizeName(string(m.Name)),
		Avatar:      presence.SanitizeAvatar(string(m.Avatar.ID), string(m.Avatar.Tone)),
		X:           pos.X,
		Y:           pos.Y,
		Direction:   pos.Direction,
		ConnectedAt: now,
		UpdatedAt:   now,
	}

	// A repeated hello updates the existing player in place.
	if prev, ok := h.players.Get(p.ID); ok {
		p.ConnectedAt = prev.ConnectedAt
		h.players.Put(p)
		h.broadcast(protocol.NewPlayerUpdated(p), "")
		return
	}

	h.players.Put(p)
	h.logger.Infow("player joined", "id", p.ID, "name", p.Name, "avatar", p.Avatar.ID)

	h.send(s, protocol.NewPlayerUpdated(p))
	h.broadcast(protocol.NewPlayerJoined(p), p.ID)
	h.appendSystem(chat.JoinedText(p.Name))
}

func (h *Hub) handlePosition(s Session, m protocol.PositionUpdate) {
	if !h.players.Has(s.ID()) {
		return
	}
	pos := presence.SanitizePosition(h.bounds, m.X.Float(), m.Y.Float(), string(m.Direction))
	p, _ := h.players.Move(s.ID(), pos, h.now())
	h.broadcast(protocol.NewPlayerUpdated(p), s.ID())
}

func (h *Hub) handleGeneralChat(s Session, m protocol.GeneralChat) {
	author, ok := h.requirePlayer(s, m.Kind())
	if !ok {
		return
	}
	content, ok := chat.SanitizeContent(string(m.Content))
	if !ok {
		return
	}

	msg := chat.NewMessage(h.newID(), author, content, h.now())
	h.history.Append(msg)
	h.metrics.chatMessage()
	h.broadcast(protocol.NewChat(msg), "")
}

func (h *Hub) handlePrivateChat(s Session, m protocol.PrivateChat) {
	from, ok := h.requirePlayer(s, m.Kind())
	if !ok {
		return
	}
	to, target, ok := h.resolveTarget(s, m.Kind(), string(m.To))
	if !ok {
		return
	}
	content, ok := chat.SanitizeContent(string(m.Content))
	if !ok {
		return
	}

	data, err := protocol.Encode(protocol.NewPrivate(chat.NewPrivateMessage(h.newID(), from, to, content, h.now())))
	if err != nil {
		h.logger.Errorw("failed to encode message", "error", err)
		return
	}
	h.metrics.privateMessage()
	h.deliver(s, data)
	if target.ID() != s.ID() {
		h.deliver(target, data)
	}
}

func (h *Hub) relayChallenge(s Session, m protocol.ChallengeRequest) {
	from, to, target, ok := h.resolvePair(s, m.Kind(), string(m.To))
	if !ok {
		return
	}

	id := strings.TrimSpace(string(m.ChallengeID))
	if id == "" {
		id = h.newID()
	}

	ev := protocol.ChallengeEvent{
		Type:        protocol.TypeChallenge,
		ChallengeID: id,
		From:        from.Summary(),
		To:          to.Summary(),
		CreatedAt:   h.now(),
	}
	h.metrics.gameRelay()
	h.send(target, ev)

	ev.Type = protocol.TypeChallengeAck
	h.send(s, ev)
}

func (h *Hub) relayResponse(s Session, m protocol.ChallengeResponse) {
	from, to, target, ok := h.resolvePair(s, m.Kind(), string(m.To))
	if !ok {
		return
	}

	ev := protocol.ResponseEvent{
		Type:        protocol.TypeResponse,
		ChallengeID: string(m.ChallengeID),
		From:        from.Summary(),
		To:          to.Summary(),
		Accepted:    bool(m.Accepted),
	}
	h.metrics.gameRelay()
	h.send(target, ev)

	ev.Type = protocol.TypeResponseAck
	h.send(s, ev)
}

// relaySignal forwards mini-game-ready and mini-game-cancel.
func (h *Hub) relaySignal(s Session, kind protocol.Type, to, challengeID string) {
	from, _, target, ok := h.resolvePair(s, kind, to)
	if !ok {
		return
	}
	h.metrics.gameRelay()
	h.send(target, protocol.SignalEvent{
		Type:        kind,
		ChallengeID: challengeID,
		From:        from.Summary(),
	})
}

func (h *Hub) relayMove(s Session, m protocol.MoveRequest) {
	from, _, target, ok := h.resolvePair(s, m.Kind(), string(m.To))
	if !ok {
		return
	}
	h.metrics.gameRelay()
	h.send(target, protocol.MoveEvent{
		Type:        protocol.TypeMove,
		ChallengeID: string(m.ChallengeID),
		From:        from.Summary(),
		Round:       int(m.Round),
		Move:        string(m.Move),
	})
}

// requirePlayer returns the sender's player, or reports that it has not
// introduced itself yet.
func (h *Hub) requirePlayer(s Session, kind protocol.Type) (presence.Player, bool) {
	p, ok := h.players.Get(s.ID())
	if !ok {
		h.sendError(s, protocol.ErrTextNotJoined, kind, "")
	}
	return p, ok
}

// resolveTarget finds the introduced player with id and its session.
func (h *Hub) resolveTarget(s Session, kind protocol.Type, id string) (presence.Player, Session, bool) {
	id = strings.TrimSpace(id)
	p, ok := h.players.Get(id)
	target, connected := h.sessions[id]
	if !ok || !connected {
		h.logger.Debugw("target unavailable", "from", s.ID(), "to", id, "type", kind)
		h.sendError(s, protocol.ErrTextUnavailable, kind, id)
		return presence.Player{}, nil, false
	}
	return p, target, true
}

// resolvePair resolves both ends of a mini-game relay. Challenging yourself
// is rejected.
func (h *Hub) resolvePair(s Session, kind protocol.Type, to string) (presence.Player, presence.Player, Session, bool) {
	from, ok := h.requirePlayer(s, kind)
	if !ok {
		return presence.Player{}, presence.Player{}, nil, false
	}
	if strings.TrimSpace(to) == s.ID() {
		h.sendError(s, protocol.ErrTextSelfTarget, kind, "")
		return presence.Player{}, presence.Player{}, nil, false
	}
	target, session, ok := h.resolveTarget(s, kind, to)
	if !ok {
		return presence.Player{}, presence.Player{}, nil, false
	}
	return from, target, session, true
}
