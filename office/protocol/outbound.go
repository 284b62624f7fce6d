package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/wricardo/virtual-office/office/chat"
	"github.com/wricardo/virtual-office/office/presence"
)

// WelcomeEvent transfers the full shared state to a freshly connected client.
type WelcomeEvent struct {
	Type     Type              `json:"type"`
	ID       string            `json:"id"`
	Players  []presence.Player `json:"players"`
	Messages []chat.Message    `json:"messages"`
	Office   presence.Bounds   `json:"office"`
}

// PlayerEvent announces a joined or updated player.
type PlayerEvent struct {
	Type   Type            `json:"type"`
	Player presence.Player `json:"player"`
}

// PlayerLeftEvent announces a departed player.
type PlayerLeftEvent struct {
	Type Type   `json:"type"`
	ID   string `json:"id"`
}

// ChatEvent delivers a general chat message.
type ChatEvent struct {
	Type    Type         `json:"type"`
	Message chat.Message `json:"message"`
}

// PrivateEvent delivers a private message to its sender and target.
type PrivateEvent struct {
	Type    Type                `json:"type"`
	Message chat.PrivateMessage `json:"message"`
}

// ChallengeEvent is a challenge forwarded to its target, or acknowledged to
// its sender.
type ChallengeEvent struct {
	Type        Type             `json:"type"`
	ChallengeID string           `json:"challengeId"`
	From        presence.Summary `json:"from"`
	To          presence.Summary `json:"to"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// ResponseEvent is a challenge answer forwarded to the challenger, or
// acknowledged to the responder.
type ResponseEvent struct {
	Type        Type             `json:"type"`
	ChallengeID string           `json:"challengeId"`
	From        presence.Summary `json:"from"`
	To          presence.Summary `json:"to"`
	Accepted    bool             `json:"accepted"`
}

// SignalEvent relays mini-game-ready and mini-game-cancel.
type SignalEvent struct {
	Type        Type             `json:"type"`
	ChallengeID string           `json:"challengeId"`
	From        presence.Summary `json:"from"`
}

// MoveEvent relays a committed move.
type MoveEvent struct {
	Type        Type             `json:"type"`
	ChallengeID string           `json:"challengeId"`
	From        presence.Summary `json:"from"`
	Round       int              `json:"round"`
	Move        string           `json:"move"`
}

// ErrorEvent reports a failed request to its sender only. Ref names the
// request type and To the unavailable participant, when relevant.
type ErrorEvent struct {
	Type    Type   `json:"type"`
	Message string `json:"message"`
	Ref     Type   `json:"ref,omitempty"`
	To      string `json:"to,omitempty"`
}

// DisconnectedEvent tells a client the server is closing its connection.
type DisconnectedEvent struct {
	Type   Type   `json:"type"`
	Reason string `json:"reason"`
}

func NewWelcome(id string, players []presence.Player, messages []chat.Message, office presence.Bounds) WelcomeEvent {
	if players == nil {
		players = []presence.Player{}
	}
	if messages == nil {
		messages = []chat.Message{}
	}
	return WelcomeEvent{Type: TypeWelcome, ID: id, Players: players, Messages: messages, Office: office}
}

func NewPlayerJoined(p presence.Player) PlayerEvent {
	return PlayerEvent{Type: TypePlayerJoined, Player: p}
}

func NewPlayerUpdated(p presence.Player) PlayerEvent {
	return PlayerEvent{Type: TypePlayerUpdated, Player: p}
}

func NewPlayerLeft(id string) PlayerLeftEvent {
	return PlayerLeftEvent{Type: TypePlayerLeft, ID: id}
}

func NewChat(m chat.Message) ChatEvent {
	return ChatEvent{Type: TypeGeneralMessage, Message: m}
}

func NewPrivate(m chat.PrivateMessage) PrivateEvent {
	return PrivateEvent{Type: TypePrivateMessage, Message: m}
}

func NewError(message string, ref Type, to string) ErrorEvent {
	return ErrorEvent{Type: TypeError, Message: message, Ref: ref, To: to}
}

func NewDisconnected(reason string) DisconnectedEvent {
	return DisconnectedEvent{Type: TypeDisconnected, Reason: reason}
}

// Encode marshals an outbound event.
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return data, nil
}

// PeekType reads only the type tag of a payload.
func PeekType(payload []byte) (Type, error) {
	var env struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return env.Type, nil
}
