package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrMalformed = errors.New("malformed message")

// Inbound is a decoded client to server message.
type Inbound interface {
	Kind() Type
}

// AvatarInput is the avatar a client asks for.
type AvatarInput struct {
	ID    String `json:"id"`
	Emoji String `json:"emoji,omitempty"`
	Tone  String `json:"tone"`
	Label String `json:"label,omitempty"`
}

func (a *AvatarInput) UnmarshalJSON(b []byte) error {
	type raw AvatarInput
	var r raw
	if err := json.Unmarshal(b, &r); err != nil {
		*a = AvatarInput{}
		return nil
	}
	*a = AvatarInput(r)
	return nil
}

// PositionInput is a location reported by a client.
type PositionInput struct {
	X         Number `json:"x"`
	Y         Number `json:"y"`
	Direction String `json:"direction"`
}

func (p *PositionInput) UnmarshalJSON(b []byte) error {
	type raw PositionInput
	var r raw
	if err := json.Unmarshal(b, &r); err != nil {
		*p = PositionInput{}
		return nil
	}
	*p = PositionInput(r)
	return nil
}

// Hello introduces a participant.
type Hello struct {
	Name     String        `json:"name"`
	Avatar   AvatarInput   `json:"avatar"`
	Position PositionInput `json:"position"`
}

// PositionUpdate moves the sender's avatar.
type PositionUpdate struct {
	X         Number `json:"x"`
	Y         Number `json:"y"`
	Direction String `json:"direction"`
}

// GeneralChat posts to the shared chat.
type GeneralChat struct {
	Content String `json:"content"`
}

// PrivateChat sends a message to one participant.
type PrivateChat struct {
	To      String `json:"to"`
	Content String `json:"content"`
}

// ChallengeRequest proposes a mini-game to another participant.
type ChallengeRequest struct {
	To          String `json:"to"`
	ChallengeID String `json:"challengeId,omitempty"`
}

// ChallengeResponse accepts or declines a challenge.
type ChallengeResponse struct {
	To          String `json:"to"`
	ChallengeID String `json:"challengeId"`
	Accepted    Bool   `json:"accepted"`
}

// ReadySignal tells the opponent the sender is ready to play.
type ReadySignal struct {
	To          String `json:"to"`
	ChallengeID String `json:"challengeId"`
}

// CancelRequest abandons a challenge.
type CancelRequest struct {
	To          String `json:"to"`
	ChallengeID String `json:"challengeId"`
}

// MoveRequest carries a committed move for one round.
type MoveRequest struct {
	To          String `json:"to"`
	ChallengeID String `json:"challengeId"`
	Round       Int    `json:"round"`
	Move        String `json:"move"`
}

// Unsupported is any message whose type is not understood.
type Unsupported struct {
	Type Type
}

func (Hello) Kind() Type             { return TypeHello }
func (PositionUpdate) Kind() Type    { return TypePosition }
func (GeneralChat) Kind() Type       { return TypeGeneralMessage }
func (PrivateChat) Kind() Type       { return TypePrivateMessage }
func (ChallengeRequest) Kind() Type  { return TypeChallenge }
func (ChallengeResponse) Kind() Type { return TypeResponse }
func (ReadySignal) Kind() Type       { return TypeReady }
func (CancelRequest) Kind() Type     { return TypeCancel }
func (MoveRequest) Kind() Type       { return TypeMove }
func (u Unsupported) Kind() Type     { return u.Type }

// Decode parses one client frame payload. It fails only when the payload is
// not a JSON object; unknown types yield Unsupported.
func Decode(payload []byte) (Inbound, error) {
	var env struct {
		Type String `json:"type"`
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch t := Type(env.Type); t {
	case TypeHello:
		return decodeAs[Hello](payload)
	case TypePosition:
		return decodeAs[PositionUpdate](payload)
	case TypeGeneralMessage:
		return decodeAs[GeneralChat](payload)
	case TypePrivateMessage:
		return decodeAs[PrivateChat](payload)
	case TypeChallenge:
		return decodeAs[ChallengeRequest](payload)
	case TypeResponse:
		return decodeAs[ChallengeResponse](payload)
	case TypeReady:
		return decodeAs[ReadySignal](payload)
	case TypeCancel:
		return decodeAs[CancelRequest](payload)
	case TypeMove:
		return decodeAs[MoveRequest](payload)
	default:
		return Unsupported{Type: t}, nil
	}
}

func decodeAs[T Inbound](payload []byte) (Inbound, error) {
	var m T
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return m, nil
}

// Outgoing wraps a client message with its type tag for sending.
func Outgoing(m Inbound) ([]byte, error) {
	type envelope struct {
		Type Type `json:"type"`
	}
	body, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	tag, err := json.Marshal(envelope{Type: m.Kind()})
	if err != nil {
		return nil, err
	}
	// Splice {"type":...} with the message fields.
	if len(body) <= 2 {
		return tag, nil
	}
	out := make([]byte, 0, len(tag)+len(body))
	out = append(out, tag[:len(tag)-1]...)
	out = append(out, ',')
	out = append(out, body[1:]...)
	return out, nil
}
