package protocol

// Type discriminates every message on the wire.
type Type string

// Client to server types.
const (
	TypeHello          Type = "hello"
	TypePosition       Type = "position"
	TypeGeneralMessage Type = "general-message"
	TypePrivateMessage Type = "private-message"
	TypeChallenge      Type = "mini-game-challenge"
	TypeResponse       Type = "mini-game-response"
	TypeReady          Type = "mini-game-ready"
	TypeCancel         Type = "mini-game-cancel"
	TypeMove           Type = "mini-game-move"
)

// Server to client types. general-message, private-message and the
// mini-game relay types are reused in both directions.
const (
	TypeWelcome       Type = "welcome"
	TypePlayerJoined  Type = "player-joined"
	TypePlayerUpdated Type = "player-updated"
	TypePlayerLeft    Type = "player-left"
	TypeChallengeAck  Type = "mini-game-challenge-ack"
	TypeResponseAck   Type = "mini-game-response-ack"
	TypeError         Type = "error"
	TypeDisconnected  Type = "disconnected"
)

// User facing error texts.
const (
	ErrTextUnavailable = "La persona ya no está disponible."
	ErrTextUnsupported = "Acción no soportada."
	ErrTextMalformed   = "Mensaje inválido."
	ErrTextNotJoined   = "Primero debes entrar a la oficina."
	ErrTextSelfTarget  = "No puedes jugar contigo mismo."
)
