// Package protocol defines the JSON messages exchanged over the office
// WebSocket connection.
//
// Every frame carries exactly one JSON object discriminated by its "type"
// field. Client to server messages decode into the closed Inbound sum type:
//
//	hello, position, general-message, private-message,
//	mini-game-challenge, mini-game-response, mini-game-ready,
//	mini-game-cancel, mini-game-move
//
// Any other type decodes to Unsupported. Inbound fields use the lenient
// String, Number, Bool and Int types: a field of the wrong JSON type decodes
// to its zero value instead of failing the whole message, leaving
// correction to the sanitizers downstream.
//
// Server to client messages are the *Event structs built by the New*
// constructors:
//
//	welcome, player-joined, player-updated, player-left, general-message,
//	private-message, mini-game-challenge, mini-game-challenge-ack,
//	mini-game-response, mini-game-response-ack, mini-game-ready,
//	mini-game-cancel, mini-game-move, error, disconnected
package protocol
