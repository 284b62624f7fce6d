// Package peer is a participant of the office: a WebSocket client that
// keeps a local copy of the shared state and plays mini-games.
//
// A Client routes relayed mini-game messages into its own minigame.Machine
// and implements minigame.Sender, so the machine's outgoing messages travel
// through the same connection. When the socket drops the machine is reset
// and the Listener receives a disconnected event.
//
// Bot drives a Client without a user: it accepts challenges, readies up and
// plays random moves.
package peer
