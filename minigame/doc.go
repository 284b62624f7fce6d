// Package minigame implements the rock-paper-scissors duel played between
// two peers of the office.
//
// The server only relays mini-game messages, so every rule lives here. A
// Machine tracks one peer's view of a match: the challenge handshake, the
// ready check, a countdown per round, the reveal and the pause before the
// next round. The first side to win two rounds wins the match.
//
// A Machine owns at most one interval timer (the countdown) and one
// one-shot timer (reveal, next round and handshake timeouts). Both are
// cleared on every transition out of a timed state, and callbacks from a
// cleared timer are ignored. Messages that do not match the current
// challenge, round or status are ignored.
package minigame
