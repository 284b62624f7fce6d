// Package presence holds the avatar and position state of every participant
// connected to the office.
//
// Players are created from a "hello" message and only ever mutated by the
// connection that owns them. Every value that reaches the Store has passed
// through the sanitizers in this package, so invalid input is corrected to a
// safe default instead of being rejected:
//
//   - names are trimmed, stripped of control characters and capped; empty names become "Invitado"
//   - avatars must come from the catalog and carry a known tone
//   - positions are clamped to the padded office rectangle and directions default to "down"
//
// The Store is not safe for concurrent use. The hub serializes all access.
package presence
