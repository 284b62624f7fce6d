// Package hub owns the shared state of the office: the registry of open
// connections, the presence store and the chat history.
//
// Every inbound frame is decoded with the protocol package and dispatched
// under a single mutex, so presence and chat changes are applied and
// broadcast in one global order. Sessions must not block in Send; the
// websocket transport satisfies this with bounded per-connection queues.
//
// Mini-game traffic is relayed without interpretation. The hub resolves the
// target, stamps the sender's identity and forwards the message; the game
// rules live in the peers.
package hub
