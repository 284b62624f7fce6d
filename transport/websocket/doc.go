// Package websocket implements the WebSocket wire protocol directly on top of
// raw stream sockets for the virtual office.
//
// The websocket package implements:
//   - The opening handshake (Sec-WebSocket-Accept computation, 101 / 400 replies)
//   - Incremental frame decoding over a growing byte buffer
//   - Cyclic XOR unmasking of client frames
//   - Minimal-length, unmasked frame encoding for server frames
//   - A Server that accepts connections from any net.Listener
//   - Per-connection read loop and write pump
//
// Architecture:
//
// The Server owns the accept loop. Every accepted socket is handled by one
// goroutine that performs the handshake and then runs the read loop; a second
// goroutine (the write pump) drains the connection's bounded send queue. The
// Handler receives each text payload on the read goroutine, so messages from
// one connection are always handled in the order they were sent.
//
// Frames:
//
//   - text (0x1): handed to Handler.Receive
//   - binary (0x2): ignored
//   - close (0x8): echoed and the connection is shut down
//   - ping (0x9): answered with an unmasked pong carrying the same payload
//   - pong (0xA): ignored
//
// Fragmented messages (FIN unset or continuation frames), unmasked client
// frames, reserved bits and unknown opcodes are protocol errors: the
// connection is closed with status 1002. Each message must fit in a single
// frame.
//
// Usage:
//
//	srv := websocket.NewServer(handler, logger, websocket.Options{})
//	go srv.ListenAndServe(":3001")
//	defer srv.Shutdown(ctx)
package websocket
