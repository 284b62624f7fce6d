package websocket

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Conn is one upgraded client connection.
type Conn struct {
	id     string
	nc     net.Conn
	br     *bufio.Reader
	opts   Options
	logger *zap.SugaredLogger

	mu      sync.Mutex
	send    chan []byte
	closed  bool
	closing []byte // close frame written after the queue drains

	done chan struct{}
}

func newConn(id string, nc net.Conn, br *bufio.Reader, opts Options, logger *zap.SugaredLogger) *Conn {
	return &Conn{
		id:     id,
		nc:     nc,
		br:     br,
		opts:   opts,
		logger: logger,
		send:   make(chan []byte, opts.SendBuffer),
		done:   make(chan struct{}),
	}
}

// ID returns the connection id assigned by the server.
func (c *Conn) ID() string {
	return c.id
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() string {
	return c.nc.RemoteAddr().String()
}

// Send queues payload as a text frame. It never blocks: when the queue is
// full the connection is closed and Send returns false.
func (c *Conn) Send(payload []byte) bool {
	return c.enqueue(EncodeFrame(OpText, payload))
}

// Close queues a normal close frame and shuts the connection down once
// already queued frames are written.
func (c *Conn) Close(reason string) {
	c.closeWith(CloseNormalClosure, reason)
}

// GoingAway is Close with the going-away status, for a server that is
// shutting down.
func (c *Conn) GoingAway(reason string) {
	c.closeWith(CloseGoingAway, reason)
}

// Done is closed once the socket is closed.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		c.logger.Warnw("send queue full, closing connection", "conn", c.id)
		c.closing = EncodeFrame(OpClose, ClosePayload(CloseGoingAway, "send queue full"))
		c.closed = true
		close(c.send)
		return false
	}
}

func (c *Conn) closeWith(code uint16, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closing = EncodeFrame(OpClose, ClosePayload(code, reason))
	c.closed = true
	close(c.send)
}

// abort closes the socket without flushing the queue.
func (c *Conn) abort() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
	_ = c.nc.Close()
}

// writePump drains the send queue to the socket and pings idle peers.
func (c *Conn) writePump() {
	var ping <-chan time.Time
	if c.opts.PingInterval > 0 {
		ticker := time.NewTicker(c.opts.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}
	defer func() {
		_ = c.nc.Close()
		close(c.done)
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				c.mu.Lock()
				closing := c.closing
				c.mu.Unlock()
				if closing != nil {
					_ = c.write(closing)
				}
				return
			}
			if err := c.write(frame); err != nil {
				c.logger.Debugw("write failed", "conn", c.id, "error", err)
				c.abortQueue()
				return
			}

		case <-ping:
			if err := c.write(EncodeFrame(OpPing, nil)); err != nil {
				c.abortQueue()
				return
			}
		}
	}
}

// abortQueue marks the connection closed after a write failure so later
// sends are dropped instead of queued.
func (c *Conn) abortQueue() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Conn) write(frame []byte) error {
	if c.opts.WriteTimeout > 0 {
		_ = c.nc.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	}
	_, err := c.nc.Write(frame)
	return err
}

// readLoop decodes frames until the peer closes, the socket fails or a
// protocol error occurs. Text payloads go to h in arrival order.
func (c *Conn) readLoop(h Handler) error {
	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	var readErr error

	for {
		for {
			frame, n, err := DecodeFrame(buf, c.opts.MaxPayload)
			if errors.Is(err, ErrIncomplete) {
				break
			}
			if err != nil {
				return err
			}
			buf = buf[:copy(buf, buf[n:])]

			switch frame.Opcode {
			case OpText:
				h.Receive(c, frame.Payload)
			case OpPing:
				c.enqueue(EncodeFrame(OpPong, frame.Payload))
			case OpClose:
				code := CloseCode(frame.Payload)
				if code == CloseNoStatusPresent {
					code = CloseNormalClosure
				}
				c.closeWith(code, "")
				return nil
			case OpBinary, OpPong:
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return nil
			}
			return readErr
		}

		if c.opts.ReadTimeout > 0 {
			_ = c.nc.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
		}
		n, err := c.br.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		readErr = err
	}
}
