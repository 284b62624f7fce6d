package websocket

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wricardo/virtual-office/logging"
)

var ErrServerClosed = errors.New("websocket: server closed")

// Handler receives connection lifecycle events. All calls for one connection
// happen on that connection's read goroutine.
type Handler interface {
	// Open is called once the handshake completed.
	Open(c *Conn)
	// Receive is called for every text frame, in arrival order.
	Receive(c *Conn, payload []byte)
	// Closed is called once when the connection ends. err is nil for a
	// clean close.
	Closed(c *Conn, err error)
}

// Options tunes connection handling. Zero values select the defaults.
type Options struct {
	// MaxPayload is the largest accepted frame payload in bytes.
	MaxPayload int
	// SendBuffer is the number of frames queued per connection before it is
	// considered too slow and closed.
	SendBuffer int
	// HandshakeTimeout bounds reading the upgrade request.
	HandshakeTimeout time.Duration
	// WriteTimeout bounds every socket write.
	WriteTimeout time.Duration
	// ReadTimeout closes connections idle for longer; pings keep healthy
	// clients alive. Negative disables it.
	ReadTimeout time.Duration
	// PingInterval is the period of server pings. Negative disables them.
	PingInterval time.Duration
}

const (
	defaultMaxPayload       = 1 << 20
	defaultSendBuffer       = 256
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	defaultReadTimeout      = 60 * time.Second
)

func (o Options) withDefaults() Options {
	if o.MaxPayload <= 0 {
		o.MaxPayload = defaultMaxPayload
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = defaultSendBuffer
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = defaultHandshakeTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = defaultWriteTimeout
	}
	switch {
	case o.ReadTimeout == 0:
		o.ReadTimeout = defaultReadTimeout
	case o.ReadTimeout < 0:
		o.ReadTimeout = 0
	}
	switch {
	case o.PingInterval == 0:
		// Must be less than ReadTimeout.
		o.PingInterval = (o.ReadTimeout * 9) / 10
	case o.PingInterval < 0:
		o.PingInterval = 0
	}
	return o
}

// Server accepts raw socket connections and speaks WebSocket on them.
type Server struct {
	handler Handler
	logger  *zap.SugaredLogger
	opts    Options

	mu        sync.Mutex
	listeners map[net.Listener]struct{}
	conns     map[*Conn]struct{}
	closing   bool
	wg        sync.WaitGroup
}

// NewServer creates a server dispatching to handler.
func NewServer(handler Handler, logger *zap.SugaredLogger, opts Options) *Server {
	logger = logging.OrNop(logger)
	return &Server{
		handler:   handler,
		logger:    logger,
		opts:      opts.withDefaults(),
		listeners: make(map[net.Listener]struct{}),
		conns:     make(map[*Conn]struct{}),
	}
}

// ListenAndServe listens on the TCP address addr and serves it.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until it fails or the server shuts down.
// It always returns a non-nil error; after Shutdown it is ErrServerClosed.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		_ = ln.Close()
		return ErrServerClosed
	}
	s.listeners[ln] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.listeners, ln)
		s.mu.Unlock()
	}()

	var backoff time.Duration
	for {
		nc, err := ln.Accept()
		if err != nil {
			if s.isClosing() {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if backoff == 0 {
					backoff = 5 * time.Millisecond
				} else if backoff *= 2; backoff > time.Second {
					backoff = time.Second
				}
				s.logger.Warnw("accept failed, retrying", "error", err, "backoff", backoff)
				time.Sleep(backoff)
				continue
			}
			return err
		}
		backoff = 0

		s.wg.Add(1)
		go s.serveConn(nc)
	}
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

func (s *Server) serveConn(nc net.Conn) {
	defer s.wg.Done()

	_ = nc.SetReadDeadline(time.Now().Add(s.opts.HandshakeTimeout))
	br := bufio.NewReader(nc)

	req, err := ReadRequest(br)
	if err != nil {
		s.logger.Debugw("bad upgrade request", "remote", nc.RemoteAddr().String(), "error", err)
		_ = WriteReject(nc, http.StatusBadRequest, "Bad Request")
		_ = nc.Close()
		return
	}
	accept, err := Handshake(req)
	if err != nil {
		s.logger.Debugw("handshake rejected", "remote", nc.RemoteAddr().String(), "error", err)
		_ = WriteReject(nc, http.StatusBadRequest, err.Error())
		_ = nc.Close()
		return
	}
	_ = nc.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	if err := WriteAccept(nc, accept); err != nil {
		_ = nc.Close()
		return
	}
	_ = nc.SetDeadline(time.Time{})

	c := newConn(uuid.NewString(), nc, br, s.opts, s.logger)

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		_ = nc.Close()
		return
	}
	s.conns[c] = struct{}{}
	s.mu.Unlock()

	go c.writePump()

	s.logger.Infow("connection opened", "conn", c.id, "remote", c.RemoteAddr())
	s.handler.Open(c)

	err = c.readLoop(s.handler)
	if errors.Is(err, ErrPayloadTooLarge) {
		s.logger.Warnw("protocol error", "conn", c.id, "error", err)
		c.closeWith(CloseMessageTooBig, "message too big")
	} else if errors.Is(err, ErrProtocol) {
		s.logger.Warnw("protocol error", "conn", c.id, "error", err)
		c.closeWith(CloseProtocolError, "protocol error")
	} else if err != nil {
		s.logger.Debugw("read failed", "conn", c.id, "error", err)
		c.abort()
	} else {
		c.closeWith(CloseNormalClosure, "")
	}

	s.handler.Closed(c, err)
	<-c.done

	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	s.logger.Infow("connection closed", "conn", c.id)
}

// Shutdown stops accepting, sends a going-away close frame to every
// connection and waits for them to finish or for ctx to expire, in which
// case the remaining sockets are closed forcibly.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	for ln := range s.listeners {
		_ = ln.Close()
	}
	conns := make([]*Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.GoingAway("server shutdown")
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		for _, c := range conns {
			c.abort()
		}
		return ctx.Err()
	}
}

// ConnCount returns the number of open connections.
func (s *Server) ConnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}
