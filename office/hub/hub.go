package hub

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wricardo/virtual-office/logging"
	"github.com/wricardo/virtual-office/office/chat"
	"github.com/wricardo/virtual-office/office/presence"
	"github.com/wricardo/virtual-office/office/protocol"
	"github.com/wricardo/virtual-office/transport/websocket"
)

var (
	ErrClosed       = errors.New("hub is closed")
	ErrEmptyMessage = errors.New("message is empty")
)

// ShutdownReason is sent in the disconnected event when the server stops.
const ShutdownReason = "server-shutdown"

// Session is one client connection as seen by the hub. Send must not block.
// GoingAway closes the session once queued payloads are flushed, telling the
// client the server is leaving.
type Session interface {
	ID() string
	Send(payload []byte) bool
	GoingAway(reason string)
}

// Options configures a Hub. Zero values select the defaults.
type Options struct {
	Bounds       presence.Bounds
	HistoryLimit int
	Logger       *zap.SugaredLogger

	// Now and NewID are replaced in tests.
	Now   func() time.Time
	NewID func() string
}

// Hub is the connection registry and message dispatcher of the office.
type Hub struct {
	mu       sync.Mutex
	sessions map[string]Session
	players  *presence.Store
	history  *chat.History
	closed   bool

	bounds  presence.Bounds
	logger  *zap.SugaredLogger
	metrics *Metrics
	now     func() time.Time
	newID   func() string
}

// New creates an empty hub.
func New(opts Options) *Hub {
	h := &Hub{
		sessions: make(map[string]Session),
		players:  presence.NewStore(),
		history:  chat.NewHistory(opts.HistoryLimit),
		bounds:   opts.Bounds,
		logger:   logging.OrNop(opts.Logger),
		metrics:  &Metrics{},
		now:      opts.Now,
		newID:    opts.NewID,
	}
	if h.now == nil {
		h.now = func() time.Time { return time.Now().UTC() }
	}
	if h.newID == nil {
		h.newID = uuid.NewString
	}
	return h
}

// Open, Receive and Closed let the hub serve a websocket.Server directly.

func (h *Hub) Open(c *websocket.Conn) { h.Connect(c) }

func (h *Hub) Receive(c *websocket.Conn, payload []byte) { h.Handle(c.ID(), payload) }

func (h *Hub) Closed(c *websocket.Conn, err error) { h.Disconnect(c.ID()) }

// Connect registers a session and sends it the welcome snapshot.
func (h *Hub) Connect(s Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		h.send(s, protocol.NewDisconnected(ShutdownReason))
		s.GoingAway(ShutdownReason)
		return
	}

	h.sessions[s.ID()] = s
	h.metrics.connOpened()
	h.logger.Debugw("session connected", "id", s.ID(), "sessions", len(h.sessions))

	h.send(s, protocol.NewWelcome(s.ID(), h.players.List(), h.history.List(), h.bounds))
}

// Disconnect forgets a session. If it had introduced itself, the remaining
// sessions are told the player left.
func (h *Hub) Disconnect(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.sessions[id]; !ok {
		return
	}
	delete(h.sessions, id)
	h.metrics.connClosed()

	p, ok := h.players.Remove(id)
	if !ok {
		h.logger.Debugw("session disconnected before hello", "id", id)
		return
	}
	h.logger.Infow("player left", "id", id, "name", p.Name)

	h.broadcast(protocol.NewPlayerLeft(id), "")
	h.appendSystem(chat.LeftText(p.Name))
}

// Handle decodes and applies one frame received from session id.
func (h *Hub) Handle(id string, payload []byte) {
	h.metrics.frameIn()

	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.sessions[id]
	if !ok {
		return
	}

	msg, err := protocol.Decode(payload)
	if err != nil {
		h.metrics.malformed()
		h.logger.Debugw("malformed frame", "id", id, "error", err)
		h.sendError(s, protocol.ErrTextMalformed, "", "")
		return
	}
	h.dispatch(s, msg)
}

// Shutdown tells every session the server is going away and closes it.
// Later connections are turned away.
func (h *Hub) Shutdown(reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for _, s := range h.sessions {
		h.send(s, protocol.NewDisconnected(reason))
		s.GoingAway(reason)
	}
	h.logger.Infow("hub shut down", "sessions", len(h.sessions), "reason", reason)
}

// Announce posts a system message to the general chat.
func (h *Hub) Announce(content string) (chat.Message, error) {
	content, ok := chat.SanitizeContent(content)
	if !ok {
		return chat.Message{}, ErrEmptyMessage
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return chat.Message{}, ErrClosed
	}
	return h.appendSystem(content), nil
}

// Players returns the introduced players, oldest first.
func (h *Hub) Players() []presence.Player {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.players.List()
}

// Messages returns the retained general chat history, oldest first.
func (h *Hub) Messages() []chat.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.history.List()
}

// Bounds returns the office dimensions.
func (h *Hub) Bounds() presence.Bounds {
	return h.bounds
}

// Stats summarizes the current office state.
type Stats struct {
	Connections  int             `json:"connections"`
	Players      int             `json:"players"`
	Messages     int             `json:"messages"`
	HistoryLimit int             `json:"historyLimit"`
	Office       presence.Bounds `json:"office"`
}

func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{
		Connections:  len(h.sessions),
		Players:      h.players.Len(),
		Messages:     h.history.Len(),
		HistoryLimit: h.history.Cap(),
		Office:       h.bounds,
	}
}

// Metrics returns the live activity counters.
func (h *Hub) Metrics() *Metrics {
	return h.metrics
}

// The helpers below expect h.mu to be held.

func (h *Hub) send(s Session, v any) {
	data, err := protocol.Encode(v)
	if err != nil {
		h.logger.Errorw("failed to encode message", "error", err)
		return
	}
	h.deliver(s, data)
}

func (h *Hub) deliver(s Session, data []byte) {
	if !s.Send(data) {
		h.metrics.sendFailed()
		h.logger.Debugw("send failed", "id", s.ID())
		return
	}
	h.metrics.messageOut()
}

// broadcast sends v to every session except the one with id except.
func (h *Hub) broadcast(v any, except string) {
	data, err := protocol.Encode(v)
	if err != nil {
		h.logger.Errorw("failed to encode message", "error", err)
		return
	}
	for id, s := range h.sessions {
		if id == except {
			continue
		}
		h.deliver(s, data)
	}
}

func (h *Hub) sendError(s Session, text string, ref protocol.Type, to string) {
	h.metrics.errorSent()
	h.send(s, protocol.NewError(text, ref, to))
}

func (h *Hub) appendSystem(content string) chat.Message {
	m := chat.NewSystemMessage(h.newID(), content, h.now())
	h.history.Append(m)
	h.broadcast(protocol.NewChat(m), "")
	return m
}
