package peer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/wricardo/virtual-office/logging"
	"github.com/wricardo/virtual-office/minigame"
	"github.com/wricardo/virtual-office/office/chat"
	"github.com/wricardo/virtual-office/office/presence"
	"github.com/wricardo/virtual-office/office/protocol"
)

var (
	ErrNotConnected = errors.New("not connected")
	ErrUnknownPeer  = errors.New("unknown participant")
)

// ReasonConnectionLost is reported when the socket drops without a
// disconnected event from the server.
const ReasonConnectionLost = "connection-lost"

const (
	writeWait          = 10 * time.Second
	defaultHistorySize = 50
)

// Options configures a Client.
type Options struct {
	// URL is the office endpoint, e.g. ws://localhost:3001/.
	URL      string
	Dialer   *websocket.Dialer
	Listener Listener
	Logger   *zap.SugaredLogger

	// Timing and Scheduler drive the local mini-game machine.
	Timing    minigame.Timing
	Scheduler minigame.Scheduler

	// HistorySize is the number of chat messages kept locally.
	HistorySize int
}

// Client is one participant connected to the office.
type Client struct {
	conn     *websocket.Conn
	writeMu  sync.Mutex
	logger   *zap.SugaredLogger
	listener Listener
	game     *minigame.Machine

	mu       sync.Mutex
	id       string
	players  *presence.Store
	history  *chat.History
	bounds   presence.Bounds
	reason   string
	welcomed chan struct{}
	welcome  sync.Once
	done     chan struct{}
}

// Dial connects to the office and waits for the welcome snapshot.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	logger := logging.OrNop(opts.Logger)
	listener := opts.Listener
	if listener == nil {
		listener = NopListener{}
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = defaultHistorySize
	}

	conn, _, err := dialer.DialContext(ctx, opts.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", opts.URL, err)
	}

	c := &Client{
		conn:     conn,
		logger:   logger,
		listener: listener,
		players:  presence.NewStore(),
		history:  chat.NewHistory(opts.HistorySize),
		welcomed: make(chan struct{}),
		done:     make(chan struct{}),
	}
	c.game = minigame.New(minigame.Options{
		Sender:    c,
		Scheduler: opts.Scheduler,
		Timing:    opts.Timing,
		OnChange:  listener.Game,
		Logger:    logger.With("component", "minigame"),
	})

	go c.readLoop()

	select {
	case <-c.welcomed:
		return c, nil
	case <-c.done:
		return nil, fmt.Errorf("connection closed before welcome: %w", ErrNotConnected)
	case <-ctx.Done():
		c.conn.Close()
		<-c.done
		return nil, ctx.Err()
	}
}

// ID returns the id the server assigned to this connection.
func (c *Client) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// Game returns the local mini-game machine.
func (c *Client) Game() *minigame.Machine {
	return c.game
}

// Players returns the known players, oldest first.
func (c *Client) Players() []presence.Player {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.players.List()
}

// Player looks up a known player.
func (c *Client) Player(id string) (presence.Player, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.players.Get(id)
}

// FindPlayer looks up a known player by name.
func (c *Client) FindPlayer(name string) (presence.Player, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.players.List() {
		if p.Name == name {
			return p, true
		}
	}
	return presence.Player{}, false
}

// Messages returns the general chat seen so far, oldest first.
func (c *Client) Messages() []chat.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.List()
}

// Bounds returns the office dimensions announced in the welcome.
func (c *Client) Bounds() presence.Bounds {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bounds
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Hello introduces the participant. It may be sent again to change name,
// avatar or position.
func (c *Client) Hello(name, avatarID string, tone presence.Tone, pos presence.Position) error {
	return c.write(protocol.Hello{
		Name:   protocol.String(name),
		Avatar: protocol.AvatarInput{ID: protocol.String(avatarID), Tone: protocol.String(tone)},
		Position: protocol.PositionInput{
			X:         protocol.Num(pos.X),
			Y:         protocol.Num(pos.Y),
			Direction: protocol.String(pos.Direction),
		},
	})
}

// Walk reports a new position.
func (c *Client) Walk(pos presence.Position) error {
	return c.write(protocol.PositionUpdate{
		X:         protocol.Num(pos.X),
		Y:         protocol.Num(pos.Y),
		Direction: protocol.String(pos.Direction),
	})
}

// Say posts to the general chat.
func (c *Client) Say(content string) error {
	return c.write(protocol.GeneralChat{Content: protocol.String(content)})
}

// Whisper sends a private message.
func (c *Client) Whisper(to, content string) error {
	return c.write(protocol.PrivateChat{To: protocol.String(to), Content: protocol.String(content)})
}

// Challenge invites a known player to a mini-game.
func (c *Client) Challenge(id string) (string, error) {
	p, ok := c.Player(id)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownPeer, id)
	}
	return c.game.InitiateChallenge(minigame.Opponent{ID: p.ID, Name: p.Name})
}

// Close ends the connection and waits for the read loop to exit.
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	c.writeMu.Unlock()

	select {
	case <-c.done:
	case <-time.After(writeWait):
		c.conn.Close()
		<-c.done
	}
	return nil
}

// SendChallenge, SendResponse, SendReady, SendCancel and SendMove relay
// mini-game messages for the local machine.

func (c *Client) SendChallenge(to, challengeID string) error {
	return c.write(protocol.ChallengeRequest{To: protocol.String(to), ChallengeID: protocol.String(challengeID)})
}

func (c *Client) SendResponse(to, challengeID string, accepted bool) error {
	return c.write(protocol.ChallengeResponse{
		To:          protocol.String(to),
		ChallengeID: protocol.String(challengeID),
		Accepted:    protocol.Bool(accepted),
	})
}

func (c *Client) SendReady(to, challengeID string) error {
	return c.write(protocol.ReadySignal{To: protocol.String(to), ChallengeID: protocol.String(challengeID)})
}

func (c *Client) SendCancel(to, challengeID string) error {
	return c.write(protocol.CancelRequest{To: protocol.String(to), ChallengeID: protocol.String(challengeID)})
}

func (c *Client) SendMove(to, challengeID string, round int, move minigame.Move) error {
	return c.write(protocol.MoveRequest{
		To:          protocol.String(to),
		ChallengeID: protocol.String(challengeID),
		Round:       protocol.Int(round),
		Move:        protocol.String(move),
	})
}

func (c *Client) write(m protocol.Inbound) error {
	select {
	case <-c.done:
		return ErrNotConnected
	default:
	}

	data, err := protocol.Outgoing(m)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", m.Kind(), err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send %s: %w", m.Kind(), err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer c.finish()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debugw("read failed", "error", err)
			}
			return
		}
		if err := c.route(data); err != nil {
			c.logger.Warnw("failed to handle message", "error", err)
		}
	}
}

// finish runs once the socket is gone. The local machine is reset and the
// listener sees a disconnected event even if the server never sent one.
func (c *Client) finish() {
	c.conn.Close()
	c.game.Reset()

	c.mu.Lock()
	reason := c.reason
	c.mu.Unlock()
	if reason == "" {
		reason = ReasonConnectionLost
	}

	close(c.done)
	c.listener.Disconnected(reason)
}

func (c *Client) route(data []byte) error {
	t, err := protocol.PeekType(data)
	if err != nil {
		return err
	}

	switch t {
	case protocol.TypeWelcome:
		var ev protocol.WelcomeEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return err
		}
		c.mu.Lock()
		c.id = ev.ID
		c.bounds = ev.Office
		for _, p := range ev.Players {
			c.players.Put(p)
		}
		for _, m := range ev.Messages {
			c.history.Append(m)
		}
		c.mu.Unlock()
		c.listener.Welcome(ev.ID, ev.Players, ev.Messages, ev.Office)
		c.welcome.Do(func() { close(c.welcomed) })

	case protocol.TypePlayerJoined, protocol.TypePlayerUpdated:
		var ev protocol.PlayerEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return err
		}
		c.mu.Lock()
		c.players.Put(ev.Player)
		c.mu.Unlock()
		c.listener.PlayersChanged(c.Players())

	case protocol.TypePlayerLeft:
		var ev protocol.PlayerLeftEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return err
		}
		c.mu.Lock()
		c.players.Remove(ev.ID)
		c.mu.Unlock()
		c.game.OpponentLeft(ev.ID)
		c.listener.PlayersChanged(c.Players())

	case protocol.TypeGeneralMessage:
		var ev protocol.ChatEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return err
		}
		c.mu.Lock()
		c.history.Append(ev.Message)
		c.mu.Unlock()
		c.listener.Chat(ev.Message)

	case protocol.TypePrivateMessage:
		var ev protocol.PrivateEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return err
		}
		c.listener.Private(ev.Message)

	case protocol.TypeChallenge:
		var ev protocol.ChallengeEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return err
		}
		c.game.HandleChallengeReceived(ev.ChallengeID, minigame.Opponent{ID: ev.From.ID, Name: ev.From.Name})

	case protocol.TypeResponse:
		var ev protocol.ResponseEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return err
		}
		c.game.HandleResponse(ev.ChallengeID, ev.From.ID, ev.Accepted)

	case protocol.TypeReady, protocol.TypeCancel:
		var ev protocol.SignalEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return err
		}
		if t == protocol.TypeReady {
			c.game.HandleReady(ev.ChallengeID, ev.From.ID)
		} else {
			c.game.HandleCancel(ev.ChallengeID, ev.From.ID)
		}

	case protocol.TypeMove:
		var ev protocol.MoveEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return err
		}
		c.game.HandleMove(ev.ChallengeID, ev.From.ID, ev.Round, ev.Move)

	case protocol.TypeChallengeAck, protocol.TypeResponseAck:
		// Our own messages reached the relay.

	case protocol.TypeError:
		var ev protocol.ErrorEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return err
		}
		if ev.To != "" {
			c.game.OpponentUnavailable(ev.To)
		}
		c.listener.Error(ev)

	case protocol.TypeDisconnected:
		var ev protocol.DisconnectedEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return err
		}
		c.mu.Lock()
		c.reason = ev.Reason
		c.mu.Unlock()

	default:
		c.logger.Debugw("ignoring message", "type", t)
	}
	return nil
}
