package peer

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wricardo/virtual-office/logging"
	"github.com/wricardo/virtual-office/minigame"
	"github.com/wricardo/virtual-office/office/chat"
	"github.com/wricardo/virtual-office/office/presence"
	"github.com/wricardo/virtual-office/office/protocol"
)

// BotOptions configures a Bot.
type BotOptions struct {
	Client Options

	Name   string
	Avatar string
	Tone   presence.Tone

	// Opponent is the name of a player to challenge once it is present.
	Opponent string
	// ThinkTime delays every move.
	ThinkTime time.Duration
}

// Bot is a participant that plays on its own.
type Bot struct {
	NopListener

	opts    BotOptions
	logger  *zap.SugaredLogger
	results chan minigame.GameState

	mu         sync.Mutex
	client     *Client
	challenged map[string]bool
	played     playedRound
}

type playedRound struct {
	challengeID string
	round       int
}

// NewBot creates a bot. Call Run to connect it.
func NewBot(opts BotOptions) *Bot {
	logger := logging.OrNop(opts.Client.Logger)
	return &Bot{
		opts:       opts,
		logger:     logger,
		results:    make(chan minigame.GameState, 16),
		challenged: make(map[string]bool),
	}
}

// Results delivers the final state of every finished match. Results are
// dropped when nobody reads them.
func (b *Bot) Results() <-chan minigame.GameState {
	return b.results
}

// Client returns the connected client, or nil before Run connected.
func (b *Bot) Client() *Client {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.client
}

// Run connects, joins the office and plays until ctx is done or the
// connection drops.
func (b *Bot) Run(ctx context.Context) error {
	opts := b.opts.Client
	opts.Listener = b

	c, err := Dial(ctx, opts)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.client = c
	b.mu.Unlock()

	x, y := c.Bounds().Center()
	pos := presence.Position{X: x, Y: y, Direction: presence.DefaultDirection}
	if err := c.Hello(b.opts.Name, b.opts.Avatar, b.opts.Tone, pos); err != nil {
		c.Close()
		return err
	}
	b.logger.Infow("bot joined", "id", c.ID(), "name", b.opts.Name)
	b.challengeOpponent(c.Players())

	select {
	case <-ctx.Done():
		return c.Close()
	case <-c.Done():
		return ErrNotConnected
	}
}

func (b *Bot) PlayersChanged(players []presence.Player) {
	b.challengeOpponent(players)
}

func (b *Bot) challengeOpponent(players []presence.Player) {
	c := b.Client()
	if c == nil || b.opts.Opponent == "" || c.Game().State().Active() {
		return
	}

	for _, p := range players {
		if p.Name != b.opts.Opponent || p.ID == c.ID() {
			continue
		}
		b.mu.Lock()
		seen := b.challenged[p.ID]
		b.challenged[p.ID] = true
		b.mu.Unlock()
		if seen {
			continue
		}

		if _, err := c.Challenge(p.ID); err != nil {
			b.logger.Debugw("challenge failed", "opponent", p.ID, "error", err)
			continue
		}
		b.logger.Infow("challenged player", "opponent", p.Name)
		return
	}
}

func (b *Bot) Game(s minigame.GameState) {
	c := b.Client()
	if c == nil {
		return
	}
	g := c.Game()

	var err error
	switch s.Status {
	case minigame.StatusChallengeReceived:
		b.logger.Infow("accepting challenge", "from", s.Opponent.Name)
		err = g.Accept()
	case minigame.StatusReadyCheck:
		if !s.SelfReady {
			err = g.SetReady()
		}
	case minigame.StatusCountdown:
		if s.PlayerMove == minigame.NoMove && b.claimRound(s) {
			b.play(g)
		}
	case minigame.StatusFinished:
		b.logger.Infow("match finished", "winner", s.Winner, "score", []int{s.PlayerScore, s.OpponentScore})
		select {
		case b.results <- s:
		default:
		}
	}
	if err != nil {
		b.logger.Debugw("game action skipped", "status", s.Status, "error", err)
	}
}

// claimRound reports whether no move was scheduled yet for the round of s.
func (b *Bot) claimRound(s minigame.GameState) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := playedRound{challengeID: s.ChallengeID, round: s.Round}
	if b.played == r {
		return false
	}
	b.played = r
	return true
}

func (b *Bot) play(g *minigame.Machine) {
	move := minigame.Moves[rand.IntN(len(minigame.Moves))]
	selectMove := func() {
		if err := g.SelectMove(move); err != nil {
			b.logger.Debugw("move skipped", "error", err)
		}
	}
	if b.opts.ThinkTime > 0 {
		time.AfterFunc(b.opts.ThinkTime, selectMove)
		return
	}
	selectMove()
}

func (b *Bot) Chat(m chat.Message) {
	b.logger.Infow("chat", "from", m.AuthorName, "content", m.Content)
}

func (b *Bot) Private(m chat.PrivateMessage) {
	b.logger.Infow("private message", "from", m.FromName, "content", m.Content)
}

func (b *Bot) Error(e protocol.ErrorEvent) {
	b.logger.Warnw("server error", "message", e.Message, "ref", e.Ref)
}

func (b *Bot) Disconnected(reason string) {
	b.logger.Infow("disconnected", "reason", reason)
}
