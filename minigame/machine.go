package minigame

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wricardo/virtual-office/logging"
)

var (
	ErrBusy         = errors.New("a match is already in progress")
	ErrInvalidState = errors.New("action not allowed in the current state")
	ErrInvalidMove  = errors.New("invalid move")
	ErrAlreadyMoved = errors.New("move already selected for this round")
	ErrNoOpponent   = errors.New("opponent id is required")
)

// Status is the phase of a match.
type Status string

const (
	StatusIdle              Status = "idle"
	StatusChallengeSent     Status = "challenge-sent"
	StatusChallengeReceived Status = "challenge-received"
	StatusReadyCheck        Status = "ready-check"
	StatusCountdown         Status = "countdown"
	StatusReveal            Status = "reveal"
	StatusNextRound         Status = "next-round"
	StatusFinished          Status = "finished"
)

// Reasons a match ended, reported in GameState.Reason.
const (
	ReasonCompleted         = "completed"
	ReasonDeclined          = "declined"
	ReasonCancelled         = "cancelled"
	ReasonOpponentCancelled = "opponent-cancelled"
	ReasonOpponentLeft      = "opponent-left"
	ReasonUnavailable       = "unavailable"
	ReasonTimeout           = "timeout"
)

// Opponent identifies the other side of a match.
type Opponent struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RoundResult is one resolved round. Results are never modified once
// appended to a GameState history.
type RoundResult struct {
	Round        int     `json:"round"`
	PlayerMove   Move    `json:"playerMove"`
	OpponentMove Move    `json:"opponentMove"`
	Outcome      Outcome `json:"outcome"`
}

// GameState is a snapshot of one peer's view of a match.
type GameState struct {
	Status        Status        `json:"status"`
	ChallengeID   string        `json:"challengeId,omitempty"`
	Opponent      Opponent      `json:"opponent"`
	Initiator     bool          `json:"initiator"`
	Round         int           `json:"round"`
	Countdown     int           `json:"countdown"`
	PlayerScore   int           `json:"playerScore"`
	OpponentScore int           `json:"opponentScore"`
	PlayerMove    Move          `json:"playerMove,omitempty"`
	OpponentMove  Move          `json:"opponentMove,omitempty"`
	SelfReady     bool          `json:"selfReady"`
	OpponentReady bool          `json:"opponentReady"`
	History       []RoundResult `json:"history"`
	LastOutcome   Outcome       `json:"lastOutcome,omitempty"`
	Winner        Winner        `json:"winner,omitempty"`
	Reason        string        `json:"reason,omitempty"`

	// Seq increases with every notification.
	Seq uint64 `json:"seq"`
}

// Active reports whether a match is being negotiated or played.
func (s GameState) Active() bool {
	return s.Status != StatusIdle && s.Status != StatusFinished
}

// Sender delivers mini-game messages to the opponent through the relay.
type Sender interface {
	SendChallenge(to, challengeID string) error
	SendResponse(to, challengeID string, accepted bool) error
	SendReady(to, challengeID string) error
	SendCancel(to, challengeID string) error
	SendMove(to, challengeID string, round int, move Move) error
}

// Options configures a Machine.
type Options struct {
	Sender    Sender
	Scheduler Scheduler
	Timing    Timing
	// OnChange receives a snapshot after every observable change. It is
	// called without locks held, in change order, and may call back into
	// the Machine; messages it triggers are sent after the ones already
	// queued.
	OnChange func(GameState)
	Logger   *zap.SugaredLogger
	NewID    func() string
}

// Machine is the local state machine of one peer.
type Machine struct {
	mu       sync.Mutex
	state    GameState
	sender   Sender
	sched    Scheduler
	timing   Timing
	onChange func(GameState)
	logger   *zap.SugaredLogger
	newID    func() string

	// gen invalidates callbacks of cleared timers.
	gen    uint64
	ticker Stopper
	pacer  Stopper
	early  *earlyMove

	changed  bool
	outbox   []func() error
	effects  []effect
	draining bool
}

// earlyMove is an opponent move for the next round that arrived before the
// local countdown started.
type earlyMove struct {
	round int
	move  Move
}

// New creates an idle machine.
func New(opts Options) *Machine {
	m := &Machine{
		state:    idleState(0, ""),
		sender:   opts.Sender,
		sched:    opts.Scheduler,
		timing:   opts.Timing.withDefaults(),
		onChange: opts.OnChange,
		logger:   logging.OrNop(opts.Logger),
		newID:    opts.NewID,
	}
	if m.sender == nil {
		m.sender = discardSender{}
	}
	if m.sched == nil {
		m.sched = SystemScheduler()
	}
	if m.newID == nil {
		m.newID = uuid.NewString
	}
	return m
}

func idleState(seq uint64, reason string) GameState {
	return GameState{Status: StatusIdle, History: []RoundResult{}, Reason: reason, Seq: seq}
}

// State returns the current snapshot.
func (m *Machine) State() GameState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// InitiateChallenge challenges opp and returns the new challenge id.
func (m *Machine) InitiateChallenge(opp Opponent) (string, error) {
	var id string
	err := m.do(func() error {
		if m.state.Active() {
			return ErrBusy
		}
		if strings.TrimSpace(opp.ID) == "" {
			return ErrNoOpponent
		}
		id = m.newID()
		m.begin(StatusChallengeSent, id, opp, true)
		challengeID := id
		m.send(func() error {
			err := m.sender.SendChallenge(opp.ID, challengeID)
			if err != nil {
				// The challenge never left; do not wait for an answer.
				m.do(func() error {
					if m.state.Status == StatusChallengeSent && m.state.ChallengeID == challengeID {
						m.abandon(ReasonUnavailable)
					}
					return nil
				})
			}
			return err
		})
		return nil
	})
	return id, err
}

// HandleChallengeReceived processes a relayed challenge. While another
// match is active the challenge is declined automatically.
func (m *Machine) HandleChallengeReceived(challengeID string, from Opponent) {
	m.do(func() error {
		if challengeID == "" || from.ID == "" {
			return nil
		}
		if m.state.Active() {
			if m.state.ChallengeID == challengeID {
				return nil
			}
			m.logger.Debugw("declining challenge while busy", "challenge", challengeID, "from", from.ID)
			m.send(func() error { return m.sender.SendResponse(from.ID, challengeID, false) })
			return nil
		}
		m.begin(StatusChallengeReceived, challengeID, from, false)
		return nil
	})
}

// Accept accepts the pending challenge.
func (m *Machine) Accept() error {
	return m.do(func() error {
		if m.state.Status != StatusChallengeReceived {
			return ErrInvalidState
		}
		to, id := m.state.Opponent.ID, m.state.ChallengeID
		m.enterReadyCheck()
		m.send(func() error { return m.sender.SendResponse(to, id, true) })
		return nil
	})
}

// Decline declines the pending challenge.
func (m *Machine) Decline() error {
	return m.do(func() error {
		if m.state.Status != StatusChallengeReceived {
			return ErrInvalidState
		}
		to, id := m.state.Opponent.ID, m.state.ChallengeID
		m.abandon(ReasonDeclined)
		m.send(func() error { return m.sender.SendResponse(to, id, false) })
		return nil
	})
}

// HandleResponse processes the opponent's answer to our challenge.
func (m *Machine) HandleResponse(challengeID, fromID string, accepted bool) {
	m.do(func() error {
		if m.state.Status != StatusChallengeSent || !m.matches(challengeID, fromID) {
			return nil
		}
		if accepted {
			m.enterReadyCheck()
		} else {
			m.abandon(ReasonDeclined)
		}
		return nil
	})
}

// SetReady marks the local player ready.
func (m *Machine) SetReady() error {
	return m.do(func() error {
		if m.state.Status != StatusReadyCheck {
			return ErrInvalidState
		}
		if m.state.SelfReady {
			return nil
		}
		m.state.SelfReady = true
		m.changed = true
		to, id := m.state.Opponent.ID, m.state.ChallengeID
		m.send(func() error { return m.sender.SendReady(to, id) })
		if m.state.OpponentReady {
			m.startRound(1)
		}
		return nil
	})
}

// HandleReady processes the opponent's ready signal.
func (m *Machine) HandleReady(challengeID, fromID string) {
	m.do(func() error {
		if m.state.Status != StatusReadyCheck || !m.matches(challengeID, fromID) || m.state.OpponentReady {
			return nil
		}
		m.state.OpponentReady = true
		m.changed = true
		if m.state.SelfReady {
			m.startRound(1)
		}
		return nil
	})
}

// SelectMove commits the local move for the current round.
func (m *Machine) SelectMove(move Move) error {
	mv, ok := ParseMove(string(move))
	if !ok {
		return ErrInvalidMove
	}
	return m.do(func() error {
		if m.state.Status != StatusCountdown {
			return ErrInvalidState
		}
		if m.state.PlayerMove != NoMove {
			return ErrAlreadyMoved
		}
		m.state.PlayerMove = mv
		m.changed = true
		to, id, round := m.state.Opponent.ID, m.state.ChallengeID, m.state.Round
		m.send(func() error { return m.sender.SendMove(to, id, round, mv) })
		if m.state.OpponentMove != NoMove {
			m.resolveRound()
		}
		return nil
	})
}

// HandleMove processes the opponent's move. Moves for the next round that
// arrive during the reveal or the pause are kept until that round starts.
func (m *Machine) HandleMove(challengeID, fromID string, round int, move string) {
	mv, ok := ParseMove(move)
	if !ok {
		m.logger.Debugw("ignoring invalid move", "challenge", challengeID, "move", move)
		return
	}
	m.do(func() error {
		if !m.matches(challengeID, fromID) {
			return nil
		}
		switch m.state.Status {
		case StatusCountdown:
			if round != m.state.Round || m.state.OpponentMove != NoMove {
				return nil
			}
			m.state.OpponentMove = mv
			m.changed = true
			if m.state.PlayerMove != NoMove {
				m.resolveRound()
			}
		case StatusReveal, StatusNextRound:
			if round == m.state.Round+1 {
				m.early = &earlyMove{round: round, move: mv}
			}
		}
		return nil
	})
}

// Cancel abandons the current match and tells the opponent. A finished
// match is simply cleared.
func (m *Machine) Cancel() error {
	return m.do(func() error {
		switch {
		case m.state.Active():
			to, id := m.state.Opponent.ID, m.state.ChallengeID
			m.abandon(ReasonCancelled)
			m.send(func() error { return m.sender.SendCancel(to, id) })
		case m.state.Status == StatusFinished:
			m.abandon("")
		}
		return nil
	})
}

// HandleCancel processes a cancel from the opponent.
func (m *Machine) HandleCancel(challengeID, fromID string) {
	m.do(func() error {
		if m.state.Active() && m.matches(challengeID, fromID) {
			m.abandon(ReasonOpponentCancelled)
		}
		return nil
	})
}

// OpponentLeft ends the match when the participant with id disconnects.
func (m *Machine) OpponentLeft(id string) {
	m.endIfOpponent(id, ReasonOpponentLeft)
}

// OpponentUnavailable ends the match when the relay reports the
// participant with id as unreachable.
func (m *Machine) OpponentUnavailable(id string) {
	m.endIfOpponent(id, ReasonUnavailable)
}

func (m *Machine) endIfOpponent(id, reason string) {
	m.do(func() error {
		if m.state.Active() && id != "" && m.state.Opponent.ID == id {
			m.abandon(reason)
		}
		return nil
	})
}

// Reset returns to idle without telling the opponent.
func (m *Machine) Reset() {
	m.do(func() error {
		m.abandon("")
		return nil
	})
}

// do runs fn with the lock held and queues the resulting hook notification
// and outgoing messages. Queued effects run without the lock, one goroutine
// at a time, in the order the changes happened; a call made while effects
// are draining (from the hook or a synchronous Sender) only queues.
func (m *Machine) do(fn func() error) error {
	var sendErr error

	m.mu.Lock()
	err := fn()
	if m.changed {
		m.changed = false
		m.state.Seq++
		m.effects = append(m.effects, effect{snapshot: m.state})
	}
	for _, send := range m.outbox {
		m.effects = append(m.effects, effect{send: send, failed: &sendErr})
	}
	m.outbox = nil
	if m.draining {
		m.mu.Unlock()
		return err
	}
	m.draining = true
	m.mu.Unlock()

	m.drain()
	if err == nil {
		err = sendErr
	}
	return err
}

// effect is either a snapshot for the hook or a queued send.
type effect struct {
	snapshot GameState
	send     func() error
	failed   *error
}

func (m *Machine) drain() {
	for {
		m.mu.Lock()
		if len(m.effects) == 0 {
			m.draining = false
			m.mu.Unlock()
			return
		}
		e := m.effects[0]
		m.effects = m.effects[1:]
		m.mu.Unlock()

		if e.send == nil {
			if m.onChange != nil {
				m.onChange(e.snapshot)
			}
			continue
		}
		if err := e.send(); err != nil {
			m.logger.Warnw("failed to send mini-game message", "error", err)
			if *e.failed == nil {
				*e.failed = err
			}
		}
	}
}

// The methods below expect m.mu to be held.

func (m *Machine) send(fn func() error) {
	m.outbox = append(m.outbox, fn)
}

func (m *Machine) matches(challengeID, fromID string) bool {
	return challengeID != "" && challengeID == m.state.ChallengeID && fromID == m.state.Opponent.ID
}

func (m *Machine) clearTimers() {
	m.gen++
	if m.ticker != nil {
		m.ticker.Stop()
		m.ticker = nil
	}
	if m.pacer != nil {
		m.pacer.Stop()
		m.pacer = nil
	}
}

// guarded wraps a timer callback so it only runs while the timers it was
// scheduled with are still current.
func (m *Machine) guarded(fn func()) func() {
	gen := m.gen
	return func() {
		m.do(func() error {
			if gen == m.gen {
				fn()
			}
			return nil
		})
	}
}

func (m *Machine) begin(status Status, challengeID string, opp Opponent, initiator bool) {
	m.clearTimers()
	m.early = nil
	m.state = GameState{
		Status:      status,
		ChallengeID: challengeID,
		Opponent:    opp,
		Initiator:   initiator,
		History:     []RoundResult{},
		Seq:         m.state.Seq,
	}
	m.changed = true
	m.armHandshake()
}

func (m *Machine) enterReadyCheck() {
	m.clearTimers()
	m.state.Status = StatusReadyCheck
	m.state.SelfReady = false
	m.state.OpponentReady = false
	m.changed = true
	m.armHandshake()
}

func (m *Machine) armHandshake() {
	if m.timing.Handshake <= 0 {
		return
	}
	m.pacer = m.sched.AfterFunc(m.timing.Handshake, m.guarded(func() {
		if !m.state.Active() {
			return
		}
		to, id := m.state.Opponent.ID, m.state.ChallengeID
		m.logger.Debugw("mini-game handshake timed out", "challenge", id, "status", m.state.Status)
		m.abandon(ReasonTimeout)
		m.send(func() error { return m.sender.SendCancel(to, id) })
	}))
}

func (m *Machine) startRound(round int) {
	m.clearTimers()
	m.state.Status = StatusCountdown
	m.state.Round = round
	m.state.Countdown = m.timing.CountdownTicks
	m.state.PlayerMove = NoMove
	m.state.OpponentMove = NoMove
	m.changed = true

	if e := m.early; e != nil {
		m.early = nil
		if e.round == round {
			m.state.OpponentMove = e.move
		}
	}
	m.ticker = m.sched.Every(m.timing.Tick, m.guarded(m.tick))
}

func (m *Machine) tick() {
	if m.state.Status != StatusCountdown {
		return
	}
	m.state.Countdown--
	m.changed = true
	if m.state.Countdown <= 0 {
		m.resolveRound()
	}
}

// resolveRound is the single exit of the countdown, reached when both moves
// are in or the countdown expires.
func (m *Machine) resolveRound() {
	m.clearTimers()

	s := &m.state
	outcome := Resolve(s.PlayerMove, s.OpponentMove)
	switch outcome {
	case OutcomeWin:
		s.PlayerScore++
	case OutcomeLose:
		s.OpponentScore++
	}

	history := make([]RoundResult, len(s.History), len(s.History)+1)
	copy(history, s.History)
	s.History = append(history, RoundResult{
		Round:        s.Round,
		PlayerMove:   s.PlayerMove,
		OpponentMove: s.OpponentMove,
		Outcome:      outcome,
	})
	s.LastOutcome = outcome
	s.Countdown = 0
	m.changed = true

	if Finished(s.PlayerScore, s.OpponentScore) {
		s.Status = StatusFinished
		s.Winner = DecideWinner(s.PlayerScore, s.OpponentScore)
		s.Reason = ReasonCompleted
		m.early = nil
		return
	}

	s.Status = StatusReveal
	m.pacer = m.sched.AfterFunc(m.timing.Reveal, m.guarded(m.endReveal))
}

func (m *Machine) endReveal() {
	if m.state.Status != StatusReveal {
		return
	}
	m.state.Status = StatusNextRound
	m.changed = true
	m.pacer = m.sched.AfterFunc(m.timing.NextRound, m.guarded(func() {
		if m.state.Status == StatusNextRound {
			m.startRound(m.state.Round + 1)
		}
	}))
}

func (m *Machine) abandon(reason string) {
	m.clearTimers()
	m.early = nil
	m.state = idleState(m.state.Seq, reason)
	m.changed = true
}

type discardSender struct{}

func (discardSender) SendChallenge(string, string) error       { return nil }
func (discardSender) SendResponse(string, string, bool) error  { return nil }
func (discardSender) SendReady(string, string) error           { return nil }
func (discardSender) SendCancel(string, string) error          { return nil }
func (discardSender) SendMove(string, string, int, Move) error { return nil }
