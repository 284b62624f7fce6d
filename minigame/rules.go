package minigame

import "strings"

// Move is a rock-paper-scissors hand. The zero value means no move.
type Move string

const (
	NoMove   Move = ""
	Rock     Move = "rock"
	Paper    Move = "paper"
	Scissors Move = "scissors"
)

// Moves lists the playable moves.
var Moves = []Move{Rock, Paper, Scissors}

// ParseMove validates a move received from the user or the wire.
func ParseMove(s string) (Move, bool) {
	switch m := Move(strings.ToLower(strings.TrimSpace(s))); m {
	case Rock, Paper, Scissors:
		return m, true
	default:
		return NoMove, false
	}
}

// beats maps each move to the move it defeats.
var beats = map[Move]Move{
	Rock:     Scissors,
	Paper:    Rock,
	Scissors: Paper,
}

// Outcome is the result of a round from the local player's point of view.
type Outcome string

const (
	OutcomeWin     Outcome = "win"
	OutcomeLose    Outcome = "lose"
	OutcomeDraw    Outcome = "draw"
	OutcomeInvalid Outcome = "invalid"
)

// Resolve decides a round. A side without a move loses; when neither side
// moved the round is invalid.
func Resolve(player, opponent Move) Outcome {
	switch {
	case player == NoMove && opponent == NoMove:
		return OutcomeInvalid
	case player == NoMove:
		return OutcomeLose
	case opponent == NoMove:
		return OutcomeWin
	case player == opponent:
		return OutcomeDraw
	case beats[player] == opponent:
		return OutcomeWin
	default:
		return OutcomeLose
	}
}

// WinningScore is the number of round wins that ends a match.
const WinningScore = 2

// Winner names the side that won a match.
type Winner string

const (
	WinnerNone     Winner = ""
	WinnerPlayer   Winner = "player"
	WinnerOpponent Winner = "opponent"
	WinnerDraw     Winner = "draw"
)

// DecideWinner compares final scores.
func DecideWinner(playerScore, opponentScore int) Winner {
	switch {
	case playerScore > opponentScore:
		return WinnerPlayer
	case opponentScore > playerScore:
		return WinnerOpponent
	default:
		return WinnerDraw
	}
}

// Finished reports whether a score ends the match.
func Finished(playerScore, opponentScore int) bool {
	return max(playerScore, opponentScore) >= WinningScore
}
