package presence

import (
	"math"
	"strings"
)

// Direction is the way an avatar is facing.
type Direction string

const (
	DirUp    Direction = "up"
	DirDown  Direction = "down"
	DirLeft  Direction = "left"
	DirRight Direction = "right"

	DefaultDirection = DirDown
)

// ParseDirection maps a client supplied direction to a Direction, falling
// back to DefaultDirection.
func ParseDirection(s string) Direction {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case DirUp:
		return DirUp
	case DirDown:
		return DirDown
	case DirLeft:
		return DirLeft
	case DirRight:
		return DirRight
	default:
		return DefaultDirection
	}
}

// Bounds is the walkable office rectangle. Positions are kept Padding units
// away from every edge.
type Bounds struct {
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
	Padding float64 `json:"padding"`
}

// Position is a sanitized avatar location.
type Position struct {
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Direction Direction `json:"direction"`
}

// Center returns the middle of the office.
func (b Bounds) Center() (float64, float64) {
	return b.Width / 2, b.Height / 2
}

// Clamp keeps x and y inside [Padding, Width-Padding] and [Padding, Height-Padding].
// Non-finite coordinates are replaced by the matching center coordinate.
func (b Bounds) Clamp(x, y float64) (float64, float64) {
	cx, cy := b.Center()
	return clampAxis(x, b.Padding, b.Width-b.Padding, cx), clampAxis(y, b.Padding, b.Height-b.Padding, cy)
}

func clampAxis(v, lo, hi, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = fallback
	}
	if hi < lo {
		return fallback
	}
	return math.Min(math.Max(v, lo), hi)
}

// SanitizePosition clamps a client supplied location and validates its direction.
func SanitizePosition(b Bounds, x, y float64, direction string) Position {
	x, y = b.Clamp(x, y)
	return Position{X: x, Y: y, Direction: ParseDirection(direction)}
}
