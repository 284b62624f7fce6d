package presence

import (
	"strings"
	"time"
	"unicode"
)

const (
	// DefaultName is used when a participant does not provide a usable name.
	DefaultName = "Invitado"

	// MaxNameLength caps participant names, counted in runes.
	MaxNameLength = 24
)

// Player is the presence record of one connected participant. Its ID equals
// the ID of the connection that owns it.
type Player struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Avatar      Avatar    `json:"avatar"`
	X           float64   `json:"x"`
	Y           float64   `json:"y"`
	Direction   Direction `json:"direction"`
	ConnectedAt time.Time `json:"connectedAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Position returns the player's current location.
func (p Player) Position() Position {
	return Position{X: p.X, Y: p.Y, Direction: p.Direction}
}

// Summary is the short identity attached to relayed messages.
type Summary struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar Avatar `json:"avatar"`
}

// Summary returns the player's short identity.
func (p Player) Summary() Summary {
	return Summary{ID: p.ID, Name: p.Name, Avatar: p.Avatar}
}

// SanitizeName trims a client supplied name, removes control characters and
// caps its length.
func SanitizeName(name string) string {
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)

	if runes := []rune(name); len(runes) > MaxNameLength {
		name = strings.TrimSpace(string(runes[:MaxNameLength]))
	}
	if name == "" {
		return DefaultName
	}
	return name
}
