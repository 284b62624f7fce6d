package chat

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/wricardo/virtual-office/office/presence"
)

const (
	// MaxContentLength caps message content, counted in runes.
	MaxContentLength = 500

	// SystemAuthorID identifies messages produced by the server itself.
	SystemAuthorID   = "system"
	SystemAuthorName = "Oficina"
)

// Message is an entry of the general chat.
type Message struct {
	ID         string           `json:"id"`
	AuthorID   string           `json:"authorId"`
	AuthorName string           `json:"authorName"`
	Avatar     *presence.Avatar `json:"avatar,omitempty"`
	Content    string           `json:"content"`
	CreatedAt  time.Time        `json:"createdAt"`
	System     bool             `json:"system,omitempty"`
}

// PrivateMessage travels between exactly two participants and is never stored.
type PrivateMessage struct {
	ID        string          `json:"id"`
	FromID    string          `json:"fromId"`
	ToID      string          `json:"toId"`
	FromName  string          `json:"fromName"`
	ToName    string          `json:"toName"`
	Avatar    presence.Avatar `json:"avatar"`
	Content   string          `json:"content"`
	CreatedAt time.Time       `json:"createdAt"`
}

// SanitizeContent trims and caps message content. ok is false when nothing
// is left to send.
func SanitizeContent(content string) (string, bool) {
	content = strings.TrimSpace(content)
	if utf8.RuneCountInString(content) > MaxContentLength {
		content = strings.TrimSpace(string([]rune(content)[:MaxContentLength]))
	}
	return content, content != ""
}

// NewMessage builds a general chat message authored by p.
func NewMessage(id string, p presence.Player, content string, now time.Time) Message {
	avatar := p.Avatar
	return Message{
		ID:         id,
		AuthorID:   p.ID,
		AuthorName: p.Name,
		Avatar:     &avatar,
		Content:    content,
		CreatedAt:  now,
	}
}

// NewSystemMessage builds a server announcement.
func NewSystemMessage(id, content string, now time.Time) Message {
	return Message{
		ID:         id,
		AuthorID:   SystemAuthorID,
		AuthorName: SystemAuthorName,
		Content:    content,
		CreatedAt:  now,
		System:     true,
	}
}

// NewPrivateMessage builds a private message from one player to another.
func NewPrivateMessage(id string, from, to presence.Player, content string, now time.Time) PrivateMessage {
	return PrivateMessage{
		ID:        id,
		FromID:    from.ID,
		ToID:      to.ID,
		FromName:  from.Name,
		ToName:    to.Name,
		Avatar:    from.Avatar,
		Content:   content,
		CreatedAt: now,
	}
}

// JoinedText and LeftText are the system announcements for presence changes.
func JoinedText(name string) string { return name + " se unió a la oficina." }
func LeftText(name string) string   { return name + " salió de la oficina." }
