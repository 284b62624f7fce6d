package peer

import (
	"github.com/wricardo/virtual-office/minigame"
	"github.com/wricardo/virtual-office/office/chat"
	"github.com/wricardo/virtual-office/office/presence"
	"github.com/wricardo/virtual-office/office/protocol"
)

// Listener receives what a Client observes. Callbacks run on the client's
// read goroutine, except Game which may also run on a timer goroutine.
type Listener interface {
	Welcome(self string, players []presence.Player, messages []chat.Message, office presence.Bounds)
	PlayersChanged(players []presence.Player)
	Chat(m chat.Message)
	Private(m chat.PrivateMessage)
	Game(s minigame.GameState)
	Error(e protocol.ErrorEvent)
	Disconnected(reason string)
}

// NopListener ignores everything. Embed it to implement only some callbacks.
type NopListener struct{}

func (NopListener) Welcome(string, []presence.Player, []chat.Message, presence.Bounds) {}
func (NopListener) PlayersChanged([]presence.Player)                                  {}
func (NopListener) Chat(chat.Message)                                                 {}
func (NopListener) Private(chat.PrivateMessage)                                       {}
func (NopListener) Game(minigame.GameState)                                           {}
func (NopListener) Error(protocol.ErrorEvent)                                         {}
func (NopListener) Disconnected(string)                                               {}
