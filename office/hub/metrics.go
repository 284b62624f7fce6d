package hub

import "sync/atomic"

// Metrics counts hub activity. All methods are safe for concurrent use.
type Metrics struct {
	ConnectionsTotal  int64
	ConnectionsActive int64
	FramesIn          int64
	MessagesOut       int64
	SendFailures      int64
	MalformedFrames   int64
	ChatMessages      int64
	PrivateMessages   int64
	GameRelays        int64
	ErrorsSent        int64
}

func (m *Metrics) connOpened() {
	atomic.AddInt64(&m.ConnectionsTotal, 1)
	atomic.AddInt64(&m.ConnectionsActive, 1)
}
func (m *Metrics) connClosed()     { atomic.AddInt64(&m.ConnectionsActive, -1) }
func (m *Metrics) frameIn()        { atomic.AddInt64(&m.FramesIn, 1) }
func (m *Metrics) messageOut()     { atomic.AddInt64(&m.MessagesOut, 1) }
func (m *Metrics) sendFailed()     { atomic.AddInt64(&m.SendFailures, 1) }
func (m *Metrics) malformed()      { atomic.AddInt64(&m.MalformedFrames, 1) }
func (m *Metrics) chatMessage()    { atomic.AddInt64(&m.ChatMessages, 1) }
func (m *Metrics) privateMessage() { atomic.AddInt64(&m.PrivateMessages, 1) }
func (m *Metrics) gameRelay()      { atomic.AddInt64(&m.GameRelays, 1) }
func (m *Metrics) errorSent()      { atomic.AddInt64(&m.ErrorsSent, 1) }

// Snapshot returns the current counter values keyed by name.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"connections_total":  atomic.LoadInt64(&m.ConnectionsTotal),
		"connections_active": atomic.LoadInt64(&m.ConnectionsActive),
		"frames_in":          atomic.LoadInt64(&m.FramesIn),
		"messages_out":       atomic.LoadInt64(&m.MessagesOut),
		"send_failures":      atomic.LoadInt64(&m.SendFailures),
		"malformed_frames":   atomic.LoadInt64(&m.MalformedFrames),
		"chat_messages":      atomic.LoadInt64(&m.ChatMessages),
		"private_messages":   atomic.LoadInt64(&m.PrivateMessages),
		"game_relays":        atomic.LoadInt64(&m.GameRelays),
		"errors_sent":        atomic.LoadInt64(&m.ErrorsSent),
	}
}
