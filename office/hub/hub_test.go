package hub

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wricardo/virtual-office/office/presence"
	"github.com/wricardo/virtual-office/office/protocol"
)

var testBounds = presence.Bounds{Width: 1200, Height: 800, Padding: 40}

type fakeSession struct {
	id string

	mu     sync.Mutex
	frames [][]byte
	closed string
	full   bool
}

func (f *fakeSession) ID() string { return f.id }

func (f *fakeSession) Send(payload []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return false
	}
	f.frames = append(f.frames, payload)
	return true
}

func (f *fakeSession) GoingAway(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = reason
}

// take returns and clears the decoded frames received so far.
func (f *fakeSession) take(t *testing.T) []map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]map[string]any, 0, len(f.frames))
	for _, frame := range f.frames {
		var m map[string]any
		if err := json.Unmarshal(frame, &m); err != nil {
			t.Fatalf("Session %s received invalid JSON %q: %v", f.id, frame, err)
		}
		out = append(out, m)
	}
	f.frames = nil
	return out
}

func types(msgs []map[string]any) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i], _ = m["type"].(string)
	}
	return out
}

func newTestHub(limit int) *Hub {
	var n int
	return New(Options{
		Bounds:       testBounds,
		HistoryLimit: limit,
		Now:          func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) },
		NewID: func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		},
	})
}

func connect(t *testing.T, h *Hub, id string) *fakeSession {
	t.Helper()
	s := &fakeSession{id: id}
	h.Connect(s)
	if got := types(s.take(t)); len(got) != 1 || got[0] != "welcome" {
		t.Fatalf("Expected welcome on connect, got %v", got)
	}
	return s
}

func join(t *testing.T, h *Hub, id, name string) *fakeSession {
	t.Helper()
	s := connect(t, h, id)
	h.Handle(id, []byte(`{"type":"hello","name":"`+name+`"}`))
	return s
}

func expectTypes(t *testing.T, s *fakeSession, want ...string) []map[string]any {
	t.Helper()
	msgs := s.take(t)
	got := types(msgs)
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("Session %s: expected %v, got %v", s.id, want, got)
	}
	return msgs
}

func TestConnectSendsWelcome(t *testing.T) {
	h := newTestHub(50)
	s := &fakeSession{id: "c1"}
	h.Connect(s)

	msgs := s.take(t)
	if len(msgs) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(msgs))
	}
	welcome := msgs[0]
	if welcome["type"] != "welcome" || welcome["id"] != "c1" {
		t.Errorf("Unexpected welcome header: %v", welcome)
	}
	if players, ok := welcome["players"].([]any); !ok || len(players) != 0 {
		t.Errorf("Expected empty players array, got %v", welcome["players"])
	}
	if messages, ok := welcome["messages"].([]any); !ok || len(messages) != 0 {
		t.Errorf("Expected empty messages array, got %v", welcome["messages"])
	}
	office := welcome["office"].(map[string]any)
	if office["width"] != 1200.0 || office["height"] != 800.0 || office["padding"] != 40.0 {
		t.Errorf("Unexpected office dimensions: %v", office)
	}
}

func TestHelloAnnouncesPlayer(t *testing.T) {
	h := newTestHub(50)
	bob := connect(t, h, "bob")
	ana := connect(t, h, "ana")

	h.Handle("ana", []byte(`{"type":"hello","name":"Ana","avatar":{"id":"pilot","tone":"dark"},"position":{"x":100,"y":100,"direction":"down"}}`))

	own := expectTypes(t, ana, "player-updated", "general-message")
	others := expectTypes(t, bob, "player-joined", "general-message")

	player := own[0]["player"].(map[string]any)
	if player["id"] != "ana" || player["name"] != "Ana" {
		t.Errorf("Unexpected player: %v", player)
	}
	if player["x"] != 100.0 || player["y"] != 100.0 || player["direction"] != "down" {
		t.Errorf("Unexpected position: %v", player)
	}
	avatar := player["avatar"].(map[string]any)
	if avatar["id"] != "pilot" || avatar["tone"] != "dark" {
		t.Errorf("Unexpected avatar: %v", avatar)
	}

	joined, _ := json.Marshal(others[0]["player"])
	echoed, _ := json.Marshal(own[0]["player"])
	if string(joined) != string(echoed) {
		t.Errorf("player-joined payload differs from echo:\n%s\n%s", joined, echoed)
	}

	system := others[1]["message"].(map[string]any)
	if system["system"] != true || system["content"] != "Ana se unió a la oficina." {
		t.Errorf("Unexpected system message: %v", system)
	}
	if len(h.Messages()) != 1 {
		t.Errorf("Expected 1 message in history, got %d", len(h.Messages()))
	}
}

func TestHelloSanitizesInput(t *testing.T) {
	h := newTestHub(50)
	s := connect(t, h, "c1")

	h.Handle("c1", []byte(`{"type":"hello","name":"   ","avatar":{"id":"wizard","tone":"green"},"position":{"x":-500,"y":"9999","direction":"north"}}`))

	msgs := expectTypes(t, s, "player-updated", "general-message")
	p := msgs[0]["player"].(map[string]any)
	if p["name"] != presence.DefaultName {
		t.Errorf("Expected default name, got %v", p["name"])
	}
	if p["x"] != 40.0 || p["y"] != 760.0 {
		t.Errorf("Expected clamped position (40,760), got (%v,%v)", p["x"], p["y"])
	}
	if p["direction"] != "down" {
		t.Errorf("Expected default direction, got %v", p["direction"])
	}
	avatar := p["avatar"].(map[string]any)
	if avatar["id"] != presence.DefaultAvatar().ID || avatar["tone"] != string(presence.DefaultTone) {
		t.Errorf("Expected default avatar, got %v", avatar)
	}
}

func TestHelloWithoutPositionStartsAtCenter(t *testing.T) {
	h := newTestHub(50)
	join(t, h, "c1", "Ana")

	p := h.Players()[0]
	if p.X != 600 || p.Y != 400 {
		t.Errorf("Expected center (600,400), got (%v,%v)", p.X, p.Y)
	}
}

func TestSecondHelloUpdatesInPlace(t *testing.T) {
	h := newTestHub(50)
	ana := join(t, h, "ana", "Ana")
	bob := join(t, h, "bob", "Bob")
	ana.take(t)
	bob.take(t)

	h.Handle("ana", []byte(`{"type":"hello","name":"Ana María"}`))

	a := expectTypes(t, ana, "player-updated")
	expectTypes(t, bob, "player-updated")
	if a[0]["player"].(map[string]any)["name"] != "Ana María" {
		t.Errorf("Expected renamed player, got %v", a[0]["player"])
	}
	if n := len(h.Players()); n != 2 {
		t.Errorf("Expected 2 players, got %d", n)
	}
	if n := len(h.Messages()); n != 2 {
		t.Errorf("Second hello must not add a system message, history has %d", n)
	}
}

func TestPositionIsNotEchoed(t *testing.T) {
	h := newTestHub(50)
	ana := join(t, h, "ana", "Ana")
	bob := join(t, h, "bob", "Bob")
	ana.take(t)
	bob.take(t)

	h.Handle("ana", []byte(`{"type":"position","x":5000,"y":300,"direction":"left"}`))

	expectTypes(t, ana)
	msgs := expectTypes(t, bob, "player-updated")
	p := msgs[0]["player"].(map[string]any)
	if p["x"] != 1160.0 || p["y"] != 300.0 || p["direction"] != "left" {
		t.Errorf("Unexpected sanitized position: %v", p)
	}
}

func TestPositionBeforeHelloIsIgnored(t *testing.T) {
	h := newTestHub(50)
	ana := join(t, h, "ana", "Ana")
	ghost := connect(t, h, "ghost")
	ana.take(t)

	h.Handle("ghost", []byte(`{"type":"position","x":10,"y":10}`))

	expectTypes(t, ana)
	expectTypes(t, ghost)
}

func TestGeneralMessageBroadcastsToEveryone(t *testing.T) {
	h := newTestHub(50)
	ana := join(t, h, "ana", "Ana")
	bob := join(t, h, "bob", "Bob")
	ana.take(t)
	bob.take(t)

	h.Handle("ana", []byte(`{"type":"general-message","content":"  hola  "}`))

	for _, s := range []*fakeSession{ana, bob} {
		msgs := expectTypes(t, s, "general-message")
		m := msgs[0]["message"].(map[string]any)
		if m["content"] != "hola" || m["authorId"] != "ana" || m["authorName"] != "Ana" {
			t.Errorf("Unexpected chat message: %v", m)
		}
	}
}

func TestBlankGeneralMessageIsDropped(t *testing.T) {
	h := newTestHub(50)
	ana := join(t, h, "ana", "Ana")
	bob := join(t, h, "bob", "Bob")
	ana.take(t)
	bob.take(t)
	before := len(h.Messages())

	h.Handle("ana", []byte(`{"type":"general-message","content":"   "}`))

	expectTypes(t, ana)
	expectTypes(t, bob)
	if len(h.Messages()) != before {
		t.Error("Blank message must not be stored")
	}
}

func TestGeneralMessageBeforeHello(t *testing.T) {
	h := newTestHub(50)
	s := connect(t, h, "c1")

	h.Handle("c1", []byte(`{"type":"general-message","content":"hi"}`))

	msgs := expectTypes(t, s, "error")
	if msgs[0]["message"] != protocol.ErrTextNotJoined || msgs[0]["ref"] != "general-message" {
		t.Errorf("Unexpected error: %v", msgs[0])
	}
}

func TestChatHistoryKeepsMostRecent(t *testing.T) {
	const limit = 3
	h := newTestHub(limit)
	join(t, h, "ana", "Ana")

	for i := 1; i <= limit+2; i++ {
		h.Handle("ana", []byte(fmt.Sprintf(`{"type":"general-message","content":"m%d"}`, i)))
	}

	history := h.Messages()
	if len(history) != limit {
		t.Fatalf("Expected %d messages, got %d", limit, len(history))
	}
	for i, want := range []string{"m3", "m4", "m5"} {
		if history[i].Content != want {
			t.Errorf("history[%d]: expected %q, got %q", i, want, history[i].Content)
		}
	}

	late := &fakeSession{id: "late"}
	h.Connect(late)
	welcome := late.take(t)[0]
	if n := len(welcome["messages"].([]any)); n != limit {
		t.Errorf("Welcome should carry %d messages, got %d", limit, n)
	}
}

func TestPrivateMessage(t *testing.T) {
	h := newTestHub(50)
	ana := join(t, h, "ana", "Ana")
	bob := join(t, h, "bob", "Bob")
	eve := join(t, h, "eve", "Eve")
	ana.take(t)
	bob.take(t)
	eve.take(t)
	before := len(h.Messages())

	h.Handle("ana", []byte(`{"type":"private-message","to":"bob","content":" secreto "}`))

	a := expectTypes(t, ana, "private-message")
	b := expectTypes(t, bob, "private-message")
	expectTypes(t, eve)

	sent, _ := json.Marshal(a[0])
	got, _ := json.Marshal(b[0])
	if string(sent) != string(got) {
		t.Errorf("Sender and target must receive the same message:\n%s\n%s", sent, got)
	}
	m := b[0]["message"].(map[string]any)
	if m["fromId"] != "ana" || m["toId"] != "bob" || m["content"] != "secreto" {
		t.Errorf("Unexpected private message: %v", m)
	}
	if len(h.Messages()) != before {
		t.Error("Private messages must not be stored")
	}
}

func TestPrivateMessageToUnknownTarget(t *testing.T) {
	h := newTestHub(50)
	ana := join(t, h, "ana", "Ana")
	bob := join(t, h, "bob", "Bob")
	ana.take(t)
	bob.take(t)

	h.Handle("ana", []byte(`{"type":"private-message","to":"gone","content":"hola"}`))

	msgs := expectTypes(t, ana, "error")
	expectTypes(t, bob)
	if msgs[0]["message"] != "La persona ya no está disponible." {
		t.Errorf("Unexpected error text: %v", msgs[0]["message"])
	}
	if msgs[0]["to"] != "gone" || msgs[0]["ref"] != "private-message" {
		t.Errorf("Error should reference the request: %v", msgs[0])
	}
}

func TestPrivateMessageToSelfIsDeliveredOnce(t *testing.T) {
	h := newTestHub(50)
	ana := join(t, h, "ana", "Ana")
	ana.take(t)

	h.Handle("ana", []byte(`{"type":"private-message","to":"ana","content":"nota"}`))

	expectTypes(t, ana, "private-message")
}

func TestChallengeRelay(t *testing.T) {
	h := newTestHub(50)
	ana := join(t, h, "ana", "Ana")
	bob := join(t, h, "bob", "Bob")
	ana.take(t)
	bob.take(t)

	h.Handle("ana", []byte(`{"type":"mini-game-challenge","to":"bob"}`))

	ack := expectTypes(t, ana, "mini-game-challenge-ack")[0]
	fwd := expectTypes(t, bob, "mini-game-challenge")[0]
	id, _ := fwd["challengeId"].(string)
	if id == "" {
		t.Fatal("Server must assign a challenge id")
	}
	if ack["challengeId"] != id {
		t.Errorf("Ack and forward must share the challenge id: %v vs %v", ack["challengeId"], id)
	}
	if fwd["from"].(map[string]any)["id"] != "ana" || fwd["to"].(map[string]any)["id"] != "bob" {
		t.Errorf("Unexpected challenge parties: %v", fwd)
	}

	h.Handle("bob", []byte(`{"type":"mini-game-response","to":"ana","challengeId":"`+id+`","accepted":true}`))

	resp := expectTypes(t, ana, "mini-game-response")[0]
	respAck := expectTypes(t, bob, "mini-game-response-ack")[0]
	if resp["accepted"] != true || resp["challengeId"] != id || respAck["challengeId"] != id {
		t.Errorf("Unexpected response relay: %v / %v", resp, respAck)
	}
	if resp["from"].(map[string]any)["id"] != "bob" {
		t.Errorf("Response must come from bob: %v", resp["from"])
	}
}

func TestChallengeKeepsSuppliedID(t *testing.T) {
	h := newTestHub(50)
	ana := join(t, h, "ana", "Ana")
	bob := join(t, h, "bob", "Bob")
	ana.take(t)
	bob.take(t)

	h.Handle("ana", []byte(`{"type":"mini-game-challenge","to":"bob","challengeId":"match-42"}`))

	if got := expectTypes(t, bob, "mini-game-challenge")[0]["challengeId"]; got != "match-42" {
		t.Errorf("Expected supplied id to pass through, got %v", got)
	}
	expectTypes(t, ana, "mini-game-challenge-ack")
}

func TestSignalsAndMovesAreForwardedOnly(t *testing.T) {
	h := newTestHub(50)
	ana := join(t, h, "ana", "Ana")
	bob := join(t, h, "bob", "Bob")
	ana.take(t)
	bob.take(t)

	h.Handle("ana", []byte(`{"type":"mini-game-ready","to":"bob","challengeId":"c1"}`))
	h.Handle("ana", []byte(`{"type":"mini-game-move","to":"bob","challengeId":"c1","round":7,"move":"lizard"}`))
	h.Handle("ana", []byte(`{"type":"mini-game-cancel","to":"bob","challengeId":"c1"}`))

	expectTypes(t, ana)
	msgs := expectTypes(t, bob, "mini-game-ready", "mini-game-move", "mini-game-cancel")

	// Moves are not validated by the server.
	move := msgs[1]
	if move["round"] != 7.0 || move["move"] != "lizard" || move["challengeId"] != "c1" {
		t.Errorf("Move must pass through unchanged: %v", move)
	}
	for _, m := range msgs {
		if m["from"].(map[string]any)["id"] != "ana" {
			t.Errorf("Relayed message must carry the sender: %v", m)
		}
	}
}

func TestRelayToUnavailableTarget(t *testing.T) {
	for _, payload := range []string{
		`{"type":"mini-game-challenge","to":"gone"}`,
		`{"type":"mini-game-response","to":"gone","challengeId":"c1","accepted":true}`,
		`{"type":"mini-game-ready","to":"gone","challengeId":"c1"}`,
		`{"type":"mini-game-cancel","to":"gone","challengeId":"c1"}`,
		`{"type":"mini-game-move","to":"gone","challengeId":"c1","round":1,"move":"rock"}`,
	} {
		h := newTestHub(50)
		ana := join(t, h, "ana", "Ana")
		ana.take(t)

		h.Handle("ana", []byte(payload))

		msgs := expectTypes(t, ana, "error")
		if msgs[0]["message"] != protocol.ErrTextUnavailable || msgs[0]["to"] != "gone" {
			t.Errorf("%s: unexpected error %v", payload, msgs[0])
		}
	}
}

func TestRelayToConnectionWithoutPlayer(t *testing.T) {
	h := newTestHub(50)
	ana := join(t, h, "ana", "Ana")
	lurker := connect(t, h, "lurker")
	ana.take(t)

	h.Handle("ana", []byte(`{"type":"mini-game-challenge","to":"lurker"}`))

	expectTypes(t, ana, "error")
	expectTypes(t, lurker)
}

func TestChallengeYourself(t *testing.T) {
	h := newTestHub(50)
	ana := join(t, h, "ana", "Ana")
	ana.take(t)

	h.Handle("ana", []byte(`{"type":"mini-game-challenge","to":"ana"}`))

	msgs := expectTypes(t, ana, "error")
	if msgs[0]["message"] != protocol.ErrTextSelfTarget {
		t.Errorf("Unexpected error text: %v", msgs[0]["message"])
	}
}

func TestUnsupportedAndMalformed(t *testing.T) {
	h := newTestHub(50)
	s := connect(t, h, "c1")

	h.Handle("c1", []byte(`{"type":"teleport"}`))
	h.Handle("c1", []byte(`not json`))
	h.Handle("c1", []byte(`{"type":"hello","name":"Ana"}`))

	msgs := expectTypes(t, s, "error", "error", "player-updated", "general-message")
	if msgs[0]["message"] != protocol.ErrTextUnsupported || msgs[0]["ref"] != "teleport" {
		t.Errorf("Unexpected unsupported error: %v", msgs[0])
	}
	if msgs[1]["message"] != protocol.ErrTextMalformed {
		t.Errorf("Unexpected malformed error: %v", msgs[1])
	}
	if s.closed != "" {
		t.Error("Application level errors must not close the connection")
	}
}

func TestDisconnectAnnouncesDeparture(t *testing.T) {
	h := newTestHub(50)
	ana := join(t, h, "ana", "Ana")
	join(t, h, "bob", "Bob")
	ana.take(t)

	h.Disconnect("bob")

	msgs := expectTypes(t, ana, "player-left", "general-message")
	if msgs[0]["id"] != "bob" {
		t.Errorf("Expected player-left for bob, got %v", msgs[0])
	}
	if msgs[1]["message"].(map[string]any)["content"] != "Bob salió de la oficina." {
		t.Errorf("Unexpected system message: %v", msgs[1])
	}
	if n := len(h.Players()); n != 1 {
		t.Errorf("Expected 1 player left, got %d", n)
	}

	// Repeated and unknown disconnects are ignored.
	h.Disconnect("bob")
	h.Disconnect("nobody")
	expectTypes(t, ana)
}

func TestDisconnectBeforeHelloIsSilent(t *testing.T) {
	h := newTestHub(50)
	ana := join(t, h, "ana", "Ana")
	connect(t, h, "lurker")
	ana.take(t)

	h.Disconnect("lurker")

	expectTypes(t, ana)
	if h.Stats().Connections != 1 {
		t.Errorf("Expected 1 connection, got %d", h.Stats().Connections)
	}
}

func TestShutdownNotifiesSessions(t *testing.T) {
	h := newTestHub(50)
	ana := join(t, h, "ana", "Ana")
	ana.take(t)

	h.Shutdown(ShutdownReason)

	msgs := expectTypes(t, ana, "disconnected")
	if msgs[0]["reason"] != ShutdownReason {
		t.Errorf("Unexpected reason: %v", msgs[0]["reason"])
	}
	if ana.closed != ShutdownReason {
		t.Errorf("Session should be closed, got %q", ana.closed)
	}

	late := &fakeSession{id: "late"}
	h.Connect(late)
	expectTypes(t, late, "disconnected")
	if late.closed == "" {
		t.Error("Connections after shutdown must be closed")
	}

	if _, err := h.Announce("hola"); err != ErrClosed {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}

func TestAnnounce(t *testing.T) {
	h := newTestHub(50)
	ana := join(t, h, "ana", "Ana")
	ana.take(t)

	m, err := h.Announce("  Reunión a las 5  ")
	if err != nil {
		t.Fatalf("Announce failed: %v", err)
	}
	if !m.System || m.Content != "Reunión a las 5" {
		t.Errorf("Unexpected announcement: %+v", m)
	}
	expectTypes(t, ana, "general-message")

	if _, err := h.Announce("   "); err != ErrEmptyMessage {
		t.Errorf("Expected ErrEmptyMessage, got %v", err)
	}
}

func TestMetricsCountActivity(t *testing.T) {
	h := newTestHub(50)
	join(t, h, "ana", "Ana")
	bob := join(t, h, "bob", "Bob")
	bob.full = true

	h.Handle("ana", []byte(`{"type":"general-message","content":"hola"}`))
	h.Handle("ana", []byte(`{"type":"mini-game-challenge","to":"bob"}`))
	h.Handle("ana", []byte(`{`))
	h.Disconnect("bob")

	snap := h.Metrics().Snapshot()
	want := map[string]int64{
		"connections_total":  2,
		"connections_active": 1,
		"frames_in":          5,
		"chat_messages":      1,
		"game_relays":        1,
		"malformed_frames":   1,
		"errors_sent":        1,
	}
	for k, v := range want {
		if snap[k] != v {
			t.Errorf("%s: expected %d, got %d", k, v, snap[k])
		}
	}
	if snap["send_failures"] == 0 {
		t.Error("Expected send failures to be counted for a full session")
	}
}
