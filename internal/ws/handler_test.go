package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/PixelOverkilll/last-man-standing-sub000/internal/config"
	"github.com/PixelOverkilll/last-man-standing-sub000/internal/hub"
	"github.com/PixelOverkilll/last-man-standing-sub000/internal/registry"
	"github.com/PixelOverkilll/last-man-standing-sub000/internal/state"
	"github.com/PixelOverkilll/last-man-standing-sub000/internal/types"
	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// envelope merges ack and event fields so one struct can decode anything
// the coordinator sends.
type envelope struct {
	Type     string          `json:"type"`
	Seq      int             `json:"seq"`
	OK       bool            `json:"ok"`
	Error    string          `json:"error"`
	LobbyID  string          `json:"lobby_id"`
	Host     *state.Player   `json:"host"`
	Members  []state.Player  `json:"members"`
	Player   *state.Player   `json:"player"`
	PlayerID string          `json:"player_id"`
	From     string          `json:"from"`
	Payload  json.RawMessage `json:"payload"`
}

type client struct {
	t    *testing.T
	conn *websocket.Conn
}

func testConfig() config.Config {
	return config.Config{
		Port:         "0",
		WriteTimeout: time.Second,
		ReadLimit:    32768,
		OutboxSize:   32,
	}
}

func newCoordinator(t *testing.T) *httptest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	reg := registry.New()
	h := hub.NewHub(ctx, zap.NewNop(), func(code string, memberIDs []string) {
		reg.DetachAll(memberIDs)
	})
	srv := httptest.NewServer(Handler(h, reg, testConfig(), zap.NewNop()))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, srv.URL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	c := &client{t: t, conn: conn}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "done") })
	return c
}

func (c *client) send(cm types.ClientMessage) {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	payload, err := json.Marshal(cm)
	if err != nil {
		c.t.Fatalf("marshal: %v", err)
	}
	if err := c.conn.Write(ctx, websocket.MessageText, payload); err != nil {
		c.t.Fatalf("write: %v", err)
	}
}

// next reads exactly one message.
func (c *client) next() envelope {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, data, err := c.conn.Read(ctx)
	if err != nil {
		c.t.Fatalf("read: %v", err)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.t.Fatalf("decode %s: %v", data, err)
	}
	return env
}

// await reads until a message of the given type shows up, skipping
// interleaved traffic.
func (c *client) await(typ string) envelope {
	c.t.Helper()
	for i := 0; i < 16; i++ {
		if env := c.next(); env.Type == typ {
			return env
		}
	}
	c.t.Fatalf("no %q message arrived", typ)
	return envelope{} // unreachable
}

func TestHandler_CreateJoinAndTargetedMessage(t *testing.T) {
	srv := newCoordinator(t)

	host := dial(t, srv)
	host.send(types.ClientMessage{
		Cmd:      types.CmdCreateLobby,
		Seq:      1,
		Identity: &state.Player{ID: "u1", Username: "quizmaster"},
	})
	created := host.await(types.EventAck)
	if !created.OK || len(created.LobbyID) != 6 {
		t.Fatalf("create ack = %+v, want ok with generated 6-char code", created)
	}
	code := created.LobbyID

	guest := dial(t, srv)
	guest.send(types.ClientMessage{
		Cmd:      types.CmdJoinLobby,
		Seq:      2,
		LobbyID:  code,
		Identity: &state.Player{ID: "u2", Username: "challenger"},
	})

	snap := guest.await(types.EventLobbyState)
	if snap.Host == nil || snap.Host.ID != "u1" {
		t.Fatalf("snapshot host = %+v, want u1", snap.Host)
	}
	if len(snap.Members) != 1 || snap.Members[0].ID != "u2" {
		t.Fatalf("snapshot members = %+v, want [u2]", snap.Members)
	}
	joinAck := guest.await(types.EventAck)
	if !joinAck.OK {
		t.Fatalf("join ack = %+v", joinAck)
	}

	joined := host.await(types.EventPlayerJoined)
	if joined.Player == nil || joined.Player.ID != "u2" {
		t.Fatalf("player-joined = %+v, want u2", joined.Player)
	}

	// Targeted message reaches the host only. The follow-up broadcast
	// marker proves nothing else was delivered to the guest in between:
	// per-connection order is preserved, so if the guest had received
	// the score-update it would arrive before the marker.
	guest.send(types.ClientMessage{
		Cmd:     types.CmdLobbyMessage,
		LobbyID: code,
		Type:    "score-update",
		Target:  "host",
		Payload: json.RawMessage(`{"score":10}`),
	})
	guest.send(types.ClientMessage{
		Cmd:     types.CmdLobbyMessage,
		LobbyID: code,
		Type:    "marker",
	})

	scored := host.next()
	if scored.Type != "score-update" {
		t.Fatalf("host: want score-update first, got %+v", scored)
	}
	if string(scored.Payload) != `{"score":10}` {
		t.Fatalf("host: payload = %s", scored.Payload)
	}
	if marker := host.next(); marker.Type != "marker" {
		t.Fatalf("host: want marker next, got %+v", marker)
	}
	if marker := guest.next(); marker.Type != "marker" {
		t.Fatalf("guest: want marker only, got %+v", marker)
	}
}

func TestHandler_JoinUnknownLobby(t *testing.T) {
	srv := newCoordinator(t)

	c := dial(t, srv)
	c.send(types.ClientMessage{Cmd: types.CmdJoinLobby, Seq: 7, LobbyID: "NOPE99"})

	ack := c.await(types.EventAck)
	if ack.OK || ack.Error != types.ErrLobbyNotFound || ack.Seq != 7 {
		t.Fatalf("ack = %+v, want lobby-not-found echoing seq 7", ack)
	}
}

func TestHandler_DuplicateCreateFails(t *testing.T) {
	srv := newCoordinator(t)

	first := dial(t, srv)
	first.send(types.ClientMessage{Cmd: types.CmdCreateLobby, LobbyID: "QUIZ01"})
	if ack := first.await(types.EventAck); !ack.OK {
		t.Fatalf("first create failed: %+v", ack)
	}

	second := dial(t, srv)
	second.send(types.ClientMessage{Cmd: types.CmdCreateLobby, LobbyID: "QUIZ01"})
	ack := second.await(types.EventAck)
	if ack.OK || ack.Error != types.ErrLobbyExists {
		t.Fatalf("duplicate create ack = %+v, want lobby-exists", ack)
	}
}

func TestHandler_DuplicateCreateByHostLeavesLobbyIntact(t *testing.T) {
	srv := newCoordinator(t)

	host := dial(t, srv)
	host.send(types.ClientMessage{Cmd: types.CmdCreateLobby, Seq: 1, LobbyID: "QUIZ09", Identity: &state.Player{ID: "u1"}})
	if ack := host.await(types.EventAck); !ack.OK {
		t.Fatalf("create failed: %+v", ack)
	}

	guest := dial(t, srv)
	guest.send(types.ClientMessage{Cmd: types.CmdJoinLobby, Seq: 2, LobbyID: "QUIZ09", Identity: &state.Player{ID: "u2"}})
	guest.await(types.EventAck)
	host.await(types.EventPlayerJoined)

	// the host retrying its own create (say, after a missed ack) must
	// not tear the lobby down
	host.send(types.ClientMessage{Cmd: types.CmdCreateLobby, Seq: 3, LobbyID: "QUIZ09"})
	ack := host.await(types.EventAck)
	if ack.OK || ack.Error != types.ErrLobbyExists {
		t.Fatalf("duplicate create ack = %+v, want lobby-exists", ack)
	}

	// first host stays authoritative and the guest was never kicked: a
	// broadcast still reaches both, and neither saw a lobby-closed
	guest.send(types.ClientMessage{Cmd: types.CmdLobbyMessage, LobbyID: "QUIZ09", Type: "still-here"})
	if ev := host.next(); ev.Type != "still-here" {
		t.Fatalf("host: got %+v, want still-here", ev)
	}
	if ev := guest.next(); ev.Type != "still-here" {
		t.Fatalf("guest: got %+v, want still-here", ev)
	}
}

func TestHandler_FailedCreateKeepsCurrentMembership(t *testing.T) {
	srv := newCoordinator(t)

	owner := dial(t, srv)
	owner.send(types.ClientMessage{Cmd: types.CmdCreateLobby, LobbyID: "TAKEN1"})
	if ack := owner.await(types.EventAck); !ack.OK {
		t.Fatalf("create TAKEN1 failed: %+v", ack)
	}

	host := dial(t, srv)
	host.send(types.ClientMessage{Cmd: types.CmdCreateLobby, LobbyID: "QUIZ10"})
	if ack := host.await(types.EventAck); !ack.OK {
		t.Fatalf("create QUIZ10 failed: %+v", ack)
	}

	// creating someone else's code fails without side effects
	host.send(types.ClientMessage{Cmd: types.CmdCreateLobby, Seq: 4, LobbyID: "TAKEN1"})
	ack := host.await(types.EventAck)
	if ack.OK || ack.Error != types.ErrLobbyExists {
		t.Fatalf("create of taken code = %+v, want lobby-exists", ack)
	}

	// still host of QUIZ10: a self-broadcast proves membership survived
	// (the lobby drops relays from non-members)
	host.send(types.ClientMessage{Cmd: types.CmdLobbyMessage, LobbyID: "QUIZ10", Type: "ping"})
	if ev := host.next(); ev.Type != "ping" {
		t.Fatalf("host: got %+v, want ping", ev)
	}
}

func TestHandler_RecreateCodeAfterHostDisconnect(t *testing.T) {
	srv := newCoordinator(t)

	host := dial(t, srv)
	host.send(types.ClientMessage{Cmd: types.CmdCreateLobby, LobbyID: "QUIZ11"})
	if ack := host.await(types.EventAck); !ack.OK {
		t.Fatalf("create failed: %+v", ack)
	}

	guest := dial(t, srv)
	guest.send(types.ClientMessage{Cmd: types.CmdJoinLobby, LobbyID: "QUIZ11"})
	guest.await(types.EventAck)

	_ = host.conn.Close(websocket.StatusNormalClosure, "gone")
	guest.await(types.EventLobbyClosed)

	// the removal is queued at the hub before lobby-closed fans out, so
	// reacting to it by re-creating the same code finds it free
	guest.send(types.ClientMessage{Cmd: types.CmdCreateLobby, Seq: 5, LobbyID: "QUIZ11"})
	ack := guest.await(types.EventAck)
	if !ack.OK || ack.LobbyID != "QUIZ11" {
		t.Fatalf("re-create after close = %+v, want ok", ack)
	}
}

func TestHandler_HostDisconnectClosesLobby(t *testing.T) {
	srv := newCoordinator(t)

	host := dial(t, srv)
	host.send(types.ClientMessage{Cmd: types.CmdCreateLobby, LobbyID: "QUIZ02"})
	if ack := host.await(types.EventAck); !ack.OK {
		t.Fatalf("create failed: %+v", ack)
	}

	guest := dial(t, srv)
	guest.send(types.ClientMessage{Cmd: types.CmdJoinLobby, LobbyID: "QUIZ02"})
	guest.await(types.EventAck)

	_ = host.conn.Close(websocket.StatusNormalClosure, "gone")

	closed := guest.await(types.EventLobbyClosed)
	if closed.LobbyID != "QUIZ02" {
		t.Fatalf("lobby-closed = %+v", closed)
	}

	// once closed, the code resolves to nothing
	guest.send(types.ClientMessage{Cmd: types.CmdJoinLobby, Seq: 3, LobbyID: "QUIZ02"})
	ack := guest.await(types.EventAck)
	if ack.OK || ack.Error != types.ErrLobbyNotFound {
		t.Fatalf("join after close = %+v, want lobby-not-found", ack)
	}
}

func TestHandler_GuestDisconnectKeepsLobbyOpen(t *testing.T) {
	srv := newCoordinator(t)

	host := dial(t, srv)
	host.send(types.ClientMessage{Cmd: types.CmdCreateLobby, LobbyID: "QUIZ03"})
	host.await(types.EventAck)

	guest := dial(t, srv)
	guest.send(types.ClientMessage{Cmd: types.CmdJoinLobby, LobbyID: "QUIZ03", Identity: &state.Player{ID: "u2"}})
	guest.await(types.EventAck)
	host.await(types.EventPlayerJoined)

	stayer := dial(t, srv)
	stayer.send(types.ClientMessage{Cmd: types.CmdJoinLobby, LobbyID: "QUIZ03", Identity: &state.Player{ID: "u3"}})
	stayer.await(types.EventAck)
	host.await(types.EventPlayerJoined)

	_ = guest.conn.Close(websocket.StatusNormalClosure, "gone")
	left := host.await(types.EventPlayerLeft)
	if left.PlayerID == "" {
		t.Fatalf("player-left = %+v", left)
	}

	// broadcast still reaches host and the remaining member
	stayer.send(types.ClientMessage{Cmd: types.CmdLobbyMessage, LobbyID: "QUIZ03", Type: "round-start"})
	if ev := host.await("round-start"); ev.LobbyID != "QUIZ03" {
		t.Fatalf("host: %+v", ev)
	}
	if ev := stayer.await("round-start"); ev.LobbyID != "QUIZ03" {
		t.Fatalf("stayer: %+v", ev)
	}
}

func TestHandler_BadJSONKeepsConnectionUsable(t *testing.T) {
	srv := newCoordinator(t)

	c := dial(t, srv)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.conn.Write(ctx, websocket.MessageText, []byte("{nope")); err != nil {
		t.Fatalf("write: %v", err)
	}

	ack := c.await(types.EventAck)
	if ack.OK || ack.Error != types.ErrBadJSON {
		t.Fatalf("ack = %+v, want bad-json", ack)
	}

	c.send(types.ClientMessage{Cmd: types.CmdCreateLobby})
	if ack := c.await(types.EventAck); !ack.OK {
		t.Fatalf("create after bad json failed: %+v", ack)
	}
}
