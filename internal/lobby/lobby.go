package lobby

import (
	"context"
	"encoding/json"

	"github.com/PixelOverkilll/last-man-standing-sub000/internal/metrics"
	"github.com/PixelOverkilll/last-man-standing-sub000/internal/state"
	"github.com/PixelOverkilll/last-man-standing-sub000/internal/types"
	"go.uber.org/zap"
)

// TargetHost routes a lobby-message to the host connection only.
const TargetHost = "host"

type Msg interface{ isLobbyMsg() }

type Join struct {
	Player state.Player
	Outbox chan []byte // where this member receives events
	Reply  chan error
}

func (Join) isLobbyMsg() {}

// Leave removes a member. Reply is nil on the disconnect path, where
// nobody is waiting for the result.
type Leave struct {
	ConnID string
	Reply  chan error
}

func (Leave) isLobbyMsg() {}

// Relay routes an application payload inside the lobby: Target "" fans
// out to every member including the sender, TargetHost reaches the host
// only, anything else names a single member connection.
type Relay struct {
	From    string
	Kind    string
	Target  string
	Payload json.RawMessage
}

func (Relay) isLobbyMsg() {}

type Shutdown struct{}

func (Shutdown) isLobbyMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isLobbyMsg() {}

// View reflects internal state without data races; test-only.
type View struct {
	Code    string
	HostID  string
	Members []string
}

type Lobby struct {
	code    string
	inbox   chan Msg
	st      state.State
	outs    map[string]chan []byte
	onClose func(memberIDs []string)
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewLobby starts the lobby actor with host as its first member. onClose
// runs exactly once, after the close fan-out, with every member id that
// was still attached.
func NewLobby(parent context.Context, code string, host state.Player, hostOut chan []byte, onClose func(memberIDs []string), log *zap.Logger) *Lobby {
	ctx, cancel := context.WithCancel(parent)

	l := &Lobby{
		code:    code,
		inbox:   make(chan Msg, 64),
		st:      state.NewState(code, host),
		outs:    map[string]chan []byte{host.ConnID: hostOut},
		onClose: onClose,
		log:     log.With(zap.String("lobby", code)),
		ctx:     ctx,
		cancel:  cancel,
	}

	go l.loop()
	return l
}

func (l *Lobby) loop() {
	for {
		select {
		case <-l.ctx.Done():
			l.close()
			return

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Join:
				l.handleJoin(msg)

			case Leave:
				if l.handleLeave(msg) {
					return
				}

			case Relay:
				l.handleRelay(msg)

			case GetState:
				msg.Reply <- View{
					Code:    l.code,
					HostID:  l.st.HostID,
					Members: state.MemberIDs(l.st),
				}

			case Shutdown:
				l.close()
				return
			}
		}
	}
}

func (l *Lobby) handleJoin(msg Join) {
	if _, ok := l.st.Members[msg.Player.ConnID]; ok {
		// Duplicate join from the same connection: refresh its outbox,
		// resend the snapshot, tell nobody else.
		l.outs[msg.Player.ConnID] = msg.Outbox
		l.send(msg.Player.ConnID, l.snapshot())
		if msg.Reply != nil {
			msg.Reply <- nil
		}
		return
	}

	events, newState, err := state.Apply(l.st, state.Command{Type: state.CmdJoin, Player: msg.Player})
	if err != nil {
		if msg.Reply != nil {
			msg.Reply <- err
		}
		return
	}

	l.st = newState
	l.outs[msg.Player.ConnID] = msg.Outbox
	l.send(msg.Player.ConnID, l.snapshot())
	l.fanout(events, msg.Player.ConnID)
	if msg.Reply != nil {
		msg.Reply <- nil
	}
}

// handleLeave reports whether the lobby closed (host departure).
func (l *Lobby) handleLeave(msg Leave) bool {
	events, newState, err := state.Apply(l.st, state.Command{Type: state.CmdLeave, ConnID: msg.ConnID})
	if err != nil {
		// Leaving a lobby you are not in is a no-op.
		if msg.Reply != nil {
			msg.Reply <- nil
		}
		return false
	}

	l.st = newState
	delete(l.outs, msg.ConnID)
	if msg.Reply != nil {
		msg.Reply <- nil
	}

	if state.ContainsEvent(events, state.EvtLobbyClosed) {
		l.close()
		return true
	}

	l.fanout(events, msg.ConnID)
	return false
}

func (l *Lobby) handleRelay(msg Relay) {
	if _, ok := l.st.Members[msg.From]; !ok {
		return
	}

	payload, _ := json.Marshal(types.ServerMessage{
		Type:    msg.Kind,
		LobbyID: l.code,
		From:    msg.From,
		Payload: msg.Payload,
	})

	switch msg.Target {
	case "":
		for id := range l.outs {
			l.send(id, payload)
		}
		metrics.MessagesRouted.WithLabelValues("broadcast").Inc()

	case TargetHost:
		l.send(l.st.HostID, payload)
		metrics.MessagesRouted.WithLabelValues("host").Inc()

	default:
		// A departed target is not an error; the message just vanishes.
		if _, ok := l.outs[msg.Target]; ok {
			l.send(msg.Target, payload)
			metrics.MessagesRouted.WithLabelValues("direct").Inc()
		}
	}
}

func (l *Lobby) snapshot() []byte {
	sm := types.ServerMessage{
		Type:    types.EventLobbyState,
		LobbyID: l.code,
		Members: state.Guests(l.st),
	}
	if h, ok := state.Host(l.st); ok {
		sm.Host = &h
	}
	payload, _ := json.Marshal(sm)
	return payload
}

func (l *Lobby) fanout(events []state.Event, except string) {
	for _, e := range events {
		var sm types.ServerMessage
		switch e.Type {
		case state.EvtPlayerJoined:
			p := e.Player
			sm = types.ServerMessage{Type: types.EventPlayerJoined, LobbyID: l.code, Player: &p}
		case state.EvtPlayerLeft:
			sm = types.ServerMessage{Type: types.EventPlayerLeft, LobbyID: l.code, PlayerID: e.Player.ConnID}
		default:
			continue
		}

		payload, _ := json.Marshal(sm)
		for id := range l.outs {
			if id == except {
				continue
			}
			l.send(id, payload)
		}
	}
}

// send never blocks: a full outbox drops the event, not the member.
func (l *Lobby) send(connID string, payload []byte) {
	ch, ok := l.outs[connID]
	if !ok {
		return
	}
	select {
	case ch <- payload:
	default:
		metrics.SendsDropped.Inc()
		l.log.Warn("outbox full, event dropped", zap.String("conn", connID))
	}
}

// close broadcasts lobby-closed to everyone still attached, detaches
// them, and stops the actor. Safe to reach twice; the second trigger
// finds nothing attached. Member outboxes are never closed here: the
// connection owns its outbox and may reuse it for another lobby.
func (l *Lobby) close() {
	ids := make([]string, 0, len(l.outs))
	for id := range l.outs {
		ids = append(ids, id)
	}

	// Queue the hub removal before the fan-out: a member that reacts to
	// lobby-closed by re-creating the same code must find it free.
	if l.onClose != nil {
		l.onClose(ids)
	}

	payload, _ := json.Marshal(types.ServerMessage{Type: types.EventLobbyClosed, LobbyID: l.code})
	for id := range l.outs {
		l.send(id, payload)
		delete(l.outs, id)
	}

	l.cancel()
	l.log.Info("lobby closed", zap.Int("members", len(ids)))
}

// Send delivers m to the actor, or reports false if the lobby already
// shut down. Callers waiting on a Reply should also select on Done.
func (l *Lobby) Send(m Msg) bool {
	select {
	case l.inbox <- m:
		return true
	case <-l.ctx.Done():
		return false
	}
}

// Expose the inbox so tests can send messages directly.
func (l *Lobby) Inbox() chan<- Msg { return l.inbox }

func (l *Lobby) Done() <-chan struct{} { return l.ctx.Done() }

func (l *Lobby) Code() string { return l.code }
