package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/PixelOverkilll/last-man-standing-sub000/internal/config"
	"github.com/PixelOverkilll/last-man-standing-sub000/internal/hub"
	"github.com/PixelOverkilll/last-man-standing-sub000/internal/lobby"
	"github.com/PixelOverkilll/last-man-standing-sub000/internal/metrics"
	"github.com/PixelOverkilll/last-man-standing-sub000/internal/registry"
	"github.com/PixelOverkilll/last-man-standing-sub000/internal/state"
	"github.com/PixelOverkilll/last-man-standing-sub000/internal/types"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handler runs one session per websocket connection: a reader loop that
// dispatches commands and a writer goroutine that drains the outbox.
// All server-to-client traffic (acks and lobby events) goes through the
// single outbox so ordering per connection is preserved.
func Handler(h *hub.Hub, reg *registry.Registry, cfg config.Config, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: cfg.AllowedOrigins,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")
		conn.SetReadLimit(cfg.ReadLimit)

		s := &session{
			connID: uuid.NewString(),
			conn:   conn,
			outbox: make(chan []byte, cfg.OutboxSize),
			hub:    h,
			reg:    reg,
			cfg:    cfg,
		}
		s.log = log.With(zap.String("conn", s.connID))

		reg.Add(s.connID)
		metrics.ConnectionsActive.Inc()
		defer func() {
			s.disconnect()
			reg.Remove(s.connID)
			metrics.ConnectionsActive.Dec()
		}()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		go s.writePump(ctx)

		s.log.Debug("connection open")
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				// Clean close and going-away are normal; everything else
				// still just ends the session, cleanup runs in the defers.
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				s.ack(types.Ack{Error: types.ErrBadJSON})
				continue
			}
			s.dispatch(cm)
		}
	}
}

type session struct {
	connID    string
	conn      *websocket.Conn
	outbox    chan []byte
	hub       *hub.Hub
	reg       *registry.Registry
	cfg       config.Config
	log       *zap.Logger
	lobbyCode string
	lb        *lobby.Lobby
}

func (s *session) dispatch(cm types.ClientMessage) {
	switch cm.Cmd {
	case types.CmdCreateLobby:
		s.createLobby(cm)
	case types.CmdJoinLobby:
		s.joinLobby(cm)
	case types.CmdLeaveLobby:
		s.leaveLobby(cm)
	case types.CmdLobbyMessage:
		s.lobbyMessage(cm)
	default:
		s.ack(types.Ack{Seq: cm.Seq, Error: types.ErrUnknownCommand})
	}
}

func (s *session) createLobby(cm types.ClientMessage) {
	host := s.identity(cm)

	reply := make(chan hub.CreateResult, 1)
	s.hub.Inbox() <- hub.Create{Code: cm.LobbyID, Host: host, Outbox: s.outbox, Reply: reply}
	res := <-reply
	if res.Err != nil {
		// A rejected create has no side effects: in particular, a host
		// retrying its own code after a missed ack hits lobby-exists
		// here and its lobby survives untouched.
		wire := types.ErrInternal
		if errors.Is(res.Err, hub.ErrLobbyExists) {
			wire = types.ErrLobbyExists
		}
		s.ack(types.Ack{Seq: cm.Seq, Error: wire})
		return
	}

	// The new lobby is secured; only now drop the previous one. A
	// connection holds at most one lobby reference.
	s.leaveCurrent()

	s.lb, s.lobbyCode = res.Lobby, res.Code
	s.reg.SetLobby(s.connID, res.Code)
	s.ack(types.Ack{Seq: cm.Seq, OK: true, LobbyID: res.Code})
}

func (s *session) joinLobby(cm types.ClientMessage) {
	lb := s.getLobby(cm.LobbyID)
	if lb == nil {
		s.ack(types.Ack{Seq: cm.Seq, Error: types.ErrLobbyNotFound})
		return
	}

	p := s.identity(cm)

	reply := make(chan error, 1)
	if !lb.Send(lobby.Join{Player: p, Outbox: s.outbox, Reply: reply}) {
		s.ack(types.Ack{Seq: cm.Seq, Error: types.ErrLobbyNotFound})
		return
	}
	if err := awaitReply(reply, lb); err != nil {
		s.ack(types.Ack{Seq: cm.Seq, Error: types.ErrLobbyNotFound})
		return
	}

	// Joined the new lobby; only now drop the previous one, so a
	// rejected join leaves the current membership untouched.
	if s.lobbyCode != "" && s.lobbyCode != cm.LobbyID {
		s.leaveCurrent()
	}

	s.lb, s.lobbyCode = lb, cm.LobbyID
	s.reg.SetLobby(s.connID, cm.LobbyID)
	s.ack(types.Ack{Seq: cm.Seq, OK: true, LobbyID: cm.LobbyID})
}

func (s *session) leaveLobby(cm types.ClientMessage) {
	if cm.LobbyID == s.lobbyCode {
		s.clearLobby()
	}

	lb := s.getLobby(cm.LobbyID)
	if lb == nil {
		s.ack(types.Ack{Seq: cm.Seq, Error: types.ErrLobbyNotFound})
		return
	}

	reply := make(chan error, 1)
	if !lb.Send(lobby.Leave{ConnID: s.connID, Reply: reply}) {
		s.ack(types.Ack{Seq: cm.Seq, Error: types.ErrLobbyNotFound})
		return
	}
	_ = awaitReply(reply, lb) // leave never fails once the lobby resolved

	s.ack(types.Ack{Seq: cm.Seq, OK: true, LobbyID: cm.LobbyID})
}

// lobbyMessage is fire-and-forget: an unknown lobby, a dead lobby, or a
// departed target all just drop the message.
func (s *session) lobbyMessage(cm types.ClientMessage) {
	lb := s.getLobby(cm.LobbyID)
	if lb == nil {
		return
	}
	lb.Send(lobby.Relay{From: s.connID, Kind: cm.Type, Target: cm.Target, Payload: cm.Payload})
}

// identity merges the identity carried by this command (if any) over the
// one already on record and stamps it with our connection id.
func (s *session) identity(cm types.ClientMessage) state.Player {
	p, _ := s.reg.Identity(s.connID)
	if cm.Identity != nil {
		p = *cm.Identity
	}
	p.ConnID = s.connID
	s.reg.SetIdentity(s.connID, p)
	return p
}

// getLobby always resolves through the hub: the local reference can go
// stale when a lobby closes underneath us and its code gets reused.
func (s *session) getLobby(code string) *lobby.Lobby {
	if code == "" {
		return nil
	}
	reply := make(chan *lobby.Lobby, 1)
	s.hub.Inbox() <- hub.Get{Code: code, Reply: reply}
	return <-reply
}

// leaveCurrent detaches from the current lobby without acking; used for
// the implicit leave before create/join of another lobby.
func (s *session) leaveCurrent() {
	if s.lb == nil {
		return
	}
	reply := make(chan error, 1)
	if s.lb.Send(lobby.Leave{ConnID: s.connID, Reply: reply}) {
		_ = awaitReply(reply, s.lb)
	}
	s.clearLobby()
}

func (s *session) clearLobby() {
	s.lb = nil
	s.lobbyCode = ""
	s.reg.Detach(s.connID)
}

// disconnect runs once on transport close. The lobby treats a Leave from
// the host as closure, so host disconnects tear the lobby down here.
func (s *session) disconnect() {
	if s.lb != nil {
		s.lb.Send(lobby.Leave{ConnID: s.connID})
	}
	s.log.Debug("connection closed")
}

func (s *session) ack(a types.Ack) {
	a.Type = types.EventAck
	payload, _ := json.Marshal(a)
	select {
	case s.outbox <- payload:
	default:
		metrics.SendsDropped.Inc()
		s.log.Warn("outbox full, ack dropped")
	}
}

func (s *session) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-s.outbox:
			wctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
			_ = s.conn.Write(wctx, websocket.MessageText, payload)
			cancel()
		}
	}
}

// awaitReply waits for the lobby's answer, falling back to not-found if
// the lobby shuts down before replying.
func awaitReply(reply chan error, lb *lobby.Lobby) error {
	select {
	case err := <-reply:
		return err
	case <-lb.Done():
		select {
		case err := <-reply:
			return err
		default:
			return hub.ErrLobbyNotFound
		}
	}
}
