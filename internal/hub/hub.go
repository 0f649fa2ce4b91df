package hub

import (
	"context"
	"errors"

	"github.com/PixelOverkilll/last-man-standing-sub000/internal/lobby"
	"github.com/PixelOverkilll/last-man-standing-sub000/internal/metrics"
	"github.com/PixelOverkilll/last-man-standing-sub000/internal/state"
	"go.uber.org/zap"
)

var ErrLobbyExists = errors.New("lobby already exists")
var ErrLobbyNotFound = errors.New("lobby not found")

type HubMsg interface{ isHubMsg() }

// Create opens a lobby with Host as its first member. Code is optional:
// empty means generate one, retrying on collision; a requested code that
// is already open fails with ErrLobbyExists. Allocation and insertion
// happen inside the hub loop, so two racing creates for the same code
// serialize and exactly one wins.
type Create struct {
	Code   string
	Host   state.Player
	Outbox chan []byte
	Reply  chan CreateResult
}

type CreateResult struct {
	Code  string
	Lobby *lobby.Lobby
	Err   error
}

type Get struct {
	Code  string
	Reply chan *lobby.Lobby
}

// Remove is idempotent; removing an absent code is a no-op.
type Remove struct {
	Code string
}

type ShutdownHub struct{}

func (Create) isHubMsg()      {}
func (Get) isHubMsg()         {}
func (Remove) isHubMsg()      {}
func (ShutdownHub) isHubMsg() {}

type Hub struct {
	inbox    chan HubMsg
	lobbies  map[string]*lobby.Lobby
	onClosed func(code string, memberIDs []string)
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewHub starts the lobby store actor. onClosed (optional) runs whenever
// a lobby closes, with the member connection ids that were still
// attached; the registry uses it to detach their lobby references.
func NewHub(parent context.Context, log *zap.Logger, onClosed func(code string, memberIDs []string)) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		lobbies:  make(map[string]*lobby.Lobby),
		onClosed: onClosed,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case Create:
				msg.Reply <- h.create(msg)

			case Get:
				msg.Reply <- h.lobbies[msg.Code] // May be nil

			case Remove:
				if _, ok := h.lobbies[msg.Code]; ok {
					delete(h.lobbies, msg.Code)
					metrics.LobbiesOpen.Dec()
				}

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) create(msg Create) CreateResult {
	code := msg.Code
	if code != "" {
		if _, taken := h.lobbies[code]; taken {
			return CreateResult{Err: ErrLobbyExists}
		}
	} else {
		// Generated codes retry until free; the code space dwarfs any
		// realistic number of open lobbies.
		for {
			c, err := GenerateCode()
			if err != nil {
				return CreateResult{Err: err}
			}
			if _, taken := h.lobbies[c]; !taken {
				code = c
				break
			}
			h.log.Warn("lobby code collision, regenerating", zap.String("code", c))
		}
	}

	lb := lobby.NewLobby(h.ctx, code, msg.Host, msg.Outbox, h.closerFor(code), h.log)
	h.lobbies[code] = lb
	metrics.LobbiesOpen.Inc()
	h.log.Info("lobby created", zap.String("code", code), zap.String("host", msg.Host.ConnID))
	return CreateResult{Code: code, Lobby: lb}
}

// closerFor hands the lobby its cleanup hook. It runs on the lobby
// goroutine, so the removal goes through the inbox rather than touching
// the map directly; if the hub is already gone the removal is moot.
func (h *Hub) closerFor(code string) func(memberIDs []string) {
	return func(memberIDs []string) {
		select {
		case h.inbox <- Remove{Code: code}:
		case <-h.ctx.Done():
		}
		if h.onClosed != nil {
			h.onClosed(code, memberIDs)
		}
	}
}

// shutdown cancels the hub context, which propagates to every lobby
// actor; each closes itself and broadcasts lobby-closed on the way out.
func (h *Hub) shutdown() {
	h.cancel()
	metrics.LobbiesOpen.Sub(float64(len(h.lobbies)))
	clear(h.lobbies)
}
