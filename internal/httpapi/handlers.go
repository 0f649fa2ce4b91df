package httpapi

import (
	"net/http"

	"github.com/PixelOverkilll/last-man-standing-sub000/internal/hub"
	"github.com/PixelOverkilll/last-man-standing-sub000/internal/lobby"
	"github.com/go-chi/chi/v5"
)

// LobbyStatus reports whether a lobby code is currently open, so the UI
// can validate a typed code before dialing the websocket. 204 when open,
// 404 otherwise.
func LobbyStatus(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")

		reply := make(chan *lobby.Lobby, 1)
		h.Inbox() <- hub.Get{Code: code, Reply: reply}
		if <-reply == nil {
			http.Error(w, "lobby not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
