package types

import (
	"encoding/json"

	"github.com/PixelOverkilll/last-man-standing-sub000/internal/state"
)

// Client -> Server
// create-lobby:
//   lobby_id: optional requested code (generated when absent)
//   identity: { id, username, avatar }
//
// join-lobby:
//   lobby_id: string
//   identity: { id, username, avatar }
//
// leave-lobby:
//   lobby_id: string
//
// lobby-message:
//   lobby_id: string
//   type: application-defined event name (e.g. "score-update")
//   target: "" (everyone) | "host" | a member connection id
//   payload: opaque JSON
//
// Every command may carry a client-chosen seq; the ack echoes it.

type ClientMessage struct {
	Cmd      string          `json:"cmd"`
	Seq      int             `json:"seq,omitempty"`
	LobbyID  string          `json:"lobby_id,omitempty"`
	Identity *state.Player   `json:"identity,omitempty"`
	Type     string          `json:"type,omitempty"`
	Target   string          `json:"target,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// Ack is the synchronous result of one command.
type Ack struct {
	Type    string `json:"type"` // always "ack"
	Seq     int    `json:"seq,omitempty"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	LobbyID string `json:"lobby_id,omitempty"`
}

// ServerMessage is an unsolicited event pushed to a member:
// "lobby-state" | "player-joined" | "player-left" | "lobby-closed",
// or a relayed lobby-message delivered under its application type with
// From set to the sending connection.
type ServerMessage struct {
	Type     string          `json:"type"`
	LobbyID  string          `json:"lobby_id,omitempty"`
	Host     *state.Player   `json:"host,omitempty"`
	Members  []state.Player  `json:"members,omitempty"`
	Player   *state.Player   `json:"player,omitempty"`
	PlayerID string          `json:"player_id,omitempty"`
	From     string          `json:"from,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

const (
	CmdCreateLobby  = "create-lobby"
	CmdJoinLobby    = "join-lobby"
	CmdLeaveLobby   = "leave-lobby"
	CmdLobbyMessage = "lobby-message"
)

// Wire error strings, one per failure in the command table.
const (
	ErrBadJSON        = "bad-json"
	ErrUnknownCommand = "unknown-command"
	ErrLobbyExists    = "lobby-exists"
	ErrLobbyNotFound  = "lobby-not-found"
	ErrInternal       = "internal-error"
)

const (
	EventAck          = "ack"
	EventLobbyState   = "lobby-state"
	EventPlayerJoined = "player-joined"
	EventPlayerLeft   = "player-left"
	EventLobbyClosed  = "lobby-closed"
)
