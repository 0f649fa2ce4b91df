package state

import "errors"

var ErrAlreadyMember = errors.New("connection already in lobby")
var ErrNotMember = errors.New("connection not in lobby")
var ErrUnsupportedCommand = errors.New("unsupported command")

// Player is the identity a client submits when it creates or joins a
// lobby. The coordinator treats everything but ConnID as opaque; it is
// whatever the identity provider handed the client.
type Player struct {
	ID       string `json:"id,omitempty"`
	Username string `json:"username,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
	ConnID   string `json:"connection_id"`
}

// State is one lobby's authoritative record. A lobby exists iff it has a
// host; HostID == "" means the lobby is closed. Members always includes
// the host.
type State struct {
	Code    string
	HostID  string
	Members map[string]Player
}

type CommandType string

const (
	CmdJoin  CommandType = "Join"
	CmdLeave CommandType = "Leave"
	CmdClose CommandType = "Close"
)

type Command struct {
	Type   CommandType
	Player Player // CmdJoin
	ConnID string // CmdLeave
}

type EventType string

const (
	EvtPlayerJoined EventType = "PlayerJoined"
	EvtPlayerLeft   EventType = "PlayerLeft"
	EvtLobbyClosed  EventType = "LobbyClosed"
)

type Event struct {
	Type   EventType
	Player Player
}

// Apply runs one membership command against s and returns the events to
// fan out plus the new state. s itself is never mutated.
func Apply(s State, cmd Command) ([]Event, State, error) {
	if s.HostID == "" {
		return nil, s, ErrNotMember
	}

	switch cmd.Type {
	case CmdJoin:
		if _, ok := s.Members[cmd.Player.ConnID]; ok {
			return nil, s, ErrAlreadyMember
		}

		newState := s
		newState.Members = cloneMembers(s.Members)
		newState.Members[cmd.Player.ConnID] = cmd.Player

		events := []Event{
			{Type: EvtPlayerJoined, Player: cmd.Player},
		}
		return events, newState, nil

	case CmdLeave:
		p, ok := s.Members[cmd.ConnID]
		if !ok {
			return nil, s, ErrNotMember
		}

		// The host leaving closes the whole lobby.
		if cmd.ConnID == s.HostID {
			return []Event{{Type: EvtLobbyClosed}}, closed(s), nil
		}

		newState := s
		newState.Members = cloneMembers(s.Members)
		delete(newState.Members, cmd.ConnID)

		events := []Event{
			{Type: EvtPlayerLeft, Player: p},
		}
		return events, newState, nil

	case CmdClose:
		return []Event{{Type: EvtLobbyClosed}}, closed(s), nil

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

func closed(s State) State {
	s.HostID = ""
	s.Members = map[string]Player{}
	return s
}
