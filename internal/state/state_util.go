package state

import "slices"

func NewState(code string, host Player) State {
	return State{
		Code:    code,
		HostID:  host.ConnID,
		Members: map[string]Player{host.ConnID: host},
	}
}

func cloneMembers(m map[string]Player) map[string]Player {
	out := make(map[string]Player, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Host returns the member currently holding host authority.
func Host(s State) (Player, bool) {
	p, ok := s.Members[s.HostID]
	return p, ok
}

// Guests returns every member except the host, ordered by connection id
// so snapshots are stable.
func Guests(s State) []Player {
	out := make([]Player, 0, len(s.Members))
	for id, p := range s.Members {
		if id == s.HostID {
			continue
		}
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b Player) int {
		if a.ConnID < b.ConnID {
			return -1
		} else if a.ConnID > b.ConnID {
			return 1
		}
		return 0
	})
	return out
}

// MemberIDs returns every member connection id, host included.
func MemberIDs(s State) []string {
	out := make([]string, 0, len(s.Members))
	for id := range s.Members {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}
