// Package transition derives join, leave, online and offline events from two
// consecutive observations of a server.
package transition

import (
	"fmt"

	"archean-status-relay/internal/directory"
)

// Kind identifies a transition event.
type Kind int

const (
	WentOnline Kind = iota + 1
	WentOffline
	PlayerJoined
	PlayerLeft
)

func (k Kind) String() string {
	switch k {
	case WentOnline:
		return "went_online"
	case WentOffline:
		return "went_offline"
	case PlayerJoined:
		return "player_joined"
	case PlayerLeft:
		return "player_left"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Event is one semantic change between two observations.
// For PlayerJoined and PlayerLeft, Index is the player count right after that
// single join or leave, which is also the running Total. Snapshot is set for
// WentOnline and holds the current observation.
type Event struct {
	Kind     Kind
	Index    int
	Total    int
	Max      int
	Snapshot *directory.ServerSnapshot
}

// Diff returns the ordered events that lead from prev to cur. A nil snapshot means
// the server is absent. The result depends on the two arguments only.
func Diff(prev, cur *directory.ServerSnapshot) []Event {
	switch {
	case prev == nil && cur == nil:
		return nil
	case prev == nil:
		return []Event{{Kind: WentOnline, Total: cur.Players, Max: cur.MaxPlayers, Snapshot: cur}}
	case cur == nil:
		return []Event{{Kind: WentOffline}}
	}

	delta := cur.Players - prev.Players
	if delta == 0 {
		return nil
	}

	var events []Event
	if delta > 0 {
		events = make([]Event, 0, delta)
		for n := prev.Players + 1; n <= cur.Players; n++ {
			events = append(events, Event{Kind: PlayerJoined, Index: n, Total: n, Max: cur.MaxPlayers})
		}
		return events
	}

	events = make([]Event, 0, -delta)
	for n := prev.Players - 1; n >= cur.Players; n-- {
		events = append(events, Event{Kind: PlayerLeft, Index: n, Total: n, Max: cur.MaxPlayers})
	}
	return events
}
