package directory

import (
	"fmt"

	"archean-status-relay/internal/parse"
)

// Gamemode is the game mode a listed server runs.
type Gamemode int

const (
	GamemodeCreative  Gamemode = 0
	GamemodeAdventure Gamemode = 1
	GamemodeSurvival  Gamemode = 2
)

func (g Gamemode) String() string {
	switch g {
	case GamemodeCreative:
		return "Creative"
	case GamemodeAdventure:
		return "Adventure"
	case GamemodeSurvival:
		return "Survival"
	}
	return fmt.Sprintf("Gamemode(%d)", int(g))
}

func (g Gamemode) valid() bool {
	return g >= GamemodeCreative && g <= GamemodeSurvival
}

// PasswordProtected reports whether joining a server requires a password.
type PasswordProtected int

const (
	Unprotected PasswordProtected = 0
	Protected   PasswordProtected = 1
)

func (p PasswordProtected) String() string {
	switch p {
	case Unprotected:
		return "Unprotected"
	case Protected:
		return "Protected"
	}
	return fmt.Sprintf("PasswordProtected(%d)", int(p))
}

func (p PasswordProtected) valid() bool {
	return p == Unprotected || p == Protected
}

// ServerSnapshot is the observed state of one listed server at the time of a fetch.
// Snapshots are built once per fetch and never modified afterwards.
type ServerSnapshot struct {
	ID         int64
	Name       string
	Address    parse.Address
	Branch     string
	Gamemode   Gamemode
	Players    int
	MaxPlayers int
	Password   PasswordProtected
	Version    string
}

// FilterByGamemode returns the snapshots running the given game mode.
func FilterByGamemode(servers []ServerSnapshot, mode Gamemode) []ServerSnapshot {
	var out []ServerSnapshot
	for _, s := range servers {
		if s.Gamemode == mode {
			out = append(out, s)
		}
	}
	return out
}

// FilterByPassword returns the snapshots with the given password protection.
func FilterByPassword(servers []ServerSnapshot, p PasswordProtected) []ServerSnapshot {
	var out []ServerSnapshot
	for _, s := range servers {
		if s.Password == p {
			out = append(out, s)
		}
	}
	return out
}
