package directory

import (
	"encoding/json"
	"fmt"
	"strings"

	"archean-status-relay/internal/parse"
)

// ApiResponse models the body of GET /servers.
type ApiResponse struct {
	Servers *[]ApiServer `json:"servers"`
}

// ApiServer is one raw directory record. Pointer fields distinguish a missing
// field from a zero value.
type ApiServer struct {
	ID         *int64          `json:"id"`
	Name       *string         `json:"name"`
	Host       *string         `json:"host"`
	Port       *int            `json:"port"`
	Branch     string          `json:"branch"`
	Players    *int            `json:"nb_players"`
	MaxPlayers *int            `json:"max_players"`
	Mode       *int            `json:"mode"`
	Password   *int            `json:"pswd"`
	Version    json.RawMessage `json:"version"`
}

// toSnapshot validates the record and maps it to a ServerSnapshot.
func (r ApiServer) toSnapshot() (ServerSnapshot, error) {
	var missing []string
	if r.ID == nil {
		missing = append(missing, "id")
	}
	if r.Name == nil {
		missing = append(missing, "name")
	}
	if r.Host == nil {
		missing = append(missing, "host")
	}
	if r.Port == nil {
		missing = append(missing, "port")
	}
	if r.Players == nil {
		missing = append(missing, "nb_players")
	}
	if r.MaxPlayers == nil {
		missing = append(missing, "max_players")
	}
	if r.Mode == nil {
		missing = append(missing, "mode")
	}
	if r.Password == nil {
		missing = append(missing, "pswd")
	}
	if len(r.Version) == 0 || string(r.Version) == "null" {
		missing = append(missing, "version")
	}
	if len(missing) > 0 {
		return ServerSnapshot{}, fmt.Errorf("%w: missing fields %s", ErrInvalidSchema, strings.Join(missing, ", "))
	}

	mode := Gamemode(*r.Mode)
	if !mode.valid() {
		return ServerSnapshot{}, fmt.Errorf("%w: unknown mode %d", ErrInvalidSchema, *r.Mode)
	}
	pswd := PasswordProtected(*r.Password)
	if !pswd.valid() {
		return ServerSnapshot{}, fmt.Errorf("%w: unknown pswd %d", ErrInvalidSchema, *r.Password)
	}
	if *r.Players < 0 || *r.MaxPlayers < 0 || *r.Players > *r.MaxPlayers {
		return ServerSnapshot{}, fmt.Errorf("%w: player count %d/%d out of range", ErrInvalidSchema, *r.Players, *r.MaxPlayers)
	}

	version, err := decodeVersion(r.Version)
	if err != nil {
		return ServerSnapshot{}, err
	}

	return ServerSnapshot{
		ID:         *r.ID,
		Name:       *r.Name,
		Address:    parse.Address{Host: *r.Host, Port: *r.Port},
		Branch:     r.Branch,
		Gamemode:   mode,
		Players:    *r.Players,
		MaxPlayers: *r.MaxPlayers,
		Password:   pswd,
		Version:    version,
	}, nil
}

// decodeVersion accepts the version either as a JSON string or a JSON number.
func decodeVersion(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("%w: version %s is neither a string nor a number", ErrInvalidSchema, string(raw))
}
