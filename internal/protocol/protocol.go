// Package protocol defines the HTTP contract shared by game clients, game
// servers, the matchmaker and the sessions service.
//
// Matchmaking:
//
//	POST {matchmaker}/game        body {}  -> 201 queued game | 200 matched game
//	GET  {matchmaker}/game/{id}            -> 200 game | 404
//
// Sessions:
//
//	POST {sessions}/register      body {id, port}
//	POST {sessions}/session                -> 201 {id}
//	GET  {sessions}/session/{id}           -> 200 {id, ip, port} | 404
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// GameStatus is the matchmaking state of a Game. Any value other than
// GameStatusQueued means the game has been matched to a server.
type GameStatus int

const (
	// GameStatusQueued means the game is waiting for a second player.
	GameStatusQueued GameStatus = 0
	// GameStatusReady means the game has a server and is being played.
	GameStatusReady GameStatus = 1
)

func (s GameStatus) Ready() bool { return s != GameStatusQueued }

func (s GameStatus) String() string {
	if s.Ready() {
		return "ready"
	}
	return "queued"
}

// Game represents a game that is being (or has been) match-made.
type Game struct {
	ID        string     `json:"id"`
	Status    GameStatus `json:"status"`
	SessionID string     `json:"sessionID,omitempty"`
	Port      int        `json:"port,omitempty"`
	IP        string     `json:"ip,omitempty"`
}

// Address returns the host:port of the game server hosting the game.
func (g Game) Address() string {
	return fmt.Sprintf("%s:%d", g.IP, g.Port)
}

// Session represents a game server process known to the sessions service.
type Session struct {
	ID   string `json:"id"`
	Port int    `json:"port,omitempty"`
	IP   string `json:"ip,omitempty"`
}

const (
	gamePath     = "/game"
	registerPath = "/register"
	sessionPath  = "/session"
)

// GameURL is the endpoint a client POSTs to in order to join or create a game.
func GameURL(matchHost string) string {
	return trimBase(matchHost) + gamePath
}

// GameStatusURL is the endpoint a client polls for the state of a queued game.
func GameStatusURL(matchHost, id string) string {
	return trimBase(matchHost) + gamePath + "/" + url.PathEscape(id)
}

// RegisterURL is the endpoint a game server POSTs its session to. registry may
// be a bare host[:port], in which case http is assumed.
func RegisterURL(registry string) string {
	return withScheme(registry) + registerPath
}

// CreateSessionURL is the endpoint used to request a new game server.
func CreateSessionURL(registry string) string {
	return withScheme(registry) + sessionPath
}

// SessionURL is the endpoint holding the registration of a single session.
func SessionURL(registry, id string) string {
	return withScheme(registry) + sessionPath + "/" + url.PathEscape(id)
}

func trimBase(base string) string {
	return strings.TrimRight(base, "/")
}

func withScheme(base string) string {
	base = trimBase(base)
	if strings.HasPrefix(base, "http://") || strings.HasPrefix(base, "https://") {
		return base
	}
	return "http://" + base
}

// EncodeJSON marshals v into a request body.
func EncodeJSON(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("error encoding %T: %w", v, err)
	}
	return buf.Bytes(), nil
}

// DecodeGame parses a Game from a matchmaker response body.
func DecodeGame(body []byte) (*Game, error) {
	g := &Game{}
	if err := decode(bytes.NewReader(body), g); err != nil {
		return nil, err
	}
	return g, nil
}

// DecodeSession parses a Session from a request or response body.
func DecodeSession(r io.Reader) (*Session, error) {
	s := &Session{}
	if err := decode(r, s); err != nil {
		return nil, err
	}
	return s, nil
}

func decode(r io.Reader, v interface{}) error {
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("error decoding %T: %w", v, err)
	}
	return nil
}
