package gameclient

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyStarted = errors.New("game client can only be started once")
	ErrNotStarted     = errors.New("game client has not been started")

	errMissingValue = errors.New("missing value")
)

// ConfigParseError is returned when a command line argument can't be used.
type ConfigParseError struct {
	Flag  string
	Value string
	Err   error
}

func (e *ConfigParseError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s argument: %v", e.Flag, e.Err)
	}
	return fmt.Sprintf("invalid %s argument %q: %v", e.Flag, e.Value, e.Err)
}

func (e *ConfigParseError) Unwrap() error { return e.Err }

// MatchmakerError is returned when the matchmaker can't be reached or answers
// with something other than a game.
type MatchmakerError struct {
	// Request that failed, e.g. "POST http://mm/game".
	Op string
	// HTTP status of the response, 0 if there was none.
	StatusCode int
	Err        error
}

func (e *MatchmakerError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("error with matchmaker service: %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("error with matchmaker service: %s: %v", e.Op, e.Err)
}

func (e *MatchmakerError) Unwrap() error { return e.Err }
