package core

import (
	"fmt"
	"strconv"

	"github.com/spf13/viper"
)

const (
	// Minimum port in range a game server can start on.
	MinPortEnv = "MIN_PORT"
	// Maximum port in range a game server can start on.
	MaxPortEnv = "MAX_PORT"
	// Host (and optional port) of the sessions service a game server
	// registers with. Set by the sessions service when it launches a server.
	SessionsServiceEnv = "SESSIONS_SERVICE_HOST"
	// Name of the session a game server was launched for.
	SessionNameEnv = "SESSION_NAME"

	DefaultMinPort = 7000
	DefaultMaxPort = 8000
)

// Env exposes the deployment values a game server receives through its
// environment. Values are looked up on every call rather than once at startup.
type Env struct {
	v *viper.Viper
}

func NewEnv() *Env {
	v := viper.New()
	// BindEnv only fails when called without a key.
	_ = v.BindEnv("min_port", MinPortEnv)
	_ = v.BindEnv("max_port", MaxPortEnv)
	_ = v.BindEnv("sessions_service_host", SessionsServiceEnv)
	_ = v.BindEnv("session_name", SessionNameEnv)
	return &Env{v: v}
}

// PortRange returns the inclusive range of ports a game server may bind to,
// falling back to defMin and defMax for any value missing from the environment.
func (e *Env) PortRange(defMin, defMax int) (int, int, error) {
	minPort, err := e.intOr("min_port", MinPortEnv, defMin)
	if err != nil {
		return 0, 0, err
	}
	maxPort, err := e.intOr("max_port", MaxPortEnv, defMax)
	if err != nil {
		return 0, 0, err
	}
	if minPort > maxPort {
		return 0, 0, fmt.Errorf("invalid port range %d-%d", minPort, maxPort)
	}
	return minPort, maxPort, nil
}

func (e *Env) intOr(key, envName string, def int) (int, error) {
	raw := e.v.GetString(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("error parsing %s=%q: %w", envName, raw, err)
	}
	return n, nil
}

func (e *Env) SessionsServiceHost() string { return e.v.GetString("sessions_service_host") }
func (e *Env) SessionName() string         { return e.v.GetString("session_name") }
