// Package gameserver brings a dedicated game server online and gates it to a
// two player match.
package gameserver

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dcrodman/paddle/internal/core"
	"github.com/dcrodman/paddle/internal/protocol"
	"github.com/dcrodman/paddle/internal/transport"
)

const (
	// How many times to retry for an open port.
	maxStartRetries = 10
	// PlayersNeededForGame is the number of admitted players that makes a match.
	PlayersNeededForGame = 2
)

var (
	ErrAlreadyStarted = errors.New("game server can only be started once")
	ErrNotStarted     = errors.New("game server has not been started")
	ErrStartFailed    = errors.New("game server failed to start")
)

// StartFailedError is returned when no port could be listened on within the
// retry bound. It matches ErrStartFailed with errors.Is.
type StartFailedError struct {
	Attempts int
	// Err is the failure from the last attempt.
	Err error
}

func (e *StartFailedError) Error() string {
	return fmt.Sprintf("error starting server after %d retries: %v", e.Attempts, e.Err)
}

func (e *StartFailedError) Is(target error) bool { return target == ErrStartFailed }
func (e *StartFailedError) Unwrap() error        { return e.Err }

// Transport is the network capability the game server is driven through.
type Transport interface {
	// SetPort changes the port the next StartServer call listens on.
	SetPort(port int)
	// StartServer starts listening, returning an error if it could not.
	StartServer() error
	PostHTTP(ctx context.Context, url string, body []byte) (*transport.Response, error)
	// Shutdown closes the listener and all connections.
	Shutdown() error
}

// Status is a snapshot of a running session.
type Status struct {
	ID             string
	Port           int
	ConnectedCount int
	Players        []transport.Player
	Ready          bool
}

type session struct {
	id             string
	port           int
	connectedCount int
	players        []transport.Player
	ready          bool
	readyCh        chan struct{}
	subscribers    []func()
}

// Server owns the lifecycle of one game server session: picking a port,
// registering with the sessions service and admitting players.
type Server struct {
	transport Transport
	logger    *logrus.Logger
	env       *core.Env

	defaultMinPort int
	defaultMaxPort int

	mu      sync.Mutex
	rnd     *rand.Rand
	session *session
}

type Option func(*Server)

func WithLogger(logger *logrus.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithDefaultPortRange sets the range used when MIN_PORT and MAX_PORT are unset.
func WithDefaultPortRange(minPort, maxPort int) Option {
	return func(s *Server) { s.defaultMinPort, s.defaultMaxPort = minPort, maxPort }
}

func WithRand(rnd *rand.Rand) Option {
	return func(s *Server) { s.rnd = rnd }
}

func New(t Transport, opts ...Option) *Server {
	s := &Server{
		transport:      t,
		logger:         core.DiscardLogger(),
		env:            core.NewEnv(),
		defaultMinPort: core.DefaultMinPort,
		defaultMaxPort: core.DefaultMaxPort,
		rnd:            rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start brings the server online on a random port, retrying with a new port up
// to maxStartRetries times, and then registers it with the sessions service.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.session != nil {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}

	sess := &session{readyCh: make(chan struct{})}
	s.session = sess

	var lastErr error
	for i := 0; i < maxStartRetries; i++ {
		port, err := s.selectPort()
		if err != nil {
			s.session = nil
			s.mu.Unlock()
			s.shutdownTransport()
			return fmt.Errorf("error selecting port: %w", err)
		}
		sess.port = port

		if lastErr = s.transport.StartServer(); lastErr == nil {
			break
		}
		s.logger.Warnf("[GameServer] could not start on port %d: %v", port, lastErr)
	}
	if lastErr != nil {
		s.session = nil
		s.mu.Unlock()
		s.shutdownTransport()
		return &StartFailedError{Attempts: maxStartRetries, Err: lastErr}
	}
	s.mu.Unlock()

	s.logger.Infof("[GameServer] listening on port %d", sess.port)
	s.register(ctx, sess)
	return nil
}

// selectPort picks a port uniformly from the configured range and hands it to
// the transport. The range is read from the environment on every call.
func (s *Server) selectPort() (int, error) {
	minPort, maxPort, err := s.env.PortRange(s.defaultMinPort, s.defaultMaxPort)
	if err != nil {
		return 0, err
	}

	port := minPort + s.rnd.Intn(maxPort-minPort+1)
	s.logger.Infof("[GameServer] attempting to start server on port: %d", port)
	s.transport.SetPort(port)
	return port, nil
}

// register tells the sessions service which port this server is on. It is
// advisory: failures are logged and never fail the start.
func (s *Server) register(ctx context.Context, sess *session) {
	registry := s.env.SessionsServiceHost()
	if registry == "" {
		s.logger.Infof("[GameServer] no %s set; skipping registration", core.SessionsServiceEnv)
		return
	}

	id := s.env.SessionName()
	s.mu.Lock()
	sess.id = id
	s.mu.Unlock()

	body, err := protocol.EncodeJSON(protocol.Session{ID: id, Port: sess.port})
	if err != nil {
		s.logger.Errorf("[GameServer] error building registration: %v", err)
		return
	}

	url := protocol.RegisterURL(registry)
	s.logger.Infof("[GameServer] registering session %q with %s", id, url)
	resp, err := s.transport.PostHTTP(ctx, url, body)
	if err != nil {
		s.logger.Errorf("[GameServer] error registering session: %v", err)
		return
	}
	if resp.StatusCode >= 300 {
		s.logger.Errorf("[GameServer] registration rejected with status %d: %s", resp.StatusCode, resp.Body)
		return
	}
	s.logger.Infof("[GameServer] registered session %q", id)
}

// Stop shuts the transport down and discards the session along with any
// Ready subscribers.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.session == nil {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.session.subscribers = nil
	s.session = nil
	s.mu.Unlock()

	return s.transport.Shutdown()
}

func (s *Server) shutdownTransport() {
	if err := s.transport.Shutdown(); err != nil {
		s.logger.Warnf("[GameServer] error shutting down transport: %v", err)
	}
}

// OnConnectionAccepted should be called for every incoming connection. Only
// the first PlayersNeededForGame connections are left open.
func (s *Server) OnConnectionAccepted(conn transport.Conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return ErrNotStarted
	}
	s.session.connectedCount++
	s.logger.Infof("[GameServer] client #%d connected from %s", s.session.connectedCount, conn.RemoteAddr())

	if s.session.connectedCount > PlayersNeededForGame {
		s.logger.Infof("[GameServer] match is full; disconnecting %s", conn.RemoteAddr())
		if err := conn.Disconnect(); err != nil {
			s.logger.Warnf("[GameServer] error disconnecting %s: %v", conn.RemoteAddr(), err)
		}
	}
	return nil
}

// OnPlayerAdmitted should be called when a connection has joined as a player.
// Reaching PlayersNeededForGame fires the Ready event, once.
func (s *Server) OnPlayerAdmitted(p transport.Player) error {
	s.mu.Lock()
	if s.session == nil {
		s.mu.Unlock()
		return ErrNotStarted
	}
	sess := s.session

	if len(sess.players) >= PlayersNeededForGame {
		s.mu.Unlock()
		s.logger.Warnf("[GameServer] match is full; not adding player %s", p.Name())
		return nil
	}

	sess.players = append(sess.players, p)
	s.logger.Infof("[GameServer] adding player %s. Count: %d", p.Name(), len(sess.players))

	var subscribers []func()
	if len(sess.players) == PlayersNeededForGame && !sess.ready {
		sess.ready = true
		close(sess.readyCh)
		subscribers = append(subscribers, sess.subscribers...)
	}
	s.mu.Unlock()

	if subscribers != nil {
		s.logger.Info("[GameServer] firing game ready")
		for _, fn := range subscribers {
			fn()
		}
	}
	return nil
}

// OnReady subscribes fn to the Ready event of the current session. If the
// session is already ready fn is not called.
func (s *Server) OnReady(fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return ErrNotStarted
	}
	s.session.subscribers = append(s.session.subscribers, fn)
	return nil
}

// Ready returns a channel that is closed when the current session has all of
// its players.
func (s *Server) Ready() (<-chan struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil, ErrNotStarted
	}
	return s.session.readyCh, nil
}

// Players returns the admitted players in the order they joined.
func (s *Server) Players() ([]transport.Player, error) {
	status, err := s.Status()
	if err != nil {
		return nil, err
	}
	return status.Players, nil
}

func (s *Server) Status() (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return Status{}, ErrNotStarted
	}
	players := make([]transport.Player, len(s.session.players))
	copy(players, s.session.players)

	return Status{
		ID:             s.session.id,
		Port:           s.session.port,
		ConnectedCount: s.session.connectedCount,
		Players:        players,
		Ready:          s.session.ready,
	}, nil
}

func (s *Server) Port() (int, error) {
	status, err := s.Status()
	return status.Port, err
}

// ConnectedCount returns how many connections have been accepted, including
// the ones that were turned away.
func (s *Server) ConnectedCount() (int, error) {
	status, err := s.Status()
	return status.ConnectedCount, err
}

func (s *Server) IsReady() (bool, error) {
	status, err := s.Status()
	return status.Ready, err
}
