// Package gameclient resolves where a game client should connect to, either
// from its command line or through the matchmaker, and opens the connection.
package gameclient

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dcrodman/paddle/internal/core"
	"github.com/dcrodman/paddle/internal/core/debug"
	"github.com/dcrodman/paddle/internal/protocol"
	"github.com/dcrodman/paddle/internal/transport"
)

const (
	defaultHost         = "localhost"
	defaultPort         = 7777
	defaultPollInterval = 2 * time.Second

	hostArg  = "-host"
	portArg  = "-port"
	matchArg = "-match"
)

// Transport is the network capability the game client is driven through.
type Transport interface {
	// SetHost changes the game server host the client connects to.
	SetHost(host string)
	// SetPort changes the game server port the client connects to.
	SetPort(port int)
	// StartClient opens the connection to the game server.
	StartClient() error
	PostHTTP(ctx context.Context, url string, body []byte) (*transport.Response, error)
	GetHTTP(ctx context.Context, url string) (*transport.Response, error)
}

type session struct {
	host   string
	port   int
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Client owns the lifecycle of one game client session.
type Client struct {
	transport    Transport
	logger       *logrus.Logger
	pollInterval time.Duration

	mu      sync.Mutex
	session *session
}

type Option func(*Client)

func WithLogger(logger *logrus.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithPollInterval changes how long the client waits between polls of a
// queued game.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.pollInterval = d }
}

func New(t Transport, opts ...Option) *Client {
	c := &Client{
		transport:    t,
		logger:       core.DiscardLogger(),
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start processes the command line arguments and connects to the game server.
// -host and -port override the default server location, while -match hands
// the decision to the matchmaker at the given address. Matchmaking happens in
// the background; use Wait for its outcome.
func (c *Client) Start(ctx context.Context, args []string) error {
	c.mu.Lock()
	if c.session != nil {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	sess := &session{done: make(chan struct{})}
	c.session = sess
	c.mu.Unlock()

	target, err := parseArgs(args)
	if err != nil {
		c.discard(sess)
		return err
	}

	if target.matchHost != "" {
		mmCtx, cancel := context.WithCancel(ctx)
		sess.cancel = cancel
		go func() {
			defer close(sess.done)
			if err := c.MatchMake(mmCtx, target.matchHost); err != nil {
				c.logger.Errorf("[GameClient] matchmaking failed: %v", err)
				sess.err = err
			}
		}()
		return nil
	}

	defer close(sess.done)
	if len(args) == 0 {
		c.logger.Info("[GameClient] default host and port")
	}
	if err := c.connect(ctx, target.host, target.port); err != nil {
		c.discard(sess)
		return err
	}
	return nil
}

// Wait blocks until the connection has been started, returning the reason
// if it could not be.
func (c *Client) Wait(ctx context.Context) error {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()

	if sess == nil {
		return ErrNotStarted
	}
	select {
	case <-sess.done:
		return sess.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Target returns the game server the client connected to. It is empty until
// the connection has been started.
func (c *Client) Target() (string, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return "", 0, ErrNotStarted
	}
	return c.session.host, c.session.port, nil
}

// Stop discards the session. Any matchmaking still in progress is cancelled
// and Stop returns once it has exited.
func (c *Client) Stop() error {
	c.mu.Lock()
	sess := c.session
	c.session = nil
	c.mu.Unlock()

	if sess == nil {
		return ErrNotStarted
	}
	if sess.cancel != nil {
		sess.cancel()
		<-sess.done
	}
	return nil
}

func (c *Client) discard(sess *session) {
	c.mu.Lock()
	if c.session == sess {
		c.session = nil
	}
	c.mu.Unlock()
}

// MatchMake asks the matchmaker for a game, polling it until the game has a
// server if it was queued, and then connects to that server.
func (c *Client) MatchMake(ctx context.Context, matchHost string) error {
	url := protocol.GameURL(matchHost)
	op := http.MethodPost + " " + url
	c.logger.Infof("[GameClient] invoking the matchmaker: %s", url)

	resp, err := c.transport.PostHTTP(ctx, url, []byte("{}"))
	if err != nil {
		return &MatchmakerError{Op: op, Err: err}
	}
	c.logger.Infof("[GameClient] matchmaker response: %d: %s", resp.StatusCode, resp.Body)

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusOK:
	default:
		return &MatchmakerError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status")}
	}

	game, err := protocol.DecodeGame(resp.Body)
	if err != nil {
		return &MatchmakerError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	debug.Dump(c.logger, "[GameClient] matchmaker game", game)

	// 201 means the game was created and is waiting in the queue.
	if resp.StatusCode == http.StatusCreated {
		return c.pollUntilReady(ctx, matchHost, game.ID)
	}
	return c.connect(ctx, game.IP, game.Port)
}

func (c *Client) pollUntilReady(ctx context.Context, matchHost, id string) error {
	for {
		done, err := c.PollMatchMake(ctx, matchHost, id)
		if err != nil || done {
			return err
		}

		t := time.NewTimer(c.pollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// PollMatchMake checks on a queued game once. It reports true once the game
// has a server and the connection to it has been started.
func (c *Client) PollMatchMake(ctx context.Context, matchHost, id string) (bool, error) {
	url := protocol.GameStatusURL(matchHost, id)
	op := http.MethodGet + " " + url
	c.logger.Infof("[GameClient] polling: %s", url)

	resp, err := c.transport.GetHTTP(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, &MatchmakerError{Op: op, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return false, &MatchmakerError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status")}
	}

	game, err := protocol.DecodeGame(resp.Body)
	if err != nil {
		return false, &MatchmakerError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	c.logger.Infof("[GameClient] polling complete: game %s is %v", game.ID, game.Status)

	if !game.Status.Ready() {
		return false, nil
	}
	return true, c.connect(ctx, game.IP, game.Port)
}

// connect points the transport at host:port and starts the connection.
func (c *Client) connect(ctx context.Context, host string, port int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.logger.Infof("[GameClient] host: %s, port: %d", host, port)
	c.mu.Lock()
	if c.session != nil {
		c.session.host, c.session.port = host, port
	}
	c.mu.Unlock()

	c.transport.SetHost(host)
	c.transport.SetPort(port)
	if err := c.transport.StartClient(); err != nil {
		return fmt.Errorf("error starting client connection to %s:%d: %w", host, port, err)
	}
	return nil
}

type target struct {
	host      string
	port      int
	matchHost string
}

// parseArgs walks the arguments left to right. The matchmaker takes precedence
// over any -host or -port, wherever it appears.
func parseArgs(args []string) (target, error) {
	t := target{host: defaultHost, port: defaultPort}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg != hostArg && arg != portArg && arg != matchArg {
			continue
		}
		if i+1 >= len(args) {
			return t, &ConfigParseError{Flag: arg, Err: errMissingValue}
		}
		value := args[i+1]
		i++

		switch arg {
		case matchArg:
			return target{matchHost: value}, nil
		case hostArg:
			t.host = value
		case portArg:
			port, err := strconv.Atoi(value)
			if err != nil {
				return t, &ConfigParseError{Flag: arg, Value: value, Err: err}
			}
			t.port = port
		}
	}
	return t, nil
}
