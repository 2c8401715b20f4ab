package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Line-based handshake between the game client and the game server. Everything
// after the handshake belongs to the game itself.
const (
	joinCommand    = "JOIN"
	welcomeCommand = "WELCOME"
	rejectCommand  = "REJECT"

	dialTimeout = 10 * time.Second
)

var errMatchFull = errors.New("match is full")

// Conn is an accepted connection as seen by admission control.
type Conn interface {
	RemoteAddr() string
	Disconnect() error
}

// Player is a connection that completed the join handshake.
type Player interface {
	Name() string
	RemoteAddr() string
}

// Handler receives the connection events of a TCPServer.
type Handler interface {
	OnConnectionAccepted(c Conn) error
	OnPlayerAdmitted(p Player) error
}

// Peer is one connection accepted by a TCPServer.
type Peer struct {
	conn net.Conn
	addr string

	mu     sync.Mutex
	name   string
	closed bool
}

func newPeer(conn net.Conn) *Peer {
	return &Peer{conn: conn, addr: conn.RemoteAddr().String()}
}

func (p *Peer) RemoteAddr() string { return p.addr }

func (p *Peer) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.name
}

func (p *Peer) String() string {
	if name := p.Name(); name != "" {
		return name + "@" + p.addr
	}
	return p.addr
}

// Disconnect tells the remote end the match is full and closes the connection.
func (p *Peer) Disconnect() error {
	return p.close(errMatchFull)
}

func (p *Peer) close(reason error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if reason != nil {
		msg := cases.Title(language.English).String(reason.Error())
		_, _ = fmt.Fprintf(p.conn, "%s %s\n", rejectCommand, msg)
	}
	return p.conn.Close()
}

func (p *Peer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Peer) send(command, arg string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintf(p.conn, "%s %s\n", command, arg)
	return err
}

// TCPServer is the listening side of the game transport. Accepted connections
// are reported to Handler, which decides whether they stay open.
type TCPServer struct {
	HTTP

	Hostname string
	Handler  Handler
	Logger   *logrus.Logger

	mu       sync.Mutex
	port     int
	listener *net.TCPListener
	cancel   context.CancelFunc
	peers    map[*Peer]struct{}
	wg       sync.WaitGroup
}

// SetPort changes the port used by the next call to StartServer.
func (s *TCPServer) SetPort(port int) {
	s.mu.Lock()
	s.port = port
	s.mu.Unlock()
}

// Addr returns the address the server is listening on, or nil if it isn't.
func (s *TCPServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// StartServer opens the TCP socket and spins off the accept loop.
func (s *TCPServer) StartServer() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return errors.New("server is already listening")
	}
	if s.Handler == nil {
		return errors.New("no connection handler set")
	}

	address := net.JoinHostPort(s.Hostname, strconv.Itoa(s.port))
	hostAddr, err := net.ResolveTCPAddr("tcp", address)
	if err != nil {
		return fmt.Errorf("error resolving address %s: %w", address, err)
	}
	socket, err := net.ListenTCP("tcp", hostAddr)
	if err != nil {
		return fmt.Errorf("error listening on %s: %w", address, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.listener = socket
	s.cancel = cancel
	s.peers = make(map[*Peer]struct{})

	s.wg.Add(1)
	go s.startBlockingLoop(ctx, socket)
	return nil
}

// startBlockingLoop accepts connections until the socket is closed, handing
// each one to the Handler before spinning off a goroutine to read from it.
func (s *TCPServer) startBlockingLoop(ctx context.Context, socket *net.TCPListener) {
	defer s.wg.Done()
	s.logger().Infof("[GameServer] waiting for connections on %v", socket.Addr())

	for {
		connection, err := socket.AcceptTCP()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger().Warnf("[GameServer] failed to accept connection: %v", err)
			continue
		}

		peer := newPeer(connection)
		if err := s.Handler.OnConnectionAccepted(peer); err != nil {
			s.logger().Errorf("[GameServer] error accepting %s: %v", peer, err)
			_ = peer.close(nil)
			continue
		}
		if peer.isClosed() {
			s.logger().Infof("[GameServer] rejected connection from %s", peer)
			continue
		}

		if !s.track(peer) {
			_ = peer.close(nil)
			return
		}
		s.wg.Add(1)
		go s.handlePeer(peer)
	}
}

func (s *TCPServer) track(p *Peer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.peers == nil {
		return false
	}
	s.peers[p] = struct{}{}
	return true
}

func (s *TCPServer) untrack(p *Peer) {
	s.mu.Lock()
	delete(s.peers, p)
	s.mu.Unlock()
}

// handlePeer waits for the join handshake and then drains the connection
// until it closes.
func (s *TCPServer) handlePeer(p *Peer) {
	defer s.wg.Done()
	defer s.closeConnectionAndRecover(p)

	joined := false
	scanner := bufio.NewScanner(p.conn)
	for scanner.Scan() {
		if joined {
			continue
		}

		command, name := parseLine(scanner.Text())
		if command != joinCommand || name == "" {
			s.logger().Warnf("[GameServer] unexpected handshake from %s: %q", p, scanner.Text())
			continue
		}

		p.mu.Lock()
		p.name = name
		p.mu.Unlock()

		if err := s.Handler.OnPlayerAdmitted(p); err != nil {
			s.logger().Errorf("[GameServer] error admitting %s: %v", p, err)
			return
		}
		if err := p.send(welcomeCommand, name); err != nil {
			s.logger().Warnf("[GameServer] error welcoming %s: %v", p, err)
			return
		}
		joined = true
	}
}

// closeConnectionAndRecover is the failsafe that catches any panics and
// closes the connection regardless of its state.
func (s *TCPServer) closeConnectionAndRecover(p *Peer) {
	if err := recover(); err != nil {
		s.logger().Errorf("[GameServer] error in communication with %s: error=%v, trace: %s",
			p, err, debug.Stack())
	}
	if err := p.close(nil); err != nil {
		s.logger().Warnf("[GameServer] failed to close connection: %v", err)
	}
	s.untrack(p)
	s.logger().Infof("[GameServer] disconnected %s", p)
}

// Shutdown closes the listener and every open connection, returning once all
// of the server's goroutines have exited.
func (s *TCPServer) Shutdown() error {
	s.mu.Lock()
	socket := s.listener
	cancel := s.cancel
	peers := s.peers
	s.listener, s.cancel, s.peers = nil, nil, nil
	s.mu.Unlock()

	if socket == nil {
		return nil
	}

	cancel()
	err := socket.Close()
	for p := range peers {
		_ = p.close(nil)
	}
	s.wg.Wait()

	s.logger().Infof("[GameServer] exited")
	return err
}

func (s *TCPServer) logger() *logrus.Logger {
	if s.Logger == nil {
		return logrus.StandardLogger()
	}
	return s.Logger
}

func parseLine(line string) (string, string) {
	parts := strings.SplitN(strings.TrimSpace(line), " ", 2)
	if len(parts) < 2 {
		return parts[0], ""
	}
	return parts[0], strings.TrimSpace(parts[1])
}
