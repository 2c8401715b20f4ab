package transport

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
)

// TCPClient is the connecting side of the game transport.
type TCPClient struct {
	HTTP

	// Name sent to the game server in the join handshake.
	PlayerName string

	mu   sync.Mutex
	host string
	port int
	conn net.Conn
}

func (c *TCPClient) SetHost(host string) {
	c.mu.Lock()
	c.host = host
	c.mu.Unlock()
}

func (c *TCPClient) SetPort(port int) {
	c.mu.Lock()
	c.port = port
	c.mu.Unlock()
}

// Target returns the host:port the client connects (or connected) to.
func (c *TCPClient) Target() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return net.JoinHostPort(c.host, strconv.Itoa(c.port))
}

// StartClient dials the game server and sends the join handshake.
func (c *TCPClient) StartClient() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return errors.New("client is already connected")
	}

	address := net.JoinHostPort(c.host, strconv.Itoa(c.port))
	conn, err := net.DialTimeout("tcp", address, dialTimeout)
	if err != nil {
		return fmt.Errorf("error connecting to %s: %w", address, err)
	}

	name := c.PlayerName
	if name == "" {
		name = "player"
	}
	if _, err := fmt.Fprintf(conn, "%s %s\n", joinCommand, name); err != nil {
		_ = conn.Close()
		return fmt.Errorf("error joining %s: %w", address, err)
	}

	c.conn = conn
	return nil
}

// AwaitWelcome blocks until the server answers the join handshake. A server
// that rejected the connection results in an error carrying its message.
func (c *TCPClient) AwaitWelcome() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return errors.New("client is not connected")
	}

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return fmt.Errorf("error reading handshake response: %w", err)
	}

	command, arg := parseLine(line)
	switch command {
	case welcomeCommand:
		return nil
	case rejectCommand:
		return fmt.Errorf("rejected by server: %s", arg)
	default:
		return fmt.Errorf("unexpected handshake response: %q", line)
	}
}

// Close drops the connection to the game server.
func (c *TCPClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
