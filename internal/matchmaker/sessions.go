package matchmaker

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dcrodman/paddle/internal/protocol"
	"github.com/dcrodman/paddle/internal/transport"
)

const (
	// Number of times to check whether a new session has registered.
	sessionMaxRetries    = 30
	sessionRetryInterval = time.Second
)

// HTTPClient is the part of the transport used to reach the sessions service.
type HTTPClient interface {
	PostHTTP(ctx context.Context, url string, body []byte) (*transport.Response, error)
	GetHTTP(ctx context.Context, url string) (*transport.Response, error)
}

// SessionsClient asks the sessions service for new game servers.
type SessionsClient struct {
	logger   *logrus.Logger
	client   HTTPClient
	address  string
	retries  int
	interval time.Duration
}

func NewSessionsClient(logger *logrus.Logger, client HTTPClient, address string) *SessionsClient {
	return &SessionsClient{
		logger:   logger,
		client:   client,
		address:  address,
		retries:  sessionMaxRetries,
		interval: sessionRetryInterval,
	}
}

// CreateSession launches a new game server and waits for it to register,
// returning the session with the address the server can be reached at.
func (c *SessionsClient) CreateSession(ctx context.Context) (*protocol.Session, error) {
	url := protocol.CreateSessionURL(c.address)
	c.logger.Infof("[Matchmaker] creating a new session: %s", url)

	resp, err := c.client.PostHTTP(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating session: %w", err)
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("error creating session: status %d: %s", resp.StatusCode, resp.Body)
	}

	sess, err := protocol.DecodeSession(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, err
	}
	c.logger.Infof("[Matchmaker] created session %s", sess.ID)

	return c.awaitSession(ctx, sess.ID)
}

// awaitSession polls for the registration of session id.
func (c *SessionsClient) awaitSession(ctx context.Context, id string) (*protocol.Session, error) {
	url := protocol.SessionURL(c.address, id)

	for i := 0; i < c.retries; i++ {
		if i > 0 {
			t := time.NewTimer(c.interval)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, ctx.Err()
			case <-t.C:
			}
		}

		c.logger.Debugf("[Matchmaker] requesting session data: %s", url)
		resp, err := c.client.GetHTTP(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("error getting session %s: %w", id, err)
		}
		if resp.StatusCode == http.StatusOK {
			return protocol.DecodeSession(bytes.NewReader(resp.Body))
		}
		c.logger.Infof("[Matchmaker] session %s not registered yet, trying again", id)
	}
	return nil, fmt.Errorf("could not get session %s data after %d attempts", id, c.retries)
}
