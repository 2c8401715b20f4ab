package gameclient

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/dcrodman/paddle/internal/transport"
)

// fakeTransport records every call made by the Client. Responses to the
// matchmaker are produced by post and get; nil funcs answer 404.
type fakeTransport struct {
	mu sync.Mutex

	post func(url string) (*transport.Response, error)
	// n is the number of GETs made before this one.
	get func(url string, n int) (*transport.Response, error)

	hosts     []string
	ports     []int
	starts    int
	posts     []string
	postBody  []string
	gets      []string
	getSignal chan struct{}
}

func (f *fakeTransport) SetHost(host string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hosts = append(f.hosts, host)
}

func (f *fakeTransport) SetPort(port int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ports = append(f.ports, port)
}

func (f *fakeTransport) StartClient() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	return nil
}

func (f *fakeTransport) PostHTTP(_ context.Context, url string, body []byte) (*transport.Response, error) {
	f.mu.Lock()
	f.posts = append(f.posts, url)
	f.postBody = append(f.postBody, string(body))
	post := f.post
	f.mu.Unlock()

	if post == nil {
		return &transport.Response{StatusCode: http.StatusNotFound}, nil
	}
	return post(url)
}

func (f *fakeTransport) GetHTTP(_ context.Context, url string) (*transport.Response, error) {
	f.mu.Lock()
	n := len(f.gets)
	f.gets = append(f.gets, url)
	get := f.get
	signal := f.getSignal
	f.mu.Unlock()

	if signal != nil {
		select {
		case signal <- struct{}{}:
		default:
		}
	}
	if get == nil {
		return &transport.Response{StatusCode: http.StatusNotFound}, nil
	}
	return get(url, n)
}

func (f *fakeTransport) getCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.gets)
}

func respond(status int, body string) (*transport.Response, error) {
	return &transport.Response{StatusCode: status, Body: []byte(body)}, nil
}

func newTestClient(ft *fakeTransport) *Client {
	return New(ft, WithPollInterval(time.Millisecond))
}

func waitForClient(t *testing.T, c *Client) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("timed out waiting for the client to connect")
	}
	return err
}

func TestClient_Start(t *testing.T) {
	ft := &fakeTransport{}
	c := newTestClient(ft)
	defer c.Stop()

	if err := c.Start(context.Background(), []string{}); err != nil {
		t.Fatalf("Start() returned an unexpected error: %v", err)
	}
	if ft.starts != 1 {
		t.Errorf("expected 1 connection to be started, got %d", ft.starts)
	}

	for _, args := range [][]string{{}, {"-host", "10.10.10.10"}, {"-match", "http://mm.example"}} {
		if err := c.Start(context.Background(), args); !errors.Is(err, ErrAlreadyStarted) {
			t.Errorf("Start(%v) expected ErrAlreadyStarted, got %v", args, err)
		}
	}
	if ft.starts != 1 || len(ft.posts) != 0 {
		t.Errorf("expected repeated Start() calls to have no effect, got %d starts and %d posts", ft.starts, len(ft.posts))
	}
}

func TestClient_StartDirect(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantHost string
		wantPort int
	}{
		{name: "defaults", args: nil, wantHost: "localhost", wantPort: 7777},
		{name: "host", args: []string{"-host", "10.10.10.10"}, wantHost: "10.10.10.10", wantPort: 7777},
		{name: "port", args: []string{"-port", "8080"}, wantHost: "localhost", wantPort: 8080},
		{name: "host and port", args: []string{"-host", "10.10.10.10", "-port", "8080"}, wantHost: "10.10.10.10", wantPort: 8080},
		{name: "last flag wins", args: []string{"-port", "1", "-port", "2"}, wantHost: "localhost", wantPort: 2},
		{name: "unknown arguments ignored", args: []string{"./paddle", "-batchmode", "-host", "h"}, wantHost: "h", wantPort: 7777},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ft := &fakeTransport{}
			c := newTestClient(ft)
			defer c.Stop()

			if err := c.Start(context.Background(), tt.args); err != nil {
				t.Fatalf("Start() returned an unexpected error: %v", err)
			}
			if err := waitForClient(t, c); err != nil {
				t.Fatalf("Wait() returned an unexpected error: %v", err)
			}

			if ft.starts != 1 {
				t.Errorf("expected 1 connection to be started, got %d", ft.starts)
			}
			if diff := cmp.Diff([]string{tt.wantHost}, ft.hosts); diff != "" {
				t.Errorf("hosts did not match expected; diff:\n%s", diff)
			}
			if diff := cmp.Diff([]int{tt.wantPort}, ft.ports); diff != "" {
				t.Errorf("ports did not match expected; diff:\n%s", diff)
			}
			host, port, _ := c.Target()
			if host != tt.wantHost || port != tt.wantPort {
				t.Errorf("Target() want = %s:%d, got = %s:%d", tt.wantHost, tt.wantPort, host, port)
			}
		})
	}
}

func TestClient_StartInvalidArguments(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantFlag string
	}{
		{name: "port not a number", args: []string{"-port", "eighty"}, wantFlag: "-port"},
		{name: "missing host", args: []string{"-host"}, wantFlag: "-host"},
		{name: "missing match host", args: []string{"-host", "h", "-match"}, wantFlag: "-match"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ft := &fakeTransport{}
			c := newTestClient(ft)

			err := c.Start(context.Background(), tt.args)
			var parseErr *ConfigParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("expected a ConfigParseError, got %v", err)
			}
			if parseErr.Flag != tt.wantFlag {
				t.Errorf("expected the error to name %s, got %s", tt.wantFlag, parseErr.Flag)
			}
			if ft.starts != 0 {
				t.Errorf("expected no connection to be started, got %d", ft.starts)
			}

			// A failed start leaves no session behind.
			if err := c.Start(context.Background(), nil); err != nil {
				t.Errorf("Start() after a failed start returned an unexpected error: %v", err)
			}
			_ = c.Stop()
		})
	}
}

func TestClient_MatchMakeQueued(t *testing.T) {
	ft := &fakeTransport{
		post: func(string) (*transport.Response, error) {
			return respond(http.StatusCreated, `{"id":"abc","status":0}`)
		},
		get: func(string, int) (*transport.Response, error) {
			return respond(http.StatusOK, `{"id":"abc","status":1,"ip":"1.2.3.4","port":9999}`)
		},
	}
	c := newTestClient(ft)
	defer c.Stop()

	if err := c.Start(context.Background(), []string{"-match", "http://mm.example"}); err != nil {
		t.Fatalf("Start() returned an unexpected error: %v", err)
	}
	if err := waitForClient(t, c); err != nil {
		t.Fatalf("Wait() returned an unexpected error: %v", err)
	}

	if diff := cmp.Diff([]string{"http://mm.example/game"}, ft.posts); diff != "" {
		t.Errorf("posts did not match expected; diff:\n%s", diff)
	}
	if ft.postBody[0] != "{}" {
		t.Errorf("expected an empty JSON object to be posted, got %q", ft.postBody[0])
	}
	if diff := cmp.Diff([]string{"1.2.3.4"}, ft.hosts); diff != "" {
		t.Errorf("hosts did not match expected; diff:\n%s", diff)
	}
	if diff := cmp.Diff([]int{9999}, ft.ports); diff != "" {
		t.Errorf("ports did not match expected; diff:\n%s", diff)
	}
	if ft.starts != 1 {
		t.Errorf("expected 1 connection to be started, got %d", ft.starts)
	}

	// Give a stray poll the chance to show up.
	time.Sleep(20 * time.Millisecond)
	ft.mu.Lock()
	defer ft.mu.Unlock()
	if diff := cmp.Diff([]string{"http://mm.example/game/abc"}, ft.gets); diff != "" {
		t.Errorf("gets did not match expected; diff:\n%s", diff)
	}
}

func TestClient_MatchMakePollsUntilReady(t *testing.T) {
	ft := &fakeTransport{
		post: func(string) (*transport.Response, error) {
			return respond(http.StatusCreated, `{"id":"a b","status":0}`)
		},
		get: func(_ string, n int) (*transport.Response, error) {
			if n < 2 {
				return respond(http.StatusOK, `{"id":"a b","status":0}`)
			}
			return respond(http.StatusOK, `{"id":"a b","status":1,"ip":"5.6.7.8","port":7010}`)
		},
	}
	c := newTestClient(ft)
	defer c.Stop()

	if err := c.Start(context.Background(), []string{"-match", "http://mm.example"}); err != nil {
		t.Fatalf("Start() returned an unexpected error: %v", err)
	}
	if err := waitForClient(t, c); err != nil {
		t.Fatalf("Wait() returned an unexpected error: %v", err)
	}

	want := []string{
		"http://mm.example/game/a%20b",
		"http://mm.example/game/a%20b",
		"http://mm.example/game/a%20b",
	}
	if diff := cmp.Diff(want, ft.gets); diff != "" {
		t.Errorf("gets did not match expected; diff:\n%s", diff)
	}
	if ft.starts != 1 {
		t.Errorf("expected 1 connection to be started, got %d", ft.starts)
	}
	host, port, _ := c.Target()
	if host != "5.6.7.8" || port != 7010 {
		t.Errorf("Target() want = 5.6.7.8:7010, got = %s:%d", host, port)
	}
}

func TestClient_MatchMakeImmediate(t *testing.T) {
	ft := &fakeTransport{
		post: func(string) (*transport.Response, error) {
			return respond(http.StatusOK, `{"id":"abc","status":1,"ip":"1.2.3.4","port":9999}`)
		},
	}
	c := newTestClient(ft)
	defer c.Stop()

	if err := c.Start(context.Background(), []string{"-host", "ignored", "-match", "http://mm.example", "-port", "1"}); err != nil {
		t.Fatalf("Start() returned an unexpected error: %v", err)
	}
	if err := waitForClient(t, c); err != nil {
		t.Fatalf("Wait() returned an unexpected error: %v", err)
	}

	if len(ft.gets) != 0 {
		t.Errorf("expected no polling for an immediate match, got %d gets", len(ft.gets))
	}
	if diff := cmp.Diff([]string{"1.2.3.4"}, ft.hosts); diff != "" {
		t.Errorf("hosts did not match expected; diff:\n%s", diff)
	}
	if diff := cmp.Diff([]int{9999}, ft.ports); diff != "" {
		t.Errorf("ports did not match expected; diff:\n%s", diff)
	}
	if ft.starts != 1 {
		t.Errorf("expected 1 connection to be started, got %d", ft.starts)
	}
}

func TestClient_MatchMakeErrors(t *testing.T) {
	queued := func(string) (*transport.Response, error) {
		return respond(http.StatusCreated, `{"id":"abc","status":0}`)
	}
	tests := []struct {
		name       string
		post       func(string) (*transport.Response, error)
		get        func(string, int) (*transport.Response, error)
		wantStatus int
	}{
		{
			name: "matchmaker unreachable",
			post: func(string) (*transport.Response, error) {
				return nil, errors.New("connection refused")
			},
		},
		{
			name: "unexpected status",
			post: func(string) (*transport.Response, error) {
				return respond(http.StatusInternalServerError, "boom")
			},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name: "malformed game",
			post: func(string) (*transport.Response, error) {
				return respond(http.StatusCreated, `{"id":`)
			},
			wantStatus: http.StatusCreated,
		},
		{
			name: "game not found while polling",
			post: queued,
			get: func(string, int) (*transport.Response, error) {
				return respond(http.StatusNotFound, "not found")
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name: "malformed game while polling",
			post: queued,
			get: func(string, int) (*transport.Response, error) {
				return respond(http.StatusOK, `not json`)
			},
			wantStatus: http.StatusOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ft := &fakeTransport{post: tt.post, get: tt.get}
			c := newTestClient(ft)
			defer c.Stop()

			if err := c.Start(context.Background(), []string{"-match", "http://mm.example"}); err != nil {
				t.Fatalf("Start() returned an unexpected error: %v", err)
			}

			err := waitForClient(t, c)
			var mmErr *MatchmakerError
			if !errors.As(err, &mmErr) {
				t.Fatalf("expected a MatchmakerError, got %v", err)
			}
			if mmErr.StatusCode != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, mmErr.StatusCode)
			}
			if ft.starts != 0 {
				t.Errorf("expected no connection to be started, got %d", ft.starts)
			}
		})
	}
}

func TestClient_StopCancelsPolling(t *testing.T) {
	ft := &fakeTransport{
		post: func(string) (*transport.Response, error) {
			return respond(http.StatusCreated, `{"id":"abc","status":0}`)
		},
		get: func(string, int) (*transport.Response, error) {
			return respond(http.StatusOK, `{"id":"abc","status":0}`)
		},
		getSignal: make(chan struct{}, 1),
	}
	c := newTestClient(ft)

	if err := c.Start(context.Background(), []string{"-match", "http://mm.example"}); err != nil {
		t.Fatalf("Start() returned an unexpected error: %v", err)
	}

	select {
	case <-ft.getSignal:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the client to poll")
	}

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop() returned an unexpected error: %v", err)
	}
	polls := ft.getCount()

	time.Sleep(20 * time.Millisecond)
	if got := ft.getCount(); got != polls {
		t.Errorf("expected no polls after Stop(), got %d more", got-polls)
	}
	if ft.starts != 0 {
		t.Errorf("expected no connection to be started, got %d", ft.starts)
	}
	if err := c.Wait(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Wait() after Stop() expected ErrNotStarted, got %v", err)
	}
}

func TestClient_Stop(t *testing.T) {
	c := newTestClient(&fakeTransport{})

	if err := c.Stop(); !errors.Is(err, ErrNotStarted) {
		t.Errorf("expected ErrNotStarted, got %v", err)
	}
	if _, _, err := c.Target(); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Target() expected ErrNotStarted, got %v", err)
	}

	if err := c.Start(context.Background(), nil); err != nil {
		t.Fatalf("Start() returned an unexpected error: %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("Stop() returned an unexpected error: %v", err)
	}
	if err := c.Start(context.Background(), nil); err != nil {
		t.Errorf("Start() after Stop() returned an unexpected error: %v", err)
	}
	_ = c.Stop()
}
