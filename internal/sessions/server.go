// Package sessions is the registry of running game servers. Game servers
// register the port they listen on, and the matchmaker asks it to launch new
// ones and to report where they can be reached.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/dcrodman/paddle/internal/core"
	"github.com/dcrodman/paddle/internal/protocol"
)

const (
	defaultSessionTTL = time.Hour
	shutdownTimeout   = 5 * time.Second
)

// Server handles the registry's HTTP requests.
type Server struct {
	logger   *logrus.Logger
	db       *gorm.DB
	launcher Launcher

	// IP handed out for every registered session. Blank uses the address the
	// registration came from.
	externalIP string
	sessionTTL time.Duration
	now        func() time.Time
}

type Option func(*Server)

func WithLogger(logger *logrus.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

func WithExternalIP(ip string) Option {
	return func(s *Server) { s.externalIP = ip }
}

// WithSessionTTL sets how long a registration is visible after it was made.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Server) {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
	}
}

func withClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

func NewServer(db *gorm.DB, launcher Launcher, opts ...Option) *Server {
	s := &Server{
		logger:     core.DiscardLogger(),
		db:         db,
		launcher:   launcher,
		sessionTTL: defaultSessionTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routes served by the registry.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/register", s.handle(s.registerHandler)).Methods(http.MethodPost)
	r.HandleFunc("/session", s.handle(s.createHandler)).Methods(http.MethodPost)
	r.HandleFunc("/session/{id}", s.handle(s.getHandler)).Methods(http.MethodGet)
	r.HandleFunc("/healthz", healthzHandler).Methods(http.MethodGet)
	return r
}

// Start serves the registry on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler()}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Infof("[Sessions] waiting for requests on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("error starting sessions service on %s: %w", addr, err)
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("error shutting down sessions service: %w", err)
	}
	s.logger.Info("[Sessions] server exited")
	return nil
}

type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// handle turns an unexpected handler error into a 500.
func (s *Server) handle(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			s.logger.Errorf("[Sessions] %s %s: %v", r.Method, r.URL.Path, err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

// registerHandler records the port a game server started on along with the IP
// it can be reached at.
func (s *Server) registerHandler(w http.ResponseWriter, r *http.Request) error {
	reg, err := protocol.DecodeSession(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil
	}
	if reg.ID == "" {
		http.Error(w, "session id is required", http.StatusBadRequest)
		return nil
	}

	ip := s.externalIP
	if ip == "" {
		ip = remoteHost(r)
	}

	session := &Session{
		ID:           reg.ID,
		IP:           ip,
		Port:         reg.Port,
		RegisteredAt: s.now().UTC(),
	}
	if err := SaveSession(s.db, session); err != nil {
		return fmt.Errorf("error saving session %s: %w", reg.ID, err)
	}
	s.logger.Infof("[Sessions] registered session %s at %s:%d", session.ID, session.IP, session.Port)

	return writeJSON(w, http.StatusOK, session.toProtocol())
}

// createHandler launches a game server for a brand new session.
func (s *Server) createHandler(w http.ResponseWriter, r *http.Request) error {
	id := uuid.NewString()
	s.logger.Infof("[Sessions] creating game session %s", id)

	if err := s.launcher.Launch(r.Context(), id); err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, protocol.Session{ID: id})
}

func (s *Server) getHandler(w http.ResponseWriter, r *http.Request) error {
	id := mux.Vars(r)["id"]

	session, err := FindSession(s.db, id, s.now().UTC().Add(-s.sessionTTL))
	if err != nil {
		return fmt.Errorf("error finding session %s: %w", id, err)
	}
	if session == nil {
		http.Error(w, fmt.Sprintf("could not find session for id: %s", id), http.StatusNotFound)
		return nil
	}
	return writeJSON(w, http.StatusOK, session.toProtocol())
}

func healthzHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) error {
	body, err := protocol.EncodeJSON(v)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(body)
	return err
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
