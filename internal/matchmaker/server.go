// Package matchmaker pairs up game clients. The first client to ask creates an
// open game, and the second one takes it and has a game server launched for
// the both of them.
package matchmaker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/dcrodman/paddle/internal/core"
	"github.com/dcrodman/paddle/internal/core/debug"
	"github.com/dcrodman/paddle/internal/protocol"
)

const shutdownTimeout = 5 * time.Second

// SessionCreator launches game servers for matched games.
type SessionCreator interface {
	CreateSession(ctx context.Context) (*protocol.Session, error)
}

// Server handles the matchmaker's HTTP requests.
type Server struct {
	logger   *logrus.Logger
	store    Store
	sessions SessionCreator
}

type Option func(*Server)

func WithLogger(logger *logrus.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

func NewServer(store Store, sessions SessionCreator, opts ...Option) *Server {
	s := &Server{
		logger:   core.DiscardLogger(),
		store:    store,
		sessions: sessions,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewGame returns a queued game with a unique id.
func NewGame() *protocol.Game {
	return &protocol.Game{ID: uuid.NewString(), Status: protocol.GameStatusQueued}
}

// Handler returns the routes served by the matchmaker.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/game", s.handle(s.gameHandler)).Methods(http.MethodPost)
	r.HandleFunc("/game/{id}", s.handle(s.getHandler)).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	return r
}

// Start serves the matchmaker on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler()}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Infof("[Matchmaker] waiting for requests on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("error starting matchmaker on %s: %w", addr, err)
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
		return fmt.Errorf("error shutting down matchmaker: %w", err)
	}
	s.logger.Info("[Matchmaker] server exited")
	return nil
}

type handlerFunc func(w http.ResponseWriter, r *http.Request) error

func (s *Server) handle(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			s.logger.Errorf("[Matchmaker] %s %s: %v", r.Method, r.URL.Path, err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

// gameHandler matches the caller to a game. With no open game a new one is
// queued (201); otherwise the open game gets a game server and is returned
// ready to be played (200).
func (s *Server) gameHandler(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	s.logger.Info("[Matchmaker] match to a game")

	g, err := s.store.PopOpen(ctx)
	if errors.Is(err, ErrGameNotFound) {
		g = NewGame()
		if err := s.store.PushOpen(ctx, g); err != nil {
			return err
		}
		s.logger.Infof("[Matchmaker] queued game %s", g.ID)
		return writeJSON(w, http.StatusCreated, g)
	}
	if err != nil {
		return err
	}

	queued := *g
	if err := s.startGame(ctx, g); err != nil {
		// Put the game back so that the waiting player can still be matched.
		if pushErr := s.store.PushOpen(context.Background(), &queued); pushErr != nil {
			s.logger.Errorf("[Matchmaker] error requeueing game %s: %v", g.ID, pushErr)
		}
		return err
	}
	return writeJSON(w, http.StatusOK, g)
}

// startGame asks for a game server for g and marks it ready.
func (s *Server) startGame(ctx context.Context, g *protocol.Game) error {
	sess, err := s.sessions.CreateSession(ctx)
	if err != nil {
		return fmt.Errorf("error creating session for game %s: %w", g.ID, err)
	}

	g.SessionID = sess.ID
	g.IP = sess.IP
	g.Port = sess.Port
	g.Status = protocol.GameStatusReady
	debug.Dump(s.logger, "[Matchmaker] matched game", g)

	if err := s.store.Update(ctx, g); err != nil {
		return fmt.Errorf("error updating game %s: %w", g.ID, err)
	}
	s.logger.Infof("[Matchmaker] game %s ready at %s", g.ID, g.Address())
	return nil
}

func (s *Server) getHandler(w http.ResponseWriter, r *http.Request) error {
	id := mux.Vars(r)["id"]

	g, err := s.store.Get(r.Context(), id)
	if errors.Is(err, ErrGameNotFound) {
		http.Error(w, fmt.Sprintf("could not find game for id: %s", id), http.StatusNotFound)
		return nil
	}
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, g)
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
