package matchmaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dcrodman/paddle/internal/core"
	"github.com/dcrodman/paddle/internal/protocol"
)

const defaultGameTTL = time.Hour

// ErrGameNotFound is returned when there is no game for an id, or no open
// game waiting for a second player.
var ErrGameNotFound = errors.New("game not found")

// Store keeps every game the matchmaker knows about along with the queue of
// open games waiting for a second player.
type Store interface {
	// PushOpen saves g and appends it to the end of the open queue.
	PushOpen(ctx context.Context, g *protocol.Game) error
	// PopOpen removes and returns the oldest open game.
	PopOpen(ctx context.Context) (*protocol.Game, error)
	Get(ctx context.Context, id string) (*protocol.Game, error)
	// Update saves the new state of a game that is already known.
	Update(ctx context.Context, g *protocol.Game) error
}

// NewStore creates the Store selected by the matchmaker config.
func NewStore(ctx context.Context, cfg *core.Config) (Store, error) {
	ttl := cfg.Matchmaker.GameTTL
	if ttl <= 0 {
		ttl = defaultGameTTL
	}

	switch cfg.Matchmaker.Store {
	case "", "memory":
		return NewMemoryStore(ttl), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:         cfg.Matchmaker.RedisAddress,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("error connecting to redis at %s: %w", cfg.Matchmaker.RedisAddress, err)
		}
		return NewRedisStore(client, ttl), nil
	default:
		return nil, fmt.Errorf("unsupported matchmaker store: %s", cfg.Matchmaker.Store)
	}
}
