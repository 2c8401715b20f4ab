package matchmaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dcrodman/paddle/internal/protocol"
)

const (
	// Key of the list of open games.
	redisOpenGameListKey = "openGameList"
	// Prefix of the hash holding a single game.
	redisGamePrefix = "game:"
)

// redisGame is the hash layout of a game.
type redisGame struct {
	ID        string `redis:"id"`
	Status    int    `redis:"status"`
	SessionID string `redis:"sessionID"`
	Port      int    `redis:"port"`
	IP        string `redis:"ip"`
}

// RedisStore keeps games in redis so that several matchmakers can share them.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func gameKey(id string) string {
	return redisGamePrefix + id
}

func (r *RedisStore) PushOpen(ctx context.Context, g *protocol.Game) error {
	key := gameKey(g.ID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, redisOpenGameListKey, key)
		pipe.HSet(ctx, key, "id", g.ID, "status", int(g.Status))
		pipe.Expire(ctx, key, r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("error pushing open game %s: %w", g.ID, err)
	}
	return nil
}

func (r *RedisStore) PopOpen(ctx context.Context) (*protocol.Game, error) {
	for {
		key, err := r.client.LPop(ctx, redisOpenGameListKey).Result()
		if errors.Is(err, redis.Nil) {
			return nil, ErrGameNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("error popping open game: %w", err)
		}

		g, err := r.getKey(ctx, key)
		if errors.Is(err, ErrGameNotFound) {
			// The game expired while it was queued.
			continue
		}
		return g, err
	}
}

func (r *RedisStore) Get(ctx context.Context, id string) (*protocol.Game, error) {
	return r.getKey(ctx, gameKey(id))
}

func (r *RedisStore) getKey(ctx context.Context, key string) (*protocol.Game, error) {
	res := r.client.HGetAll(ctx, key)
	values, err := res.Result()
	if err != nil {
		return nil, fmt.Errorf("error getting hash for key %s: %w", key, err)
	}
	if len(values) == 0 {
		return nil, ErrGameNotFound
	}

	var rg redisGame
	if err := res.Scan(&rg); err != nil {
		return nil, fmt.Errorf("error scanning game %s: %w", key, err)
	}
	return &protocol.Game{
		ID:        rg.ID,
		Status:    protocol.GameStatus(rg.Status),
		SessionID: rg.SessionID,
		Port:      rg.Port,
		IP:        rg.IP,
	}, nil
}

func (r *RedisStore) Update(ctx context.Context, g *protocol.Game) error {
	key := gameKey(g.ID)
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("error checking game %s: %w", g.ID, err)
	}
	if n == 0 {
		return ErrGameNotFound
	}

	err = r.client.HSet(ctx, key,
		"status", int(g.Status),
		"sessionID", g.SessionID,
		"port", g.Port,
		"ip", g.IP,
	).Err()
	if err != nil {
		return fmt.Errorf("error updating game %s: %w", g.ID, err)
	}
	return nil
}

// Close releases the connections to redis.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
