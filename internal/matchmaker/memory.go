package matchmaker

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/dcrodman/paddle/internal/protocol"
)

// MemoryStore keeps games in an in-process cache. Games expire after the TTL
// they were created with, and expired games are skipped by PopOpen.
type MemoryStore struct {
	games *gocache.Cache

	mu   sync.Mutex
	open []string
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{games: gocache.New(ttl, 10*time.Minute)}
}

func (m *MemoryStore) PushOpen(_ context.Context, g *protocol.Game) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.games.SetDefault(g.ID, *g)
	m.open = append(m.open, g.ID)
	return nil
}

func (m *MemoryStore) PopOpen(_ context.Context) (*protocol.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for len(m.open) > 0 {
		id := m.open[0]
		m.open = m.open[1:]

		if v, ok := m.games.Get(id); ok {
			g := v.(protocol.Game)
			return &g, nil
		}
	}
	return nil, ErrGameNotFound
}

func (m *MemoryStore) Get(_ context.Context, id string) (*protocol.Game, error) {
	v, ok := m.games.Get(id)
	if !ok {
		return nil, ErrGameNotFound
	}
	g := v.(protocol.Game)
	return &g, nil
}

// Update replaces the game while keeping its original expiration.
func (m *MemoryStore) Update(_ context.Context, g *protocol.Game) error {
	_, expiration, ok := m.games.GetWithExpiration(g.ID)
	if !ok {
		return ErrGameNotFound
	}

	ttl := gocache.NoExpiration
	if !expiration.IsZero() {
		if ttl = time.Until(expiration); ttl <= 0 {
			return ErrGameNotFound
		}
	}
	m.games.Set(g.ID, *g, ttl)
	return nil
}
