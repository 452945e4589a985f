// Package gamestate is the boundary to the trusted game server: the latest
// entity states it pushes, and raycasts it answers.
package gamestate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/sentinel/internal/domain/model"
)

const defaultStaleAfter = 5 * time.Second

type entry struct {
	state    model.PlayerState
	observed time.Time
	received time.Time
}

// Cache holds the most recent state per player. Safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	states     map[int]entry
	staleAfter time.Duration
	now        func() time.Time
}

// NewCache returns an empty cache.
func NewCache(opts ...Option) *Cache {
	c := &Cache{
		states:     make(map[int]entry),
		staleAfter: defaultStaleAfter,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Update stores st as the current state of playerID, observed now.
func (c *Cache) Update(playerID int, st model.PlayerState) {
	c.UpdateBatch(map[int]model.Observation{playerID: {State: st}})
}

// UpdateBatch stores several observations under one lock. A zero or future
// ObservedAt is stamped with the receive time. An observation older than the
// one already held is dropped.
func (c *Cache) UpdateBatch(obs map[int]model.Observation) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, o := range obs {
		at := o.ObservedAt
		if at.IsZero() || at.After(now) {
			at = now
		}
		if cur, ok := c.states[id]; ok && at.Before(cur.observed) {
			continue
		}
		c.states[id] = entry{state: o.State, observed: at, received: now}
	}
}

// Remove drops a player's state.
func (c *Cache) Remove(playerID int) {
	c.mu.Lock()
	delete(c.states, playerID)
	c.mu.Unlock()
}

// PlayerState returns the latest state and the time it was observed, or
// ErrEntityUnavailable when there is none or it is stale.
func (c *Cache) PlayerState(_ context.Context, playerID int) (model.PlayerState, time.Time, error) {
	c.mu.RLock()
	e, ok := c.states[playerID]
	c.mu.RUnlock()
	if !ok {
		return model.PlayerState{}, time.Time{}, fmt.Errorf("%w: player %d", ErrEntityUnavailable, playerID)
	}
	if age := c.now().Sub(e.received); age > c.staleAfter {
		return model.PlayerState{}, time.Time{}, fmt.Errorf("%w: player %d state is %s old", ErrEntityUnavailable, playerID, age.Round(time.Millisecond))
	}
	return e.state, e.observed, nil
}

// Len returns the number of cached players.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.states)
}
