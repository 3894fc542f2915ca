// Package session keeps per-user pipelines in memory for the web front-end.
// Sessions are single-user and never persisted; idle sessions are swept
// after a TTL.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ymiah/passportpro/internal/pipeline"
)

type entry struct {
	pipe     *pipeline.Pipeline
	lastSeen time.Time
}

// Store maps session IDs to pipelines.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	ttl     time.Duration
	factory func() *pipeline.Pipeline
}

// NewStore creates a store that builds pipelines with factory and expires
// sessions idle longer than ttl.
func NewStore(factory func() *pipeline.Pipeline, ttl time.Duration) *Store {
	return &Store{
		entries: make(map[string]*entry),
		ttl:     ttl,
		factory: factory,
	}
}

// Create registers a new session and returns its ID.
func (s *Store) Create() string {
	id := uuid.NewString()
	s.mu.Lock()
	s.entries[id] = &entry{pipe: s.factory(), lastSeen: time.Now()}
	s.mu.Unlock()

	log.Info().Str("session", id).Msg("Session created")
	return id
}

// Get returns the pipeline for id, or nil if the session does not exist.
// A hit refreshes the idle timer.
func (s *Store) Get(id string) *pipeline.Pipeline {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil
	}
	e.lastSeen = time.Now()
	return e.pipe
}

// Delete removes a session.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep removes sessions idle longer than the TTL. Call it periodically
// from the server.
func (s *Store) Sweep() int {
	cutoff := time.Now().Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.entries {
		if e.lastSeen.Before(cutoff) {
			delete(s.entries, id)
			removed++
		}
	}
	if removed > 0 {
		log.Info().Int("removed", removed).Int("remaining", len(s.entries)).Msg("Idle sessions swept")
	}
	return removed
}

// StartSweeper sweeps on the given interval until stop is closed.
func (s *Store) StartSweeper(interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Sweep()
			case <-stop:
				return
			}
		}
	}()
}
