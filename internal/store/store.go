// Package store holds the current stale-content snapshot and mediates
// refreshes from the backend.
package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/BattermanZ/StaleFlix/internal/content"
)

// ErrRefreshInProgress is returned when a refresh is requested while
// another one is still outstanding.
var ErrRefreshInProgress = errors.New("refresh already in progress")

// Fetcher retrieves a snapshot from the backend. forceRefresh asks the
// backend to recompute instead of serving its cached view.
type Fetcher interface {
	FetchSnapshot(ctx context.Context, forceRefresh bool) (*content.Snapshot, error)
}

// FetchError reports a failed refresh. The previous snapshot is kept.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching stale content: %v", e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Store owns the snapshot. Reads are safe while a refresh is in flight.
type Store struct {
	fetcher Fetcher

	mu        sync.RWMutex
	snapshot  content.Snapshot
	loaded    bool
	listeners []func(content.Snapshot)

	busy atomic.Bool
}

// New creates an empty store backed by fetcher.
func New(fetcher Fetcher) *Store {
	return &Store{fetcher: fetcher}
}

// Refresh fetches a new snapshot and replaces the held one wholesale. On
// failure the held snapshot is untouched and a *FetchError is returned.
// There are no retries.
func (s *Store) Refresh(ctx context.Context, forceRefresh bool) (content.Snapshot, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return content.Snapshot{}, ErrRefreshInProgress
	}
	defer s.busy.Store(false)

	snap, err := s.fetcher.FetchSnapshot(ctx, forceRefresh)
	if err == nil && snap == nil {
		err = errors.New("empty response")
	}
	if err == nil {
		if id, dup := snap.DuplicateID(); dup {
			err = fmt.Errorf("duplicate record id %q", id)
		}
	}
	if err != nil {
		ferr := &FetchError{Err: err}
		log.Printf("Refresh failed, keeping previous snapshot: %v", ferr)
		return content.Snapshot{}, ferr
	}

	held := snap.Clone()
	s.mu.Lock()
	s.snapshot = held
	s.loaded = true
	listeners := append([]func(content.Snapshot){}, s.listeners...)
	s.mu.Unlock()

	log.Printf("Snapshot refreshed: %d records (timestamp %s)", len(held.Content), held.Timestamp)
	for _, fn := range listeners {
		fn(held.Clone())
	}
	return held.Clone(), nil
}

// Snapshot returns a copy of the held snapshot.
func (s *Store) Snapshot() content.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot.Clone()
}

// Loaded reports whether any refresh has succeeded.
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Busy reports whether a refresh is in flight.
func (s *Store) Busy() bool {
	return s.busy.Load()
}

// OnChange registers fn to run after every successful refresh.
func (s *Store) OnChange(fn func(content.Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}
