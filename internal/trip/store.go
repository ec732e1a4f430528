package trip

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Fetcher returns the detailed trip record for an id. Implemented by the
// REST client; a non-success response surfaces as an error.
type Fetcher interface {
	TripByID(ctx context.Context, tripID int64) (Trip, error)
}

// State is the (tripId, isRunning) pair the GPS reporter reacts to.
type State struct {
	TripID  int64
	HasTrip bool
	Running bool
}

// Store is the single source of truth for the active trip. At most one trip
// is tracked at a time; all mutation replaces the record wholesale and
// subscribers are notified synchronously after every change.
type Store struct {
	fetcher Fetcher
	log     zerolog.Logger

	mu     sync.Mutex
	active *Trip
	subs   []func(State)
}

func NewStore(fetcher Fetcher, log zerolog.Logger) *Store {
	return &Store{
		fetcher: fetcher,
		log:     log.With().Str("component", "trip-store").Logger(),
	}
}

// Subscribe registers a change listener. Listeners run synchronously inside
// the mutation call, after the new state is committed.
func (s *Store) Subscribe(fn func(State)) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

// StartTrip fetches the trip detail and installs it as the active trip.
// On failure the previous state is left untouched: replace-or-no-op, never
// partial.
func (s *Store) StartTrip(ctx context.Context, tripID int64) error {
	s.log.Info().Int64("trip_id", tripID).Msg("starting trip")
	t, err := s.fetcher.TripByID(ctx, tripID)
	if err != nil {
		s.log.Error().Err(err).Int64("trip_id", tripID).Msg("trip detail fetch failed")
		return err
	}
	s.replace(&t)
	s.log.Info().
		Int64("trip_id", t.TripID).
		Str("status", string(t.Status)).
		Str("route", t.RouteName).
		Msg("active trip set")
	return nil
}

// StopTrip clears the active trip.
func (s *Store) StopTrip() {
	s.log.Info().Msg("stopping active trip")
	s.replace(nil)
}

// SetActiveTrip installs an already-fetched trip without a re-fetch, e.g.
// from a list refresh. A nil trip clears the store.
func (s *Store) SetActiveTrip(t *Trip) {
	if t == nil {
		s.replace(nil)
		return
	}
	cp := *t
	s.replace(&cp)
}

// Active returns a copy of the active trip, or nil.
func (s *Store) Active() *Trip {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return nil
	}
	cp := *s.active
	return &cp
}

func (s *Store) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil && s.active.Status.Running()
}

// Current returns the state snapshot subscribers would observe right now.
func (s *Store) Current() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Store) stateLocked() State {
	if s.active == nil {
		return State{}
	}
	return State{TripID: s.active.TripID, HasTrip: true, Running: s.active.Status.Running()}
}

func (s *Store) replace(t *Trip) {
	s.mu.Lock()
	s.active = t
	st := s.stateLocked()
	subs := make([]func(State), len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(st)
	}
}
