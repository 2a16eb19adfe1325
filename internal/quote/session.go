package quote

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Rin111124/fastfood-geo/internal/geo"
	"github.com/Rin111124/fastfood-geo/internal/models"
)

// Session tracks delivery-estimation state for one checkout view. Address
// selections may overlap in flight (fast typing, map picks); every selection
// takes a fresh generation number and only the resolution still matching the
// current generation may commit, so a slow stale response can never overwrite
// a newer one.
type Session struct {
	svc        *Service
	searcher   geo.PlaceSearcher
	searchOpts geo.SearchOptions
	debouncer  *Debouncer
	log        *slog.Logger

	generation atomic.Uint64

	mu         sync.Mutex
	state      State
	quote      *Quote
	err        error
	candidates []models.Place
}

// Snapshot is a point-in-time view of the session for rendering.
type Snapshot struct {
	State      State
	Quote      *Quote
	Err        error
	Candidates []models.Place
}

// NewSession creates a session for one checkout view.
func NewSession(svc *Service, searcher geo.PlaceSearcher, searchOpts geo.SearchOptions, debounce *Debouncer, log *slog.Logger) *Session {
	return &Session{
		svc:        svc,
		searcher:   searcher,
		searchOpts: searchOpts,
		debouncer:  debounce,
		log:        log,
		state:      StateIdle,
	}
}

// Select runs the pipeline for a destination selection. It blocks until the
// pipeline finishes; callers issue concurrent selections from their own
// goroutines and the generation guard keeps only the latest one visible.
func (s *Session) Select(ctx context.Context, req Request) (*Quote, error) {
	gen := s.generation.Add(1)

	quote, err := s.svc.QuoteWithProgress(ctx, req, func(state State) {
		s.commitState(gen, state)
	})
	s.commitResult(gen, quote, err)
	return quote, err
}

// Suggest debounces the free-text query and refreshes the candidate list once
// the user pauses typing. Like selections, suggestions carry the generation
// current at call time so stale result lists are dropped.
func (s *Session) Suggest(ctx context.Context, query string) {
	gen := s.generation.Load()
	s.debouncer.Do(func() {
		candidates := s.searcher.SearchPlaces(ctx, query, s.searchOpts)
		s.commitCandidates(gen, candidates)
	})
}

// Snapshot returns the current session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		State:      s.state,
		Quote:      s.quote,
		Err:        s.err,
		Candidates: s.candidates,
	}
}

// Reset returns the session to idle and invalidates anything in flight.
func (s *Session) Reset() {
	s.generation.Add(1)
	s.debouncer.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateIdle
	s.quote = nil
	s.err = nil
	s.candidates = nil
}

func (s *Session) current(gen uint64) bool {
	return s.generation.Load() == gen
}

func (s *Session) commitState(gen uint64, state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.current(gen) {
		return
	}
	s.state = state
}

func (s *Session) commitResult(gen uint64, quote *Quote, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.current(gen) {
		s.log.Debug("Discarding stale quote resolution", "generation", gen)
		return
	}
	s.quote = quote
	s.err = err
	if err != nil {
		s.state = StateFailed
		return
	}
	s.state = StateEstimated
}

func (s *Session) commitCandidates(gen uint64, candidates []models.Place) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.current(gen) {
		return
	}
	s.candidates = candidates
}
