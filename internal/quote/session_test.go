package quote_test

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Rin111124/fastfood-geo/internal/geo"
	"github.com/Rin111124/fastfood-geo/internal/models"
	"github.com/Rin111124/fastfood-geo/internal/quote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSearcher struct {
	searchFunc func(ctx context.Context, query string, opts geo.SearchOptions) []models.Place
	calls      atomic.Int64
}

func (s *stubSearcher) SearchPlaces(ctx context.Context, query string, opts geo.SearchOptions) []models.Place {
	s.calls.Add(1)
	if s.searchFunc == nil {
		return nil
	}
	return s.searchFunc(ctx, query, opts)
}

func newSession(t *testing.T, router geo.Router, searcher geo.PlaceSearcher, debounce time.Duration) *quote.Session {
	t.Helper()
	svc := newService(t, &stubGeocoder{}, router)
	return quote.NewSession(svc, searcher, geo.SearchOptions{Lang: "vi"}, quote.NewDebouncer(debounce), slog.Default())
}

func TestSession_Select(t *testing.T) {
	ctx := context.Background()

	t.Run("successful selection lands in the snapshot", func(t *testing.T) {
		router := &stubRouter{
			routeFunc: func(_ context.Context, _, _ models.Coordinate, _ geo.RouteOptions) (*models.RouteResult, error) {
				return &models.RouteResult{DistanceMeters: 4200, DurationSeconds: 900, Source: models.SourceOSRMPrimary}, nil
			},
		}
		session := newSession(t, router, &stubSearcher{}, time.Millisecond)

		result, err := session.Select(ctx, quote.Request{Point: &customer})
		require.NoError(t, err)

		snap := session.Snapshot()
		assert.Equal(t, quote.StateEstimated, snap.State)
		require.NotNil(t, snap.Quote)
		assert.Equal(t, result.ID, snap.Quote.ID)
		assert.NoError(t, snap.Err)
	})

	t.Run("slow stale selection never overwrites a newer one", func(t *testing.T) {
		slowDest := models.Coordinate{Lat: 21.03, Lon: 105.84}
		fastDest := customer

		slowStarted := make(chan struct{})
		release := make(chan struct{})
		router := &stubRouter{
			nearestFunc: func(_ context.Context, point models.Coordinate) (*models.Coordinate, error) {
				return &point, nil
			},
			routeFunc: func(_ context.Context, _, dest models.Coordinate, _ geo.RouteOptions) (*models.RouteResult, error) {
				if dest == slowDest {
					close(slowStarted)
					<-release
					return &models.RouteResult{DistanceMeters: 9000, DurationSeconds: 2000, Source: models.SourceOSRMPrimary}, nil
				}
				return &models.RouteResult{DistanceMeters: 4200, DurationSeconds: 900, Source: models.SourceOSRMPrimary}, nil
			},
		}
		session := newSession(t, router, &stubSearcher{}, time.Millisecond)

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = session.Select(ctx, quote.Request{Point: &slowDest})
		}()
		<-slowStarted

		fast, err := session.Select(ctx, quote.Request{Point: &fastDest})
		require.NoError(t, err)

		close(release)
		wg.Wait()

		snap := session.Snapshot()
		assert.Equal(t, quote.StateEstimated, snap.State)
		require.NotNil(t, snap.Quote)
		assert.Equal(t, fast.ID, snap.Quote.ID, "stale resolution must be discarded")
		assert.InDelta(t, 4200, snap.Quote.Route.DistanceMeters, 0.001)
	})

	t.Run("failed selection records the error", func(t *testing.T) {
		router := &stubRouter{
			routeFunc: func(_ context.Context, _, _ models.Coordinate, _ geo.RouteOptions) (*models.RouteResult, error) {
				return nil, geo.ErrNoRoute
			},
		}
		session := newSession(t, router, &stubSearcher{}, time.Millisecond)

		_, err := session.Select(ctx, quote.Request{Point: &customer})
		require.Error(t, err)

		snap := session.Snapshot()
		assert.Equal(t, quote.StateFailed, snap.State)
		assert.Error(t, snap.Err)
		assert.Nil(t, snap.Quote)
	})
}

func TestSession_Suggest(t *testing.T) {
	ctx := context.Background()

	t.Run("rapid queries collapse to one search", func(t *testing.T) {
		searcher := &stubSearcher{
			searchFunc: func(_ context.Context, query string, _ geo.SearchOptions) []models.Place {
				assert.Equal(t, "chùa láng", query)
				return []models.Place{{Label: "Chùa Láng, Hà Nội", Location: customer}}
			},
		}
		session := newSession(t, &stubRouter{}, searcher, 20*time.Millisecond)

		session.Suggest(ctx, "c")
		session.Suggest(ctx, "chùa")
		session.Suggest(ctx, "chùa láng")

		assert.Eventually(t, func() bool {
			return len(session.Snapshot().Candidates) == 1
		}, time.Second, 5*time.Millisecond)
		assert.EqualValues(t, 1, searcher.calls.Load(), "only the last query should reach the provider")
	})

	t.Run("suggestions issued before a selection are discarded", func(t *testing.T) {
		searcher := &stubSearcher{
			searchFunc: func(_ context.Context, _ string, _ geo.SearchOptions) []models.Place {
				return []models.Place{{Label: "stale", Location: customer}}
			},
		}
		router := &stubRouter{
			routeFunc: func(_ context.Context, _, _ models.Coordinate, _ geo.RouteOptions) (*models.RouteResult, error) {
				return &models.RouteResult{DistanceMeters: 1000, DurationSeconds: 200, Source: models.SourceOSRMPrimary}, nil
			},
		}
		session := newSession(t, router, searcher, 20*time.Millisecond)

		session.Suggest(ctx, "old query")
		_, err := session.Select(ctx, quote.Request{Point: &customer})
		require.NoError(t, err)

		time.Sleep(60 * time.Millisecond)
		assert.Empty(t, session.Snapshot().Candidates)
	})
}

func TestSession_Reset(t *testing.T) {
	router := &stubRouter{
		routeFunc: func(_ context.Context, _, _ models.Coordinate, _ geo.RouteOptions) (*models.RouteResult, error) {
			return &models.RouteResult{DistanceMeters: 1000, DurationSeconds: 200, Source: models.SourceOSRMPrimary}, nil
		},
	}
	searcher := &stubSearcher{
		searchFunc: func(_ context.Context, _ string, _ geo.SearchOptions) []models.Place {
			return []models.Place{{Label: "late", Location: customer}}
		},
	}
	session := newSession(t, router, searcher, 20*time.Millisecond)

	_, err := session.Select(context.Background(), quote.Request{Point: &customer})
	require.NoError(t, err)
	session.Suggest(context.Background(), "something")
	session.Reset()

	snap := session.Snapshot()
	assert.Equal(t, quote.StateIdle, snap.State)
	assert.Nil(t, snap.Quote)
	assert.NoError(t, snap.Err)
	assert.Empty(t, snap.Candidates)

	// A debounced search scheduled before Reset must not repopulate the list.
	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, session.Snapshot().Candidates)
}

func TestDebouncer(t *testing.T) {
	t.Run("only the last submission runs", func(t *testing.T) {
		d := quote.NewDebouncer(20 * time.Millisecond)
		var fired atomic.Int64

		d.Do(func() { fired.Add(100) })
		d.Do(func() { fired.Add(10) })
		d.Do(func() { fired.Add(1) })

		assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
		time.Sleep(40 * time.Millisecond)
		assert.EqualValues(t, 1, fired.Load())
	})

	t.Run("stop cancels the pending run", func(t *testing.T) {
		d := quote.NewDebouncer(20 * time.Millisecond)
		var fired atomic.Int64

		d.Do(func() { fired.Add(1) })
		d.Stop()

		time.Sleep(60 * time.Millisecond)
		assert.Zero(t, fired.Load())
	})
}
