// Package quote orchestrates the delivery-estimation pipeline: resolve an
// address, snap it to the road network, route from the store, and price the
// distance. Each stage degrades gracefully rather than aborting the flow.
package quote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Rin111124/fastfood-geo/internal/fee"
	"github.com/Rin111124/fastfood-geo/internal/geo"
	"github.com/Rin111124/fastfood-geo/internal/metrics"
	"github.com/Rin111124/fastfood-geo/internal/models"
	"github.com/google/uuid"
)

// State identifies where a quote pipeline currently is. A new address
// selection restarts the machine from StateIdle.
type State string

const (
	StateIdle      State = "idle"
	StateResolving State = "resolving"
	StateSnapping  State = "snapping"
	StateRouting   State = "routing"
	StateEstimated State = "estimated"
	StateFailed    State = "failed"
)

// Errors surfaced to callers of Quote.
var (
	// ErrAddressNotFound means the destination address could not be
	// geocoded; the user must re-enter it.
	ErrAddressNotFound = errors.New("address not found")
	// ErrNoDestination means the request carried neither an address nor a
	// coordinate.
	ErrNoDestination = errors.New("no delivery destination given")
)

// Request is one delivery-destination selection: either free-text address or
// a map-picked coordinate.
type Request struct {
	Address string
	Point   *models.Coordinate
}

// Quote is the terminal result of a successful pipeline run.
type Quote struct {
	ID          string             `json:"id"`
	Destination models.Place       `json:"destination"`
	Route       models.RouteResult `json:"route"`
	Fee         models.FeeQuote    `json:"fee"`
	// Approximate discloses that the distance came from the haversine
	// fallback, so the UI can label the fee as estimated.
	Approximate bool `json:"approximate"`
}

// Service runs the estimation pipeline against its configured providers.
type Service struct {
	log       *slog.Logger
	geocoder  geo.Geocoder
	router    geo.Router
	origin    *OriginCache
	tariff    fee.Tariff
	routeOpts geo.RouteOptions
	geocode   geo.GeocodeOptions
	metrics   *metrics.Metrics
}

// NewService creates a quote service.
func NewService(
	log *slog.Logger,
	geocoder geo.Geocoder,
	router geo.Router,
	origin *OriginCache,
	tariff fee.Tariff,
	routeOpts geo.RouteOptions,
	geocodeOpts geo.GeocodeOptions,
	appMetrics *metrics.Metrics,
) *Service {
	return &Service{
		log:       log,
		geocoder:  geocoder,
		router:    router,
		origin:    origin,
		tariff:    tariff,
		routeOpts: routeOpts,
		geocode:   geocodeOpts,
		metrics:   appMetrics,
	}
}

// Origin exposes the store origin cache.
func (s *Service) Origin() *OriginCache { return s.origin }

// Quote runs the full pipeline for one destination selection.
func (s *Service) Quote(ctx context.Context, req Request) (*Quote, error) {
	return s.QuoteWithProgress(ctx, req, nil)
}

// QuoteWithProgress runs the pipeline and reports each state transition
// through progress (when non-nil). Sessions use the callback to surface
// intermediate states to the UI.
func (s *Service) QuoteWithProgress(
	ctx context.Context,
	req Request,
	progress func(State),
) (*Quote, error) {
	notify := func(state State) {
		if progress != nil {
			progress(state)
		}
	}

	s.metrics.InFlightQuotes.Inc()
	defer s.metrics.InFlightQuotes.Dec()

	notify(StateResolving)

	origin, err := s.origin.Resolve(ctx)
	if err != nil {
		s.metrics.QuotesTotal.WithLabelValues("failed").Inc()
		notify(StateFailed)
		return nil, fmt.Errorf("store origin unavailable: %w", err)
	}

	destination, err := s.resolveDestination(ctx, req, origin.Location)
	if err != nil {
		s.metrics.QuotesTotal.WithLabelValues("failed").Inc()
		notify(StateFailed)
		return nil, err
	}

	// Snapping is best-effort: a failed snap keeps the raw coordinate.
	notify(StateSnapping)
	routeOrigin := s.snap(ctx, origin.Location)
	routeDest := s.snap(ctx, destination.Location)

	notify(StateRouting)
	started := time.Now()
	route, err := s.router.RouteDriving(ctx, routeOrigin, routeDest, s.routeOpts)
	s.metrics.RequestSeconds.WithLabelValues("osrm").Observe(time.Since(started).Seconds())
	if err != nil {
		s.metrics.ProviderRequests.WithLabelValues("osrm", "failure").Inc()
		s.metrics.QuotesTotal.WithLabelValues("failed").Inc()
		notify(StateFailed)
		return nil, fmt.Errorf("routing failed: %w", err)
	}
	s.metrics.ProviderRequests.WithLabelValues("osrm", "success").Inc()
	s.metrics.RouteResults.WithLabelValues(string(route.Source)).Inc()

	quote := &Quote{
		ID:          uuid.NewString(),
		Destination: destination,
		Route:       *route,
		Fee:         s.tariff.Estimate(route.DistanceMeters / 1000),
		Approximate: route.Approximate(),
	}

	status := "estimated"
	if quote.Fee.Blocked {
		status = "blocked"
	}
	s.metrics.QuotesTotal.WithLabelValues(status).Inc()

	s.log.InfoContext(ctx, "Delivery quote computed",
		"quote", quote.ID,
		"distance_m", route.DistanceMeters,
		"source", route.Source,
		"fee", quote.Fee.Fee,
		"blocked", quote.Fee.Blocked)

	notify(StateEstimated)
	return quote, nil
}

// resolveDestination turns the request into a concrete place. Map picks are
// labeled via a best-effort reverse geocode; free-text addresses are geocoded
// with a bias box around the store.
func (s *Service) resolveDestination(
	ctx context.Context,
	req Request,
	origin models.Coordinate,
) (models.Place, error) {
	if req.Point != nil {
		if !req.Point.Valid() {
			return models.Place{}, fmt.Errorf("%w: coordinate out of range", ErrNoDestination)
		}
		place := models.Place{Location: *req.Point}
		if labeled, err := s.geocoder.ReverseGeocode(ctx, *req.Point, s.geocode.Lang); err == nil {
			place.Label = labeled.Label
		} else {
			s.log.DebugContext(ctx, "Reverse geocode failed, keeping raw point", "error", err)
		}
		return place, nil
	}

	address := strings.TrimSpace(req.Address)
	if address == "" {
		return models.Place{}, ErrNoDestination
	}

	opts := s.geocode
	if opts.Bias == nil {
		opts.Bias = &geo.BiasBox{Center: origin, RadiusKm: s.tariff.MaxRadiusKm}
	}

	started := time.Now()
	place, err := s.geocoder.GeocodeAddress(ctx, address, opts)
	s.metrics.RequestSeconds.WithLabelValues("nominatim").Observe(time.Since(started).Seconds())
	if err != nil {
		s.metrics.ProviderRequests.WithLabelValues("nominatim", "failure").Inc()
		if errors.Is(err, geo.ErrNoResult) {
			return models.Place{}, fmt.Errorf("%w: %q", ErrAddressNotFound, address)
		}
		return models.Place{}, fmt.Errorf("geocoding failed: %w", err)
	}
	s.metrics.ProviderRequests.WithLabelValues("nominatim", "success").Inc()

	return *place, nil
}

// snap resolves the nearest drivable road node, falling back to the raw
// coordinate when both routing servers refuse.
func (s *Service) snap(ctx context.Context, point models.Coordinate) models.Coordinate {
	snapped, err := s.router.NearestDriving(ctx, point)
	if err != nil || snapped == nil {
		s.log.DebugContext(ctx, "Road snap failed, using raw coordinate",
			"lat", point.Lat, "lon", point.Lon, "error", err)
		return point
	}
	return *snapped
}
