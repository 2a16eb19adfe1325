package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/Rin111124/fastfood-geo/internal/models"
)

// Public OSRM demo servers. Both are rate-limited and periodically flaky,
// which is why RouteDriving carries a fallback chain ending in the
// analytic approximation.
const (
	OSRMPrimaryBaseURL = "https://router.project-osrm.org"
	OSRMBackupBaseURL  = "https://routing.openstreetmap.de/routed-car"
)

const (
	earthRadiusKm         = 6371.0
	defaultApproxSpeedKmh = 25.0
)

// OSRMClient implements the Router interface against OSRM-compatible HTTP
// routing engines, with a primary and a backup host.
type OSRMClient struct {
	client     HTTPClient   // HTTP client for making requests
	primaryURL string       // Base URL of the primary routing server
	backupURL  string       // Base URL of the backup routing server
	log        *slog.Logger // Logger for logging operations
}

// RouteOptions tune a route calculation. The zero value disables the
// approximate fallback; use DefaultRouteOptions for the checkout behavior.
type RouteOptions struct {
	// AllowApproximate enables the haversine fallback when both routing
	// providers fail, so the caller always gets a usable estimate.
	AllowApproximate bool
	// ApproxSpeedKmh is the assumed driving speed for the approximate
	// duration; defaults to 25 km/h when zero.
	ApproxSpeedKmh float64
}

// DefaultRouteOptions returns the options used by the checkout flow.
func DefaultRouteOptions() RouteOptions {
	return RouteOptions{AllowApproximate: true, ApproxSpeedKmh: defaultApproxSpeedKmh}
}

// osrmRouteResponse is the relevant subset of an OSRM /route reply.
type osrmRouteResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
	} `json:"routes"`
}

// osrmNearestResponse is the relevant subset of an OSRM /nearest reply.
type osrmNearestResponse struct {
	Waypoints []struct {
		Location []float64 `json:"location"` // [lon, lat]
	} `json:"waypoints"`
}

// NewOSRMClient creates a routing client against the public OSRM servers.
func NewOSRMClient(log *slog.Logger) *OSRMClient {
	const timeout = 10
	return &OSRMClient{
		client: &http.Client{
			Timeout: timeout * time.Second,
		},
		primaryURL: OSRMPrimaryBaseURL,
		backupURL:  OSRMBackupBaseURL,
		log:        log,
	}
}

// NewOSRMClientWithClient creates an OSRM client with a custom HTTP client.
// Useful for testing with mocked HTTP clients.
func NewOSRMClientWithClient(client HTTPClient, log *slog.Logger) *OSRMClient {
	oc := NewOSRMClient(log)
	oc.client = client
	return oc
}

// SetBaseURLs overrides the primary and backup routing hosts, for self-hosted
// OSRM instances. Empty strings keep the current hosts.
func (oc *OSRMClient) SetBaseURLs(primary, backup string) {
	if primary != "" {
		oc.primaryURL = primary
	}
	if backup != "" {
		oc.backupURL = backup
	}
}

// routeStrategy is one step of the ordered provider chain. Adding a third
// provider means appending one more entry, not more branching.
type routeStrategy struct {
	source  models.RouteSource
	attempt func(ctx context.Context) (*models.RouteResult, error)
}

// RouteDriving returns driving distance and duration between two coordinates.
//
// Providers are tried in order: primary OSRM, backup OSRM, then (when
// opts.AllowApproximate) the great-circle approximation, which always
// succeeds. With approximation disabled and both providers down, the returned
// error carries the last provider's failure.
func (oc *OSRMClient) RouteDriving(
	ctx context.Context,
	origin, dest models.Coordinate,
	opts RouteOptions,
) (*models.RouteResult, error) {
	speed := opts.ApproxSpeedKmh
	if speed <= 0 {
		speed = defaultApproxSpeedKmh
	}

	strategies := []routeStrategy{
		{models.SourceOSRMPrimary, func(ctx context.Context) (*models.RouteResult, error) {
			return oc.routeVia(ctx, oc.primaryURL, models.SourceOSRMPrimary, origin, dest)
		}},
		{models.SourceOSRMBackup, func(ctx context.Context) (*models.RouteResult, error) {
			return oc.routeVia(ctx, oc.backupURL, models.SourceOSRMBackup, origin, dest)
		}},
	}
	if opts.AllowApproximate {
		strategies = append(strategies, routeStrategy{models.SourceApprox, func(_ context.Context) (*models.RouteResult, error) {
			return approximateRoute(origin, dest, speed), nil
		}})
	}

	var lastErr error
	for idx, strategy := range strategies {
		result, err := strategy.attempt(ctx)
		if err == nil {
			if idx > 0 {
				oc.log.InfoContext(ctx, "Routing fell back", "source", result.Source, "depth", idx)
			}
			return result, nil
		}
		lastErr = err
		oc.log.WarnContext(ctx, "Routing provider failed", "source", strategy.source, "error", err)
	}

	return nil, fmt.Errorf("all routing providers failed: %w", lastErr)
}

// routeVia queries one OSRM-compatible server for a driving route.
func (oc *OSRMClient) routeVia(
	ctx context.Context,
	baseURL string,
	source models.RouteSource,
	origin, dest models.Coordinate,
) (*models.RouteResult, error) {
	rawURL := fmt.Sprintf("%s/route/v1/driving/%f,%f;%f,%f?overview=false&alternatives=false",
		baseURL, origin.Lon, origin.Lat, dest.Lon, dest.Lat)

	var result osrmRouteResponse
	if err := oc.getJSON(ctx, rawURL, &result); err != nil {
		return nil, err
	}

	if result.Code != "Ok" || len(result.Routes) == 0 {
		return nil, fmt.Errorf("%w: %s replied code %q with %d routes",
			ErrNoRoute, source, result.Code, len(result.Routes))
	}

	return &models.RouteResult{
		DistanceMeters:  result.Routes[0].Distance,
		DurationSeconds: result.Routes[0].Duration,
		Source:          source,
	}, nil
}

// NearestDriving snaps a raw coordinate to the nearest drivable road node,
// trying the primary then the backup server. Deliveries routed from a snapped
// point are more stable than ones routed from a building centroid; callers
// must tolerate a nil result by falling back to the raw coordinate.
func (oc *OSRMClient) NearestDriving(ctx context.Context, point models.Coordinate) (*models.Coordinate, error) {
	var lastErr error
	for _, baseURL := range []string{oc.primaryURL, oc.backupURL} {
		snapped, err := oc.nearestVia(ctx, baseURL, point)
		if err == nil {
			return snapped, nil
		}
		lastErr = err
		oc.log.DebugContext(ctx, "Nearest-road lookup failed", "base", baseURL, "error", err)
	}
	return nil, fmt.Errorf("%w: %w", ErrNoRoute, lastErr)
}

// nearestVia queries one server's nearest-road endpoint.
func (oc *OSRMClient) nearestVia(
	ctx context.Context,
	baseURL string,
	point models.Coordinate,
) (*models.Coordinate, error) {
	rawURL := fmt.Sprintf("%s/nearest/v1/driving/%f,%f?number=1", baseURL, point.Lon, point.Lat)

	var result osrmNearestResponse
	if err := oc.getJSON(ctx, rawURL, &result); err != nil {
		return nil, err
	}

	if len(result.Waypoints) == 0 || len(result.Waypoints[0].Location) != 2 {
		return nil, fmt.Errorf("%w: nearest reply had no usable waypoint", ErrNoRoute)
	}

	location := result.Waypoints[0].Location
	snapped := models.Coordinate{Lat: location[1], Lon: location[0]}
	if !snapped.Valid() {
		return nil, fmt.Errorf("%w: snapped point %f,%f out of range", ErrInvalidCoordinates, snapped.Lat, snapped.Lon)
	}
	return &snapped, nil
}

// getJSON executes a GET request and decodes the JSON reply into out.
func (oc *OSRMClient) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := oc.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute routing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("routing server returned status %d: %s", resp.StatusCode, string(body))
	}

	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode routing response: %w", err)
	}
	return nil
}

// approximateRoute derives a route result from the great-circle distance and
// an assumed speed. Distance is rounded to whole meters.
func approximateRoute(origin, dest models.Coordinate, speedKmh float64) *models.RouteResult {
	distanceKm := HaversineKm(origin, dest)
	return &models.RouteResult{
		DistanceMeters:  math.Round(distanceKm * 1000),
		DurationSeconds: math.Round(distanceKm / speedKmh * 3600),
		Source:          models.SourceApprox,
	}
}

// HaversineKm returns the great-circle distance between two coordinates in
// kilometers.
func HaversineKm(a, b models.Coordinate) float64 {
	rad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := rad(b.Lat - a.Lat)
	dLon := rad(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(a.Lat))*math.Cos(rad(b.Lat))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}
