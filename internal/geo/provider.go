package geo

import (
	"context"
	"errors"
	"net/http"

	"github.com/Rin111124/fastfood-geo/internal/models"
)

// HTTPClient defines the interface for making HTTP requests.
// This allows for easy mocking in tests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Common errors shared by the providers in this package.
var (
	// ErrNoResult means a geocoding query resolved to nothing after all
	// retry attempts. Callers must treat it as "address unresolvable" and
	// prompt the user, not crash.
	ErrNoResult = errors.New("geocoder returned no results")
	// ErrNoRoute means no routing provider could produce a route or a
	// nearest-road snap.
	ErrNoRoute = errors.New("routing providers returned no route")
	// ErrInvalidCoordinates means a provider replied with coordinates that
	// could not be parsed or validated.
	ErrInvalidCoordinates = errors.New("provider returned invalid coordinates")
)

// PlaceSearcher returns ranked address candidates for partial user text.
type PlaceSearcher interface {
	SearchPlaces(ctx context.Context, query string, opts SearchOptions) []models.Place
}

// Geocoder resolves free-text addresses to coordinates and back.
type Geocoder interface {
	GeocodeAddress(ctx context.Context, address string, opts GeocodeOptions) (*models.Place, error)
	ReverseGeocode(ctx context.Context, point models.Coordinate, lang string) (*models.Place, error)
}

// Router finds drivable roads and driving routes between coordinates.
type Router interface {
	NearestDriving(ctx context.Context, point models.Coordinate) (*models.Coordinate, error)
	RouteDriving(ctx context.Context, origin, dest models.Coordinate, opts RouteOptions) (*models.RouteResult, error)
}
