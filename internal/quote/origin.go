package quote

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Rin111124/fastfood-geo/internal/geo"
	"github.com/Rin111124/fastfood-geo/internal/models"
)

// OriginCache memoizes the store origin coordinate for the lifetime of the
// process. The origin is either configured directly (lat/lon) or geocoded
// once from a configured address; after the first successful resolution it is
// read-only and safe to share across all quote pipelines.
type OriginCache struct {
	mu       sync.Mutex
	resolved *models.Place

	fixed    *models.Coordinate // configured coordinate, if any
	address  string             // address to geocode when no fixed coordinate
	geocoder geo.Geocoder
	opts     geo.GeocodeOptions
	log      *slog.Logger
}

// NewFixedOrigin creates a cache around an already-known store coordinate.
func NewFixedOrigin(point models.Coordinate, label string) *OriginCache {
	return &OriginCache{
		fixed:    &point,
		resolved: &models.Place{Label: label, Location: point},
	}
}

// NewGeocodedOrigin creates a cache that resolves the store address through
// the geocoder on first use.
func NewGeocodedOrigin(address string, geocoder geo.Geocoder, opts geo.GeocodeOptions, log *slog.Logger) *OriginCache {
	return &OriginCache{
		address:  address,
		geocoder: geocoder,
		opts:     opts,
		log:      log,
	}
}

// Resolve returns the store origin, geocoding it on first call. Failures are
// not cached; the next call retries.
func (oc *OriginCache) Resolve(ctx context.Context) (models.Place, error) {
	oc.mu.Lock()
	defer oc.mu.Unlock()

	if oc.resolved != nil {
		return *oc.resolved, nil
	}

	place, err := oc.geocoder.GeocodeAddress(ctx, oc.address, oc.opts)
	if err != nil {
		return models.Place{}, fmt.Errorf("failed to resolve store origin %q: %w", oc.address, err)
	}

	oc.log.InfoContext(ctx, "Store origin resolved",
		"address", oc.address,
		"lat", place.Location.Lat,
		"lon", place.Location.Lon)

	oc.resolved = place
	return *place, nil
}

// Cached returns the memoized origin without triggering a resolution.
func (oc *OriginCache) Cached() (models.Place, bool) {
	oc.mu.Lock()
	defer oc.mu.Unlock()
	if oc.resolved == nil {
		return models.Place{}, false
	}
	return *oc.resolved, true
}

// Reset clears the memoized origin so the next Resolve geocodes again.
// Fixed-coordinate caches keep their configured point.
func (oc *OriginCache) Reset() {
	oc.mu.Lock()
	defer oc.mu.Unlock()
	if oc.fixed != nil {
		return
	}
	oc.resolved = nil
}
