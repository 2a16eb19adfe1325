package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Rin111124/fastfood-geo/internal/models"
	"golang.org/x/time/rate"
)

// Nominatim endpoints (public OSM instance).
const (
	NominatimSearchURL  = "https://nominatim.openstreetmap.org/search"
	NominatimReverseURL = "https://nominatim.openstreetmap.org/reverse"
)

// Degree sizes used to convert a kilometer bias radius into a viewbox.
const (
	kmPerLatDegree = 110.574
	kmPerLonDegree = 111.320 // at the equator, scaled by cos(lat)
)

// wideBiasRadiusKm is the floor the bias radius is widened to on the second
// geocode attempt. Tight-first avoids false positives near the store; the wide
// retry avoids false negatives for addresses slightly outside the assumed
// radius.
const wideBiasRadiusKm = 25

// NominatimClient implements the Geocoder interface using OpenStreetMap's
// Nominatim API. This is a free geocoding service with usage limits
// (1 request/second for fair use), hence the rate limiter.
type NominatimClient struct {
	client     HTTPClient    // HTTP client for making requests
	searchURL  string        // Base URL for forward geocoding
	reverseURL string        // Base URL for reverse geocoding
	log        *slog.Logger  // Logger for logging operations
	limiter    *rate.Limiter // Rate limiter per Nominatim fair-use policy
	// userAgent is required by Nominatim usage policy
	userAgent string
}

// BiasBox constrains geocoding results to a box around a center point.
type BiasBox struct {
	Center   models.Coordinate
	RadiusKm float64
}

// GeocodeOptions tune a single-address geocode.
type GeocodeOptions struct {
	Lang    string   // Preferred result language (accept-language header/param).
	Country string   // ISO country code filter (countrycodes param).
	Bias    *BiasBox // Optional proximity box; widened on the retry attempt.
}

// nominatimResult is one element of the jsonv2 search response. Coordinates
// arrive as strings.
type nominatimResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// NewNominatimClient creates a geocoder against the public Nominatim API.
func NewNominatimClient(log *slog.Logger) *NominatimClient {
	const timeout = 10
	return &NominatimClient{
		client: &http.Client{
			Timeout: timeout * time.Second,
		},
		searchURL:  NominatimSearchURL,
		reverseURL: NominatimReverseURL,
		log:        log,
		limiter:    rate.NewLimiter(1, 1),
		// User-Agent MUST include valid contact info per Nominatim usage policy:
		// https://operations.osmfoundation.org/policies/nominatim/
		userAgent: "fastfood-geo/1.0 (https://github.com/Rin111124/fastfood-geo)",
	}
}

// NewNominatimClientWithClient creates a Nominatim client with a custom HTTP
// client and rate limiter. Useful for testing with mocked HTTP clients.
func NewNominatimClientWithClient(client HTTPClient, limiter *rate.Limiter, log *slog.Logger) *NominatimClient {
	nc := NewNominatimClient(log)
	nc.client = client
	nc.limiter = limiter
	return nc
}

// SetBaseURLs overrides the search and reverse endpoints, for self-hosted
// Nominatim instances. Empty strings keep the current endpoints.
func (nc *NominatimClient) SetBaseURLs(search, reverse string) {
	if search != "" {
		nc.searchURL = search
	}
	if reverse != "" {
		nc.reverseURL = reverse
	}
}

// geocodeAttempt is one (query, constraints) pair in the ordered retry list.
type geocodeAttempt struct {
	query string
	bias  *BiasBox
}

// geocodeAttempts builds the ordered attempt list for an address: the verbatim
// query constrained to the tight bias box first, then the diacritics-stripped
// query with the box widened to at least wideBiasRadiusKm.
func geocodeAttempts(address string, opts GeocodeOptions) []geocodeAttempt {
	attempts := []geocodeAttempt{{query: address, bias: opts.Bias}}

	stripped := StripDiacritics(address)
	relaxed := opts.Bias
	if relaxed != nil {
		widened := *relaxed
		widened.RadiusKm = math.Max(wideBiasRadiusKm, widened.RadiusKm)
		relaxed = &widened
	}
	if stripped != address || (opts.Bias != nil && relaxed.RadiusKm != opts.Bias.RadiusKm) {
		attempts = append(attempts, geocodeAttempt{query: stripped, bias: relaxed})
	}

	return attempts
}

// GeocodeAddress resolves one free-text address to a coordinate and label.
//
// It tries the attempt list from geocodeAttempts in order until one yields a
// result. Transient provider errors count as a miss and trigger the next
// attempt. When every attempt comes back empty it returns ErrNoResult, which
// callers must treat as "address unresolvable", not a crash.
func (nc *NominatimClient) GeocodeAddress(
	ctx context.Context,
	address string,
	opts GeocodeOptions,
) (*models.Place, error) {
	nc.log.DebugContext(ctx, "Geocoding using Nominatim", "address", address)

	attempts := geocodeAttempts(address, opts)
	for idx, attempt := range attempts {
		place, err := nc.geocodeOnce(ctx, attempt.query, attempt.bias, opts)
		if err == nil {
			if idx > 0 {
				nc.log.InfoContext(ctx, "Geocoded using relaxed attempt",
					"original", address,
					"fallback", attempt.query,
					"attempt", idx)
			}
			return place, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("geocoding canceled: %w", ctx.Err())
		}
		nc.log.DebugContext(ctx, "Geocode attempt yielded nothing",
			"query", attempt.query,
			"attempt", idx,
			"error", err)
	}

	nc.log.WarnContext(ctx, "All geocode attempts exhausted",
		"address", address,
		"attempts_tried", len(attempts))
	return nil, ErrNoResult
}

// geocodeOnce performs a single forward-geocoding request without retry logic.
func (nc *NominatimClient) geocodeOnce(
	ctx context.Context,
	query string,
	bias *BiasBox,
	opts GeocodeOptions,
) (*models.Place, error) {
	if err := nc.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	reqURL, err := url.Parse(nc.searchURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}

	params := reqURL.Query()
	params.Set("q", query)
	params.Set("format", "jsonv2")
	params.Set("addressdetails", "1")
	params.Set("limit", "1") // Only need the top result
	if opts.Lang != "" {
		params.Set("accept-language", opts.Lang)
	}
	if opts.Country != "" {
		params.Set("countrycodes", opts.Country)
	}
	if bias != nil {
		params.Set("viewbox", viewbox(bias.Center, bias.RadiusKm))
		params.Set("bounded", "1")
	}
	reqURL.RawQuery = params.Encode()

	nc.log.DebugContext(ctx, "Nominatim request URL", "url", reqURL.String())

	results, err := nc.execute(ctx, reqURL.String())
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, ErrNoResult
	}

	return nc.toPlace(results[0])
}

// ReverseGeocode resolves a coordinate to a display name.
func (nc *NominatimClient) ReverseGeocode(
	ctx context.Context,
	point models.Coordinate,
	lang string,
) (*models.Place, error) {
	if err := nc.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	reqURL, err := url.Parse(nc.reverseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}

	params := reqURL.Query()
	params.Set("format", "jsonv2")
	params.Set("lat", strconv.FormatFloat(point.Lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(point.Lon, 'f', -1, 64))
	if lang != "" {
		params.Set("accept-language", lang)
	}
	reqURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", nc.userAgent)

	resp, err := nc.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute reverse request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("nominatim API returned status %d: %s", resp.StatusCode, string(body))
	}

	var result nominatimResult
	if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode nominatim response: %w", err)
	}
	if result.DisplayName == "" {
		return nil, ErrNoResult
	}

	return &models.Place{Label: result.DisplayName, Location: point}, nil
}

// execute runs a search request and decodes the result array.
func (nc *NominatimClient) execute(ctx context.Context, rawURL string) ([]nominatimResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Set required headers per Nominatim usage policy
	req.Header.Set("User-Agent", nc.userAgent)

	resp, err := nc.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute geocoding request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		nc.log.ErrorContext(ctx, "Nominatim API error", "status", resp.StatusCode, "body", string(body))
		return nil, fmt.Errorf("nominatim API returned status %d: %s", resp.StatusCode, string(body))
	}

	var results []nominatimResult
	if err = json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("failed to decode nominatim response: %w", err)
	}

	return results, nil
}

// toPlace parses the string coordinates of a result into a Place.
func (nc *NominatimClient) toPlace(result nominatimResult) (*models.Place, error) {
	lat, err := strconv.ParseFloat(result.Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid latitude: %s", ErrInvalidCoordinates, result.Lat)
	}
	lon, err := strconv.ParseFloat(result.Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid longitude: %s", ErrInvalidCoordinates, result.Lon)
	}

	point := models.Coordinate{Lat: lat, Lon: lon}
	if !point.Valid() {
		return nil, fmt.Errorf("%w: %f,%f out of range", ErrInvalidCoordinates, lat, lon)
	}

	return &models.Place{Label: result.DisplayName, Location: point}, nil
}

// viewbox converts a kilometer radius around a center into the
// "left,top,right,bottom" box Nominatim expects.
func viewbox(center models.Coordinate, radiusKm float64) string {
	dLat := radiusKm / kmPerLatDegree
	dLon := radiusKm / (kmPerLonDegree * math.Cos(center.Lat*math.Pi/180))

	left := center.Lon - dLon
	right := center.Lon + dLon
	top := center.Lat + dLat
	bottom := center.Lat - dLat

	return fmt.Sprintf("%f,%f,%f,%f", left, top, right, bottom)
}
