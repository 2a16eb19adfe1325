package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Rin111124/fastfood-geo/internal/metrics"
	"github.com/Rin111124/fastfood-geo/internal/models"
)

// PhotonBaseURL is the public Photon full-text place index.
const PhotonBaseURL = "https://photon.komoot.io/api/"

const defaultSearchLimit = 6

// PhotonClient implements the PlaceSearcher interface against the Photon
// full-text geocoder. Photon is free and fail-soft here: every failure mode
// maps to an empty candidate list, because "no candidates" is a normal UI
// state for an address suggestion box, not an exception.
type PhotonClient struct {
	client    HTTPClient   // HTTP client for making requests
	baseURL   string       // Base URL for the Photon API
	log       *slog.Logger // Logger for logging operations
	userAgent string
	metrics   *metrics.Metrics // optional; request outcomes are counted here
}

// SearchOptions tune a single place search.
type SearchOptions struct {
	Limit int                // Maximum candidates to return; defaults to 6.
	Lang  string             // Preferred result language (e.g. "vi").
	Bias  *models.Coordinate // Optional coordinate to bias ranking toward.
}

// photonResponse is the GeoJSON FeatureCollection returned by Photon.
type photonResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates []float64 `json:"coordinates"` // [lon, lat]
		} `json:"geometry"`
		Properties photonProperties `json:"properties"`
	} `json:"features"`
}

type photonProperties struct {
	Name        string `json:"name"`
	Street      string `json:"street"`
	Housenumber string `json:"housenumber"`
	Suburb      string `json:"suburb"`
	City        string `json:"city"`
	State       string `json:"state"`
	Country     string `json:"country"`
}

// label concatenates the known label fields, comma-separated, skipping blanks.
func (p photonProperties) label() string {
	parts := make([]string, 0, 7)
	for _, field := range []string{p.Name, p.Street, p.Housenumber, p.Suburb, p.City, p.State, p.Country} {
		if field != "" {
			parts = append(parts, field)
		}
	}
	return strings.Join(parts, ", ")
}

// NewPhotonClient creates a place-search client against the public Photon API.
func NewPhotonClient(log *slog.Logger) *PhotonClient {
	const timeout = 10
	return &PhotonClient{
		client: &http.Client{
			Timeout: timeout * time.Second,
		},
		baseURL:   PhotonBaseURL,
		log:       log,
		userAgent: "fastfood-geo/1.0 (https://github.com/Rin111124/fastfood-geo)",
	}
}

// NewPhotonClientWithClient creates a Photon client with a custom HTTP client.
// Useful for testing with mocked HTTP clients.
func NewPhotonClientWithClient(client HTTPClient, log *slog.Logger) *PhotonClient {
	pc := NewPhotonClient(log)
	pc.client = client
	return pc
}

// SetBaseURL overrides the Photon endpoint, for self-hosted instances.
func (pc *PhotonClient) SetBaseURL(base string) {
	if base != "" {
		pc.baseURL = base
	}
}

// SetMetrics attaches request accounting. Failures are swallowed to empty
// candidate lists, so the outcome is only known here, not at the call site.
func (pc *PhotonClient) SetMetrics(m *metrics.Metrics) {
	pc.metrics = m
}

func (pc *PhotonClient) countRequest(outcome string) {
	if pc.metrics != nil {
		pc.metrics.ProviderRequests.WithLabelValues("photon", outcome).Inc()
	}
}

// SearchPlaces returns ranked address candidates for partial user text.
//
// An empty or whitespace-only query returns nil without a network call.
// If the first search yields zero usable candidates, it retries once with
// diacritics stripped from the query; a second empty result is returned as an
// empty list, not an error. Network and parse failures are swallowed to an
// empty list as well, after logging.
func (pc *PhotonClient) SearchPlaces(ctx context.Context, query string, opts SearchOptions) []models.Place {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	if opts.Limit <= 0 {
		opts.Limit = defaultSearchLimit
	}

	places, err := pc.searchOnce(ctx, query, opts)
	if err != nil {
		pc.log.ErrorContext(ctx, "Photon search failed", "query", query, "error", err)
	}
	if len(places) > 0 {
		return places
	}

	// Accent fallback: addresses are often typed without Vietnamese tone marks.
	stripped := StripDiacritics(query)
	if stripped == query {
		return places
	}

	places, err = pc.searchOnce(ctx, stripped, opts)
	if err != nil {
		pc.log.ErrorContext(ctx, "Photon accent-fallback search failed", "query", stripped, "error", err)
		return nil
	}
	if len(places) > 0 {
		pc.log.DebugContext(ctx, "Photon matched with diacritics stripped", "original", query, "fallback", stripped)
	}
	return places
}

// searchOnce performs a single Photon request without fallback logic and
// records its outcome.
func (pc *PhotonClient) searchOnce(ctx context.Context, query string, opts SearchOptions) ([]models.Place, error) {
	places, err := pc.doSearch(ctx, query, opts)
	if err != nil {
		pc.countRequest("failure")
		return nil, err
	}
	pc.countRequest("success")
	return places, nil
}

func (pc *PhotonClient) doSearch(ctx context.Context, query string, opts SearchOptions) ([]models.Place, error) {
	reqURL, err := url.Parse(pc.baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}

	params := reqURL.Query()
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(opts.Limit))
	if opts.Lang != "" {
		params.Set("lang", opts.Lang)
	}
	if opts.Bias != nil {
		params.Set("lat", strconv.FormatFloat(opts.Bias.Lat, 'f', -1, 64))
		params.Set("lon", strconv.FormatFloat(opts.Bias.Lon, 'f', -1, 64))
	}
	reqURL.RawQuery = params.Encode()

	pc.log.DebugContext(ctx, "Photon request URL", "url", reqURL.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", pc.userAgent)

	resp, err := pc.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("photon API returned status %d: %s", resp.StatusCode, string(body))
	}

	var result photonResponse
	if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode photon response: %w", err)
	}

	places := make([]models.Place, 0, len(result.Features))
	for _, feature := range result.Features {
		coords := feature.Geometry.Coordinates
		if len(coords) != 2 {
			continue
		}
		point := models.Coordinate{Lat: coords[1], Lon: coords[0]}
		label := feature.Properties.label()
		if label == "" || !point.Valid() {
			continue
		}
		places = append(places, models.Place{Label: label, Location: point})
	}

	return places, nil
}
