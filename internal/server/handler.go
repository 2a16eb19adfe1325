// Package server exposes the delivery-estimation pipeline over HTTP for the
// storefront cart view.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Rin111124/fastfood-geo/internal/geo"
	"github.com/Rin111124/fastfood-geo/internal/metrics"
	"github.com/Rin111124/fastfood-geo/internal/models"
	"github.com/Rin111124/fastfood-geo/internal/quote"
	"github.com/gin-gonic/gin"
)

// requestTimeout bounds every pipeline run triggered by a request, so a hung
// third-party service cannot pin a handler.
const requestTimeout = 15 * time.Second

// QuoteService is the part of the quote pipeline the handlers need.
type QuoteService interface {
	Quote(ctx context.Context, req quote.Request) (*quote.Quote, error)
}

// Handler wires the pipeline components to HTTP routes.
type Handler struct {
	log        *slog.Logger
	places     geo.PlaceSearcher
	geocoder   geo.Geocoder
	quotes     QuoteService
	searchOpts geo.SearchOptions
	metrics    *metrics.Metrics
}

// NewHandler creates the API handler.
func NewHandler(
	log *slog.Logger,
	places geo.PlaceSearcher,
	geocoder geo.Geocoder,
	quotes QuoteService,
	searchOpts geo.SearchOptions,
	appMetrics *metrics.Metrics,
) *Handler {
	return &Handler{
		log:        log,
		places:     places,
		geocoder:   geocoder,
		quotes:     quotes,
		searchOpts: searchOpts,
		metrics:    appMetrics,
	}
}

// RegisterRoutes registers the delivery estimation routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	api := r.Group("/api/v1")
	{
		api.GET("/places", h.SearchPlaces)
		api.GET("/geocode", h.GeocodeAddress)
		api.GET("/reverse", h.ReverseGeocode)
		api.POST("/quote", h.CreateQuote)
	}
}

// SearchPlaces handles GET /api/v1/places?q=&limit=&lat=&lon=.
// It always answers 200; an empty candidate list is a normal state.
func (h *Handler) SearchPlaces(c *gin.Context) {
	opts := h.searchOpts
	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		opts.Limit = limit
	}
	if bias, ok, bad := optionalCoordinate(c); bad != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": bad})
		return
	} else if ok {
		opts.Bias = &bias
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	// Request outcomes are counted inside the Photon client; failures never
	// surface here.
	started := time.Now()
	candidates := h.places.SearchPlaces(ctx, c.Query("q"), opts)
	h.metrics.RequestSeconds.WithLabelValues("photon").Observe(time.Since(started).Seconds())

	if candidates == nil {
		candidates = []models.Place{}
	}
	c.JSON(http.StatusOK, gin.H{"candidates": candidates})
}

// GeocodeAddress handles GET /api/v1/geocode?address=.
func (h *Handler) GeocodeAddress(c *gin.Context) {
	address := c.Query("address")
	if address == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "address is required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	place, err := h.geocoder.GeocodeAddress(ctx, address, geo.GeocodeOptions{})
	if err != nil {
		if errors.Is(err, geo.ErrNoResult) {
			c.JSON(http.StatusNotFound, gin.H{"error": "address not found"})
			return
		}
		h.log.ErrorContext(ctx, "Geocode request failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "geocoding unavailable"})
		return
	}

	c.JSON(http.StatusOK, place)
}

// ReverseGeocode handles GET /api/v1/reverse?lat=&lon=.
func (h *Handler) ReverseGeocode(c *gin.Context) {
	point, ok, bad := optionalCoordinate(c)
	if bad != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": bad})
		return
	}
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat and lon are required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	place, err := h.geocoder.ReverseGeocode(ctx, point, "")
	if err != nil {
		if errors.Is(err, geo.ErrNoResult) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no address at this point"})
			return
		}
		h.log.ErrorContext(ctx, "Reverse geocode request failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "geocoding unavailable"})
		return
	}

	c.JSON(http.StatusOK, place)
}

// QuoteRequest is the body of POST /api/v1/quote. Either address or both
// lat/lon must be present.
type QuoteRequest struct {
	Address string   `json:"address"`
	Lat     *float64 `json:"lat"`
	Lon     *float64 `json:"lon"`
}

// CreateQuote handles POST /api/v1/quote. Blocked quotes still answer 200;
// the blocked flag is the client's hard stop. An unresolvable address answers
// 422 so the UI can prompt for re-entry.
func (h *Handler) CreateQuote(c *gin.Context) {
	var body QuoteRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req := quote.Request{Address: body.Address}
	if body.Lat != nil || body.Lon != nil {
		if body.Lat == nil || body.Lon == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "lat and lon must be given together"})
			return
		}
		point := models.Coordinate{Lat: *body.Lat, Lon: *body.Lon}
		if !point.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "lat/lon out of range"})
			return
		}
		req.Point = &point
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	result, err := h.quotes.Quote(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, quote.ErrAddressNotFound):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "address not found"})
		case errors.Is(err, quote.ErrNoDestination):
			c.JSON(http.StatusBadRequest, gin.H{"error": "address or lat/lon is required"})
		default:
			h.log.ErrorContext(ctx, "Quote request failed", "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "delivery estimation unavailable"})
		}
		return
	}

	c.JSON(http.StatusOK, result)
}

// optionalCoordinate reads lat/lon query params. ok reports whether both were
// present; bad carries a validation message when either is malformed.
func optionalCoordinate(c *gin.Context) (point models.Coordinate, ok bool, bad string) {
	latStr, lonStr := c.Query("lat"), c.Query("lon")
	if latStr == "" && lonStr == "" {
		return models.Coordinate{}, false, ""
	}
	if latStr == "" || lonStr == "" {
		return models.Coordinate{}, false, "lat and lon must be given together"
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return models.Coordinate{}, false, "lat must be a valid latitude"
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return models.Coordinate{}, false, "lon must be a valid longitude"
	}

	point = models.Coordinate{Lat: lat, Lon: lon}
	if !point.Valid() {
		return models.Coordinate{}, false, "lat/lon out of range"
	}
	return point, true, ""
}
