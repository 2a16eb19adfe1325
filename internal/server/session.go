package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/Rin111124/fastfood-geo/internal/models"
	"github.com/Rin111124/fastfood-geo/internal/quote"
	"github.com/gin-gonic/gin"
)

// SessionHandler exposes the stateful checkout-view orchestrator for a
// single-store kiosk frontend. Selections and suggestions are accepted
// immediately and resolved in the background; the frontend polls the state
// endpoint and renders whatever the session currently holds. Stale
// resolutions are discarded by the session itself, so the polled state is
// always the latest selection's.
type SessionHandler struct {
	log     *slog.Logger
	session *quote.Session
}

// NewSessionHandler creates the kiosk session handler.
func NewSessionHandler(log *slog.Logger, session *quote.Session) *SessionHandler {
	return &SessionHandler{log: log, session: session}
}

// RegisterRoutes registers the session routes.
func (h *SessionHandler) RegisterRoutes(r *gin.RouterGroup) {
	s := r.Group("/api/v1/session")
	{
		s.POST("/select", h.Select)
		s.POST("/suggest", h.Suggest)
		s.GET("/state", h.State)
		s.POST("/reset", h.Reset)
	}
}

// Select handles POST /api/v1/session/select. The pipeline runs in the
// background; the response only acknowledges that the selection was taken.
func (h *SessionHandler) Select(c *gin.Context) {
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

	// The resolution outlives this request; the provider clients carry their
	// own timeouts.
	go func() {
		if _, err := h.session.Select(context.Background(), req); err != nil {
			h.log.Debug("Session selection failed", "error", err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"state": quote.StateResolving})
}

// Suggest handles POST /api/v1/session/suggest?q=. The search fires after the
// debounce quiet period; rapid repeated calls collapse into one search.
func (h *SessionHandler) Suggest(c *gin.Context) {
	h.session.Suggest(context.Background(), c.Query("q"))
	c.Status(http.StatusAccepted)
}

// sessionState is the polled view of the session.
type sessionState struct {
	State      quote.State    `json:"state"`
	Quote      *quote.Quote   `json:"quote,omitempty"`
	Error      string         `json:"error,omitempty"`
	Candidates []models.Place `json:"candidates"`
}

// State handles GET /api/v1/session/state.
func (h *SessionHandler) State(c *gin.Context) {
	snap := h.session.Snapshot()
	state := sessionState{
		State:      snap.State,
		Quote:      snap.Quote,
		Candidates: snap.Candidates,
	}
	if snap.Err != nil {
		state.Error = snap.Err.Error()
	}
	if state.Candidates == nil {
		state.Candidates = []models.Place{}
	}
	c.JSON(http.StatusOK, state)
}

// Reset handles POST /api/v1/session/reset: back to idle, everything in
// flight invalidated.
func (h *SessionHandler) Reset(c *gin.Context) {
	h.session.Reset()
	c.Status(http.StatusNoContent)
}
