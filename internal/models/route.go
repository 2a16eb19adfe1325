package models

// RouteSource identifies which provider produced a route result. Consumers
// branch on it, e.g. to show an "estimated" label for approximate routes.
type RouteSource string

const (
	// SourceOSRMPrimary marks results from the primary OSRM routing server.
	SourceOSRMPrimary RouteSource = "osrm-primary"
	// SourceOSRMBackup marks results from the backup routing server.
	SourceOSRMBackup RouteSource = "osrm-backup"
	// SourceApprox marks results derived from the great-circle approximation.
	SourceApprox RouteSource = "approx"
)

// RouteResult holds driving distance and duration between two coordinates.
type RouteResult struct {
	DistanceMeters  float64     `json:"distance_m"`
	DurationSeconds float64     `json:"duration_s"`
	Source          RouteSource `json:"source"`
}

// Approximate reports whether the result came from the haversine fallback
// rather than a routing engine.
func (r RouteResult) Approximate() bool {
	return r.Source == SourceApprox
}
