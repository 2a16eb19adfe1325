package models

// Place is a resolved address candidate: a human-readable label plus the
// coordinate it resolves to. Produced by place search and geocoding.
type Place struct {
	Label    string     `json:"label"`
	Location Coordinate `json:"location"`
}
