package models

// FeeQuote is the delivery fee derived from a distance. Fee is in whole
// currency units (VND has no minor unit). Blocked means delivery is refused
// beyond the service radius and the caller must disable the delivery option.
type FeeQuote struct {
	Fee     int64  `json:"fee"`
	Note    string `json:"note"`
	Blocked bool   `json:"blocked"`
}
