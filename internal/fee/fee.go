// Package fee computes delivery fees from driving distance. Everything here
// is pure and synchronous: no I/O, no external calls.
package fee

import (
	"fmt"
	"math"

	"github.com/Rin111124/fastfood-geo/internal/models"
)

// Default tariff values for the store's delivery zone.
const (
	DefaultFreeRadiusKm = 3.0
	DefaultPerKmFee     = 5000 // VND per started km beyond the free radius
	DefaultMaxRadiusKm  = 7.0
)

// Tariff holds the delivery pricing parameters.
type Tariff struct {
	FreeRadiusKm float64 // Distances strictly below this are free.
	PerKmFee     int64   // Fee per km or partial km beyond the free radius.
	MaxRadiusKm  float64 // Distances above this are refused (inclusive bound is served).
}

// DefaultTariff returns the standard tariff: free under 3 km, 5000 VND per
// started km between 3 and 7 km, refused beyond 7 km.
func DefaultTariff() Tariff {
	return Tariff{
		FreeRadiusKm: DefaultFreeRadiusKm,
		PerKmFee:     DefaultPerKmFee,
		MaxRadiusKm:  DefaultMaxRadiusKm,
	}
}

// Estimate derives a fee quote from a distance in kilometers.
//
// An unknown distance (NaN or infinite) yields a zero, unblocked quote: the
// caller must not charge shipping until the distance is known, but an
// undetermined distance is not an error state. Exactly FreeRadiusKm starts the
// paid tier (billed zero started km, so still fee 0), and exactly MaxRadiusKm
// is still served; these boundaries determine user-visible pricing and must
// not drift.
func (t Tariff) Estimate(distanceKm float64) models.FeeQuote {
	if math.IsNaN(distanceKm) || math.IsInf(distanceKm, 0) {
		return models.FeeQuote{}
	}

	if distanceKm < t.FreeRadiusKm {
		return models.FeeQuote{
			Fee:  0,
			Note: fmt.Sprintf("free delivery under %g km", t.FreeRadiusKm),
		}
	}

	if distanceKm > t.MaxRadiusKm {
		return models.FeeQuote{
			Fee:     0,
			Note:    fmt.Sprintf("delivery unavailable beyond %g km", t.MaxRadiusKm),
			Blocked: true,
		}
	}

	billableKm := math.Ceil(math.Max(0, distanceKm-t.FreeRadiusKm))
	return models.FeeQuote{
		Fee:  int64(billableKm) * t.PerKmFee,
		Note: fmt.Sprintf("%g VND per started km beyond %g km", float64(t.PerKmFee), t.FreeRadiusKm),
	}
}
