package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the configuration settings for the delivery estimation
// service: environment, server ports, geocoding locale, the store origin, and
// the fee tariff knobs.
//
// The store origin is either a fixed coordinate (FASTFOOD_STORE_LAT/LON) or
// an address (FASTFOOD_STORE_ADDRESS) geocoded once at startup; the address
// takes precedence when set.
type Config struct {
	Env              string        // Env is the current environment: local, development, production.
	APIPort          int           // APIPort is the delivery quote API port.
	MonitorPort      int           // MonitorPort is the health/metrics server port.
	Lang             string        // Preferred language for geocoding results.
	Country          string        // ISO country code filter for geocoding.
	StoreAddress     string        // Store address to geocode once, if set.
	StoreLat         float64       // Fixed store latitude (used when StoreAddress is empty).
	StoreLon         float64       // Fixed store longitude.
	BiasRadiusKm     float64       // Tight bias radius around the store for address geocoding.
	FreeRadiusKm     float64       // Free-delivery radius.
	FeePerKm         int64         // Fee per started km beyond the free radius.
	MaxRadiusKm      float64       // Service radius; delivery refused beyond it.
	ApproxSpeedKmh   float64       // Assumed speed for the approximate route fallback.
	AllowApproximate bool          // Whether routing may fall back to the approximation.
	Debounce         time.Duration // Quiet period before a suggest search fires.

	// Optional provider endpoint overrides for self-hosted instances; empty
	// means the public default.
	PhotonURL           string
	NominatimSearchURL  string
	NominatimReverseURL string
	OSRMPrimaryURL      string
	OSRMBackupURL       string
}

// MustLoad loads the configuration from environment variables, panicking on
// values that fail to parse.
func MustLoad() *Config {
	_ = godotenv.Load()

	return &Config{
		Env:              setDefaultEnv("FASTFOOD_ENV", "production"),
		APIPort:          mustInt("FASTFOOD_API_PORT", "8080"),
		MonitorPort:      mustInt("FASTFOOD_HEALTH_PORT", "9090"),
		Lang:             setDefaultEnv("FASTFOOD_LANG", "vi"),
		Country:          setDefaultEnv("FASTFOOD_COUNTRY", "vn"),
		StoreAddress:     os.Getenv("FASTFOOD_STORE_ADDRESS"),
		StoreLat:         mustFloat("FASTFOOD_STORE_LAT", "21.0395625"),
		StoreLon:         mustFloat("FASTFOOD_STORE_LON", "105.7854375"),
		BiasRadiusKm:     mustFloat("FASTFOOD_BIAS_RADIUS_KM", "7"),
		FreeRadiusKm:     mustFloat("FASTFOOD_FREE_RADIUS_KM", "3"),
		FeePerKm:         int64(mustInt("FASTFOOD_FEE_PER_KM", "5000")),
		MaxRadiusKm:      mustFloat("FASTFOOD_MAX_RADIUS_KM", "7"),
		ApproxSpeedKmh:   mustFloat("FASTFOOD_APPROX_SPEED_KMH", "25"),
		AllowApproximate: mustBool("FASTFOOD_ALLOW_APPROX", "true"),
		Debounce:         mustDuration("FASTFOOD_SUGGEST_DEBOUNCE", "300ms"),

		PhotonURL:           os.Getenv("FASTFOOD_PHOTON_URL"),
		NominatimSearchURL:  os.Getenv("FASTFOOD_NOMINATIM_SEARCH_URL"),
		NominatimReverseURL: os.Getenv("FASTFOOD_NOMINATIM_REVERSE_URL"),
		OSRMPrimaryURL:      os.Getenv("FASTFOOD_OSRM_PRIMARY_URL"),
		OSRMBackupURL:       os.Getenv("FASTFOOD_OSRM_BACKUP_URL"),
	}
}

func setDefaultEnv(key, override string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		value = override
	}

	return value
}

func mustInt(key, fallback string) int {
	value, err := strconv.Atoi(setDefaultEnv(key, fallback))
	if err != nil {
		panic("failed to parse " + key + " from configuration, must be an integer")
	}
	return value
}

func mustFloat(key, fallback string) float64 {
	value, err := strconv.ParseFloat(setDefaultEnv(key, fallback), 64)
	if err != nil {
		panic("failed to parse " + key + " from configuration, must be a number")
	}
	return value
}

func mustBool(key, fallback string) bool {
	value, err := strconv.ParseBool(setDefaultEnv(key, fallback))
	if err != nil {
		panic("failed to parse " + key + " from configuration, must be a boolean")
	}
	return value
}

func mustDuration(key, fallback string) time.Duration {
	value, err := time.ParseDuration(setDefaultEnv(key, fallback))
	if err != nil {
		panic("failed to parse " + key + " from configuration, must be a duration")
	}
	return value
}
