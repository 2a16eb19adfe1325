package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Rin111124/fastfood-geo/internal/config"
	"github.com/Rin111124/fastfood-geo/internal/fee"
	"github.com/Rin111124/fastfood-geo/internal/geo"
	"github.com/Rin111124/fastfood-geo/internal/metrics"
	"github.com/Rin111124/fastfood-geo/internal/models"
	"github.com/Rin111124/fastfood-geo/internal/quote"
	"github.com/Rin111124/fastfood-geo/internal/server"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Constants for different environment types.
const (
	envLocal = "local"
	envDev   = "development"
	envProd  = "production"
)

// main is the entry point of the application.
func main() {
	// Create a context that will be canceled when an interrupt signal is received.
	// This allows for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load application configuration.
	cfg := config.MustLoad()

	// Set up the logger based on the environment.
	logger := setupLogger(cfg.Env)

	// Create a separate registry for metrics with exemplar
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.NewMetrics(reg)

	// External geo providers: Photon for place search, Nominatim for
	// geocoding, OSRM (primary + backup) for routing.
	photon := geo.NewPhotonClient(logger)
	photon.SetBaseURL(cfg.PhotonURL)
	photon.SetMetrics(appMetrics)
	nominatim := geo.NewNominatimClient(logger)
	nominatim.SetBaseURLs(cfg.NominatimSearchURL, cfg.NominatimReverseURL)
	osrm := geo.NewOSRMClient(logger)
	osrm.SetBaseURLs(cfg.OSRMPrimaryURL, cfg.OSRMBackupURL)

	geocodeOpts := geo.GeocodeOptions{Lang: cfg.Lang, Country: cfg.Country}

	// The store origin is resolved once and reused across all distance
	// calculations for the session.
	var origin *quote.OriginCache
	if cfg.StoreAddress != "" {
		origin = quote.NewGeocodedOrigin(cfg.StoreAddress, nominatim, geocodeOpts, logger)
	} else {
		origin = quote.NewFixedOrigin(models.Coordinate{Lat: cfg.StoreLat, Lon: cfg.StoreLon}, "store")
	}

	tariff := fee.Tariff{
		FreeRadiusKm: cfg.FreeRadiusKm,
		PerKmFee:     cfg.FeePerKm,
		MaxRadiusKm:  cfg.MaxRadiusKm,
	}
	routeOpts := geo.RouteOptions{
		AllowApproximate: cfg.AllowApproximate,
		ApproxSpeedKmh:   cfg.ApproxSpeedKmh,
	}

	// The destination bias box is only pinned here when the store origin is a
	// configured coordinate. In address mode the real origin is whatever the
	// address geocodes to, so the box is left unset and the service derives it
	// from the resolved origin per request.
	biasedGeocode := geocodeOpts
	if cfg.StoreAddress == "" {
		biasedGeocode.Bias = &geo.BiasBox{
			Center:   models.Coordinate{Lat: cfg.StoreLat, Lon: cfg.StoreLon},
			RadiusKm: cfg.BiasRadiusKm,
		}
	}
	quoteService := quote.NewService(logger, nominatim, osrm, origin, tariff, routeOpts, biasedGeocode, appMetrics)

	// Warm the origin cache; a failure here is not fatal, the first quote
	// retries the resolution.
	go func() {
		if _, err := origin.Resolve(ctx); err != nil {
			logger.WarnContext(ctx, "Store origin warm-up failed", "error", err)
		}
	}()

	searchOpts := geo.SearchOptions{Lang: cfg.Lang}
	if cfg.StoreAddress == "" {
		searchOpts.Bias = &models.Coordinate{Lat: cfg.StoreLat, Lon: cfg.StoreLon}
	}
	apiHandler := server.NewHandler(logger, photon, nominatim, quoteService, searchOpts, appMetrics)

	// Stateful session surface for the kiosk frontend: debounced suggest,
	// background selection, polled state.
	session := quote.NewSession(quoteService, photon, searchOpts, quote.NewDebouncer(cfg.Debounce), logger)
	sessionHandler := server.NewSessionHandler(logger, session)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	apiHandler.RegisterRoutes(&router.RouterGroup)
	sessionHandler.RegisterRoutes(&router.RouterGroup)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.APIPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 20 * time.Second,
	}

	go func() {
		logger.InfoContext(ctx, "Delivery estimation API starting", "port", cfg.APIPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorContext(ctx, "API server failed", "error", err)
			stop()
		}
	}()

	// Start the monitoring server in a goroutine to allow main to listen for signals.
	go startMonitoringServer(ctx, logger, reg, origin, cfg.MonitorPort)

	// Log that the application has started.
	logger.InfoContext(ctx, "Application started. Press Ctrl+C to stop.")

	// Wait for the context to be canceled (e.g., by Ctrl+C).
	<-ctx.Done()

	// Log that a shutdown signal has been received.
	logger.InfoContext(ctx, "Shutdown signal received. Stopping application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.ErrorContext(ctx, "API server forced shutdown", "error", err)
	}

	// Log graceful shutdown completion.
	logger.InfoContext(ctx, "Application stopped gracefully.")
}

// startMonitoringServer starts an HTTP server that provides health check and metrics endpoints.
// It listens on the specified port and logs the server's status and any errors encountered.
//
// Parameters:
// - ctx: A context.Context for managing cancellation and timeouts.
// - log: A logger for logging server events and errors.
// - reg: A registry with Prometheus collectors.
// - origin: The store origin cache, reported by the health check.
// - port: The port number on which the server will listen.
func startMonitoringServer(
	ctx context.Context,
	log *slog.Logger,
	reg *prometheus.Registry,
	origin *quote.OriginCache,
	port int,
) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(writer http.ResponseWriter, _ *http.Request) {
		log.DebugContext(ctx, "Performing health checks...")
		status, body := http.StatusOK, "OK"
		if _, cached := origin.Cached(); !cached {
			status, body = http.StatusServiceUnavailable, "store origin unresolved"
		}
		writer.WriteHeader(status)
		_, err := writer.Write([]byte(body))
		if err != nil {
			log.ErrorContext(ctx, "failed to write reply", "error", err)
		}

		log.DebugContext(ctx, "Health checks completed", "status", status)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	log.InfoContext(ctx, "Starting monitoring server", "port", port)
	readTimeout := 5
	writeTimeout := 10
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  time.Duration(readTimeout) * time.Second,
		WriteTimeout: time.Duration(writeTimeout) * time.Second,
	}
	if err := server.ListenAndServe(); err != nil {
		log.ErrorContext(ctx, "Monitoring server failed", "error", err)
	}
}

// setupLogger initializes and returns a logger based on the environment provided.
func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
				Level:     slog.LevelDebug,
				AddSource: true,
			}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level:     slog.LevelInfo,
				AddSource: false,
			}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level:     slog.LevelWarn,
				AddSource: false,
			}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level:     slog.LevelError,
				AddSource: false,
			}),
		)

		log.Error(
			"The env parameter was not specified or was invalid. Logging will be minimal, by default.",
			slog.String("available_envs", "local, development, production"))
	}

	return log
}
