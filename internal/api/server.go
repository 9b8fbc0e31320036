package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/MJE43/stake-wheel-go/internal/live"
	"github.com/MJE43/stake-wheel-go/internal/scan"
	"github.com/MJE43/stake-wheel-go/internal/session"
	"github.com/MJE43/stake-wheel-go/internal/store"
	"github.com/MJE43/stake-wheel-go/internal/wheel"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Options wires the server to its dependencies.
type Options struct {
	DB       store.DB
	Scanner  *scan.Scanner
	Sessions *session.Manager
	Hub      *live.Hub
	Logger   *zap.Logger

	MaxSegments        int
	RequestTimeout     time.Duration
	CORSOrigins        []string
	ScanDefaultLimit   int
	ScanDefaultTimeout time.Duration
	ScanMaxTimeout     time.Duration
}

// Server handles HTTP requests
type Server struct {
	db           store.DB
	scanner      *scan.Scanner
	sessions     *session.Manager
	hub          *live.Hub
	errorHandler *ErrorHandler
	log          *zap.Logger
	startTime    time.Time

	maxSegments        int
	requestTimeout     time.Duration
	corsOrigins        []string
	scanDefaultLimit   int
	scanDefaultTimeout time.Duration
	scanMaxTimeout     time.Duration
}

// NewServer creates a new API server
func NewServer(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("api")

	s := &Server{
		db:                 opts.DB,
		scanner:            opts.Scanner,
		sessions:           opts.Sessions,
		hub:                opts.Hub,
		errorHandler:       NewErrorHandler(log),
		log:                log,
		startTime:          time.Now(),
		maxSegments:        opts.MaxSegments,
		requestTimeout:     opts.RequestTimeout,
		corsOrigins:        opts.CORSOrigins,
		scanDefaultLimit:   opts.ScanDefaultLimit,
		scanDefaultTimeout: opts.ScanDefaultTimeout,
		scanMaxTimeout:     opts.ScanMaxTimeout,
	}
	if s.maxSegments <= 0 {
		s.maxSegments = 1000
	}
	if s.requestTimeout <= 0 {
		s.requestTimeout = 60 * time.Second
	}
	if s.scanDefaultLimit <= 0 {
		s.scanDefaultLimit = 1000
	}
	if s.scanDefaultTimeout <= 0 {
		s.scanDefaultTimeout = 30 * time.Second
	}
	if s.scanMaxTimeout < s.scanDefaultTimeout {
		s.scanMaxTimeout = s.scanDefaultTimeout
	}

	log.Info("api server created",
		zap.String("engine_version", EngineVersion),
		zap.Bool("scanner_enabled", s.scanner != nil),
		zap.Bool("database_enabled", s.db != nil),
		zap.Bool("sessions_enabled", s.sessions != nil),
	)
	return s
}

// Routes sets up the HTTP routes with proper middleware
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.RequestLogging)
	r.Use(s.errorHandler.RecoveryHandler)
	r.Use(s.CORSMiddleware)

	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.requestTimeout))
		r.Get("/health", s.handleHealthCheck)
		r.Get("/health/ready", s.handleReadiness)
		r.Get("/health/live", s.handleLiveness)
		r.Get("/version", s.handleVersion)
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Websocket subscriptions outlive the request timeout.
		r.Get("/sessions/{id}/events", s.handleSessionEvents)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.requestTimeout))

			r.Get("/tiers", s.handleTiers)
			r.Get("/legend", s.handleLegend)
			r.Post("/wheel/generate", s.handleGenerate)
			r.Post("/wheel/verify", s.handleVerify)
			r.Post("/seed/hash", s.handleSeedHash)

			r.Post("/scan", s.handleScan)
			r.Get("/runs", s.handleListRuns)
			r.Get("/runs/{id}", s.handleGetRun)
			r.Get("/runs/{id}/hits", s.handleGetRunHits)
			r.Get("/runs/{id}/export.csv", s.handleExportRunHits)

			r.Post("/sessions", s.handleCreateSession)
			r.Get("/sessions/{id}", s.handleGetSession)
			r.Delete("/sessions/{id}", s.handleDeleteSession)
			r.Put("/sessions/{id}/tier", s.handleSetTier)
			r.Put("/sessions/{id}/segments", s.handleSetSegments)
			r.Post("/sessions/{id}/regenerate", s.handleRegenerate)
			r.Post("/sessions/{id}/spin", s.handleSpin)
			r.Post("/sessions/{id}/spin/complete", s.handleCompleteSpin)
		})
	})

	return r
}

// writeJSON writes a JSON response with proper headers
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Engine-Version", EngineVersion)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("encode response", zap.Error(err))
	}
}

// parseTier wraps wheel.ParseTier for request fields; an empty value means
// the default tier.
func parseTier(s string) (wheel.Tier, error) {
	if s == "" {
		return wheel.DefaultTier, nil
	}
	return wheel.ParseTier(s)
}

func (s *Server) checkSegmentCount(count int) error {
	if count > s.maxSegments {
		return fmt.Errorf("%w: %d exceeds the maximum of %d", wheel.ErrInvalidSegmentCount, count, s.maxSegments)
	}
	return nil
}
