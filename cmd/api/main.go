package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gracechapel/treasury/internal/api/handlers"
	"github.com/gracechapel/treasury/internal/api/middleware"
	"github.com/gracechapel/treasury/internal/blob"
	"github.com/gracechapel/treasury/internal/config"
	"github.com/gracechapel/treasury/internal/domain"
	infraBQ "github.com/gracechapel/treasury/internal/infra/bigquery"
	"github.com/gracechapel/treasury/internal/logger"
	"github.com/gracechapel/treasury/internal/report"
	"github.com/gracechapel/treasury/internal/repo"
	"github.com/gracechapel/treasury/internal/repo/inmemory"
	"github.com/gracechapel/treasury/internal/treasury"
)

func main() {
	// Parse command-line flags
	var (
		configPath = flag.String("config", os.Getenv("TREASURY_CONFIG"), "Path to YAML config file (or set TREASURY_CONFIG env)")
		port       = flag.Int("port", 0, "HTTP server port (overrides config)")
		bucket     = flag.String("bucket", "", "GCS bucket for proof uploads (overrides config)")
	)
	flag.Parse()

	bootLog := logger.New()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog.Fatal().Err(err).Str("path", *configPath).Msg("Failed to load configuration")
	}
	if *port != 0 {
		cfg.HTTP.Port = *port
	}
	if *bucket != "" {
		cfg.Storage.Bucket = *bucket
	}

	log := logger.NewWithLevel(cfg.Logging.Level)
	ctx := context.Background()

	// Initialize repositories and blob storage. Without a BigQuery project
	// or a bucket the server runs fully in-memory for local development.
	var (
		payments repo.PaymentRepository
		members  repo.MemberRepository
		blobs    blob.Store
	)
	if cfg.BigQuery.Project != "" {
		bqRepo, err := infraBQ.NewRepository(ctx, cfg.BigQuery.Project, cfg.BigQuery.Dataset)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create BigQuery repository")
		}
		defer bqRepo.Close()
		payments = bqRepo
		members = bqRepo
	} else {
		log.Warn().Msg("No BigQuery project configured - using in-memory storage")
		mem := inmemory.NewStore()
		seedDevMembers(ctx, mem, log)
		payments = mem
		members = mem
	}

	if cfg.Storage.Bucket != "" {
		gcs, err := blob.NewGCSStore(ctx, cfg.Storage.Bucket)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create GCS blob store")
		}
		defer gcs.Close()
		blobs = gcs
	} else {
		log.Warn().Msg("No GCS bucket configured - using in-memory blob storage")
		blobs = blob.NewMemoryStore()
	}

	// Initialize services and handlers
	treasurySvc := treasury.NewService(payments, members, blobs, log)
	reportSvc := report.NewService(payments, members)

	paymentsHandler := handlers.NewPaymentsHandler(treasurySvc, log)
	reportsHandler := handlers.NewReportsHandler(reportSvc, log)

	// Create router
	mux := http.NewServeMux()

	// Payments endpoints
	mux.HandleFunc("/api/payments", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			paymentsHandler.Submit(w, r)
		case http.MethodGet:
			paymentsHandler.ListAll(w, r)
		default:
			methodNotAllowed(w)
		}
	})

	mux.HandleFunc("/api/payments/mine", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			paymentsHandler.ListMine(w, r)
		} else {
			methodNotAllowed(w)
		}
	})

	mux.HandleFunc("/api/payments/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/payments/")
		id, action, _ := strings.Cut(rest, "/")
		if id == "" || id == "mine" {
			middleware.WriteError(w, http.StatusBadRequest, domain.ErrValidationFailed, "payment ID is required")
			return
		}

		switch {
		case action == "" && r.Method == http.MethodGet:
			paymentsHandler.Get(w, r, id)
		case action == "resolve" && r.Method == http.MethodPut:
			paymentsHandler.Resolve(w, r, id)
		case action == "receipt" && r.Method == http.MethodGet:
			paymentsHandler.Receipt(w, r, id)
		case action == "proof" && r.Method == http.MethodGet:
			paymentsHandler.Proof(w, r, id)
		default:
			methodNotAllowed(w)
		}
	})

	// Reports endpoints
	mux.HandleFunc("/api/reports/financial-summary", getOnly(reportsHandler.FinancialSummary))
	mux.HandleFunc("/api/reports/member-contributions", getOnly(reportsHandler.MemberContributions))
	mux.HandleFunc("/api/reports/payment-status", getOnly(reportsHandler.PaymentStatus))
	mux.HandleFunc("/api/reports/dashboard-stats", getOnly(reportsHandler.DashboardStats))
	mux.HandleFunc("/api/dashboard", getOnly(reportsHandler.Dashboard))

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Apply middleware
	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(
					middleware.Auth(members)(mux),
				),
			),
		),
	)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.HTTP.Port),
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Int("port", cfg.HTTP.Port).Msg("Starting treasury API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

func getOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			h(w, r)
		} else {
			methodNotAllowed(w)
		}
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	middleware.WriteError(w, http.StatusMethodNotAllowed, domain.ErrValidationFailed, "method not allowed")
}

// seedDevMembers creates one member per role with a generated token so the
// in-memory server is usable out of the box. Tokens are logged once at boot.
func seedDevMembers(ctx context.Context, store *inmemory.Store, log zerolog.Logger) {
	seeds := []struct {
		name  string
		email string
		role  domain.Role
	}{
		{"Dev Member", "member@dev.local", domain.RoleMember},
		{"Dev Treasurer", "treasurer@dev.local", domain.RoleTreasurer},
		{"Dev Pastor", "pastor@dev.local", domain.RolePastor},
	}
	for _, s := range seeds {
		m := &domain.Member{
			ID:        uuid.NewString(),
			Name:      s.name,
			Email:     s.email,
			Role:      s.role,
			Active:    true,
			APIToken:  uuid.NewString(),
			CreatedAt: time.Now().UTC(),
		}
		if err := store.InsertMember(ctx, m); err != nil {
			log.Fatal().Err(err).Msg("Failed to seed development member")
		}
		log.Info().
			Str("role", string(s.role)).
			Str("token", m.APIToken).
			Msg("Seeded development member")
	}
}
