package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"taiyari/internal/config"
	"taiyari/internal/infrastructure"
	"taiyari/internal/interfaces"
	httpapi "taiyari/internal/interfaces/http"
	"taiyari/internal/logging"
	"taiyari/internal/metrics"
	"taiyari/internal/repository"
	"taiyari/internal/usecases"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "taiyari",
		Short:         "Multi-tenant knowledge-grounded chat service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newRefreshCmd(), newMigrateCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the refresh scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), serve)
		},
	}
}

func newRefreshCmd() *cobra.Command {
	var tenantID string
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Run one refresh cycle and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), func(ctx context.Context, a *app) error {
				return refresh(ctx, a, tenantID)
			})
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "refresh only this client id")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), func(ctx context.Context, a *app) error {
				a.log.Info().Str("driver", a.cfg.Database.Driver).Msg("schema up to date")
				return nil
			})
		},
	}
}

// app holds everything built from the configuration.
type app struct {
	cfg         *config.Config
	log         zerolog.Logger
	registry    *prometheus.Registry
	metrics     *metrics.Metrics
	tenants     interfaces.TenantStore
	transcripts interfaces.TranscriptStore
	ping        func(ctx context.Context) error
	locker      interfaces.Locker
	closers     []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func run(parent context.Context, fn func(ctx context.Context, a *app) error) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}

	log := logging.New(logging.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	if envErr != nil {
		log.Debug().Err(envErr).Msg("no .env file loaded")
	}

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("startup failed")
		return err
	}
	defer a.close()

	if err := fn(ctx, a); err != nil {
		log.Error().Err(err).Msg("command failed")
		return err
	}
	return nil
}

func newApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.registry)

	switch cfg.Database.Driver {
	case config.DriverSQLite:
		db, err := infrastructure.NewSQLiteClient(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		if err := db.Migrate(ctx); err != nil {
			a.close()
			return nil, err
		}
		a.tenants = repository.NewSQLiteTenantRepository(db.DB)
		a.transcripts = repository.NewSQLiteTranscriptRepository(db.DB)
		a.ping = db.Ping
	default:
		pg, err := infrastructure.NewPostgresClient(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pg.Close)
		if err := pg.Migrate(ctx); err != nil {
			a.close()
			return nil, err
		}
		a.tenants = repository.NewTenantRepository(pg.Pool)
		a.transcripts = repository.NewTranscriptRepository(pg.Pool)
		a.ping = pg.Ping
	}
	log.Info().Str("driver", cfg.Database.Driver).Msg("database ready")

	if cfg.Redis.URL != "" {
		rdb, err := infrastructure.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, func() { rdb.Close() })
		a.locker = infrastructure.NewRedisLocker(rdb)
		log.Info().Msg("refresh lock backed by redis")
	}
	return a, nil
}

func (a *app) knowledge() *usecases.KnowledgeService {
	return usecases.NewKnowledgeService(a.tenants)
}

func (a *app) scraper(knowledge *usecases.KnowledgeService) (*usecases.ScraperService, error) {
	sc := a.cfg.Scraper
	return usecases.NewScraperService(
		a.tenants,
		knowledge,
		infrastructure.NewHTTPPageFetcher(sc.UserAgent, sc.Timeout),
		usecases.NewExtractor(),
		a.locker,
		usecases.ScraperOptions{Pacing: sc.Pacing, Interval: sc.Interval, Cron: sc.Cron},
		a.log,
		a.metrics,
	)
}

func refresh(ctx context.Context, a *app, tenantID string) error {
	scraper, err := a.scraper(a.knowledge())
	if err != nil {
		return err
	}
	if tenantID != "" {
		if err := scraper.RefreshTenant(ctx, tenantID); err != nil {
			return fmt.Errorf("refresh %s: %w", tenantID, err)
		}
		a.log.Info().Str("tenant_id", tenantID).Msg("tenant refreshed")
		return nil
	}

	summary, err := scraper.RefreshAll(ctx)
	if err != nil {
		return err
	}
	a.log.Info().
		Int("eligible", summary.Eligible).
		Int("refreshed", summary.Refreshed).
		Int("failed", summary.Failed).
		Bool("skipped", summary.Skipped).
		Msg("refresh cycle done")
	return nil
}

func serve(ctx context.Context, a *app) error {
	cfg := a.cfg
	if err := cfg.ValidateServe(); err != nil {
		return err
	}

	generator, err := infrastructure.NewGenerator(ctx, cfg.Generation)
	if err != nil {
		return err
	}
	if generator == nil {
		a.log.Warn().Str("provider", cfg.Generation.Provider).Msg("generation credentials missing, chat will answer with the fallback message")
	}
	if cfg.Auth.AdminPasswordHash == "" {
		a.log.Warn().Msg("ADMIN_PASSWORD_HASH not set, admin login disabled")
	}

	knowledge := a.knowledge()
	chat := usecases.NewChatService(
		a.tenants,
		a.transcripts,
		generator,
		usecases.NewPromptBuilder(cfg.Chat.DefaultLanguage),
		usecases.ChatOptions{HistoryLimit: cfg.Chat.HistoryLimit, GenerationTimeout: cfg.Generation.Timeout},
		a.log,
		a.metrics,
	)

	var scraper *usecases.ScraperService
	if cfg.Scraper.Enabled {
		if scraper, err = a.scraper(knowledge); err != nil {
			return err
		}
		stopScraper := runInBackground(ctx, scraper.Run)
		// waits for an in-flight cycle before run() closes the stores
		defer stopScraper()
	} else {
		a.log.Info().Msg("scraper disabled")
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpapi.RequestLogger(logging.Component(a.log, "http")))
	httpapi.SetupRoutes(r, httpapi.Deps{
		Chat:           chat,
		Dashboard:      usecases.NewDashboardUsecase(a.tenants, a.transcripts, knowledge),
		Auth:           usecases.NewAuthUsecase(cfg.Auth.AdminUsername, cfg.Auth.AdminPasswordHash, cfg.Auth.JWTSecret),
		Scraper:        scraper,
		Middleware:     httpapi.NewMiddleware(cfg.Auth.JWTSecret),
		ChatRate:       rate.Limit(cfg.Chat.RatePerSecond),
		ChatBurst:      cfg.Chat.RateBurst,
		MetricsHandler: promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}),
		HealthCheck:    a.ping,
		Log:            a.log,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	a.log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// runInBackground starts fn in a goroutine. The returned stop cancels fn's
// context and blocks until fn has returned.
func runInBackground(ctx context.Context, fn func(context.Context)) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}
