// Package app wires every component built across the rest of this module
// into the "api", "worker", and "seed" run modes (§1, §4.6). Grounded on
// the teacher's internal/app/app.go composition root: load config, connect
// infrastructure, build the domain services, mount routes, run.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/cardforge/cardforge/internal/authn"
	"github.com/cardforge/cardforge/internal/cache"
	"github.com/cardforge/cardforge/internal/config"
	"github.com/cardforge/cardforge/internal/coordination"
	"github.com/cardforge/cardforge/internal/dispatcher"
	"github.com/cardforge/cardforge/internal/httpserver"
	"github.com/cardforge/cardforge/internal/lock"
	"github.com/cardforge/cardforge/internal/notifier"
	"github.com/cardforge/cardforge/internal/platform"
	"github.com/cardforge/cardforge/internal/queue"
	"github.com/cardforge/cardforge/internal/ratelimit"
	"github.com/cardforge/cardforge/internal/seed"
	"github.com/cardforge/cardforge/internal/telemetry"
	"github.com/cardforge/cardforge/internal/token"
	"github.com/cardforge/cardforge/pkg/catalog"
	"github.com/cardforge/cardforge/pkg/deck"
	"github.com/cardforge/cardforge/pkg/principal"
)

// Run is the application entry point: it loads infrastructure and starts
// whichever mode cfg.Mode names.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting cardforge", "mode", cfg.Mode, "listen", cfg.ListenAddr())

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	rdb, err := platform.NewCoordinationClient(ctx, cfg.CoordinationAddr(), cfg.CoordinationPassword, cfg.CoordinationDB)
	if err != nil {
		return fmt.Errorf("connecting to coordination store: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing coordination client", "error", err)
		}
	}()

	metricsReg := telemetry.NewMetricsRegistry()

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, db, rdb, metricsReg)
	case "worker":
		return runWorker(ctx, cfg, logger, db, rdb)
	case "seed":
		c, err := buildComponents(cfg, db, rdb, logger)
		if err != nil {
			return err
		}
		return seed.Run(ctx, c.catalogSvc, cfg.UpstreamCatalogURL, cfg.UpstreamCatalogTimeout, logger)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

// components holds every domain collaborator shared between the api and
// worker modes, so each mode wires only what it needs from one place.
type components struct {
	coord      *coordination.Client
	cacheNS    *cache.Namespace
	locker     *lock.Locker
	limiter    *ratelimit.Limiter
	cardOps    *queue.Queue
	cacheOps   *queue.Queue
	notifyQ    *queue.Queue
	dispatch   *dispatcher.Dispatcher
	catalogSvc *catalog.Service
	deckSvc    *deck.Service
	loginSvc   *authn.LoginService
	principals principal.Store
	signer     *token.Signer
}

func buildComponents(cfg *config.Config, db *pgxpool.Pool, rdb *redis.Client, logger *slog.Logger) (*components, error) {
	coord := coordination.New(rdb)
	cacheNS := cache.New(coord, "cards", time.Duration(cfg.CacheDefaultTTLMinutes)*time.Minute)
	locker := lock.New(coord)
	limiter := ratelimit.New(rdb, ratelimit.DefaultTable())

	cardOps := queue.New(coord, "card-operations")
	cacheOps := queue.New(coord, "cache-operations")
	notifyQ := queue.New(coord, "notifications")

	sink := notifier.New(logger)
	dispatch := dispatcher.New(logger, cardOps, cacheOps, notifyQ)
	dispatch.Register("card-operations", "CARD_CREATED", logCardEvent(logger))
	dispatch.Register("card-operations", "CARD_UPDATED", logCardEvent(logger))
	dispatch.Register("card-operations", "CARD_DELETED", logCardEvent(logger))
	dispatch.Register("cache-operations", "CLEAR_ALL", func(ctx context.Context, _ queue.Message) error {
		return cacheNS.EvictAll(ctx)
	})
	dispatch.Register("notifications", "EMAIL", sink.HandleEmail)
	dispatch.Register("notifications", "SYSTEM", sink.HandleSystem)

	privateKey, err := platform.LoadRSAPrivateKey(cfg.JWTPrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("loading JWT private key: %w", err)
	}
	publicKey, err := platform.LoadRSAPublicKey(cfg.JWTPublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("loading JWT public key: %w", err)
	}
	signer := token.NewSigner(privateKey, publicKey, time.Duration(cfg.JWTAccessTTLMs)*time.Millisecond)
	refreshStore := token.NewPostgresStore(db)
	tokens := token.NewService(signer, refreshStore, time.Duration(cfg.RefreshTTLMs)*time.Millisecond)

	principals := principal.NewPostgresStore(db)
	loginSvc := authn.NewLoginService(principals, tokens)

	catalogStore := catalog.NewPostgresStore(db)
	catalogSvc := catalog.NewService(catalogStore, cacheNS, cardOps, notifyQ, cfg.MinHealthyCardCount, logger)

	deckStore := deck.NewPostgresStore(db)
	deckSvc := deck.NewService(deckStore, locker, catalogSvc)

	return &components{
		coord:      coord,
		cacheNS:    cacheNS,
		locker:     locker,
		limiter:    limiter,
		cardOps:    cardOps,
		cacheOps:   cacheOps,
		notifyQ:    notifyQ,
		dispatch:   dispatch,
		catalogSvc: catalogSvc,
		deckSvc:    deckSvc,
		loginSvc:   loginSvc,
		principals: principals,
		signer:     signer,
	}, nil
}

func logCardEvent(logger *slog.Logger) dispatcher.Handler {
	return func(_ context.Context, msg queue.Message) error {
		logger.Info("card event dispatched", "type", msg.Type, "payload", msg.Payload)
		return nil
	}
}

func runAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry) error {
	c, err := buildComponents(cfg, db, rdb, logger)
	if err != nil {
		return err
	}

	authMiddleware := authn.Filter(c.signer)
	rateLimitMW := rateLimitMiddleware(c.limiter, logger)

	srv := httpserver.NewServer(httpserver.Config{
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	}, logger, db, rdb, metricsReg, authMiddleware, rateLimitMW)

	// /auth/* is reachable without a bearer token (§4.8): mounted on /api so
	// the auth filter still attaches whatever principal is present (or
	// anonymous), but no handler here requires one.
	authHandler := authn.NewHandler(c.loginSvc, logger)
	srv.APIRouter.Mount("/auth", authHandler.Routes())

	catalogHandler := catalog.NewHandler(c.catalogSvc, logger)
	srv.APIRouter.Mount("/cards", catalogHandler.CardRoutes())
	srv.APIRouter.Mount("/archetypes", catalogHandler.ArchetypeRoutes())

	deckHandler := deck.NewHandler(c.deckSvc, logger)
	srv.APIRouter.Mount("/decks", deckHandler.Routes())

	usersHandler := authn.NewUsersHandler(c.principals, logger)
	srv.APIRouter.Mount("/users", usersHandler.Routes())

	go func() {
		if err := c.dispatch.Run(ctx); err != nil {
			logger.Error("dispatcher stopped", "error", err)
		}
	}()

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func runWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client) error {
	c, err := buildComponents(cfg, db, rdb, logger)
	if err != nil {
		return err
	}
	logger.Info("worker started")
	return c.dispatch.Run(ctx)
}

// rateLimitMiddleware builds the /api rate-limit middleware (C4): identity
// is the authenticated username if the auth filter attached one, otherwise
// the caller's network address. Coordination store failures fail open.
//
// This runs inside the chi /api sub-router (see httpserver.NewServer), so
// r.URL.Path still carries the "/api" prefix — chi does not rewrite it on
// Mount/Route. DefaultTable's rules are anchored to the unprefixed form
// spec.md §4.4 writes them in (e.g. "^POST /auth/login$"), so the prefix
// has to be stripped before matching or every request falls through to
// the default policy. The query string is appended too, so the
// query-qualified card-search rule is reachable.
func rateLimitMiddleware(limiter *ratelimit.Limiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := authn.FromContext(r.Context())
			identity := ratelimit.Identity(p.Username, r)

			requestURI := strings.TrimPrefix(r.URL.Path, "/api")
			if r.URL.RawQuery != "" {
				requestURI += "?" + r.URL.RawQuery
			}

			allowed, class, err := limiter.Allow(r.Context(), identity, r.Method, requestURI)
			if err != nil {
				logger.Error("rate limiter error, failing open", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				telemetry.RateLimitRejectedTotal.WithLabelValues(class).Inc()
				httpserver.RespondError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
