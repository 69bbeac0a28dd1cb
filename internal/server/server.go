// Package server wires the verification pipeline's collaborators into
// an HTTP server: config, storage backends, middleware stack, and
// routes.
package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/chainproof/verify/internal/assembler"
	"github.com/chainproof/verify/internal/chainregistry"
	"github.com/chainproof/verify/internal/compiler"
	"github.com/chainproof/verify/internal/config"
	"github.com/chainproof/verify/internal/contenthash"
	"github.com/chainproof/verify/internal/fetch"
	"github.com/chainproof/verify/internal/matcher"
	"github.com/chainproof/verify/internal/matchindex"
	"github.com/chainproof/verify/internal/matchstore"
	"github.com/chainproof/verify/internal/middleware/logging"
	"github.com/chainproof/verify/internal/middleware/ratelimit"
	"github.com/chainproof/verify/internal/middleware/realip"
	"github.com/chainproof/verify/internal/middleware/security"
	"github.com/chainproof/verify/internal/observability/metrics"
	"github.com/chainproof/verify/internal/session"
	verificationDomain "github.com/chainproof/verify/internal/verification/domain"
	verificationTransport "github.com/chainproof/verify/internal/verification/transport"
)

// Server is the HTTP server for the verification pipeline.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger
	router *chi.Mux
	index  matchindex.Index
}

// New builds a Server, dialing its storage backends and wiring every
// pipeline component per SPEC_FULL §11-12.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	index, err := openIndex(cfg)
	if err != nil {
		return nil, err
	}

	store, err := matchstore.New(cfg.Repository.Path)
	if err != nil {
		return nil, fmt.Errorf("opening match store: %w", err)
	}

	chains, err := chainregistry.Load(cfg.Chains.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("loading chain registry: %w", err)
	}

	registry := fetch.NewRegistry(map[contenthash.Origin]fetch.Fetcher{
		contenthash.OriginIPFS:       fetch.NewGatewayFetcher(cfg.Fetch.IPFSGateways),
		contenthash.OriginSwarmBzzr0: fetch.NewGatewayFetcher(cfg.Fetch.SwarmGateways),
		contenthash.OriginSwarmBzzr1: fetch.NewGatewayFetcher(cfg.Fetch.SwarmGateways),
	})
	asm := assembler.New(registry)

	driver, err := newCompilerDriver(cfg)
	if err != nil {
		return nil, err
	}
	m := matcher.New(driver)

	clients := newChainClients(chains)
	coordinator := verificationDomain.NewCoordinator(m, clients, clients, store)

	idleTimeout := time.Duration(cfg.Session.IdleTimeoutMinutes) * time.Minute
	stager := session.New(cfg.Session.MaxBytes, idleTimeout, coordinator, indexLookup{index})

	explorers := newExplorerClients(chains)

	s := &Server{
		cfg:    cfg,
		logger: logger,
		router: chi.NewRouter(),
		index:  index,
	}

	s.setupMiddleware()
	s.setupRoutes(coordinator, stager, store, chains, explorers, asm, clients)

	go s.sweepSessions(stager)

	return s, nil
}

func openIndex(cfg *config.Config) (matchindex.Index, error) {
	switch cfg.Storage.Type {
	case "postgres":
		return matchindex.NewPostgres(cfg.Storage.Postgres.URL)
	default:
		return matchindex.NewSQLite(cfg.Storage.SQLite.Path)
	}
}

func newCompilerDriver(cfg *config.Config) (compiler.Driver, error) {
	switch cfg.Compiler.Backend {
	case "remote":
		if cfg.Compiler.RemoteURL == "" {
			return nil, fmt.Errorf("COMPILER_REMOTE_URL is required when COMPILER_BACKEND=remote")
		}
		return compiler.NewRemoteDriver(cfg.Compiler.RemoteURL), nil
	default:
		return compiler.NewLocalDriver(cfg.Compiler.LocalBinDir), nil
	}
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// MetricsHandler returns the Prometheus metrics handler for a separate
// metrics listener.
func (s *Server) MetricsHandler() http.Handler {
	return metrics.Handler()
}

// Close releases the server's storage backends.
func (s *Server) Close() error {
	return s.index.Close()
}

func (s *Server) sweepSessions(stager *session.Stager) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		stager.Sweep()
	}
}

func (s *Server) setupMiddleware() {
	// Order matters. Client IP resolution runs first so the security
	// filter, body limit and rate limiter that follow see the real client
	// address and can block malicious requests early.

	s.router.Use(realip.Middleware(realip.Config{
		TrustProxy:     s.cfg.Proxy.TrustProxy,
		TrustedProxies: s.cfg.Proxy.TrustedProxies,
	}))

	s.router.Use(security.FilterMiddleware(s.cfg.Security.FilterEnabled))
	s.router.Use(security.MaxBodySizeMiddleware(s.cfg.Security.MaxBodySizeMB))

	s.router.Use(ratelimit.Middleware(ratelimit.Config{
		Enabled:        s.cfg.RateLimit.Enabled,
		RequestsPerMin: s.cfg.RateLimit.RequestsPerMin,
		BurstSize:      s.cfg.RateLimit.BurstSize,
		CleanupMinutes: s.cfg.RateLimit.CleanupMinutes,
	}))

	s.router.Use(middleware.RequestID)
	s.router.Use(logging.Middleware(s.logger))
	s.router.Use(metrics.Middleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))

	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})
}

func (s *Server) setupRoutes(coordinator verificationTransport.Coordinator, stager *session.Stager, store *matchstore.Store, chains *chainregistry.Registry, explorers verificationTransport.EtherscanResolver, asm *assembler.Assembler, codeFetcher verificationTransport.CodeFetcher) {
	handler := verificationTransport.NewHandler(coordinator, stager, store, chains, explorers, asm, codeFetcher)
	handler.RegisterRoutes(s.router)
}
