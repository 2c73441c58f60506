package addon

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Server is the dev server: it serves the build output directory with
// the CSP middleware applied, and hosts the violation-report, health,
// and metrics endpoints.
type Server struct {
	addon  *Addon
	source ConfigSource
	server *http.Server
	logger *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewServer wires the addon into an HTTP server rooted at the build
// output directory from the current configuration.
func NewServer(source ConfigSource, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	a := New(source, logger)

	s := &Server{
		addon:  a,
		source: source,
		logger: logger,
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.server = &http.Server{
		Handler:           otelhttp.NewHandler(mux, "cspserve"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Addon exposes the addon instance, mainly for tests.
func (s *Server) Addon() *Addon {
	return s.addon
}

// Start begins serving on addr and blocks until the listener stops.
func (s *Server) Start(addr string) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.mu.Unlock()

	s.server.Addr = addr

	cfg := s.source.Current()
	s.logger.Info("Starting dev server",
		"addr", addr,
		"root", cfg.Server.Root,
		"environment", cfg.Server.Environment,
		"report_only", cfg.Policy.ReportOnly,
	)

	if cfg.Server.TLSEnabled() {
		return s.server.ListenAndServeTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
	}
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	return s.server.Shutdown(ctx)
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	mux.Handle("/metrics", s.addon.Metrics().Handler())

	mux.Handle(reportPath, s.addon.ReportHandler())
	mux.Handle("/csp-reports", s.addon.ListReportsHandler())

	// Static build output, policy applied per request. The file server
	// root follows the current configuration so a reload can repoint it.
	mux.Handle("/", s.addon.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		root := s.source.Current().Server.Root
		// The file server canonicalizes "/index.html" with a redirect;
		// serve the index directly so deep links don't bounce.
		if strings.HasSuffix(r.URL.Path, "/index.html") {
			r.URL.Path = strings.TrimSuffix(r.URL.Path, "index.html")
		}
		http.FileServer(http.Dir(root)).ServeHTTP(w, r)
	})))
}
