package edge

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cmux/edge/internal/config"
	"github.com/cmux/edge/internal/logging"
	"github.com/cmux/edge/internal/metrics"
	"github.com/cmux/edge/internal/middleware"
	"github.com/cmux/edge/internal/resolver"
)

// Server runs the public listener plus the optional admin listener.
type Server struct {
	cfg     *config.Config
	public  *http.Server
	admin   *http.Server
	metrics *metrics.Collector
}

// NewServer builds the full middleware/handler stack from configuration.
func NewServer(cfg *config.Config, lookups resolver.Lookups) (*Server, error) {
	collector := metrics.NewCollector()

	handler, err := NewHandler(cfg, lookups, collector)
	if err != nil {
		return nil, err
	}

	chain := middleware.NewChain(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logging(),
	)

	s := &Server{
		cfg:     cfg,
		metrics: collector,
		public: &http.Server{
			Addr:    cfg.Listen.Address,
			Handler: chain.Then(handler),
			// WriteTimeout defaults to 0: proxied responses and WebSocket
			// tunnels are long-lived. The forwarder carries its own deadline.
			ReadTimeout:       cfg.Listen.ReadTimeout,
			WriteTimeout:      cfg.Listen.WriteTimeout,
			IdleTimeout:       cfg.Listen.IdleTimeout,
			ReadHeaderTimeout: cfg.Listen.ReadHeaderTimeout,
		},
	}

	if cfg.Admin.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write(healthBody)
		})
		s.admin = &http.Server{
			Addr:         cfg.Admin.Address,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
	}

	return s, nil
}

// Metrics exposes the collector, mainly for tests.
func (s *Server) Metrics() *metrics.Collector {
	return s.metrics
}

// Run serves until the context is cancelled or SIGINT/SIGTERM arrives, then
// shuts both listeners down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logging.Info("edge listening",
			zap.String("address", s.public.Addr),
			zap.String("public_suffix", s.cfg.Domain.PublicSuffix),
		)
		if err := s.public.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	if s.admin != nil {
		g.Go(func() error {
			logging.Info("admin listening", zap.String("address", s.admin.Addr))
			if err := s.admin.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		return s.Shutdown(s.cfg.Listen.ShutdownTimeout)
	})

	return g.Wait()
}

// Shutdown gracefully drains both listeners.
func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	logging.Info("shutting down")

	var firstErr error
	if s.admin != nil {
		if err := s.admin.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}
	if err := s.public.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
