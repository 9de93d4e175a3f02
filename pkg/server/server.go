// Package server wires the feed client, the correlation pipeline, and the
// storage sink together and owns the process lifecycle.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	//nolint:gosec // only exposed if pprofAddr config is set
	_ "net/http/pprof"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/rpcpool/banking-stage-sidecar/pkg/geyser"
	"github.com/rpcpool/banking-stage-sidecar/pkg/observability"
	"github.com/rpcpool/banking-stage-sidecar/pkg/storage"
	"github.com/rpcpool/banking-stage-sidecar/pkg/storage/clickhouse"
	"github.com/rpcpool/banking-stage-sidecar/pkg/storage/postgres"
	"github.com/rpcpool/banking-stage-sidecar/pkg/tracker"
)

type Server struct {
	log    logrus.FieldLogger
	config *Config

	source  *geyser.Client
	tracker *tracker.Tracker
	sink    storage.Sink

	pprofServer  *http.Server
	healthServer *http.Server
}

func NewServer(ctx context.Context, log logrus.FieldLogger, config *Config) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	sink, err := newSink(log, &config.Storage)
	if err != nil {
		return nil, err
	}

	t := tracker.New(log, &config.Tracker, sink)
	source := geyser.NewClient(log, &config.Geyser)

	return &Server{
		log:     log,
		config:  config,
		source:  source,
		tracker: t,
		sink:    sink,
	}, nil
}

func newSink(log logrus.FieldLogger, config *storage.Config) (storage.Sink, error) {
	switch config.Driver {
	case storage.DriverPostgres:
		return postgres.New(log, &config.Postgres), nil
	case storage.DriverClickHouse:
		return clickhouse.New(log, &config.ClickHouse), nil
	default:
		return nil, fmt.Errorf("unknown storage driver: %q", config.Driver)
	}
}

func (s *Server) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A lost sink connection is unrecoverable in-process; fail loudly here
	// and let the supervisor restart us.
	if err := s.sink.Start(ctx); err != nil {
		return fmt.Errorf("failed to start storage sink: %w", err)
	}

	// The drain context outlives the run context so in-flight blocks and the
	// index flush can finish after the shutdown signal, bounded by the
	// configured timeout.
	drainCtx, cancelDrain := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelDrain()

	go func() {
		<-ctx.Done()
		time.AfterFunc(s.config.ShutdownTimeout, cancelDrain)
	}()

	g, ctx := errgroup.WithContext(ctx)

	// Start metrics server
	g.Go(func() error {
		observability.StartMetricsServer(ctx, s.config.MetricsAddr)

		return nil
	})

	// Start pprof server if configured
	if s.config.PProfAddr != nil {
		g.Go(func() error {
			if err := s.startPProf(); err != nil && err != http.ErrServerClosed {
				return err
			}

			return nil
		})
	}

	// Start health check server if configured
	if s.config.HealthCheckAddr != nil {
		g.Go(func() error {
			if err := s.startHealthCheck(); err != nil && err != http.ErrServerClosed {
				return err
			}

			return nil
		})
	}

	// Event source: when ingestion stops, close the queue so the block
	// processor drains what is left without waiting out the hold.
	g.Go(func() error {
		defer s.tracker.CloseQueue()

		return s.source.Run(ctx, s.tracker.HandleUpdate)
	})

	// Block processor, then the final index flush once it has drained.
	g.Go(func() error {
		if err := s.tracker.RunBlockProcessor(drainCtx); err != nil {
			return err
		}

		return s.tracker.FlushAll(drainCtx)
	})

	// Eviction/flush job
	g.Go(func() error {
		return s.tracker.RunEviction(ctx)
	})

	// Wait for shutdown signal
	g.Go(func() error {
		<-ctx.Done()

		return nil
	})

	err := g.Wait()

	s.stopServers(drainCtx)

	if stopErr := s.sink.Stop(drainCtx); stopErr != nil {
		s.log.WithError(stopErr).Error("failed to stop storage sink")
	}

	if err != nil && err != context.Canceled {
		return err
	}

	s.log.Info("Sidecar stopped gracefully")

	return nil
}

func (s *Server) stopServers(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if s.pprofServer != nil {
		if err := s.pprofServer.Shutdown(cleanupCtx); err != nil {
			s.log.WithError(err).Error("failed to shutdown pprof server")
		}
	}

	if s.healthServer != nil {
		if err := s.healthServer.Shutdown(cleanupCtx); err != nil {
			s.log.WithError(err).Error("failed to shutdown health server")
		}
	}

	if err := observability.StopMetricsServer(cleanupCtx); err != nil {
		s.log.WithError(err).Error("failed to stop metrics server")
	}
}

func (s *Server) startPProf() error {
	s.log.WithField("addr", *s.config.PProfAddr).Info("Starting pprof server")

	s.pprofServer = &http.Server{
		Addr:              *s.config.PProfAddr,
		ReadHeaderTimeout: 120 * time.Second,
	}

	return s.pprofServer.ListenAndServe()
}

func (s *Server) startHealthCheck() error {
	s.log.WithField("addr", *s.config.HealthCheckAddr).Info("Starting healthcheck server")

	s.healthServer = &http.Server{
		Addr:              *s.config.HealthCheckAddr,
		ReadHeaderTimeout: 120 * time.Second,
	}

	s.healthServer.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return s.healthServer.ListenAndServe()
}
