package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/jitter/internal/config"
	"github.com/loykin/jitter/internal/history"
	"github.com/loykin/jitter/internal/history/factory"
	"github.com/loykin/jitter/internal/metrics"
	"github.com/loykin/jitter/internal/server"
	"github.com/loykin/jitter/internal/stats"
	"github.com/loykin/jitter/internal/system"
	jtls "github.com/loykin/jitter/internal/tls"
)

const shutdownTimeout = 10 * time.Second

// engine is the System plus the logger and history recorder built from config.
type engine struct {
	log       *slog.Logger
	logCloser io.Closer
	sys       *system.System
	rec       *history.Recorder
}

func newEngine(cfg *config.Config) (*engine, error) {
	log, closer := cfg.Log.NewSlogger()
	e := &engine{log: log, logCloser: closer}

	opts := cfg.SystemOptions()
	opts.Logger = log
	if len(cfg.History.Sinks) > 0 {
		sinks, err := factory.NewSinks(cfg.History.Sinks)
		if err != nil {
			e.close(context.Background())
			return nil, fmt.Errorf("history sinks: %w", err)
		}
		ro := cfg.History.RecorderOptions()
		ro.Sinks = sinks
		ro.Logger = log
		e.rec = history.NewRecorder(ro)
		opts.Recorder = e.rec
		log.Info("History recorder started", "sinks", len(sinks), "session", e.rec.Session().String())
	}
	e.sys = system.New(opts)
	return e, nil
}

func (e *engine) close(ctx context.Context) {
	if e.rec != nil {
		if err := e.rec.Close(ctx); err != nil {
			e.log.Warn("History recorder close failed", "error", err)
		}
		st := e.rec.Stats()
		e.log.Info("History recorder stopped", "sent", st.Sent, "dropped", st.Dropped, "failed", st.Failed)
	}
	if e.logCloser != nil {
		_ = e.logCloser.Close()
	}
}

// runServe starts the API server and blocks until ctx is cancelled or the
// process receives SIGINT/SIGTERM. ready, when set, gets the bound API address.
func runServe(ctx context.Context, f ServeFlags, ready func(addr string)) error {
	cfg, err := config.LoadConfig(f.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if f.Listen != "" {
		cfg.Server.Listen = f.Listen
	}

	var tlsCfg *tls.Config
	if cfg.Server.TLS.Enabled {
		if tlsCfg, err = jtls.Setup(cfg.Server.TLS); err != nil {
			return fmt.Errorf("tls: %w", err)
		}
	}

	eng, err := newEngine(cfg)
	if err != nil {
		return err
	}
	log := eng.log
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		eng.close(cctx)
	}()

	gin.SetMode(gin.ReleaseMode)
	opts := []server.Option{server.WithLogger(log)}
	if eng.rec != nil {
		opts = append(opts, server.WithHistory(eng.rec))
	}

	if cfg.Metrics.Enabled {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			log.Warn("Failed to register metrics", "error", err)
		}
		if cfg.Metrics.Listen == "" {
			opts = append(opts, server.WithMetrics(metrics.Handler()))
		} else {
			metricsSrv, err := serveMetrics(cfg.Metrics.Listen, log)
			if err != nil {
				return err
			}
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := metricsSrv.Shutdown(sctx); err != nil {
					log.Warn("Metrics server shutdown failed", "error", err)
				}
			}()
		}
	}

	if cfg.Stats.Enabled {
		rep, err := stats.NewReporter(eng.sys, cfg.Stats.Schedule, log)
		if err != nil {
			return err
		}
		rep.Start()
		defer func() { <-rep.Stop().Done() }()
	}

	srv, err := server.NewServer(cfg.Server.Listen, server.NewRouter(eng.sys, cfg.Server.BasePath, opts...), tlsCfg)
	if err != nil {
		return err
	}
	log.Info("Starting jitter server", "addr", srv.Addr(), "base_path", cfg.Server.BasePath, "tls", tlsCfg != nil)
	if ready != nil {
		ready(srv.Addr())
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info("Shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(sctx)
}

func serveMetrics(addr string, log *slog.Logger) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listen %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics server stopped", "error", err)
		}
	}()
	log.Info("Metrics listening", "addr", ln.Addr().String())
	return srv, nil
}
