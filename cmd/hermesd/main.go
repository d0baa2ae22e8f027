// Command hermesd runs the Hermes pub/sub broker: a single-threaded reactor
// accepting TCP connections, decoding frames, persisting them to a
// memory-mapped log, and fanning them out to every other open connection.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"
	"golang.org/x/time/rate"

	"github.com/nirvagold/hermes/internal/config"
	"github.com/nirvagold/hermes/internal/fanout"
	"github.com/nirvagold/hermes/internal/logging"
	"github.com/nirvagold/hermes/internal/metrics"
	"github.com/nirvagold/hermes/internal/mmaplog"
	"github.com/nirvagold/hermes/internal/reactor"
)

func main() {
	os.Exit(run())
}

func run() int {
	var debug = flag.Bool("debug", false, "enable debug logging (overrides HERMES_LOG_LEVEL)")
	var listenAddr = flag.String("listen", "", "override HERMES_LISTEN_ADDR")
	flag.Parse()

	cfg, err := config.Load(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hermesd: %v\n", err)
		return 1
	}
	if *debug {
		cfg.LogLevel = "debug"
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "hermesd: %v\n", err)
		return 1
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	logger.Info().Int("gomaxprocs", runtime.GOMAXPROCS(0)).Msg("starting hermesd")
	cfg.LogFields(logger)

	var log *mmaplog.Log
	if cfg.MmapEnabled {
		log, err = mmaplog.Open(cfg.MmapPath, cfg.MmapCapacity)
		if err != nil {
			logger.Error().Err(err).Msg("failed to open persistence log")
			return 1
		}
		defer log.Close()
	}

	stats := &fanout.Stats{}

	hooks := reactor.Hooks{
		OnAccept: func(fd int) {
			logger.Debug().Int("fd", fd).Msg("connection accepted")
		},
		OnClose: func(fd int, reason error) {
			logger.Debug().Int("fd", fd).Err(reason).Msg("connection closed")
		},
		OnFramingErr: func(fd int, err error) {
			logger.Warn().Int("fd", fd).Err(err).Msg("framing error, closing connection")
		},
	}

	r, err := reactor.New(reactor.Options{
		ListenAddr:       cfg.ListenAddr,
		ReadBufferSize:   cfg.ReadBufferSize,
		WriteBufferSize:  cfg.WriteBufferSize,
		RingSize:         cfg.RingSize,
		DropThreshold:    cfg.DropThreshold,
		PollTimeout:      cfg.PollTimeout,
		IdleSleep:        cfg.IdleSleep,
		HeartbeatTimeout: cfg.HeartbeatTimeout,
		AcceptLimiter:    rate.NewLimiter(rate.Limit(cfg.MaxAcceptRate), cfg.MaxAcceptBurst),
	}, hooks, log, stats)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize reactor")
		return 1
	}
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		m := metrics.New()
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			defer logging.RecoverPanic(logger, "metrics-server")
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("metrics server stopped")
			}
		}()
		collector := &metrics.Collector{Metrics: m, Stats: stats, Interval: 5 * time.Second}
		go func() {
			defer logging.RecoverPanic(logger, "metrics-collector")
			collector.Run(ctx)
		}()
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server listening")
	}

	runErrCh := make(chan error, 1)
	go func() {
		defer logging.RecoverPanic(logger, "reactor")
		runErrCh <- r.Run(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
		<-runErrCh
	case err := <-runErrCh:
		if err != nil {
			logger.Error().Err(err).Msg("reactor stopped unexpectedly")
			return 1
		}
	}

	if metricsSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		metricsSrv.Shutdown(shutdownCtx)
	}

	logger.Info().Msg("hermesd stopped")
	return 0
}
