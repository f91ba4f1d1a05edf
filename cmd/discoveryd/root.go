package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/joshuafuller/discoverymanager/discovery"
	"github.com/joshuafuller/discoverymanager/discovery/mdns"
	"github.com/joshuafuller/discoverymanager/discovery/metrics"
	"github.com/joshuafuller/discoverymanager/discovery/protocol"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "discoveryd",
	Short: "Demo host for the Discovery Manager component",
	Long: "discoveryd stands in for the outer OPC UA server: it loads configuration, " +
		"builds a Discovery Manager, starts it, and keeps it running until interrupted.",
	RunE: runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to discoveryd.yaml (default: ./discoveryd.yaml or /etc/discoveryd/discoveryd.yaml)")
}

func Execute() error {
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).With().Timestamp().Logger()

	reg := prometheus.NewRegistry()
	rec := metrics.New(reg)

	opts := []discovery.Option{
		discovery.WithLogger(logger),
		discovery.WithCleanupTimeout(cfg.CleanupTimeout),
		discovery.WithHostname(cfg.Hostname),
		discovery.WithMetrics(rec),
		discovery.WithApplicationDescription(protocol.ApplicationDescription{
			ApplicationURI:  cfg.ApplicationURI,
			ProductURI:      cfg.ProductURI,
			ApplicationName: protocol.LocalizedText{Locale: "en", Text: cfg.ApplicationURI},
			ApplicationType: protocol.ApplicationTypeServer,
			DiscoveryURLs:   cfg.DiscoveryURLs,
		}),
		discovery.WithNotifyState(func(s protocol.LifecycleState) {
			logger.Info().Str("state", s.String()).Msg("discovery manager state changed")
		}),
	}

	if cfg.MulticastEnabled {
		factory := mdns.NewUDPConnectionFactory(cfg.MulticastAddr, cfg.MulticastPort)
		opts = append(opts, discovery.WithMulticast(factory, factory, &protocol.MdnsDiscoveryConfiguration{
			MdnsServerName: cfg.Hostname,
		}))
	}

	mgr, err := discovery.New(opts...)
	if err != nil {
		return fmt.Errorf("build discovery manager: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if code := mgr.Start(ctx); code != protocol.Good {
		return fmt.Errorf("start discovery manager: %s", code)
	}
	logger.Info().Msg("discovery manager started")

	metricsSrv := &http.Server{Addr: cfg.MetricsBindAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()

	for _, url := range cfg.DiscoveryServerURLs {
		if code := mgr.RegisterDiscovery(ctx, url, ""); code != protocol.Good {
			logger.Error().Str("endpoint", url).Str("status", code.String()).Msg("initial registration failed")
		}
	}

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)

	mgr.Stop(shutdownCtx)
	if code := mgr.Free(); code != protocol.Good {
		logger.Warn().Str("status", code.String()).Msg("discovery manager did not free cleanly")
	}
	return nil
}
