package main

import (
	"context"
	"errors"
	"github.com/Borislavv/go-ash-tiers"
	"github.com/Borislavv/go-ash-tiers/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"net/http"
	"os/signal"
	"syscall"
	"time"
)

func newMetricsCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Serve tier metrics over HTTP until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			if !cfg.Metrics.Enabled() {
				cfg.Metrics = &config.MetricsCfg{}
				cfg.AdjustConfig()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger := newLogger(v)
			tiers, err := ashtiers.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer tiers.Close()

			srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: metricsHandler(tiers)}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			logger.Info("serving metrics", "addr", cfg.Metrics.Addr)
			if err = srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().String("metrics-addr", "", "listen address, overrides metrics.addr")
	bindFlags(v, cmd.Flags())

	return cmd
}

func metricsHandler(tiers *ashtiers.Tiers) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), tiers.Collector)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return mux
}
