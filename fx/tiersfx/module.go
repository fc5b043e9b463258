// Package tiersfx provides an fx module for the cache tiers of one process.
package tiersfx

import (
	"context"
	"github.com/Borislavv/go-ash-tiers"
	"github.com/Borislavv/go-ash-tiers/config"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"log/slog"
)

// Module provides *ashtiers.Tiers.
// Requires a *config.Config and a *slog.Logger to be provided. When a prometheus.Registerer
// is provided too and metrics are enabled, the collector is registered on it.
var Module = fx.Module("ashtiers",
	fx.Provide(newTiers),
)

// Params holds dependencies for creating the tiers.
type Params struct {
	fx.In

	Config     *config.Config
	Logger     *slog.Logger
	Registerer prometheus.Registerer `optional:"true"`
	Lifecycle  fx.Lifecycle
}

// Result holds the provided tiers.
type Result struct {
	fx.Out

	Tiers *ashtiers.Tiers
}

func newTiers(p Params) (Result, error) {
	tiers, err := ashtiers.New(context.Background(), p.Config, p.Logger.With("component", "ashtiers"))
	if err != nil {
		return Result{}, err
	}

	if p.Registerer != nil && tiers.Collector != nil {
		if err = p.Registerer.Register(tiers.Collector); err != nil {
			_ = tiers.Close()
			return Result{}, err
		}
	}

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if p.Registerer != nil && tiers.Collector != nil {
				p.Registerer.Unregister(tiers.Collector)
			}
			return tiers.Close()
		},
	})

	return Result{Tiers: tiers}, nil
}
