package main

import (
	"fmt"
	"github.com/Borislavv/go-ash-tiers"
	"github.com/Borislavv/go-ash-tiers/internal/console"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newReportCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Show size, file count and quota of every tier",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			tiers, err := ashtiers.New(cmd.Context(), cfg, newLogger(v))
			if err != nil {
				return err
			}
			defer tiers.Close()

			return printInfo(cmd, tiers)
		},
	}
}

func printInfo(cmd *cobra.Command, tiers *ashtiers.Tiers) error {
	lines, err := tiers.Console(console.AnonymousMenu).CacheInfo()
	if err != nil {
		return err
	}
	for _, line := range lines {
		if _, err = fmt.Fprintln(cmd.OutOrStdout(), line); err != nil {
			return err
		}
	}
	return nil
}
