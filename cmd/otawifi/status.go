package main

import (
	"fmt"
	"strings"

	"github.com/fgeck/otawifi/internal/services/hooks"
	"github.com/fgeck/otawifi/internal/services/wifi"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the current network status reported by the tool",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	runner, err := hooks.NewRunner(log.Logger, *cfg)
	if err != nil {
		log.Error().Err(err).Msg("failed to set up network tool")
		return err
	}

	svc := wifi.New(log.Logger, runner)
	out, err := svc.Status(ctx)
	if err != nil {
		log.Error().Err(err).Msg("status check failed")
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), out)

	log.Info().
		Bool("device", strings.Contains(out, cfg.Device.SSID)).
		Bool("home", strings.Contains(out, cfg.Home.SSID)).
		Msg("network visibility")

	return nil
}
