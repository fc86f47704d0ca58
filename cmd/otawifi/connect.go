package main

import (
	"fmt"

	"github.com/fgeck/otawifi/internal/models"
	"github.com/fgeck/otawifi/internal/services/hooks"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	connectSSID     string
	connectPassword string
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Join a network and wait until it is visible",
	Long: `Join an arbitrary network using the tool and retry settings from the config
file. The password may be omitted for open networks.`,
	RunE: runConnect,
}

func init() {
	connectCmd.Flags().StringVar(&connectSSID, "ssid", "", "network to join (required)")
	connectCmd.Flags().StringVar(&connectPassword, "password", "", "network password")
	_ = connectCmd.MarkFlagRequired("ssid")
}

func runConnect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	runner, err := hooks.New(log.Logger, *cfg)
	if err != nil {
		log.Error().Err(err).Msg("failed to set up network tool")
		return err
	}

	target := models.NetworkTarget{SSID: connectSSID, Password: connectPassword}
	if err := runner.Ensure(ctx, target, *cfg); err != nil {
		log.Error().Err(err).Str("ssid", connectSSID).Msg("connect failed")
		return fmt.Errorf("connect to %q: %w", connectSSID, err)
	}

	return nil
}
