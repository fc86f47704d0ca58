package main

import (
	"fmt"
	"os"

	"github.com/fgeck/otawifi/internal/services/command"
	"github.com/fgeck/otawifi/internal/services/hooks"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var checkRemote bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the configuration file without changing any network.`,
	RunE:  validateConfig,
}

func init() {
	validateCmd.Flags().BoolVar(&checkRemote, "check-remote", false, "also test the SSH connection to the remote runner")
}

func mask(s string) string {
	if s == "" {
		return "(none)"
	}
	return "(configured)"
}

func validateConfig(cmd *cobra.Command, args []string) error {
	// Check if file exists
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		log.Error().Str("file", configFile).Msg("config file not found")
		return fmt.Errorf("config file not found: %s", configFile)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if _, err := command.ParseTool(cfg.Tool); err != nil {
		log.Error().Err(err).Msg("configuration validation failed")
		return err
	}

	out := cmd.OutOrStdout()

	// Print configuration summary
	fmt.Fprintln(out, "Configuration is valid!")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Summary:")
	fmt.Fprintf(out, "  Section: [%s]\n", cfg.Section)
	fmt.Fprintf(out, "  Tool: %s\n", cfg.Tool)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Networks:")
	fmt.Fprintf(out, "  %s: %s, password %s\n", hooks.AfterBuild, cfg.Device.SSID, mask(cfg.Device.Password))
	fmt.Fprintf(out, "  %s: %s, password %s\n", hooks.AfterUpload, cfg.Home.SSID, mask(cfg.Home.Password))
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Retry Policy:")
	if cfg.Retry.MaxAttempts == 0 {
		fmt.Fprintln(out, "  Max attempts: unbounded")
	} else {
		fmt.Fprintf(out, "  Max attempts: %d\n", cfg.Retry.MaxAttempts)
	}
	fmt.Fprintf(out, "  Status retries: %d\n", cfg.Retry.StatusRetries)
	fmt.Fprintf(out, "  Delay: %s (max %s, x%.2g)\n", cfg.Retry.Delay, cfg.Retry.MaxDelay, cfg.Retry.Multiplier)
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Remote Runner: %v\n", cfg.Remote != nil)

	if cfg.Remote != nil {
		fmt.Fprintf(out, "  Host: %s\n", cfg.Remote.Host)
		fmt.Fprintf(out, "  Port: %d\n", cfg.Remote.Port)
		fmt.Fprintf(out, "  Username: %s\n", cfg.Remote.Username)
		fmt.Fprintf(out, "  Key: %s\n", cfg.Remote.KeyPath)
		fmt.Fprintf(out, "  Wake-on-LAN: %v\n", cfg.Remote.Wake != nil)
		if cfg.Remote.Wake != nil {
			fmt.Fprintf(out, "    MAC Address: %s\n", cfg.Remote.Wake.MACAddress)
			fmt.Fprintf(out, "    Broadcast IP: %s\n", cfg.Remote.Wake.BroadcastIP)
			fmt.Fprintf(out, "    Timeout: %s\n", cfg.Remote.Wake.Timeout)
		}
	}

	if checkRemote && cfg.Remote != nil {
		ctx, cancel := signalContext()
		defer cancel()

		runner, err := hooks.NewRunner(log.Logger, *cfg)
		if err != nil {
			log.Error().Err(err).Msg("failed to set up remote runner")
			return err
		}
		remote, ok := runner.(*command.Remote)
		if !ok {
			return fmt.Errorf("remote runner expected, got %T", runner)
		}
		if err := remote.TestConnection(ctx); err != nil {
			log.Error().Err(err).Str("host", cfg.Remote.Host).Msg("remote connection check failed")
			return err
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Remote connection: OK")
	}

	return nil
}
