package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fgeck/otawifi/internal/config"
	"github.com/fgeck/otawifi/internal/models"
	"github.com/fgeck/otawifi/internal/services/hooks"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var hookCmd = &cobra.Command{
	Use:   "hook <after-build|after-upload>",
	Short: "Run the network switch for a build lifecycle hook",
	Long: `Run the network switch for a build lifecycle hook:
  after-build   join the device network (esp_wifi_ssid / esp_wifi_password)
                and wait until it is visible
  after-upload  restore the home network (home_wifi_name / home_wifi_password)`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(hooks.AfterBuild), string(hooks.AfterUpload)},
	RunE:      runHook,
}

// loadConfig reads and validates the config file named by the flags.
func loadConfig() (*models.HookConfig, error) {
	parser := config.NewParser(section)
	cfg, err := parser.LoadFile(configFile)
	if err != nil {
		log.Error().Err(err).Str("file", configFile).Msg("failed to load config")
		return nil, err
	}

	if err := config.Validate(cfg); err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return nil, err
	}

	return cfg, nil
}

// signalContext returns a context cancelled on SIGINT/SIGTERM or when the
// --timeout deadline passes.
func signalContext() (context.Context, context.CancelFunc) {
	var ctx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			log.Warn().Str("signal", sig.String()).Msg("received signal, shutting down")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}

func runHook(cmd *cobra.Command, args []string) error {
	hook, err := hooks.ParseHook(args[0])
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log.Info().
		Str("config", configFile).
		Str("hook", string(hook)).
		Str("tool", cfg.Tool).
		Msg("configuration loaded")

	ctx, cancel := signalContext()
	defer cancel()

	runner, err := hooks.New(log.Logger, *cfg)
	if err != nil {
		log.Error().Err(err).Msg("failed to set up network tool")
		return err
	}

	if err := runner.Run(ctx, hook, *cfg); err != nil {
		log.Error().Err(err).Msg("hook failed")
		return err
	}

	log.Info().Str("hook", string(hook)).Msg("hook completed successfully")
	return nil
}
