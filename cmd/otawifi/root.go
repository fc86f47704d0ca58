package main

import (
	"os"
	"strings"
	"time"

	"github.com/fgeck/otawifi/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "dev"

	// Configuration flags.
	configFile string
	section    string
	timeout    time.Duration
	verbose    bool
	quiet      bool
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "otawifi",
	Short: "Switch WiFi networks around firmware build and upload steps",
	Long: `otawifi moves a development machine onto a device's OTA network after the
firmware image is built, and restores the home network after the upload completes.

Network changes go through an external WiFi command-line tool ("m wifi" by default):
  <tool> status                      current association, scanned for the SSID
  <tool> connect <ssid> [<password>] join a network

Call it from your build system's post-build and post-upload hooks. A non-zero exit
status means the network could not be switched and the pipeline should stop.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
	SilenceUsage: true,
	Version:      Version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "platformio.ini", "build project config file")
	rootCmd.PersistentFlags().StringVar(&section, "section", config.DefaultSection, "config section holding the wifi keys")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "overall deadline, 0 waits for the attempt budget only")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose (debug) output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "enable quiet mode (errors only)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output logs in JSON format")

	rootCmd.AddCommand(hookCmd)
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(validateCmd)
}

func setupLogging() {
	// Build hosts capture stdout, so logs go to stderr.
	if jsonOutput {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
		output.FormatLevel = func(i interface{}) string {
			if s, ok := i.(string); ok {
				return strings.ToUpper(s)
			}
			return ""
		}
		log.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set log level
	switch {
	case quiet:
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case verbose:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
