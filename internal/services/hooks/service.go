// Package hooks runs the network switch belonging to a build lifecycle hook.
package hooks

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fgeck/otawifi/internal/models"
	"github.com/fgeck/otawifi/internal/services/command"
	"github.com/fgeck/otawifi/internal/services/wifi"
	"github.com/fgeck/otawifi/internal/services/wol"
	"github.com/rs/zerolog"
)

// Hook names a point in the build/upload lifecycle.
type Hook string

const (
	// AfterBuild runs once the firmware image has been produced.
	AfterBuild Hook = "after-build"
	// AfterUpload runs once the upload command has completed.
	AfterUpload Hook = "after-upload"
)

// Hooks lists the supported hooks in lifecycle order.
var Hooks = []Hook{AfterBuild, AfterUpload}

// ParseHook returns the hook named s.
func ParseHook(s string) (Hook, error) {
	for _, h := range Hooks {
		if string(h) == s {
			return h, nil
		}
	}
	names := make([]string, len(Hooks))
	for i, h := range Hooks {
		names[i] = string(h)
	}
	return "", fmt.Errorf("unknown hook %q, expected one of: %s", s, strings.Join(names, ", "))
}

// Target returns the network the hook switches to.
func Target(hook Hook, cfg models.HookConfig) (models.NetworkTarget, error) {
	switch hook {
	case AfterBuild:
		return cfg.Device, nil
	case AfterUpload:
		return cfg.Home, nil
	default:
		return models.NetworkTarget{}, fmt.Errorf("unknown hook %q", hook)
	}
}

// Service defines the interface for the hook runner.
type Service interface {
	Run(ctx context.Context, hook Hook, cfg models.HookConfig) error
	Ensure(ctx context.Context, target models.NetworkTarget, cfg models.HookConfig) error
}

// Impl implements the hooks Service interface.
type Impl struct {
	wifiSvc wifi.Service
	wolSvc  wol.Service
	logger  zerolog.Logger
}

// NewRunner builds the command runner described by cfg: local unless a
// remote host is configured.
func NewRunner(logger zerolog.Logger, cfg models.HookConfig) (command.Runner, error) {
	if cfg.Remote == nil {
		return command.NewLocal(logger, cfg.Tool)
	}

	remote := *cfg.Remote
	if remote.PrivateKey == nil && remote.KeyPath != "" {
		key, err := os.ReadFile(remote.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read SSH key: %w", err)
		}
		remote.PrivateKey = key
	}
	return command.NewRemote(logger, cfg.Tool, remote)
}

// New creates a new hook runner for cfg.
func New(logger zerolog.Logger, cfg models.HookConfig) (*Impl, error) {
	runner, err := NewRunner(logger, cfg)
	if err != nil {
		return nil, err
	}
	return &Impl{
		wifiSvc: wifi.New(logger, runner),
		wolSvc:  wol.New(logger),
		logger:  logger,
	}, nil
}

// NewWithServices creates a new hook runner with custom services (for testing).
func NewWithServices(logger zerolog.Logger, wifiSvc wifi.Service, wolSvc wol.Service) *Impl {
	return &Impl{
		wifiSvc: wifiSvc,
		wolSvc:  wolSvc,
		logger:  logger,
	}
}

// Run switches to the network belonging to hook and blocks until it is
// visible. Any error must abort the calling build step.
func (s *Impl) Run(ctx context.Context, hook Hook, cfg models.HookConfig) error {
	target, err := Target(hook, cfg)
	if err != nil {
		return err
	}

	s.logger.Info().
		Str("hook", string(hook)).
		Str("ssid", target.SSID).
		Msg("running hook")

	if err := s.Ensure(ctx, target, cfg); err != nil {
		return fmt.Errorf("%s hook failed: %w", hook, err)
	}
	return nil
}

// Ensure wakes the remote runner if configured, then ensures target is connected.
func (s *Impl) Ensure(ctx context.Context, target models.NetworkTarget, cfg models.HookConfig) error {
	startTime := time.Now()

	if cfg.Remote != nil && cfg.Remote.Wake != nil {
		if err := s.runWake(ctx, cfg.Remote); err != nil {
			return err
		}
	}

	result, err := s.wifiSvc.EnsureConnected(ctx, target, cfg.Retry)
	if err != nil {
		if result != nil {
			s.logger.Error().
				Str("ssid", target.SSID).
				Int("attempts", result.Attempts).
				Int("connects", result.Connects).
				Dur("duration", result.Duration).
				Msg("network switch failed")
		}
		return err
	}

	s.logger.Info().
		Str("ssid", target.SSID).
		Int("connects", result.Connects).
		Dur("duration", time.Since(startTime)).
		Msg("network switch completed")

	return nil
}

func (s *Impl) runWake(ctx context.Context, remote *models.RemoteConfig) error {
	s.logger.Info().
		Str("mac", remote.Wake.MACAddress).
		Str("host", remote.Host).
		Msg("waking remote runner")

	result, err := s.wolSvc.Wake(ctx, remote.Host, remote.Port, *remote.Wake)
	if err != nil {
		return fmt.Errorf("WOL failed: %w", err)
	}
	if result.Error != nil {
		return fmt.Errorf("WOL failed: %w", result.Error)
	}
	if !result.TargetReady {
		return fmt.Errorf("remote runner did not become ready after WOL")
	}

	s.logger.Info().
		Bool("packet_sent", result.PacketSent).
		Dur("wait_duration", result.WaitDuration).
		Msg("WOL completed")

	return nil
}
