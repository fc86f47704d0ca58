// Package wifi switches the machine onto a named network through the
// network-control tool and blocks until the network is visible.
package wifi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fgeck/otawifi/internal/models"
	"github.com/fgeck/otawifi/internal/services/command"
	"github.com/rs/zerolog"
)

var (
	// ErrInvalidTarget is returned for a target without an SSID.
	ErrInvalidTarget = errors.New("invalid network target")
	// ErrStatusUnavailable is returned when the status command keeps failing.
	ErrStatusUnavailable = errors.New("network status unavailable")
	// ErrConnectCommandFailed is returned when the connect command fails.
	ErrConnectCommandFailed = errors.New("connect command failed")
	// ErrTimeout is returned when the attempt budget runs out.
	ErrTimeout = errors.New("timed out waiting for network")
)

// Service defines the interface for network switching operations.
type Service interface {
	EnsureConnected(ctx context.Context, target models.NetworkTarget, policy models.RetryPolicy) (*models.EnsureResult, error)
	Connect(ctx context.Context, target models.NetworkTarget) error
	Status(ctx context.Context) (string, error)
	Poll(ctx context.Context, ssid string) models.PollOutcome
}

// Impl implements the wifi Service interface.
type Impl struct {
	runner command.Runner
	logger zerolog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// New creates a new wifi service running the tool through runner.
func New(logger zerolog.Logger, runner command.Runner) *Impl {
	return &Impl{
		runner: runner,
		logger: logger,
		sleep:  sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Status returns the raw output of the status command.
func (s *Impl) Status(ctx context.Context) (string, error) {
	result, err := s.runner.Execute(ctx, "status")
	if err != nil {
		return "", err
	}
	if result.ExitCode != 0 {
		return string(result.Stdout), fmt.Errorf("status exited with code %d", result.ExitCode)
	}
	return string(result.Stdout), nil
}

// Poll runs one status check and classifies it for ssid.
func (s *Impl) Poll(ctx context.Context, ssid string) models.PollOutcome {
	out, err := s.Status(ctx)
	if err != nil {
		s.logger.Debug().Err(err).Msg("status check failed")
		return models.CheckFailed
	}
	if strings.Contains(out, ssid) {
		return models.Satisfied
	}
	return models.NotSatisfied
}

// Connect issues a single connect command without verifying the result.
// The password argument is omitted for open networks.
func (s *Impl) Connect(ctx context.Context, target models.NetworkTarget) error {
	if target.SSID == "" {
		return fmt.Errorf("%w: ssid is empty", ErrInvalidTarget)
	}

	args := []string{"connect", target.SSID}
	if target.Password != "" {
		args = append(args, target.Password)
	}

	s.logger.Info().Str("ssid", target.SSID).Msg("connecting to network")

	result, err := s.runner.Execute(ctx, args...)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnectCommandFailed, err)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("%w: exited with code %d", ErrConnectCommandFailed, result.ExitCode)
	}
	return nil
}

// EnsureConnected polls the status command until it reports target.SSID,
// issuing a connect command after every status check that does not.
//
// Each unsatisfied status check counts as one attempt. When the policy
// bounds attempts, the last unsatisfied check returns ErrTimeout without
// a final connect, so MaxAttempts checks produce MaxAttempts-1 connects.
// Failed status checks do not consume attempts; more than StatusRetries
// of them in a row return ErrStatusUnavailable.
//
//nolint:gocognit // single polling loop with three outcomes
func (s *Impl) EnsureConnected(ctx context.Context, target models.NetworkTarget, policy models.RetryPolicy) (*models.EnsureResult, error) {
	result := &models.EnsureResult{}
	start := time.Now()
	defer func() { result.Duration = time.Since(start) }()

	if target.SSID == "" {
		return result, fmt.Errorf("%w: ssid is empty", ErrInvalidTarget)
	}

	s.logger.Info().
		Str("ssid", target.SSID).
		Int("max_attempts", policy.MaxAttempts).
		Msg("waiting for network")

	delay := policy.Delay
	if policy.MaxDelay > 0 && delay > policy.MaxDelay {
		delay = policy.MaxDelay
	}
	statusFailures := 0

	for {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("waiting for %q: %w", target.SSID, err)
		}

		outcome := s.Poll(ctx, target.SSID)
		result.Checks++

		switch outcome {
		case models.Satisfied:
			s.logger.Info().
				Str("ssid", target.SSID).
				Int("attempts", result.Attempts).
				Int("connects", result.Connects).
				Msg("network is available")
			return result, nil

		case models.CheckFailed:
			if err := ctx.Err(); err != nil {
				return result, fmt.Errorf("waiting for %q: %w", target.SSID, err)
			}
			statusFailures++
			if statusFailures > policy.StatusRetries {
				return result, fmt.Errorf("%w: %d consecutive status checks failed", ErrStatusUnavailable, statusFailures)
			}
			s.logger.Warn().
				Int("failures", statusFailures).
				Int("allowed", policy.StatusRetries).
				Msg("status check failed, retrying")

		case models.NotSatisfied:
			statusFailures = 0
			result.Attempts++

			if policy.MaxAttempts > 0 && result.Attempts >= policy.MaxAttempts {
				return result, fmt.Errorf("%w: %q not visible after %d attempts", ErrTimeout, target.SSID, result.Attempts)
			}

			s.logger.Info().
				Str("ssid", target.SSID).
				Int("attempt", result.Attempts).
				Msg("network not found, retrying")

			result.Connects++
			if err := s.Connect(ctx, target); err != nil {
				return result, err
			}
		}

		if err := s.sleep(ctx, delay); err != nil {
			return result, fmt.Errorf("waiting for %q: %w", target.SSID, err)
		}
		delay = nextDelay(delay, policy)
	}
}

func nextDelay(d time.Duration, policy models.RetryPolicy) time.Duration {
	if policy.Multiplier <= 1 {
		return d
	}
	next := time.Duration(float64(d) * policy.Multiplier)
	if policy.MaxDelay > 0 && next > policy.MaxDelay {
		next = policy.MaxDelay
	}
	return next
}
