package wifi

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/fgeck/otawifi/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRunner is a mock implementation of command.Runner for testing.
type mockRunner struct {
	mu          sync.Mutex
	statusFunc  func(call int) (*models.CommandResult, error)
	connectFunc func(call int, args []string) (*models.CommandResult, error)
	statusCalls int
	connects    [][]string
}

func (m *mockRunner) Execute(ctx context.Context, args ...string) (*models.CommandResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch args[0] {
	case "status":
		m.statusCalls++
		if m.statusFunc != nil {
			return m.statusFunc(m.statusCalls)
		}
		return &models.CommandResult{}, nil
	case "connect":
		m.connects = append(m.connects, args[1:])
		if m.connectFunc != nil {
			return m.connectFunc(len(m.connects), args[1:])
		}
		return &models.CommandResult{}, nil
	}
	return nil, errors.New("unexpected command")
}

// statusSequence returns the given outputs in order, repeating the last one.
func statusSequence(outputs ...string) func(call int) (*models.CommandResult, error) {
	return func(call int) (*models.CommandResult, error) {
		i := call - 1
		if i >= len(outputs) {
			i = len(outputs) - 1
		}
		return &models.CommandResult{Stdout: []byte(outputs[i])}, nil
	}
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func testTarget() models.NetworkTarget {
	return models.NetworkTarget{SSID: "u701", Password: "secret"}
}

func fastPolicy(maxAttempts int) models.RetryPolicy {
	return models.RetryPolicy{
		MaxAttempts:   maxAttempts,
		StatusRetries: 3,
		Multiplier:    1,
	}
}

func TestEnsureConnected_AlreadyConnected(t *testing.T) {
	runner := &mockRunner{statusFunc: statusSequence("Connected to u701\n")}
	svc := New(testLogger(), runner)

	result, err := svc.EnsureConnected(context.Background(), testTarget(), fastPolicy(0))

	require.NoError(t, err)
	assert.Equal(t, 1, runner.statusCalls)
	assert.Empty(t, runner.connects)
	assert.Equal(t, 0, result.Attempts)
	assert.Equal(t, 0, result.Connects)
}

func TestEnsureConnected_SucceedsOnThirdCheck(t *testing.T) {
	runner := &mockRunner{statusFunc: statusSequence("", "", "u701-network")}
	svc := New(testLogger(), runner)

	result, err := svc.EnsureConnected(context.Background(), testTarget(), fastPolicy(0))

	require.NoError(t, err)
	assert.Equal(t, 3, runner.statusCalls)
	require.Len(t, runner.connects, 2)
	assert.Equal(t, []string{"u701", "secret"}, runner.connects[0])
	assert.Equal(t, 2, result.Attempts)
	assert.Equal(t, 2, result.Connects)
	assert.Equal(t, 3, result.Checks)
}

func TestEnsureConnected_SucceedsAfterNConnects(t *testing.T) {
	for _, n := range []int{1, 2, 5, 10} {
		runner := &mockRunner{}
		runner.statusFunc = func(call int) (*models.CommandResult, error) {
			if len(runner.connects) >= n {
				return &models.CommandResult{Stdout: []byte("SSID u701")}, nil
			}
			return &models.CommandResult{Stdout: []byte("SSID home")}, nil
		}
		svc := New(testLogger(), runner)

		result, err := svc.EnsureConnected(context.Background(), testTarget(), fastPolicy(0))

		require.NoError(t, err)
		assert.Len(t, runner.connects, n)
		assert.Equal(t, n, result.Connects)
		assert.Equal(t, n, result.Attempts)
	}
}

func TestEnsureConnected_TimeoutAfterMaxAttempts(t *testing.T) {
	runner := &mockRunner{statusFunc: statusSequence("Connected to home")}
	svc := New(testLogger(), runner)

	result, err := svc.EnsureConnected(context.Background(), testTarget(), fastPolicy(3))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, 3, runner.statusCalls)
	assert.Len(t, runner.connects, 2)
}

func TestEnsureConnected_SingleAttempt(t *testing.T) {
	runner := &mockRunner{statusFunc: statusSequence("")}
	svc := New(testLogger(), runner)

	_, err := svc.EnsureConnected(context.Background(), testTarget(), fastPolicy(1))

	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 1, runner.statusCalls)
	assert.Empty(t, runner.connects)
}

func TestEnsureConnected_SuccessOnLastAttempt(t *testing.T) {
	runner := &mockRunner{statusFunc: statusSequence("", "", "u701")}
	svc := New(testLogger(), runner)

	result, err := svc.EnsureConnected(context.Background(), testTarget(), fastPolicy(3))

	require.NoError(t, err)
	assert.Equal(t, 2, result.Attempts)
}

func TestEnsureConnected_StatusAlwaysFails(t *testing.T) {
	runner := &mockRunner{
		statusFunc: func(call int) (*models.CommandResult, error) {
			return nil, errors.New("m: command not found")
		},
	}
	svc := New(testLogger(), runner)

	result, err := svc.EnsureConnected(context.Background(), testTarget(), fastPolicy(0))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStatusUnavailable)
	assert.Equal(t, 4, runner.statusCalls)
	assert.Empty(t, runner.connects)
	assert.Equal(t, 0, result.Attempts)
}

func TestEnsureConnected_StatusNonZeroExit(t *testing.T) {
	runner := &mockRunner{
		statusFunc: func(call int) (*models.CommandResult, error) {
			return &models.CommandResult{ExitCode: 1, Stdout: []byte("u701")}, nil
		},
	}
	svc := New(testLogger(), runner)

	policy := fastPolicy(0)
	policy.StatusRetries = 0

	_, err := svc.EnsureConnected(context.Background(), testTarget(), policy)

	assert.ErrorIs(t, err, ErrStatusUnavailable)
	assert.Equal(t, 1, runner.statusCalls)
}

func TestEnsureConnected_StatusRecovers(t *testing.T) {
	runner := &mockRunner{
		statusFunc: func(call int) (*models.CommandResult, error) {
			switch call {
			case 1, 2, 3:
				return nil, errors.New("interface busy")
			case 4:
				return &models.CommandResult{Stdout: []byte("")}, nil
			case 5, 6, 7:
				return nil, errors.New("interface busy")
			default:
				return &models.CommandResult{Stdout: []byte("u701")}, nil
			}
		},
	}
	svc := New(testLogger(), runner)

	result, err := svc.EnsureConnected(context.Background(), testTarget(), fastPolicy(0))

	require.NoError(t, err)
	assert.Equal(t, 8, result.Checks)
	assert.Equal(t, 1, result.Attempts)
	assert.Len(t, runner.connects, 1)
}

func TestEnsureConnected_ConnectFails(t *testing.T) {
	runner := &mockRunner{
		statusFunc: statusSequence(""),
		connectFunc: func(call int, args []string) (*models.CommandResult, error) {
			return &models.CommandResult{ExitCode: 1}, nil
		},
	}
	svc := New(testLogger(), runner)

	result, err := svc.EnsureConnected(context.Background(), testTarget(), fastPolicy(0))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnectCommandFailed)
	assert.Contains(t, err.Error(), "exited with code 1")
	assert.Equal(t, 1, result.Connects)
}

func TestEnsureConnected_ConnectCannotStart(t *testing.T) {
	runner := &mockRunner{
		statusFunc: statusSequence(""),
		connectFunc: func(call int, args []string) (*models.CommandResult, error) {
			return nil, errors.New("fork/exec m: no such file or directory")
		},
	}
	svc := New(testLogger(), runner)

	_, err := svc.EnsureConnected(context.Background(), testTarget(), fastPolicy(0))

	assert.ErrorIs(t, err, ErrConnectCommandFailed)
	assert.Contains(t, err.Error(), "no such file or directory")
}

func TestEnsureConnected_EmptySSID(t *testing.T) {
	runner := &mockRunner{}
	svc := New(testLogger(), runner)

	_, err := svc.EnsureConnected(context.Background(), models.NetworkTarget{Password: "secret"}, fastPolicy(0))

	assert.ErrorIs(t, err, ErrInvalidTarget)
	assert.Equal(t, 0, runner.statusCalls)
}

func TestEnsureConnected_OpenNetwork(t *testing.T) {
	runner := &mockRunner{statusFunc: statusSequence("", "boat")}
	svc := New(testLogger(), runner)

	_, err := svc.EnsureConnected(context.Background(), models.NetworkTarget{SSID: "boat"}, fastPolicy(0))

	require.NoError(t, err)
	require.Len(t, runner.connects, 1)
	assert.Equal(t, []string{"boat"}, runner.connects[0])
}

func TestEnsureConnected_ContextCancelled(t *testing.T) {
	runner := &mockRunner{statusFunc: statusSequence("")}
	svc := New(testLogger(), runner)

	ctx, cancel := context.WithCancel(context.Background())

	policy := fastPolicy(0)
	policy.Delay = 10 * time.Millisecond

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := svc.EnsureConnected(ctx, testTarget(), policy)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEnsureConnected_DelayGrowsToMax(t *testing.T) {
	runner := &mockRunner{statusFunc: statusSequence("", "", "", "", "u701")}
	svc := New(testLogger(), runner)

	var delays []time.Duration
	svc.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	policy := models.RetryPolicy{
		StatusRetries: 3,
		Delay:         100 * time.Millisecond,
		MaxDelay:      300 * time.Millisecond,
		Multiplier:    2,
	}

	_, err := svc.EnsureConnected(context.Background(), testTarget(), policy)

	require.NoError(t, err)
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		300 * time.Millisecond,
		300 * time.Millisecond,
	}, delays)
}

func TestEnsureConnected_FixedDelay(t *testing.T) {
	runner := &mockRunner{statusFunc: statusSequence("", "", "u701")}
	svc := New(testLogger(), runner)

	var delays []time.Duration
	svc.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	policy := fastPolicy(0)
	policy.Delay = 2 * time.Second

	_, err := svc.EnsureConnected(context.Background(), testTarget(), policy)

	require.NoError(t, err)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, delays)
}

func TestEnsureConnected_DelayCappedWithoutGrowth(t *testing.T) {
	runner := &mockRunner{statusFunc: statusSequence("", "", "u701")}
	svc := New(testLogger(), runner)

	var delays []time.Duration
	svc.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	policy := fastPolicy(0)
	policy.Delay = 5 * time.Second
	policy.MaxDelay = time.Second

	_, err := svc.EnsureConnected(context.Background(), testTarget(), policy)

	require.NoError(t, err)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, delays)
}

func TestStatus(t *testing.T) {
	runner := &mockRunner{statusFunc: statusSequence("SSID: u701\nSignal: -40")}
	svc := New(testLogger(), runner)

	out, err := svc.Status(context.Background())

	require.NoError(t, err)
	assert.Contains(t, out, "u701")
}

func TestStatus_NonZeroExit(t *testing.T) {
	runner := &mockRunner{
		statusFunc: func(call int) (*models.CommandResult, error) {
			return &models.CommandResult{ExitCode: 3}, nil
		},
	}
	svc := New(testLogger(), runner)

	_, err := svc.Status(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "exited with code 3")
}

func TestPoll(t *testing.T) {
	tests := []struct {
		name   string
		result *models.CommandResult
		err    error
		want   models.PollOutcome
	}{
		{"ssid present", &models.CommandResult{Stdout: []byte("u701-network")}, nil, models.Satisfied},
		{"ssid absent", &models.CommandResult{Stdout: []byte("home")}, nil, models.NotSatisfied},
		{"empty output", &models.CommandResult{}, nil, models.NotSatisfied},
		{"non-zero exit", &models.CommandResult{ExitCode: 1}, nil, models.CheckFailed},
		{"cannot run", nil, errors.New("boom"), models.CheckFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &mockRunner{
				statusFunc: func(call int) (*models.CommandResult, error) {
					return tt.result, tt.err
				},
			}
			svc := New(testLogger(), runner)

			assert.Equal(t, tt.want, svc.Poll(context.Background(), "u701"))
		})
	}
}

func TestConnect_EmptySSID(t *testing.T) {
	runner := &mockRunner{}
	svc := New(testLogger(), runner)

	err := svc.Connect(context.Background(), models.NetworkTarget{})

	assert.ErrorIs(t, err, ErrInvalidTarget)
	assert.Empty(t, runner.connects)
}

func TestPollOutcome_String(t *testing.T) {
	assert.Equal(t, "satisfied", models.Satisfied.String())
	assert.Equal(t, "not_satisfied", models.NotSatisfied.String())
	assert.Equal(t, "check_failed", models.CheckFailed.String())
}
