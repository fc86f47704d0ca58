package command

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fgeck/otawifi/internal/models"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
)

// SSHClient wraps ssh.Client for mocking.
type SSHClient interface {
	NewSession() (SSHSession, error)
	Close() error
}

// SSHSession wraps ssh.Session for mocking.
type SSHSession interface {
	// Output runs cmd and returns its stdout and exit status. A non-nil
	// error means the command did not complete on the remote side.
	Output(cmd string) ([]byte, int, error)
	Close() error
}

// ClientFactory creates SSH clients.
type ClientFactory interface {
	NewClient(network, addr string, config *ssh.ClientConfig) (SSHClient, error)
}

// DefaultClientFactory is the default SSH client factory.
type DefaultClientFactory struct{}

// NewClient creates a new SSH client.
func (f *DefaultClientFactory) NewClient(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
	client, err := ssh.Dial(network, addr, config)
	if err != nil {
		return nil, err
	}
	return &defaultSSHClient{client: client}, nil
}

type defaultSSHClient struct {
	client *ssh.Client
}

func (c *defaultSSHClient) NewSession() (SSHSession, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return nil, err
	}
	return &defaultSSHSession{session: session}, nil
}

func (c *defaultSSHClient) Close() error {
	return c.client.Close()
}

type defaultSSHSession struct {
	session *ssh.Session
}

func (s *defaultSSHSession) Output(cmd string) ([]byte, int, error) {
	out, err := s.session.Output(cmd)

	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return out, exitErr.ExitStatus(), nil
	}
	if err != nil {
		return out, -1, err
	}
	return out, 0, nil
}

func (s *defaultSSHSession) Close() error {
	return s.session.Close()
}

// Remote runs the tool on another host over SSH.
type Remote struct {
	tool          []string
	cfg           models.RemoteConfig
	clientFactory ClientFactory
	logger        zerolog.Logger
}

// NewRemote creates a runner executing tool on the host described by cfg.
func NewRemote(logger zerolog.Logger, tool string, cfg models.RemoteConfig) (*Remote, error) {
	return NewRemoteWithClientFactory(logger, tool, cfg, &DefaultClientFactory{})
}

// NewRemoteWithClientFactory creates a remote runner with a custom client factory (for testing).
func NewRemoteWithClientFactory(logger zerolog.Logger, tool string, cfg models.RemoteConfig, factory ClientFactory) (*Remote, error) {
	argv, err := ParseTool(tool)
	if err != nil {
		return nil, err
	}
	return &Remote{
		tool:          argv,
		cfg:           cfg,
		clientFactory: factory,
		logger:        logger,
	}, nil
}

func (r *Remote) buildConfig() (*ssh.ClientConfig, error) {
	var key []byte
	var err error

	// Load private key from file or use provided key
	if len(r.cfg.PrivateKey) > 0 {
		key = r.cfg.PrivateKey
	} else if r.cfg.KeyPath != "" {
		key, err = os.ReadFile(r.cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key from %s: %w", r.cfg.KeyPath, err)
		}
	} else {
		return nil, fmt.Errorf("no private key provided")
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return &ssh.ClientConfig{
		User: r.cfg.Username,
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(signer),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // build gateway on the local network
		Timeout:         30 * time.Second,
	}, nil
}

// dial connects to the remote host, giving up when ctx is done.
func (r *Remote) dial(ctx context.Context) (SSHClient, error) {
	sshConfig, err := r.buildConfig()
	if err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(r.cfg.Host, strconv.Itoa(r.cfg.Port))

	type dialResult struct {
		client SSHClient
		err    error
	}
	clientChan := make(chan dialResult, 1)

	go func() {
		client, err := r.clientFactory.NewClient("tcp", addr, sshConfig)
		clientChan <- dialResult{client, err}
	}()

	select {
	case <-ctx.Done():
		// Close the client if the dial completes after we gave up.
		go func() {
			if res := <-clientChan; res.client != nil {
				_ = res.client.Close()
			}
		}()
		return nil, ctx.Err()
	case res := <-clientChan:
		if res.err != nil {
			return nil, fmt.Errorf("failed to connect to %s: %w", addr, res.err)
		}
		return res.client, nil
	}
}

func (r *Remote) run(ctx context.Context, cmd string) ([]byte, int, error) {
	client, err := r.dial(ctx)
	if err != nil {
		return nil, -1, err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return nil, -1, fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	// Output blocks until the remote command exits, so closing the session
	// is the only way to stop it early.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = session.Close()
			_ = client.Close()
		case <-stop:
		}
	}()

	out, code, err := session.Output(cmd)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return out, -1, fmt.Errorf("remote command interrupted: %w", ctxErr)
	}
	if err != nil {
		return out, -1, fmt.Errorf("remote command failed: %w", err)
	}
	return out, code, nil
}

// Execute runs the tool on the remote host with args appended.
func (r *Remote) Execute(ctx context.Context, args ...string) (*models.CommandResult, error) {
	full := make([]string, 0, len(r.tool)+len(args))
	full = append(full, r.tool...)
	full = append(full, args...)

	r.logger.Debug().
		Str("host", r.cfg.Host).
		Str("tool", r.tool[0]).
		Str("subcommand", subcommand(args)).
		Msg("running network tool on remote host")

	out, code, err := r.run(ctx, ShellJoin(full))
	if err != nil {
		return nil, err
	}

	r.logger.Debug().Int("exit_code", code).Int("stdout_bytes", len(out)).Msg("network tool finished")

	return &models.CommandResult{ExitCode: code, Stdout: out}, nil
}

// TestConnection verifies SSH connectivity without touching the network.
func (r *Remote) TestConnection(ctx context.Context) error {
	r.logger.Debug().
		Str("host", r.cfg.Host).
		Int("port", r.cfg.Port).
		Msg("testing SSH connection")

	out, code, err := r.run(ctx, "echo OK")
	if err != nil {
		return err
	}
	if code != 0 || !strings.Contains(string(out), "OK") {
		return fmt.Errorf("test command failed: exit code %d, output: %s", code, strings.TrimSpace(string(out)))
	}
	return nil
}

// ShellJoin quotes args for a POSIX shell and joins them with spaces.
func ShellJoin(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = shellQuote(a)
	}
	return strings.Join(quoted, " ")
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, c := range s {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || strings.ContainsRune("-_./:=@%+,", c)) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
