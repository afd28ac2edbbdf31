// Package remote executes shell commands on cluster hosts over SSH.
//
// Every execution returns a structured Result carrying the captured output
// streams, the process exit code, and an explicit change signal so callers
// never have to inspect package-manager output themselves.
//
// Security: host key verification is disabled by default, matching the
// tool's use against fleets of internally-managed hosts. Configure
// HostKeyCallback when host identities must be pinned.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

const (
	defaultPort        = 22
	defaultUser        = "root"
	defaultDialTimeout = 10 * time.Second
)

// DefaultNoChangeMarkers are the stdout phrases that indicate a package
// command completed without installing anything. They match yum's wording;
// override for other package managers.
var DefaultNoChangeMarkers = []string{
	"Nothing to do",
	"No packages marked for update",
}

// Result is the outcome of one remote command execution.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int

	// Changed reports whether the command made a change on the host. It is
	// true when the command succeeded and its stdout does not contain any
	// configured no-change marker.
	Changed bool
}

// Runner runs a single shell command on a named host. Implementations return
// an error only for transport failures; a command that ran and exited
// non-zero is reported through Result.ExitCode.
type Runner interface {
	Run(ctx context.Context, host, command string) (Result, error)
}

// Config holds SSH executor configuration shared across hosts.
type Config struct {
	User string
	Port int

	// PrivateKey is an optional PEM-encoded key for public-key auth.
	PrivateKey []byte

	// Password is an optional password for password auth. At least one of
	// PrivateKey and Password must be set.
	Password string

	// DialTimeout is the timeout for establishing the TCP connection.
	// If zero, defaultDialTimeout is used.
	DialTimeout time.Duration

	// HostKeyCallback handles host key verification.
	// If nil, ssh.InsecureIgnoreHostKey() is used.
	HostKeyCallback ssh.HostKeyCallback

	// NoChangeMarkers are stdout substrings that mark a command as having
	// changed nothing. If nil, DefaultNoChangeMarkers is used.
	NoChangeMarkers []string
}

// SSHExecutor runs commands on cluster hosts over SSH. It parses the private
// key once during construction and dials per call, since consecutive calls
// usually target different hosts.
type SSHExecutor struct {
	config  *Config
	signer  ssh.Signer
	markers []string
}

// NewSSHExecutor creates a new SSH executor and validates the configuration.
func NewSSHExecutor(cfg *Config) (*SSHExecutor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if len(cfg.PrivateKey) == 0 && cfg.Password == "" {
		return nil, fmt.Errorf("config needs a private key or a password")
	}

	configCopy := *cfg
	if configCopy.User == "" {
		configCopy.User = defaultUser
	}
	if configCopy.Port == 0 {
		configCopy.Port = defaultPort
	}
	if configCopy.DialTimeout == 0 {
		configCopy.DialTimeout = defaultDialTimeout
	}
	if configCopy.HostKeyCallback == nil {
		configCopy.HostKeyCallback = ssh.InsecureIgnoreHostKey() //nolint:gosec // Default for internally-managed hosts
	}

	markers := configCopy.NoChangeMarkers
	if markers == nil {
		markers = DefaultNoChangeMarkers
	}

	var signer ssh.Signer
	if len(configCopy.PrivateKey) > 0 {
		var err error
		signer, err = ssh.ParsePrivateKey(configCopy.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
	}

	return &SSHExecutor{
		config:  &configCopy,
		signer:  signer,
		markers: markers,
	}, nil
}

// Run executes a command on the given host and returns its structured result.
func (e *SSHExecutor) Run(ctx context.Context, host, command string) (Result, error) {
	client, err := e.dial(ctx, host)
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = client.Close() }()

	session, err := client.NewSession()
	if err != nil {
		return Result{}, fmt.Errorf("failed to create SSH session on %s: %w", host, err)
	}
	defer func() { _ = session.Close() }()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	runErr := session.Run(command)

	result := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if runErr != nil {
		var exitErr *ssh.ExitError
		if errors.As(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitStatus()
			return result, nil
		}
		return result, fmt.Errorf("command failed on %s: %w", host, runErr)
	}

	result.Changed = changed(result.Stdout, e.markers)
	return result, nil
}

// dial establishes an SSH connection to the host.
func (e *SSHExecutor) dial(ctx context.Context, host string) (*ssh.Client, error) {
	var auth []ssh.AuthMethod
	if e.signer != nil {
		auth = append(auth, ssh.PublicKeys(e.signer))
	}
	if e.config.Password != "" {
		auth = append(auth, ssh.Password(e.config.Password))
	}

	config := &ssh.ClientConfig{
		User:            e.config.User,
		Auth:            auth,
		HostKeyCallback: e.config.HostKeyCallback,
		Timeout:         e.config.DialTimeout,
	}

	addr := net.JoinHostPort(host, strconv.Itoa(e.config.Port))

	dialer := net.Dialer{Timeout: e.config.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to reach %s: %w", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("SSH handshake with %s failed: %w", addr, err)
	}

	return ssh.NewClient(sshConn, chans, reqs), nil
}

// changed reports whether stdout indicates an actual change on the host.
func changed(stdout string, markers []string) bool {
	for _, marker := range markers {
		if marker != "" && strings.Contains(stdout, marker) {
			return false
		}
	}
	return true
}
