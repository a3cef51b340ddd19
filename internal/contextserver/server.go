package contextserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"time"

	"github.com/soyeahso/crewdesk/internal/config"
	"github.com/soyeahso/crewdesk/internal/logging"
	"github.com/soyeahso/crewdesk/internal/version"
)

// Conn is a running context server.
type Conn interface {
	Info() ServerInfo
	ListTools(ctx context.Context) ([]RemoteTool, error)
	Close() error
}

// Process is a context server running as a child process.
type Process struct {
	id     string
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	client *Client
	info   ServerInfo
	log    *logging.Logger
}

// StartProcess launches cfg.Command and completes the handshake within
// ctx. The process is killed if the handshake fails.
func StartProcess(ctx context.Context, cfg config.ContextServerConfig, log *logging.Logger) (Conn, error) {
	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Env = os.Environ()
	keys := make([]string, 0, len(cfg.Env))
	for k := range cfg.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		cmd.Env = append(cmd.Env, k+"="+cfg.Env[k])
	}
	cmd.Stderr = &logWriter{log: log}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", cfg.Command, err)
	}

	p := &Process{
		id:     cfg.ID,
		cmd:    cmd,
		stdin:  stdin,
		client: NewClient(stdout, stdin, log),
		log:    log,
	}
	res, err := p.client.Initialize(ctx, ClientInfo{Name: "crewdesk", Version: version.Version})
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	p.info = res.ServerInfo
	log.Info().
		Str("server", res.ServerInfo.Name).
		Str("version", res.ServerInfo.Version).
		Str("protocol", res.ProtocolVersion).
		Int("pid", cmd.Process.Pid).
		Msg("context server initialized")
	return p, nil
}

// Info returns what the server reported about itself.
func (p *Process) Info() ServerInfo { return p.info }

// ListTools asks the server for its tools.
func (p *Process) ListTools(ctx context.Context) ([]RemoteTool, error) {
	return p.client.ListTools(ctx)
}

// Close closes stdin and waits briefly for the process to exit before
// killing it.
func (p *Process) Close() error {
	_ = p.stdin.Close()

	exited := make(chan error, 1)
	go func() { exited <- p.cmd.Wait() }()

	select {
	case err := <-exited:
		return ignoreExit(err)
	case <-time.After(2 * time.Second):
		p.log.Warn().Msg("context server did not exit, killing")
		_ = p.cmd.Process.Kill()
		return ignoreExit(<-exited)
	}
}

func ignoreExit(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

// logWriter forwards server stderr to the debug log.
type logWriter struct {
	log *logging.Logger
}

func (w *logWriter) Write(b []byte) (int, error) {
	w.log.Debug().Str("stderr", string(b)).Msg("context server output")
	return len(b), nil
}
