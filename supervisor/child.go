// Package supervisor owns the lifecycle of the child Airbyte connector
// process: spawning it behind a shell "READY gate", copying the request
// and response streams concurrently, forwarding its stderr and LOG
// messages to the adaptor's own logger, watching for a hung connector,
// and injecting a synthetic final checkpoint when a Capture child exits
// cleanly without ever writing one.
//
// Grounded on original_source/airbyte-to-flow's libs/command.rs
// (invoke_connector_delayed's shell gate) and connector_runner.rs's
// run_airbyte_source_connector/streaming_all (the tokio::select! race
// between the streaming copy and the child's exit, the try_unfold
// pending-checkpoint tracker, the 5-second post-exit drain), translated
// to goroutines, channels and context.Context the way
// go/capture/driver/airbyte/connector.go's runCommand drives a child
// process (SIGTERM-on-cancel, stderr forwarding via ops.ForwardLogs).
package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/estuary/airbyte-adaptor/airbyte"
	"github.com/estuary/airbyte-adaptor/ops"
	"github.com/estuary/airbyte-adaptor/protocol"
	"github.com/estuary/airbyte-adaptor/wire"
	log "github.com/sirupsen/logrus"
)

// readyToken is the exact sentinel line the shell gate blocks on before
// exec'ing the real connector entrypoint.
const readyToken = "READY\n"

// IdleTimeout is how long the response stream may go without a forwarded
// message before the child is considered hung.
const IdleTimeout = 4 * time.Hour

// DrainTimeout is how long the response stream is given to finish once
// the child has exited, before the supervisor gives up waiting on it.
const DrainTimeout = 5 * time.Second

// ExitError reports that the child exited with a non-zero status; Code is
// -1 if the child was terminated by a signal rather than exiting cleanly.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	if e.Code < 0 {
		return "connector process was terminated by signal"
	}
	return fmt.Sprintf("connector process exited with code %d", e.Code)
}

// Config describes one child invocation.
type Config struct {
	// Entrypoint is the user-supplied connector command; Args are the
	// operation-specific arguments appended per spec.md's command table.
	Entrypoint string
	Args       []string

	Logger ops.Logger

	// WriteRequest is called once after the child has been spawned (but
	// before anything is read from its stdout). It must write whatever
	// temp files the operation needs; the supervisor appends the READY
	// gate line and closes the child's stdin immediately afterward.
	WriteRequest func() error

	// OnMessage is invoked for every decoded Airbyte message from the
	// child's stdout that isn't a LOG message (those are routed to
	// Logger directly and never reach OnMessage). A nil, nil return
	// means the message produced nothing to forward (e.g. Apply, which
	// discards the connector's spec response).
	OnMessage func(msg *airbyte.Message) (*protocol.Response, error)

	// Emit writes one runtime Response to the runtime's stdout.
	Emit func(resp *protocol.Response) error

	// Capture enables pending-checkpoint tracking and synthetic final
	// checkpoint injection; only the Pull-equivalent operation needs it.
	Capture bool
}

// Run spawns the child, drives the request/response copy loops to
// completion, and returns once the child has exited and the response
// stream has either finished or been given up on after DrainTimeout. A
// non-nil *ExitError reports the child's own failure; any other error
// reports a streaming or I/O failure. Idle-watchdog expiry is not an
// error: Run returns nil after killing the child.
func Run(ctx context.Context, cfg Config) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Mirrors the original connector_runner's naive quoting: every
	// argument is wrapped in literal double quotes and joined, which is
	// sufficient for the flag/file-path arguments the command table in
	// spec.md produces and keeps the gate string a plain shell one-liner.
	var shellCmd = cfg.Entrypoint
	if len(cfg.Args) > 0 {
		shellCmd += ` "` + strings.Join(cfg.Args, `" "`) + `"`
	}
	var gate = fmt.Sprintf("read -r _ && exec %s", shellCmd)

	var cmd = exec.Command("sh", "-c", gate)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("connector stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("connector stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("connector stderr pipe: %w", err)
	}

	cfg.Logger.Log(log.InfoLevel, log.Fields{"args": cfg.Args}, "invoking connector")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting connector: %w", err)
	}
	go ops.ForwardLogs("connector stderr", log.InfoLevel, stderr, cfg.Logger)

	// Signal the child if our context is cancelled; docker-less direct
	// processes get a plain SIGTERM rather than a propagated signal.
	go func() {
		<-ctx.Done()
		_ = cmd.Process.Signal(syscall.SIGTERM)
	}()

	requestErr := make(chan error, 1)
	go func() {
		defer stdin.Close()
		if err := cfg.WriteRequest(); err != nil {
			requestErr <- err
			return
		}
		_, err := io.WriteString(stdin, readyToken)
		requestErr <- err
	}()

	var (
		streamErr = make(chan error, 1)
		pendingCh = make(chan bool, 1)
		idlePing  = make(chan struct{}, 1)
	)
	go runResponseLoop(cfg, stdout, streamErr, pendingCh, idlePing)

	idleDone := make(chan struct{})
	idleFired := make(chan struct{})
	go watchIdle(idlePing, idleDone, idleFired, IdleTimeout)

	exitCh := make(chan error, 1)
	go func() { exitCh <- cmd.Wait() }()

	var result error
	select {
	case err := <-streamErr:
		close(idleDone)
		if err != nil {
			_ = cmd.Process.Kill()
			<-exitCh
			return err
		}
		// Streaming finished cleanly; wait for the child itself.
		result = finish(cfg, <-exitCh, true, pendingCh)

	case err := <-exitCh:
		close(idleDone)
		var streamFinished bool
		select {
		case err := <-streamErr:
			if err != nil {
				return err
			}
			streamFinished = true
		case <-time.After(DrainTimeout):
		}
		result = finish(cfg, err, streamFinished, pendingCh)

	case <-idleFired:
		cfg.Logger.Log(log.WarnLevel, nil, "connector idle for too long, killing it")
		_ = cmd.Process.Kill()
		<-exitCh
		<-streamErr
		return nil
	}

	if err := <-requestErr; err != nil && result == nil {
		result = err
	}
	return result
}

// finish interprets the child's wait() result and, for a cleanly-exited
// Capture child whose response stream ended without a trailing
// checkpoint, injects the synthetic one described in spec §4.7.
func finish(cfg Config, waitErr error, streamFinished bool, pendingCh chan bool) error {
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			return &ExitError{Code: exitErr.ExitCode()}
		}
		return fmt.Errorf("waiting for connector: %w", waitErr)
	}

	if !cfg.Capture || !streamFinished {
		return nil
	}
	select {
	case pending := <-pendingCh:
		if pending {
			cfg.Logger.Log(log.WarnLevel, nil,
				"connector exited without writing a final state checkpoint, writing an empty object {} merge patch checkpoint")
			return cfg.Emit(protocol.SyntheticCheckpoint())
		}
	default:
	}
	return nil
}

// runResponseLoop decodes newline-delimited Airbyte messages from the
// child's stdout, routes LOG messages to cfg.Logger, and otherwise hands
// every other message to cfg.OnMessage, emitting whatever Response it
// returns and pinging the idle watchdog. On clean EOF it reports the
// pending-checkpoint flag (Capture only): true iff the last forwarded
// response carried no checkpoint.
func runResponseLoop(cfg Config, stdout io.Reader, streamErr chan<- error, pendingCh chan<- bool, idlePing chan<- struct{}) {
	var reader = wire.NewLineReader(stdout)
	var pending bool

	for {
		line, ok, err := reader.Decode()
		if err != nil {
			streamErr <- err
			return
		}
		if !ok {
			break
		}

		var msg airbyte.Message
		if err := json.Unmarshal(line, &msg); err != nil {
			cfg.Logger.Log(log.DebugLevel, log.Fields{"error": err, "line": string(line)},
				"dropping non-JSON connector output")
			continue
		}

		if msg.Type == airbyte.MessageTypeLog && msg.Log != nil {
			cfg.Logger.Log(ops.AirbyteToLogrusLevel(msg.Log.Level), nil, msg.Log.Message)
			continue
		}

		resp, err := cfg.OnMessage(&msg)
		if err != nil {
			streamErr <- err
			return
		}
		if resp == nil {
			continue
		}
		if err := cfg.Emit(resp); err != nil {
			streamErr <- err
			return
		}
		select {
		case idlePing <- struct{}{}:
		default:
		}
		pending = !resp.HasCheckpoint()
	}

	if cfg.Capture {
		pendingCh <- pending
	}
	streamErr <- nil
}

// watchIdle resets a timer on every ping and closes fired if none arrives
// within IdleTimeout; done stops the watchdog once the caller no longer
// needs it (child already exited or errored).
func watchIdle(ping <-chan struct{}, done <-chan struct{}, fired chan<- struct{}, timeout time.Duration) {
	var timer = time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-ping:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(timeout)
		case <-timer.C:
			close(fired)
			return
		case <-done:
			return
		}
	}
}
