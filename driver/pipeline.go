// Package driver is the pipeline entrypoint: it reads one Request from
// the runtime, classifies its Operation, and wires together the
// interceptor's per-operation adapters with the child supervisor and the
// wire codec, per spec.md's component design.
//
// Grounded on original_source/connector_runner.rs's top-level
// run_airbyte_source_connector control flow and
// go/capture/driver/airbyte/driver.go's per-operation Spec/Discover/
// Validate/Pull methods for the Go-idiomatic per-operation dispatch and
// logger field tagging.
package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/estuary/airbyte-adaptor/airbyte"
	"github.com/estuary/airbyte-adaptor/catalog"
	"github.com/estuary/airbyte-adaptor/interceptor"
	"github.com/estuary/airbyte-adaptor/ops"
	"github.com/estuary/airbyte-adaptor/protocol"
	"github.com/estuary/airbyte-adaptor/supervisor"
	"github.com/gogo/protobuf/proto"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Temp-file names under the per-run directory, per spec.md §6. These
// mirror the interceptor package's own (unexported) file-name constants;
// the driver needs them independently to build the child's argv.
const (
	configFileName  = "config.json"
	catalogFileName = "catalog.json"
	stateFileName   = "state.json"

	runIntervalFileName = "run_interval_minutes.json"
)

// Config configures one driver invocation.
type Config struct {
	// Entrypoint is the connector command to invoke, e.g. "python
	// /airbyte/integration_code/main.py".
	Entrypoint string
	Logger     ops.Logger

	// MinIntervalMinutes, when positive, overrides run_interval_minutes.json
	// for this invocation rather than requiring the file to be seeded.
	MinIntervalMinutes int
}

func (c Config) logger() ops.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return ops.StdLogger()
}

// Run reads exactly one Request via reader, runs it to completion, and
// writes every Response it produces via writer. Returns nil without
// doing anything if reader is already at clean EOF. A *supervisor.ExitError
// return means the connector itself failed; any other non-nil error is a
// pipeline or I/O failure.
func Run(ctx context.Context, cfg Config, reader Decoder, writer Encoder) error {
	var req protocol.Request
	ok, err := reader.Decode(&req)
	if err != nil {
		return fmt.Errorf("reading request: %w", err)
	}
	if !ok {
		return nil
	}

	runID := uuid.NewString()
	dir, err := os.MkdirTemp("", "airbyte-adaptor-"+runID)
	if err != nil {
		return fmt.Errorf("creating run directory: %w", err)
	}
	defer os.RemoveAll(dir)

	started := time.Now()
	op := req.Operation()
	logger := ops.NewLoggerWithFields(cfg.logger(), log.Fields{"operation": string(op), "runId": runID})

	switch op {
	case protocol.OperationSpec:
		return runSpec(ctx, cfg.Entrypoint, logger, writer, req.Spec)
	case protocol.OperationDiscover:
		return runDiscover(ctx, cfg.Entrypoint, logger, dir, writer, req.Discover)
	case protocol.OperationValidate:
		return runValidate(ctx, cfg.Entrypoint, logger, dir, writer, req.Validate)
	case protocol.OperationApply:
		return runApply(ctx, cfg.Entrypoint, logger, dir, writer, req.Apply)
	case protocol.OperationCapture:
		return runCapture(ctx, cfg.Entrypoint, logger, dir, writer, req.Open, started, cfg.MinIntervalMinutes)
	default:
		return fmt.Errorf("unrecognized request: no operation sub-message is set")
	}
}

// Decoder is the subset of wire.BinaryReader the driver needs to read one
// runtime Request.
type Decoder interface {
	Decode(msg proto.Message) (bool, error)
}

// Encoder is the subset of wire.BinaryWriter the driver needs to write
// runtime Responses.
type Encoder interface {
	Encode(msg proto.Message) error
}

// encodeResponse adapts an Encoder's proto.Message-shaped Encode to the
// *protocol.Response-shaped callback supervisor.Config expects.
func encodeResponse(writer Encoder) func(resp *protocol.Response) error {
	return func(resp *protocol.Response) error { return writer.Encode(resp) }
}

func runSpec(ctx context.Context, entrypoint string, logger ops.Logger, writer Encoder, _ *protocol.SpecRequest) error {
	var produced bool
	if err := supervisor.Run(ctx, supervisor.Config{
		Entrypoint:   entrypoint,
		Args:         []string{"spec"},
		Logger:       logger,
		WriteRequest: func() error { return nil },
		OnMessage: func(msg *airbyte.Message) (*protocol.Response, error) {
			if msg.Spec == nil {
				return nil, fmt.Errorf("expected a spec message, got %q", msg.Type)
			}
			resp, err := interceptor.AdaptSpecResponse(msg.Spec)
			if err != nil {
				return nil, err
			}
			produced = true
			return &protocol.Response{Spec: resp}, nil
		},
		Emit: encodeResponse(writer),
	}); err != nil {
		return err
	}
	if !produced {
		return fmt.Errorf("connector produced no spec response")
	}
	return nil
}

func runDiscover(ctx context.Context, entrypoint string, logger ops.Logger, dir string, writer Encoder, req *protocol.DiscoverRequest) error {
	if req == nil {
		return fmt.Errorf("missing discover request")
	}
	var produced bool
	if err := supervisor.Run(ctx, supervisor.Config{
		Entrypoint: entrypoint,
		Args:       []string{"discover", "--config", configPath(dir)},
		Logger:     logger,
		WriteRequest: func() error {
			return interceptor.AdaptDiscoverRequest(dir, req)
		},
		OnMessage: func(msg *airbyte.Message) (*protocol.Response, error) {
			if msg.Catalog == nil {
				return nil, fmt.Errorf("expected a catalog message, got %q", msg.Type)
			}
			resp, err := interceptor.AdaptDiscoverResponse(msg.Catalog)
			if err != nil {
				return nil, err
			}
			produced = true
			return &protocol.Response{Discovered: resp}, nil
		},
		Emit: encodeResponse(writer),
	}); err != nil {
		return err
	}
	if !produced {
		return fmt.Errorf("connector produced no catalog")
	}
	return nil
}

func runValidate(ctx context.Context, entrypoint string, logger ops.Logger, dir string, writer Encoder, req *protocol.ValidateRequest) error {
	if req == nil {
		return fmt.Errorf("missing validate request")
	}
	var produced bool
	if err := supervisor.Run(ctx, supervisor.Config{
		Entrypoint: entrypoint,
		Args:       []string{"check", "--config", configPath(dir)},
		Logger:     logger,
		WriteRequest: func() error {
			return interceptor.AdaptValidateRequest(dir, req)
		},
		OnMessage: func(msg *airbyte.Message) (*protocol.Response, error) {
			if msg.ConnectionStatus == nil {
				return nil, fmt.Errorf("expected a connection status message, got %q", msg.Type)
			}
			resp, err := interceptor.AdaptValidateResponse(req, msg.ConnectionStatus)
			if err != nil {
				return nil, err
			}
			produced = true
			return &protocol.Response{Validated: resp}, nil
		},
		Emit: encodeResponse(writer),
	}); err != nil {
		return err
	}
	if !produced {
		return fmt.Errorf("connector produced no connection status")
	}
	return nil
}

// runApply invokes the child with the no-op "spec" command (Airbyte
// source connectors have no apply verb of their own), discards whatever
// it emits, and always responds with an empty Applied once the child
// exits cleanly.
func runApply(ctx context.Context, entrypoint string, logger ops.Logger, dir string, writer Encoder, req *protocol.ApplyRequest) error {
	if req == nil {
		return fmt.Errorf("missing apply request")
	}
	err := supervisor.Run(ctx, supervisor.Config{
		Entrypoint:   entrypoint,
		Args:         []string{"spec"},
		Logger:       logger,
		WriteRequest: func() error { return nil },
		OnMessage: func(msg *airbyte.Message) (*protocol.Response, error) {
			return nil, nil
		},
		Emit: encodeResponse(writer),
	})
	if err != nil {
		return err
	}
	return writer.Encode(&protocol.Response{Applied: interceptor.AdaptApplyResponse()})
}

func runCapture(ctx context.Context, entrypoint string, logger ops.Logger, dir string, writer Encoder, open *protocol.OpenRequest, started time.Time, minIntervalMinutes int) error {
	if open == nil {
		return fmt.Errorf("missing open request")
	}

	store := catalog.NewStore()
	if _, err := interceptor.AdaptOpenRequest(dir, store, open); err != nil {
		return err
	}

	if err := writer.Encode(&protocol.Response{Opened: &protocol.OpenedResponse{}}); err != nil {
		return err
	}

	err := supervisor.Run(ctx, supervisor.Config{
		Entrypoint:   entrypoint,
		Args:         []string{"read", "--config", configPath(dir), "--catalog", catalogPath(dir), "--state", statePath(dir)},
		Logger:       logger,
		Capture:      true,
		WriteRequest: func() error { return nil },
		OnMessage: func(msg *airbyte.Message) (*protocol.Response, error) {
			return interceptor.AdaptCaptureMessage(store, msg)
		},
		Emit: encodeResponse(writer),
	})
	if err != nil {
		return err
	}

	return sleepRemainingInterval(open.Capture.ConfigJSON, started, minIntervalMinutes)
}

func configPath(dir string) string  { return dir + "/" + configFileName }
func catalogPath(dir string) string { return dir + "/" + catalogFileName }
func statePath(dir string) string   { return dir + "/" + stateFileName }

// sleepRemainingInterval enforces the minimum run interval described in
// spec.md §4.7: if run_interval_minutes.json is present in the working
// directory and the config doesn't opt out via _atf_skip_interval, sleep
// until started plus that many minutes have elapsed. minIntervalMinutes,
// when positive, overrides the file's value instead of requiring it to be
// seeded ahead of the run.
func sleepRemainingInterval(configJSON json.RawMessage, started time.Time, minIntervalMinutes int) error {
	minutes := minIntervalMinutes
	if minutes <= 0 {
		b, err := os.ReadFile(runIntervalFileName)
		if os.IsNotExist(err) {
			return nil
		} else if err != nil {
			return fmt.Errorf("reading %s: %w", runIntervalFileName, err)
		}
		if err := json.Unmarshal(b, &minutes); err != nil {
			return fmt.Errorf("parsing %s: %w", runIntervalFileName, err)
		}
	}

	var flags struct {
		SkipInterval bool `json:"_atf_skip_interval"`
	}
	_ = json.Unmarshal(configJSON, &flags) // Absence or malformed config just means "don't skip".
	if flags.SkipInterval {
		return nil
	}

	if remaining := time.Until(started.Add(time.Duration(minutes) * time.Minute)); remaining > 0 {
		time.Sleep(remaining)
	}
	return nil
}
