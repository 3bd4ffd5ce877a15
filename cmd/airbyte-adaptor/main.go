// Command airbyte-adaptor is the CLI entrypoint: it wires one
// driver.Run invocation to the process's stdin/stdout, translates the
// result into an exit code, and tears down on SIGTERM/SIGINT.
//
// Grounded on go/flowctl/main.go + logging.go's go-flags/logrus wiring,
// simplified to this adaptor's single positional argument since it has
// no subcommands of its own.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/estuary/airbyte-adaptor/driver"
	"github.com/estuary/airbyte-adaptor/ops"
	"github.com/estuary/airbyte-adaptor/supervisor"
	"github.com/estuary/airbyte-adaptor/wire"
	"github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"
)

type options struct {
	Log                 LogConfig `group:"Logging" namespace:"log"`
	ConnectorEntrypoint string    `long:"connector-entrypoint" env:"CONNECTOR_ENTRYPOINT" description:"Command line used to invoke the underlying Airbyte connector"`
	MinIntervalMinutes  int       `long:"min-interval-minutes" env:"MIN_INTERVAL_MINUTES" description:"Minimum minutes between capture runs; overrides run_interval_minutes.json when set"`
	Args                struct {
		ConnectorEntrypoint string `positional-arg-name:"connector-entrypoint" description:"Command line used to invoke the underlying Airbyte connector"`
	} `positional-args:"yes"`
}

func main() {
	var opts options
	var parser = flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := parser.Parse(); err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		log.WithField("err", err).Fatal("failed to parse arguments")
	}
	initLog(opts.Log)

	var entrypoint = opts.ConnectorEntrypoint
	if entrypoint == "" {
		entrypoint = opts.Args.ConnectorEntrypoint
	}
	if entrypoint == "" {
		log.Fatal("a connector entrypoint is required, either positionally or via --connector-entrypoint")
	}

	var ctx, cancel = context.WithCancel(context.Background())
	defer cancel()

	var signals = make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-signals
		log.Info("caught signal, shutting down")
		cancel()
	}()

	var reader = wire.NewBinaryReader(os.Stdin)
	var writer = wire.NewBinaryWriter(os.Stdout)
	defer writer.Close()

	var cfg = driver.Config{
		Entrypoint:         entrypoint,
		Logger:             ops.StdLogger(),
		MinIntervalMinutes: opts.MinIntervalMinutes,
	}

	os.Exit(run(ctx, cfg, reader, writer))
}

// run maps driver.Run's error into the exit-code contract described in
// spec.md §6: zero on success, the child's own status code when it's the
// one that failed, one for any other adaptor-side error.
func run(ctx context.Context, cfg driver.Config, reader driver.Decoder, writer driver.Encoder) int {
	err := driver.Run(ctx, cfg, reader, writer)
	if err == nil {
		return 0
	}

	var exitErr *supervisor.ExitError
	if errors.As(err, &exitErr) {
		log.WithField("code", exitErr.Code).Warn("connector exited with a non-zero status")
		if exitErr.Code < 0 {
			return 1
		}
		return exitErr.Code
	}

	log.WithField("err", err).Error("adaptor failed")
	return 1
}
