package main

import (
	"context"
	"fmt"
	"testing"

	"github.com/estuary/airbyte-adaptor/driver"
	"github.com/estuary/airbyte-adaptor/supervisor"
	"github.com/gogo/protobuf/proto"
	"github.com/stretchr/testify/require"
)

type noRequestDecoder struct{}

func (noRequestDecoder) Decode(proto.Message) (bool, error) { return false, nil }

type discardEncoder struct{}

func (discardEncoder) Encode(proto.Message) error { return nil }

func TestRunReturnsZeroOnSuccess(t *testing.T) {
	require.Equal(t, 0, run(context.Background(), driver.Config{}, noRequestDecoder{}, discardEncoder{}))
}

func TestRunPropagatesConnectorExitCode(t *testing.T) {
	var decoder = failingDecoder{err: &supervisor.ExitError{Code: 7}}
	require.Equal(t, 7, run(context.Background(), driver.Config{}, decoder, discardEncoder{}))
}

func TestRunMapsSignalTerminationToOne(t *testing.T) {
	var decoder = failingDecoder{err: &supervisor.ExitError{Code: -1}}
	require.Equal(t, 1, run(context.Background(), driver.Config{}, decoder, discardEncoder{}))
}

func TestRunMapsOtherErrorsToOne(t *testing.T) {
	var decoder = failingDecoder{err: fmt.Errorf("boom")}
	require.Equal(t, 1, run(context.Background(), driver.Config{}, decoder, discardEncoder{}))
}

// failingDecoder fails the Decode call itself, which is the simplest way
// to force driver.Run to return a given error without spawning a child.
type failingDecoder struct{ err error }

func (d failingDecoder) Decode(proto.Message) (bool, error) { return false, d.err }
