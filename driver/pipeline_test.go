package driver

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/estuary/airbyte-adaptor/ops/opstest"
	"github.com/estuary/airbyte-adaptor/protocol"
	"github.com/gogo/protobuf/proto"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// fakeDecoder replays a fixed queue of requests, one per Decode call.
type fakeDecoder struct {
	requests []*protocol.Request
}

func (d *fakeDecoder) Decode(msg proto.Message) (bool, error) {
	if len(d.requests) == 0 {
		return false, nil
	}
	req := d.requests[0]
	d.requests = d.requests[1:]
	*msg.(*protocol.Request) = *req
	return true, nil
}

// fakeEncoder records every Response written to it.
type fakeEncoder struct {
	responses []*protocol.Response
}

func (e *fakeEncoder) Encode(msg proto.Message) error {
	e.responses = append(e.responses, msg.(*protocol.Response))
	return nil
}

func writeConnectorScript(t *testing.T, body string) string {
	t.Helper()
	var path = t.TempDir() + "/connector.sh"
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o700))
	return path
}

func TestRunReturnsNilOnCleanEOF(t *testing.T) {
	var decoder = &fakeDecoder{}
	var encoder = &fakeEncoder{}
	var cfg = Config{Logger: opstest.NewTestLogPublisher(log.TraceLevel)}

	require.NoError(t, Run(context.Background(), cfg, decoder, encoder))
	require.Empty(t, encoder.responses)
}

func TestRunDispatchesSpecOperation(t *testing.T) {
	var script = writeConnectorScript(t, `printf '{"type":"SPEC","spec":{"connectionSpecification":{"type":"object"}}}\n'
`)
	var decoder = &fakeDecoder{requests: []*protocol.Request{{Spec: &protocol.SpecRequest{}}}}
	var encoder = &fakeEncoder{}
	var cfg = Config{Entrypoint: script, Logger: opstest.NewTestLogPublisher(log.TraceLevel)}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, Run(ctx, cfg, decoder, encoder))
	require.Len(t, encoder.responses, 1)
	require.NotNil(t, encoder.responses[0].Spec)
	require.Equal(t, "3.2.0", encoder.responses[0].Spec.ProtocolVersion)
}

func TestRunSpecFailsWhenConnectorProducesNoSpec(t *testing.T) {
	var script = writeConnectorScript(t, `printf '{"type":"LOG","log":{"level":"INFO","message":"hi"}}\n'
`)
	var decoder = &fakeDecoder{requests: []*protocol.Request{{Spec: &protocol.SpecRequest{}}}}
	var encoder = &fakeEncoder{}
	var cfg = Config{Entrypoint: script, Logger: opstest.NewTestLogPublisher(log.TraceLevel)}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.ErrorContains(t, Run(ctx, cfg, decoder, encoder), "no spec response")
}

func TestRunApplyAlwaysEmitsAppliedAfterChildExits(t *testing.T) {
	var script = writeConnectorScript(t, `printf '{"type":"SPEC","spec":{"connectionSpecification":{}}}\n'
`)
	var decoder = &fakeDecoder{requests: []*protocol.Request{{Apply: &protocol.ApplyRequest{ConfigJSON: []byte(`{}`)}}}}
	var encoder = &fakeEncoder{}
	var cfg = Config{Entrypoint: script, Logger: opstest.NewTestLogPublisher(log.TraceLevel)}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, Run(ctx, cfg, decoder, encoder))
	require.Len(t, encoder.responses, 1)
	require.NotNil(t, encoder.responses[0].Applied)
}

func TestRunCaptureEmitsOpenedThenRecordsThenSyntheticCheckpoint(t *testing.T) {
	var script = writeConnectorScript(t, `printf '{"type":"RECORD","record":{"stream":"users","data":{"id":"1"}}}\n'
`)
	var open = &protocol.OpenRequest{
		Capture: protocol.CaptureSpec{
			ConfigJSON: []byte(`{}`),
			Bindings: []protocol.CaptureBinding{{
				ResourceConfigJSON: []byte(`{"stream":"users","syncMode":"full_refresh"}`),
				Collection: protocol.CollectionSpec{
					Name:            "acmeCo/users",
					WriteSchemaJSON: []byte(`{"type":"object"}`),
					Key:             []string{"/id"},
				},
			}},
		},
		StateJSON: []byte(`{}`),
	}
	var decoder = &fakeDecoder{requests: []*protocol.Request{{Open: open}}}
	var encoder = &fakeEncoder{}
	var cfg = Config{Entrypoint: script, Logger: opstest.NewTestLogPublisher(log.TraceLevel)}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, Run(ctx, cfg, decoder, encoder))
	require.Len(t, encoder.responses, 3)
	require.NotNil(t, encoder.responses[0].Opened)
	require.NotNil(t, encoder.responses[1].Captured)
	require.NotNil(t, encoder.responses[2].Checkpoint)
}

func TestSleepRemainingIntervalSkipsWhenFileAbsent(t *testing.T) {
	t.Chdir(t.TempDir())
	require.NoError(t, sleepRemainingInterval([]byte(`{}`), time.Now(), 0))
}

func TestSleepRemainingIntervalHonorsSkipFlag(t *testing.T) {
	t.Chdir(t.TempDir())
	require.NoError(t, os.WriteFile(runIntervalFileName, []byte(`60`), 0o600))

	var start = time.Now()
	require.NoError(t, sleepRemainingInterval([]byte(`{"_atf_skip_interval":true}`), start, 0))
	require.Less(t, time.Since(start), time.Second)
}

func TestSleepRemainingIntervalReturnsOnceIntervalElapsed(t *testing.T) {
	t.Chdir(t.TempDir())
	// A run interval so small that the elapsed test time already covers it;
	// confirms the function doesn't oversleep once the interval has passed.
	require.NoError(t, os.WriteFile(runIntervalFileName, []byte(`0`), 0o600))

	var start = time.Now().Add(-time.Minute)
	err := sleepRemainingInterval([]byte(`{}`), start, 0)
	require.NoError(t, err)
}

func TestSleepRemainingIntervalMinOverrideIgnoresFile(t *testing.T) {
	t.Chdir(t.TempDir())
	require.NoError(t, os.WriteFile(runIntervalFileName, []byte(`60`), 0o600))

	var start = time.Now().Add(-time.Minute)
	require.NoError(t, sleepRemainingInterval([]byte(`{}`), start, 1))
}
