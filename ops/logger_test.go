package ops

import (
	"testing"

	"github.com/estuary/airbyte-adaptor/airbyte"
	"github.com/estuary/airbyte-adaptor/ops/opstest"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestAirbyteToLogrusLevel(t *testing.T) {
	require.Equal(t, log.TraceLevel, AirbyteToLogrusLevel(airbyte.LogLevelTrace))
	require.Equal(t, log.WarnLevel, AirbyteToLogrusLevel(airbyte.LogLevelWarn))
	require.Equal(t, log.ErrorLevel, AirbyteToLogrusLevel(airbyte.LogLevelFatal))
}

func TestNewLoggerWithFieldsMergesAddedFields(t *testing.T) {
	var base = opstest.NewTestLogPublisher(log.TraceLevel)
	var decorated = NewLoggerWithFields(base, log.Fields{"entrypoint": "source-foo"})

	require.NoError(t, decorated.Log(log.InfoLevel, log.Fields{"op": "discover"}, "starting"))

	var events = base.TakeEvents()
	require.Len(t, events, 1)
	require.Equal(t, "source-foo", events[0].Fields["entrypoint"])
	require.Equal(t, "discover", events[0].Fields["op"])
}

func TestNewLoggerWithFieldsSkipsCopyWhenNoExtraFields(t *testing.T) {
	var base = opstest.NewTestLogPublisher(log.TraceLevel)
	var decorated = NewLoggerWithFields(base, log.Fields{"entrypoint": "source-foo"})

	require.NoError(t, decorated.Log(log.InfoLevel, nil, "starting"))

	var events = base.TakeEvents()
	require.Len(t, events, 1)
	require.Equal(t, "source-foo", events[0].Fields["entrypoint"])
}
