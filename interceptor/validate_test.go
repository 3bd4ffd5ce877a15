package interceptor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/estuary/airbyte-adaptor/airbyte"
	"github.com/estuary/airbyte-adaptor/protocol"
	"github.com/stretchr/testify/require"
)

func TestAdaptValidateRequestWritesConfig(t *testing.T) {
	dir := t.TempDir()
	req := &protocol.ValidateRequest{ConfigJSON: []byte(`{"a":1}`)}
	require.NoError(t, AdaptValidateRequest(dir, req))

	got, err := os.ReadFile(filepath.Join(dir, configFileName))
	require.NoError(t, err)
	require.JSONEq(t, `{"a":1}`, string(got))
}

func TestAdaptValidateResponseEchoesResourcePaths(t *testing.T) {
	req := &protocol.ValidateRequest{
		Bindings: []protocol.ValidateBinding{
			{ResourceConfigJSON: []byte(`{"stream":"users","syncMode":"incremental"}`)},
			{ResourceConfigJSON: []byte(`{"stream":"orders","syncMode":"full_refresh"}`)},
		},
	}
	status := &airbyte.ConnectionStatus{Status: airbyte.StatusSucceeded}

	resp, err := AdaptValidateResponse(req, status)
	require.NoError(t, err)
	require.Equal(t, []protocol.ValidatedBinding{
		{ResourcePath: []string{"users"}},
		{ResourcePath: []string{"orders"}},
	}, resp.Bindings)
}

func TestAdaptValidateResponseFailsOnUnsuccessfulStatus(t *testing.T) {
	status := &airbyte.ConnectionStatus{Status: airbyte.StatusFailed, Message: "bad creds"}
	_, err := AdaptValidateResponse(&protocol.ValidateRequest{}, status)
	require.ErrorContains(t, err, "bad creds")
}
