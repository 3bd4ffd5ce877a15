package interceptor

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/estuary/airbyte-adaptor/airbyte"
	"github.com/estuary/airbyte-adaptor/protocol"
	"github.com/stretchr/testify/require"
)

func TestAdaptDiscoverRequestWritesRemappedConfig(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(specMapFileName,
		[]byte(`{"/credentials/client_id":"/app_id"}`), 0o600))

	req := &protocol.DiscoverRequest{ConfigJSON: []byte(`{"app_id":"id"}`)}
	require.NoError(t, AdaptDiscoverRequest(dir, req))

	got, err := os.ReadFile(filepath.Join(dir, configFileName))
	require.NoError(t, err)
	require.JSONEq(t, `{"credentials":{"client_id":"id"}}`, string(got))
}

func TestAdaptDiscoverResponseBuildsBindings(t *testing.T) {
	t.Chdir(t.TempDir())
	cat := &airbyte.Catalog{
		Streams: []airbyte.Stream{
			{
				Name:                    "Users",
				JSONSchema:              []byte(`{"type":["object","null"],"properties":{"id":{"type":["string","null"]}}}`),
				SupportedSyncModes:      []airbyte.SyncMode{airbyte.SyncModeFullRefresh, airbyte.SyncModeIncremental},
				SourceDefinedPrimaryKey: [][]string{{"id"}},
			},
		},
	}

	resp, err := AdaptDiscoverResponse(cat)
	require.NoError(t, err)
	require.Len(t, resp.Bindings, 1)

	b := resp.Bindings[0]
	require.Equal(t, "Users", b.RecommendedName)
	require.Equal(t, []string{"/id"}, b.Key)
	require.False(t, b.Disable)
	require.JSONEq(t, `{"type":"object","required":["id"],"properties":{"id":{"type":"string"}}}`, string(b.DocumentSchemaJSON))

	var resource struct {
		Stream   string `json:"stream"`
		SyncMode string `json:"syncMode"`
	}
	require.NoError(t, json.Unmarshal(b.ResourceConfigJSON, &resource))
	require.Equal(t, "Users", resource.Stream)
	require.Equal(t, "incremental", resource.SyncMode)
}

func TestAdaptDiscoverResponseRespectsSelectedStreams(t *testing.T) {
	t.Chdir(t.TempDir())
	require.NoError(t, os.WriteFile(selectedStreamsFileName, []byte(`["users"]`), 0o600))

	cat := &airbyte.Catalog{
		Streams: []airbyte.Stream{
			{Name: "users", JSONSchema: []byte(`{"properties":{"id":{"type":"string"}}}`), SupportedSyncModes: []airbyte.SyncMode{airbyte.SyncModeFullRefresh}, SourceDefinedPrimaryKey: [][]string{{"id"}}},
			{Name: "orders", JSONSchema: []byte(`{"properties":{"id":{"type":"string"}}}`), SupportedSyncModes: []airbyte.SyncMode{airbyte.SyncModeFullRefresh}, SourceDefinedPrimaryKey: [][]string{{"id"}}},
		},
	}

	resp, err := AdaptDiscoverResponse(cat)
	require.NoError(t, err)
	require.Len(t, resp.Bindings, 2)
	require.False(t, resp.Bindings[0].Disable)
	require.True(t, resp.Bindings[1].Disable)
}

func TestAdaptDiscoverResponseAppliesPerStreamPKOverride(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, streamPatchDir), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, streamPatchDir, "users.pk.json"), []byte(`["account_id"]`), 0o600))

	cat := &airbyte.Catalog{
		Streams: []airbyte.Stream{
			{Name: "users", JSONSchema: []byte(`{"properties":{"account_id":{"type":["string","null"]}}}`), SupportedSyncModes: []airbyte.SyncMode{airbyte.SyncModeFullRefresh}, SourceDefinedPrimaryKey: [][]string{{"id"}}},
		},
	}
	resp, err := AdaptDiscoverResponse(cat)
	require.NoError(t, err)
	require.Equal(t, []string{"/account_id"}, resp.Bindings[0].Key)
}
