package interceptor

import (
	"os"
	"testing"

	"github.com/estuary/airbyte-adaptor/airbyte"
	"github.com/stretchr/testify/require"
)

func TestAdaptSpecResponseMergesAndStripsVendorAttrs(t *testing.T) {
	t.Chdir(t.TempDir())
	spec := &airbyte.Spec{
		ConnectionSpecification: []byte(`{"type":"object","properties":{"a":{"type":"string","airbyte_hidden":true}}}`),
		DocumentationURL:        "https://example.com/docs",
	}

	resp, err := AdaptSpecResponse(spec)
	require.NoError(t, err)
	require.Equal(t, ProtocolVersion, resp.ProtocolVersion)
	require.JSONEq(t, `{"type":"object","properties":{"a":{"type":"string"}}}`, string(resp.ConfigSchemaJSON))
	require.Equal(t, "https://example.com/docs", resp.DocumentationURL)
	require.Nil(t, resp.Oauth2)
}

func TestAdaptSpecResponseAppliesPatchFiles(t *testing.T) {
	t.Chdir(t.TempDir())
	spec := &airbyte.Spec{
		ConnectionSpecification: []byte(`{"type":"object","properties":{"a":{"type":"string"}}}`),
		DocumentationURL:        "https://example.com/docs",
	}

	require.NoError(t, os.WriteFile(specPatchFileName,
		[]byte(`{"properties":{"b":{"type":"integer"}}}`), 0o600))
	require.NoError(t, os.WriteFile(oauth2PatchFileName,
		[]byte(`{"oauth_config_specification":{}}`), 0o600))
	require.NoError(t, os.WriteFile(docURLPatchFileName,
		[]byte(`{"documentation_url":"https://overridden.example.com"}`), 0o600))

	resp, err := AdaptSpecResponse(spec)
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"object","properties":{"a":{"type":"string"},"b":{"type":"integer"}}}`, string(resp.ConfigSchemaJSON))
	require.JSONEq(t, `{"oauth_config_specification":{}}`, string(resp.Oauth2))
	require.Equal(t, "https://overridden.example.com", resp.DocumentationURL)
}

func TestAdaptSpecResponseRequiresSpecMessage(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := AdaptSpecResponse(nil)
	require.Error(t, err)
}
