// Package interceptor adapts between the runtime's native Request/Response
// protocol and the Airbyte protocol a child connector process speaks,
// applying the patch files an operator may have dropped into the working
// directory along the way.
//
// Grounded method-for-method on airbyte_source_interceptor.rs's
// adapt_spec_*/adapt_discover_*/adapt_validate_*/adapt_apply_*/
// adapt_pull_* functions, and on driver.go's EndpointSpec/ResourceSpec
// shapes and onStdoutDecodeError/airbyteToLogrusLevel helpers for the
// Go-idiomatic surface.
package interceptor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	configFileName  = "config.json"
	catalogFileName = "catalog.json"
	stateFileName   = "state.json"

	specPatchFileName        = "spec.patch.json"
	specMapFileName          = "spec.map.json"
	oauth2PatchFileName      = "oauth2.patch.json"
	docURLPatchFileName      = "documentation_url.patch.json"
	schemaNormalizationsFile = "schema_normalizations.json"
	selectedStreamsFileName  = "selected_streams.json"

	streamPatchDir      = "streams"
	streamPatchSuffix   = ".patch.json"
	streamPKSuffix      = ".pk.json"
	streamNormalizeSuffix = ".normalize.json"
	streamCatchAllStem = "*"
)

// readOptionalFile returns the file's contents, or nil with no error if it
// does not exist. Any other read error is returned.
func readOptionalFile(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	return b, err
}

// readOptionalJSON unmarshals the named file into out if present. Absence
// is not an error and leaves out untouched.
func readOptionalJSON(path string, out interface{}) (present bool, err error) {
	b, err := readOptionalFile(path)
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", path, err)
	}
	if b == nil {
		return false, nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return false, fmt.Errorf("parsing %s: %w", path, err)
	}
	return true, nil
}

// streamFilePath returns the per-stream override path for a recommended
// stream name and suffix, relative to the working directory, e.g.
// ("acmeCo/users", ".pk.json") -> "streams/acmeCo/users.pk.json".
func streamFilePath(recommendedName, suffix string) string {
	return filepath.Join(streamPatchDir, recommendedName+suffix)
}

// streamCatchAllPath returns the "streams/*<suffix>" fallback applied to
// every stream when no per-stream override file exists.
func streamCatchAllPath(suffix string) string {
	return filepath.Join(streamPatchDir, streamCatchAllStem+suffix)
}

// readStreamOverride tries the per-stream override file first, falling
// back to the catch-all "streams/*<suffix>" file; absence of both is not
// an error. Both are working-directory files, resolved relative to the
// process's cwd rather than the per-run temp directory.
func readStreamOverride(recommendedName, suffix string, out interface{}) (present bool, err error) {
	present, err = readOptionalJSON(streamFilePath(recommendedName, suffix), out)
	if err != nil || present {
		return present, err
	}
	return readOptionalJSON(streamCatchAllPath(suffix), out)
}

// writeFile writes data to the named path, truncating or creating as
// needed, mirroring the tempfile writes the original connector_runner
// performs before signaling the child's READY gate.
func writeFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
