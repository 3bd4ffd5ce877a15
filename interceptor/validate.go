package interceptor

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/estuary/airbyte-adaptor/airbyte"
	"github.com/estuary/airbyte-adaptor/catalog"
	"github.com/estuary/airbyte-adaptor/protocol"
)

// AdaptValidateRequest remaps and writes the connector's config; the
// caller is responsible for retaining the original request so
// AdaptValidateResponse can later echo resource paths back per binding.
func AdaptValidateRequest(dir string, req *protocol.ValidateRequest) error {
	configJSON, err := remapConfig(req.ConfigJSON)
	if err != nil {
		return err
	}
	return writeFile(filepath.Join(dir, configFileName), configJSON)
}

// AdaptValidateResponse turns an Airbyte ConnectionStatus into the
// runtime's ValidateResponse, failing loudly if the connector reported
// anything other than success.
func AdaptValidateResponse(req *protocol.ValidateRequest, status *airbyte.ConnectionStatus) (*protocol.ValidateResponse, error) {
	if status == nil {
		return nil, fmt.Errorf("connector produced no connection status")
	}
	if status.Status != airbyte.StatusSucceeded {
		return nil, fmt.Errorf("connector reported validation failure: %s", status.Message)
	}
	if req == nil {
		return nil, fmt.Errorf("missing validate request")
	}

	resp := &protocol.ValidateResponse{}
	for i, b := range req.Bindings {
		var resource catalog.ResourceSpec
		if err := json.Unmarshal(b.ResourceConfigJSON, &resource); err != nil {
			return nil, fmt.Errorf("binding %d: parsing resource spec: %w", i, err)
		}
		resp.Bindings = append(resp.Bindings, protocol.ValidatedBinding{
			ResourcePath: []string{resource.Stream},
		})
	}
	return resp, nil
}
