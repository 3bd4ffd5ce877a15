package interceptor

import "github.com/estuary/airbyte-adaptor/protocol"

// AdaptApplyResponse discards whatever the child emitted (the supervisor
// invokes it with a bare "spec" command since Airbyte source connectors
// have no apply verb of their own) and returns the empty Applied response.
func AdaptApplyResponse() *protocol.ApplyResponse {
	return &protocol.ApplyResponse{}
}
