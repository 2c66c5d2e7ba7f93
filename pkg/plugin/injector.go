// Package plugin defines plugin interfaces.
package plugin

import (
	"context"

	"firestige.xyz/wsinspect/internal/core"
)

// SyntheticRequest is a reassembled WebSocket message rendered as a raw HTTP
// request, ready to be surfaced by the host.
type SyntheticRequest struct {
	URLPath    string
	SessionKey string
	MessageID  string
	Labels     core.Labels
	Raw        []byte // start line, headers, blank line and body
}

// Injector submits synthetic requests to the host's capture pipeline.
type Injector interface {
	Plugin
	Inject(ctx context.Context, req *SyntheticRequest) error
}
