// Package core defines core types.
package core

// Labels represents key-value metadata attached to a synthetic request.
type Labels map[string]string

// Label naming constants following {protocol}.{field} convention.
const (
	LabelSession     = "ws.session"
	LabelMessageID   = "ws.message_id"
	LabelMessageType = "ws.message_type"
	LabelURLPath     = "ws.url_path"
	LabelParts       = "ws.parts"
)
