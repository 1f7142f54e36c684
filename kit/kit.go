// Package kit holds transport-agnostic service plumbing: the Endpoint shape
// shared by HTTP handlers and MCP tools, and the MCP registration bridge.
package kit

import "context"

// Endpoint is one service operation: a typed request in, a serializable
// response out. Transports adapt their wire formats around this shape.
type Endpoint func(ctx context.Context, req any) (any, error)
