package daemon

import (
	"fmt"

	"github.com/Aman-CERP/conceptrank/internal/engine"
	"github.com/Aman-CERP/conceptrank/internal/telemetry"
)

// JSON-RPC 2.0 method names.
const (
	MethodRank   = "rank"
	MethodStatus = "status"
	MethodPing   = "ping"
)

// Standard JSON-RPC 2.0 error codes.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// ErrCodeRankFailed reports a query that was valid but could not be solved.
const ErrCodeRankFailed = -32002

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      string `json:"id"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
	ID      string `json:"id"`
}

// Error represents a JSON-RPC 2.0 error. Data carries the rank error code.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// NewSuccessResponse creates a successful response.
func NewSuccessResponse(id string, result any) Response {
	return Response{
		JSONRPC: "2.0",
		Result:  result,
		ID:      id,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(id string, code int, message string) Response {
	return Response{
		JSONRPC: "2.0",
		Error: &Error{
			Code:    code,
			Message: message,
		},
		ID: id,
	}
}

// RankParams are the parameters for the rank method.
type RankParams struct {
	Seeds      []int64  `json:"seeds,omitempty"`
	SeedLabels []string `json:"seed_labels,omitempty"`
	// Damping is nil to use the configured restart probability.
	Damping *float64 `json:"damping,omitempty"`
	// TopN defaults to ranking.top_n when zero.
	TopN int `json:"top_n,omitempty"`
}

// Validate checks the transport-level shape; the engine validates values.
func (p *RankParams) Validate() error {
	if len(p.Seeds) == 0 && len(p.SeedLabels) == 0 {
		return fmt.Errorf("seeds or seed_labels is required")
	}
	if p.TopN < 0 {
		return fmt.Errorf("top_n must not be negative")
	}
	return nil
}

// Query converts the params to an engine query.
func (p RankParams) Query(defaultTopN int) engine.Query {
	topN := p.TopN
	if topN == 0 {
		topN = defaultTopN
	}
	return engine.Query{
		Seeds:      p.Seeds,
		SeedLabels: p.SeedLabels,
		Damping:    p.Damping,
		TopN:       topN,
	}
}

// StatusResult contains daemon status information.
type StatusResult struct {
	Running       bool   `json:"running"`
	PID           int    `json:"pid"`
	Uptime        string `json:"uptime"`
	Concepts      int    `json:"concepts"`
	Labels        int    `json:"labels"`
	QueriesServed int64  `json:"queries_served"`
	SinkState     string `json:"sink_state"`
	Polling       bool   `json:"polling"`

	Metrics *telemetry.Snapshot `json:"metrics,omitempty"`
}

// PingResult is the response to a ping request.
type PingResult struct {
	Pong bool `json:"pong"`
}
