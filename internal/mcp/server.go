package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/conceptrank/internal/engine"
	"github.com/Aman-CERP/conceptrank/pkg/version"
)

const (
	serverName    = "conceptrank"
	maxLookupHits = 50
	maxRankLimit  = 500
)

// Server is the MCP server for conceptrank.
type Server struct {
	mcp    *mcp.Server
	engine *engine.Engine
	logger *slog.Logger
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var tools = []ToolInfo{
	{
		Name:        "rank_concepts",
		Description: "Find the concepts most related to a set of seed concepts by personalized PageRank over the knowledge graph. Seeds are external ids or labels; seeds never appear in the results.",
	},
	{
		Name:        "lookup_concepts",
		Description: "Search concept labels by text. Use it to find the ids of seeds before calling rank_concepts.",
	},
	{
		Name:        "corpus_status",
		Description: "Report the size of the loaded knowledge graph and the active ranking configuration.",
	},
}

// NewServer creates a new MCP server backed by e.
func NewServer(e *engine.Engine, logger *slog.Logger) (*Server, error) {
	if e == nil {
		return nil, errors.New("ranking engine is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{engine: e, logger: logger}
	s.mcp = mcp.NewServer(&mcp.Implementation{Name: serverName, Version: version.Version}, nil)
	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	out := make([]ToolInfo, len(tools))
	copy(out, tools)
	return out
}

// CallTool invokes a tool by name with JSON-style arguments.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case "rank_concepts":
		var in RankInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		return s.rank(ctx, in)
	case "lookup_concepts":
		var in LookupInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		return s.lookup(ctx, in)
	case "corpus_status":
		return s.status(), nil
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[0].Name, Description: tools[0].Description}, s.mcpRankHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[1].Name, Description: tools[1].Description}, s.mcpLookupHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[2].Name, Description: tools[2].Description}, s.mcpStatusHandler)
	s.logger.Debug("MCP tools registered", slog.Int("count", len(tools)))
}

func (s *Server) mcpRankHandler(ctx context.Context, _ *mcp.CallToolRequest, in RankInput) (*mcp.CallToolResult, RankOutput, error) {
	out, err := s.rank(ctx, in)
	if err != nil {
		return nil, RankOutput{}, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: FormatRanking(out)}},
	}, out, nil
}

func (s *Server) mcpLookupHandler(ctx context.Context, _ *mcp.CallToolRequest, in LookupInput) (*mcp.CallToolResult, LookupOutput, error) {
	out, err := s.lookup(ctx, in)
	if err != nil {
		return nil, LookupOutput{}, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: FormatMatches(in.Text, out.Matches)}},
	}, out, nil
}

func (s *Server) mcpStatusHandler(_ context.Context, _ *mcp.CallToolRequest, _ StatusInput) (*mcp.CallToolResult, StatusOutput, error) {
	return nil, s.status(), nil
}

func (s *Server) rank(ctx context.Context, in RankInput) (RankOutput, error) {
	if len(in.Seeds) == 0 && len(in.Labels) == 0 {
		return RankOutput{}, NewInvalidParamsError("seeds or labels are required")
	}

	requestID := uuid.NewString()
	start := time.Now()
	q := engine.Query{
		ID:         requestID,
		Seeds:      in.Seeds,
		SeedLabels: in.Labels,
		Damping:    in.Alpha,
		TopN:       clampLimit(in.Limit, s.engine.Config().TopN, 1, maxRankLimit),
	}

	s.logger.Info("rank_concepts started",
		slog.String("request_id", requestID),
		slog.Int("seeds", len(in.Seeds)+len(in.Labels)),
		slog.Int("limit", q.TopN))

	resp, err := s.engine.Rank(ctx, q)
	if err != nil {
		s.logger.Error("rank_concepts failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()))
		return RankOutput{}, MapError(err)
	}

	s.logger.Info("rank_concepts completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", time.Since(start)),
		slog.Bool("cached", resp.Cached),
		slog.Int("result_count", len(resp.Results)))

	return RankOutput{
		QueryID:    resp.QueryID,
		Alpha:      resp.Alpha,
		SeedCount:  resp.SeedCount,
		Degenerate: resp.Degenerate,
		Results:    resp.Results,
	}, nil
}

func (s *Server) lookup(ctx context.Context, in LookupInput) (LookupOutput, error) {
	if in.Text == "" {
		return LookupOutput{}, NewInvalidParamsError("text parameter is required")
	}
	idx := s.engine.Labels()
	if idx == nil {
		return LookupOutput{}, MapError(ErrLabelsDisabled)
	}
	matches, err := idx.Search(ctx, in.Text, clampLimit(in.Limit, 10, 1, maxLookupHits))
	if err != nil {
		return LookupOutput{}, MapError(err)
	}
	return LookupOutput{Matches: matches}, nil
}

func (s *Server) status() StatusOutput {
	st := s.engine.Corpus().Stats()
	cfg := s.engine.Config()
	return StatusOutput{
		Concepts:     st.Concepts,
		Edges:        st.Edges,
		NonZeros:     st.NonZeros,
		Labels:       st.Labels,
		Symmetric:    st.Symmetric,
		Damping:      cfg.Damping,
		Method:       cfg.Solver.Method,
		LabelIndex:   s.engine.Labels() != nil,
		QueryLog:     s.engine.SinkState(),
		CacheDir:     st.CacheDir,
		DefaultLimit: cfg.TopN,
	}
}

// Serve runs the server over the named transport until ctx is canceled.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("Starting MCP server", slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		} else {
			s.logger.Info("MCP server stopped gracefully")
		}
		return err
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

func decodeArgs(args map[string]any, v any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return NewInvalidParamsError(err.Error())
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return NewInvalidParamsError(fmt.Sprintf("invalid arguments: %v", err))
	}
	return nil
}

// clampLimit returns def for non-positive n, otherwise n bounded to [lo, hi].
func clampLimit(n, def, lo, hi int) int {
	if n <= 0 {
		n = def
	}
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
