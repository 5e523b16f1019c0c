// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes comment enrichment tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/commentmap/internal/commentservice"
	"github.com/starford/commentmap/internal/index"
	"github.com/starford/commentmap/internal/models"
	"github.com/starford/commentmap/internal/storage"
)

const formatURI = "commentmap://enriched-format"

// Server wraps the MCP server with commentmap tools.
type Server struct {
	mcp *server.MCPServer
	svc *commentservice.Service
}

// New creates a new MCP server with all tools registered.
func New(svc *commentservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"commentmap",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("enrich_comments",
		mcp.WithDescription("Annotate design-review comments with their top frame, ancestor path and thread. "+
			"Nothing is stored. See the commentmap://enriched-format resource for the output shape."),
		mcp.WithString("comments", mcp.Required(),
			mcp.Description(`JSON array of comments, or {"comments": [...]} as returned by the comments API`)),
		mcp.WithString("context", mcp.Description("Optional JSON comment set used to look up reply parents")),
	), s.enrichComments)

	s.mcp.AddTool(mcp.NewTool("resolve_node",
		mcp.WithDescription("Resolve a document node to its top frame and root-to-node ancestor path."),
		mcp.WithString("node_id", mcp.Required(), mcp.Description("Node id, e.g. 12:345")),
	), s.resolveNode)

	s.mcp.AddTool(mcp.NewTool("list_frames",
		mcp.WithDescription("List top frames with comment and thread counts, largest first."),
	), s.listFrames)

	s.mcp.AddTool(mcp.NewTool("list_comments",
		mcp.WithDescription("List stored enriched comments, optionally narrowed to one frame or batch."),
		mcp.WithString("frame_id", mcp.Description("Top frame id")),
		mcp.WithString("batch", mcp.Description("Batch file name")),
		mcp.WithNumber("limit", mcp.Description("Maximum comments to return (default 100)")),
	), s.listComments)

	s.mcp.AddTool(mcp.NewTool("get_thread",
		mcp.WithDescription("Return one thread, top-level comment first, replies in creation order."),
		mcp.WithString("thread_id", mcp.Required(), mcp.Description("Id of the thread's top-level comment")),
	), s.getThread)

	s.mcp.AddTool(mcp.NewTool("search_comments",
		mcp.WithDescription("Full-text search through comment messages and frame names."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 20)")),
	), s.searchComments)

	s.mcp.AddTool(mcp.NewTool("import_batch",
		mcp.WithDescription("Fetch a comment batch from an http(s) URL or a base64 data: URI and store it in the inbox."),
		mcp.WithString("source", mcp.Required(), mcp.Description("http(s) URL or data:application/json;base64,... URI")),
		mcp.WithString("name", mcp.Description("Batch file name ending in .json (derived from the URL when omitted)")),
	), s.importBatch)

	s.mcp.AddTool(mcp.NewTool("get_enriched_format",
		mcp.WithDescription("Returns the description of the enriched comment format."),
	), s.getEnrichedFormat)

	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Enriched Comment Format",
			mcp.WithResourceDescription("Fields added to each comment by enrichment and how they are derived."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) enrichComments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("comments")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	comments, err := storage.DecodeBatch([]byte(raw))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var contextSet []models.RawComment
	if rawCtx := req.GetString("context", ""); rawCtx != "" {
		if contextSet, err = storage.DecodeBatch([]byte(rawCtx)); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("context: %v", err)), nil
		}
	}
	return jsonResult(s.svc.Enrich(ctx, comments, contextSet))
}

func (s *Server) resolveNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("node_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.ResolveNode(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (s *Server) listFrames(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	frames, err := s.svc.Frames(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(frames)
}

func (s *Server) listComments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	comments, total, err := s.svc.ListComments(ctx, index.CommentFilter{
		FrameID: req.GetString("frame_id", ""),
		Batch:   req.GetString("batch", ""),
		Limit:   req.GetInt("limit", 0),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"comments": comments, "total": total})
}

func (s *Server) getThread(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("thread_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	thread, err := s.svc.Thread(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("thread %s: %v", id, err)), nil
	}
	return jsonResult(thread)
}

func (s *Server) searchComments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, req.GetInt("limit", 20))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}

func (s *Server) getEnrichedFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(EnrichedFormat), nil
}

func (s *Server) readFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     EnrichedFormat,
		},
	}, nil
}
