// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes ORBIT reconciliation tools for LLM integration via stdio
// transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/orbit/internal/index"
	"github.com/starford/orbit/internal/orbit"
)

const formatURI = "orbit://document-format"

// Server wraps the MCP server with ORBIT tools.
type Server struct {
	mcp    *server.MCPServer
	engine *orbit.Engine
	idx    index.RelationIndex
}

// New creates a new MCP server with all ORBIT tools registered.
func New(engine *orbit.Engine, idx index.RelationIndex) *Server {
	s := &Server{engine: engine, idx: idx}

	s.mcp = server.NewMCPServer(
		"ORBIT",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("resolve_category",
		mcp.WithDescription("Resolve a category token (name, number, or NNN-Name folder) "+
			"to a configured taxonomy category. Falls back to numeric range inference."),
		mcp.WithString("token", mcp.Required(), mcp.Description("Category token, e.g. Health, 200, 200-Health, 215")),
	), s.resolveCategory)

	s.mcp.AddTool(mcp.NewTool("resolve_group",
		mcp.WithDescription("Resolve an orbit reference to a grouping without changing the vault."),
		mcp.WithString("token", mcp.Required(), mcp.Description("Orbit reference, e.g. Yoga or 210-Yoga")),
		mcp.WithString("hint", mcp.Description("Optional domain hint")),
		mcp.WithString("referrer", mcp.Description("Optional path of the referring document")),
	), s.resolveGroup)

	s.mcp.AddTool(mcp.NewTool("process_document",
		mcp.WithDescription("Reconcile one document: scaffold its groupings, move it into place, "+
			"and create missing satellites. Read the contract first via get_document_contract "+
			"or the "+formatURI+" resource."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path of the document (must end with .md)")),
	), s.processDocument)

	s.mcp.AddTool(mcp.NewTool("promote_grouping",
		mcp.WithDescription("Promote a floating grouping under a category's .0-inbox to a numbered folder."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative directory, e.g. 200-Health/.0-inbox/Yoga")),
	), s.promoteGrouping)

	s.mcp.AddTool(mcp.NewTool("audit_vault",
		mcp.WithDescription("Report structural drift in the vault without changing anything."),
	), s.auditVault)

	s.mcp.AddTool(mcp.NewTool("list_orbiters",
		mcp.WithDescription("List documents whose orbits name the given grouping."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Grouping name, e.g. Yoga")),
	), s.listOrbiters)

	s.mcp.AddTool(mcp.NewTool("get_document_contract",
		mcp.WithDescription("Returns the ORBIT document format contract. "+
			"Call this before writing documents the reconciler should place."),
	), s.getDocumentContract)

	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Document Format Contract",
			mcp.WithResourceDescription("Frontmatter keys ORBIT reads when placing documents."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readDocumentFormatResource,
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

func (s *Server) resolveCategory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	token, err := req.RequireString("token")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	reg := s.engine.Registry()
	c, ok := reg.Resolve(token)
	if !ok {
		c, ok = reg.Infer(token)
	}
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("unknown category: %s", token)), nil
	}
	return jsonResult(map[string]string{
		"number": c.Number,
		"name":   c.Name,
		"folder": c.Folder(),
	})
}

func (s *Server) resolveGroup(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	token, err := req.RequireString("token")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	hint := optionalString(req, "hint")
	referrer := optionalString(req, "referrer")

	g, err := s.engine.ResolveGroup(token, hint, referrer)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(g)
}

func (s *Server) processDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.engine.Process(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (s *Server) promoteGrouping(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	g, err := s.engine.Promote(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(g)
}

func (s *Server) auditVault(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	issues, err := s.engine.Audit()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(issues) == 0 {
		return mcp.NewToolResultText("no issues found"), nil
	}
	return jsonResult(issues)
}

func (s *Server) listOrbiters(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	paths, err := s.idx.Orbiters(name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(paths) == 0 {
		return mcp.NewToolResultText("no orbiters found"), nil
	}
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}

func (s *Server) getDocumentContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(DocumentFormatContract), nil
}

func (s *Server) readDocumentFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     DocumentFormatContract,
		},
	}, nil
}

func optionalString(req mcp.CallToolRequest, key string) string {
	if v, err := req.RequireString(key); err == nil {
		return v
	}
	return ""
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}
