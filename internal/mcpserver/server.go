// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Laguz labeling tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/laguz/internal/labelservice"
	"github.com/starford/laguz/internal/session"
)

const (
	vocabularyURI    = "laguz://vocabulary"
	datasetFormatURI = "laguz://dataset-format"
)

// Server wraps the MCP server with Laguz tools.
type Server struct {
	mcp *server.MCPServer
	svc *labelservice.Service
}

// New creates a new MCP server with all Laguz tools registered.
func New(svc *labelservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Laguz",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("dataset_stats",
		mcp.WithDescription("Count the images of the dataset per stored label."),
	), s.datasetStats)

	s.mcp.AddTool(mcp.NewTool("list_rows",
		mcp.WithDescription("List dataset rows with their stored class and label names."),
		mcp.WithNumber("limit", mcp.Description("Maximum rows to return (default 100)")),
		mcp.WithNumber("offset", mcp.Description("Index of the first row")),
	), s.listRows)

	s.mcp.AddTool(mcp.NewTool("get_row",
		mcp.WithDescription("Read one dataset row by its zero-based index."),
		mcp.WithNumber("index", mcp.Required(), mcp.Description("Row index")),
	), s.getRow)

	s.mcp.AddTool(mcp.NewTool("set_label",
		mcp.WithDescription("Label a row. Opens the dataset when no session is active. "+
			"Identifiers come from the laguz://vocabulary resource; an empty list "+
			"applies the configured empty-selection policy. Changes stay in memory "+
			"until save_dataset is called."),
		mcp.WithNumber("index", mcp.Required(), mcp.Description("Row index")),
		mcp.WithString("labels", mcp.Required(), mcp.Description("Comma-separated label identifiers (e.g. fire,smoke)")),
	), s.setLabel)

	s.mcp.AddTool(mcp.NewTool("save_dataset",
		mcp.WithDescription("Write the labels of the active session to the dataset file."),
	), s.saveDataset)

	s.mcp.AddTool(mcp.NewTool("close_session",
		mcp.WithDescription("End the active labeling session."),
		mcp.WithBoolean("save", mcp.Description("Save unsaved changes before closing (default true)")),
	), s.closeSession)

	s.mcp.AddTool(mcp.NewTool("find_by_label",
		mcp.WithDescription("Find saved rows carrying a label identifier."),
		mcp.WithString("label", mcp.Required(), mcp.Description("Label identifier")),
	), s.findByLabel)

	s.mcp.AddTool(mcp.NewTool("label_history",
		mcp.WithDescription("Recent label changes, newest first."),
		mcp.WithNumber("limit", mcp.Description("Maximum changes to return (default 50)")),
	), s.labelHistory)

	s.mcp.AddTool(mcp.NewTool("get_dataset_format",
		mcp.WithDescription("Returns the dataset CSV format contract."),
	), s.getDatasetFormat)

	s.mcp.AddResource(
		mcp.NewResource(vocabularyURI, "Label Vocabulary",
			mcp.WithResourceDescription("Ordered label identifiers and display names."),
			mcp.WithMIMEType("application/json"),
		),
		s.readVocabulary,
	)
	s.mcp.AddResource(
		mcp.NewResource(datasetFormatURI, "Dataset Format Contract",
			mcp.WithResourceDescription("Columns and class encodings of the dataset CSV file."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readDatasetFormat,
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

func (s *Server) datasetStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.svc.Stats(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(stats)
}

func (s *Server) listRows(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	page, err := s.svc.Rows(ctx, req.GetInt("limit", 0), req.GetInt("offset", 0))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(page)
}

func (s *Server) getRow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	i, err := req.RequireInt("index")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	row, err := s.svc.Row(ctx, i)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(row)
}

func (s *Server) setLabel(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	i, err := req.RequireInt("index")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, err := req.RequireString("labels")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	indices, err := s.svc.Resolve(splitIDs(raw))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if s.svc.State().Status != session.Active.String() {
		if _, err := s.svc.Open(ctx, ""); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	st, err := s.svc.Label(ctx, i, indices)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(st)
}

func (s *Server) saveDataset(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.svc.Save(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("saved: %d rows", st.Total)), nil
}

func (s *Server) closeSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.svc.Stop(ctx, session.Always(req.GetBool("save", true)))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if res.Saved {
		return mcp.NewToolResultText("closed: changes saved"), nil
	}
	return mcp.NewToolResultText("closed"), nil
}

func (s *Server) findByLabel(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("label")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rows, err := s.svc.FindByLabel(strings.TrimSpace(id), 100)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(rows) == 0 {
		return mcp.NewToolResultText("no rows found"), nil
	}
	paths := make([]string, 0, len(rows))
	for _, r := range rows {
		paths = append(paths, r.ImagePath())
	}
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}

func (s *Server) labelHistory(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	changes, err := s.svc.History(req.GetInt("limit", 0))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(changes)
}

func (s *Server) getDatasetFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(DatasetFormatContract), nil
}

func (s *Server) readVocabulary(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	out, err := json.Marshal(s.svc.Vocabulary())
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      vocabularyURI,
			MIMEType: "application/json",
			Text:     string(out),
		},
	}, nil
}

func (s *Server) readDatasetFormat(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      datasetFormatURI,
			MIMEType: "text/markdown",
			Text:     DatasetFormatContract,
		},
	}, nil
}

// splitIDs splits a comma-separated identifier list, dropping blanks.
func splitIDs(raw string) []string {
	var ids []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}
