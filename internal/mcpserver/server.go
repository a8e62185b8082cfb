// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes workshop item tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/workshopwatch/internal/apperr"
	"github.com/starford/workshopwatch/internal/itemservice"
)

const statusColorsURI = "workshopwatch://status-colors"

// Server wraps the MCP server with workshop tools.
type Server struct {
	mcp *server.MCPServer
	svc *itemservice.Service

	// pollInterval is how often check_updates polls while waiting.
	pollInterval time.Duration
}

// New creates a new MCP server with all tools registered.
func New(svc *itemservice.Service) *Server {
	s := &Server{svc: svc, pollInterval: 250 * time.Millisecond}

	s.mcp = server.NewMCPServer(
		"workshopwatch",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_containers",
		mcp.WithDescription("List installed games that have workshop items, with item counts and overlay state."),
	), s.listContainers)

	s.mcp.AddTool(mcp.NewTool("list_items",
		mcp.WithDescription("List the workshop items of a game with names, curated status, "+
			"local and remote update times, and whether the local copy is outdated."),
		mcp.WithString("container_id", mcp.Required(), mcp.Description("Steam app id of the game (e.g. 294100)")),
		mcp.WithBoolean("only_outdated", mcp.Description("Return only items known to be outdated")),
	), s.listItems)

	s.mcp.AddTool(mcp.NewTool("rescan_container",
		mcp.WithDescription("Re-read the game's workshop manifest from disk. Fetched names and overlay data are kept."),
		mcp.WithString("container_id", mcp.Required(), mcp.Description("Steam app id of the game")),
	), s.rescanContainer)

	s.mcp.AddTool(mcp.NewTool("check_updates",
		mcp.WithDescription("Fetch published names and update times for every item of a game. "+
			"Only one check runs at a time. With wait=true the call returns when the check has finished."),
		mcp.WithString("container_id", mcp.Required(), mcp.Description("Steam app id of the game")),
		mcp.WithBoolean("wait", mcp.Description("Block until the check completes")),
	), s.checkUpdates)

	s.mcp.AddTool(mcp.NewTool("fetch_status",
		mcp.WithDescription("Report whether an update check is running and how far it got."),
	), s.fetchStatus)

	s.mcp.AddResource(
		mcp.NewResource(statusColorsURI, "Status Colours",
			mcp.WithResourceDescription("Colour assigned to each curated status label, as #RRGGBB."),
			mcp.WithMIMEType("application/json"),
		),
		s.readStatusColors,
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

func toolError(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError("unknown container")
	case errors.Is(err, apperr.ErrFetchBusy):
		return mcp.NewToolResultError("an update check is already running; use fetch_status")
	}
	return mcp.NewToolResultError(err.Error())
}

func (s *Server) listContainers(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	infos, err := s.svc.Containers(ctx)
	if err != nil {
		return toolError(err), nil
	}
	if len(infos) == 0 {
		return mcp.NewToolResultText("no games with workshop items found"), nil
	}
	return jsonResult(infos)
}

func (s *Server) listItems(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("container_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	items, err := s.svc.Items(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	if req.GetBool("only_outdated", false) {
		kept := items[:0]
		for _, it := range items {
			if it.Outdated != nil && *it.Outdated {
				kept = append(kept, it)
			}
		}
		items = kept
	}
	if items == nil {
		items = []itemservice.ItemView{}
	}
	return jsonResult(items)
}

func (s *Server) rescanContainer(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("container_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.Rescan(ctx, id); err != nil {
		return toolError(err), nil
	}
	info, err := s.svc.Container(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("rescanned %s: %d items", info.Name, info.ItemCount)), nil
}

func (s *Server) checkUpdates(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("container_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	st, err := s.svc.StartFetch(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	if !req.GetBool("wait", false) {
		return jsonResult(st)
	}
	final, err := s.svc.WaitFetch(ctx, s.pollInterval)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(final)
}

func (s *Server) fetchStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.svc.FetchState(ctx)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(st)
}

func (s *Server) readStatusColors(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	out, err := json.MarshalIndent(s.svc.StatusColors(ctx), "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      statusColorsURI,
			MIMEType: "application/json",
			Text:     string(out),
		},
	}, nil
}
