package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/a3tai/pdf-fieldstamp/internal/config"
	"github.com/a3tai/pdf-fieldstamp/internal/descriptions"
	"github.com/a3tai/pdf-fieldstamp/internal/pdf"
	pdferrors "github.com/a3tai/pdf-fieldstamp/internal/pdf/errors"
	"github.com/a3tai/pdf-fieldstamp/internal/pdf/extraction"
	"github.com/a3tai/pdf-fieldstamp/internal/pdf/geometry"
	"github.com/a3tai/pdf-fieldstamp/internal/pdf/mapping"
	"github.com/a3tai/pdf-fieldstamp/internal/pdf/overlay"
)

const shutdownTimeout = 5 * time.Second

// Server represents the MCP server instance
type Server struct {
	config     *config.Config
	pdfService *pdf.Service
	mcpServer  *server.MCPServer
	sessions   *sessionRegistry
}

// NewServer creates a new MCP server instance
func NewServer(cfg *config.Config, pdfService *pdf.Service) (*Server, error) {
	if pdfService == nil {
		return nil, fmt.Errorf("pdfService cannot be nil")
	}

	mcpServer := server.NewMCPServer(
		cfg.ServerName,
		cfg.Version,
		server.WithToolCapabilities(false),
	)

	s := &Server{
		config:     cfg,
		pdfService: pdfService,
		mcpServer:  mcpServer,
		sessions:   newSessionRegistry(),
	}

	s.registerTools()

	return s, nil
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool(
		"detect_fields",
		mcp.WithDescription(descriptions.DetectFieldsDescription),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Template path, relative to the template directory"),
		),
		mcp.WithNumber("confidence_floor",
			mcp.Description("Drop layout-detected fields scoring below this value (0-1)"),
		),
		mcp.WithBoolean("ignore_profile",
			mcp.Description("Do not add fields declared in the template's .yaml profile"),
		),
	), s.handleDetectFields)

	s.mcpServer.AddTool(mcp.NewTool(
		"stamp_document",
		mcp.WithDescription(descriptions.StampDocumentDescription),
		mcp.WithString("path",
			mcp.Description("Template path (required unless session_id is given)"),
		),
		mcp.WithObject("values",
			mcp.Description(`Field values: {"name": "value"} or {"entries": [{...}, {...}]}`),
		),
		mcp.WithArray("fields",
			mcp.Description("Field definitions as returned by detect_fields (detected when omitted)"),
		),
		mcp.WithObject("row_rule",
			mcp.Description("Row placement for entries: {row_height, offsets, static}"),
		),
		mcp.WithString("output_path",
			mcp.Description("Where to save the stamped PDF, relative to the output directory"),
		),
		mcp.WithString("session_id",
			mcp.Description("Stamp the fields and values of an editing session"),
		),
	), s.handleStampDocument)

	s.mcpServer.AddTool(mcp.NewTool(
		"preview_document",
		mcp.WithDescription(descriptions.PreviewDocumentDescription),
		mcp.WithString("template_id",
			mcp.Required(),
			mcp.Description("Template path, relative to the template directory"),
		),
		mcp.WithArray("fields",
			mcp.Description("Fields to show (detected when omitted)"),
		),
		mcp.WithBoolean("outline",
			mcp.Description("Draw every field as a labelled box"),
		),
		mcp.WithString("output_path",
			mcp.Description("Where to save the outlined PDF, relative to the output directory"),
		),
		mcp.WithNumber("page",
			mcp.Description("0-based page for the overlay"),
		),
		mcp.WithNumber("zoom",
			mcp.Description("Rendering zoom for the overlay"),
		),
	), s.handlePreviewDocument)

	s.mcpServer.AddTool(mcp.NewTool(
		"open_session",
		mcp.WithDescription(descriptions.OpenSessionDescription),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Template path, relative to the template directory"),
		),
		mcp.WithNumber("confidence_floor",
			mcp.Description("Drop layout-detected fields scoring below this value (0-1)"),
		),
	), s.handleOpenSession)

	s.mcpServer.AddTool(mcp.NewTool(
		"set_field_value",
		mcp.WithDescription(descriptions.SetFieldValueDescription),
		mcp.WithString("session_id", mcp.Required()),
		mcp.WithString("name", mcp.Required(), mcp.Description("Field name")),
		mcp.WithString("value", mcp.Required(), mcp.Description("Value to stamp; empty clears the field")),
	), s.handleSetFieldValue)

	s.mcpServer.AddTool(mcp.NewTool(
		"place_field",
		mcp.WithDescription(descriptions.PlaceFieldDescription),
		mcp.WithString("session_id", mcp.Required()),
		mcp.WithString("name", mcp.Required(), mcp.Description("Name of the new field")),
		mcp.WithString("kind", mcp.Required(), mcp.Description("text, checkbox, radio, signature or date")),
		mcp.WithNumber("page", mcp.Required(), mcp.Description("0-based page index")),
		mcp.WithNumber("x", mcp.Required(), mcp.Description("Pointer x on the rendered page")),
		mcp.WithNumber("y", mcp.Required(), mcp.Description("Pointer y on the rendered page, from the top")),
		mcp.WithNumber("zoom", mcp.Required(), mcp.Description("Zoom the page was rendered at")),
		mcp.WithNumber("width", mcp.Required(), mcp.Description("Field width in points")),
		mcp.WithNumber("height", mcp.Required(), mcp.Description("Field height in points")),
		mcp.WithString("label", mcp.Description("Printed label of the field")),
		mcp.WithBoolean("multiline", mcp.Description("Wrap long values over several lines")),
	), s.handlePlaceField)

	s.mcpServer.AddTool(mcp.NewTool(
		"move_field",
		mcp.WithDescription(descriptions.MoveFieldDescription),
		mcp.WithString("session_id", mcp.Required()),
		mcp.WithString("name", mcp.Required(), mcp.Description("Field name")),
		mcp.WithNumber("x", mcp.Required(), mcp.Description("Lower-left x in points")),
		mcp.WithNumber("y", mcp.Required(), mcp.Description("Lower-left y in points")),
		mcp.WithNumber("width", mcp.Required(), mcp.Description("Width in points")),
		mcp.WithNumber("height", mcp.Required(), mcp.Description("Height in points")),
		mcp.WithNumber("page", mcp.Description("0-based page index, defaults to the field's page")),
	), s.handleMoveField)

	s.mcpServer.AddTool(mcp.NewTool(
		"remove_field",
		mcp.WithDescription(descriptions.RemoveFieldDescription),
		mcp.WithString("session_id", mcp.Required()),
		mcp.WithString("name", mcp.Required(), mcp.Description("Field name")),
	), s.handleRemoveField)

	s.mcpServer.AddTool(mcp.NewTool(
		"list_mappings",
		mcp.WithDescription(descriptions.ListMappingsDescription),
		mcp.WithString("session_id", mcp.Required()),
		mcp.WithNumber("page", mcp.Description("0-based page for the overlay")),
		mcp.WithNumber("zoom", mcp.Description("Rendering zoom for the overlay")),
	), s.handleListMappings)

	s.mcpServer.AddTool(mcp.NewTool(
		"close_session",
		mcp.WithDescription(descriptions.CloseSessionDescription),
		mcp.WithString("session_id", mcp.Required()),
	), s.handleCloseSession)

	s.mcpServer.AddTool(mcp.NewTool(
		"server_info",
		mcp.WithDescription(descriptions.ServerInfoDescription),
	), s.handleServerInfo)
}

// bindArguments decodes the tool arguments into target
func bindArguments(request mcp.CallToolRequest, target any) error {
	raw, err := json.Marshal(request.GetArguments())
	if err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// Handler functions
func (s *Server) handleDetectFields(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var req pdf.DetectFieldsRequest
	if err := bindArguments(request, &req); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if req.Path == "" {
		return mcp.NewToolResultError("path is required"), nil
	}

	result, err := s.pdfService.DetectFields(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(s.formatDetectFieldsResult(result)), nil
}

type stampArguments struct {
	pdf.StampDocumentRequest
	SessionID string `json:"session_id"`
}

func (s *Server) handleStampDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args stampArguments
	if err := bindArguments(request, &args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	req := args.StampDocumentRequest

	if args.SessionID != "" {
		err := s.sessions.with(args.SessionID, func(sess *session) error {
			if req.Path == "" {
				req.Path = sess.path
			}
			if len(req.Fields) == 0 {
				req.Fields = sess.store.Fields()
			}
			if req.Values == nil {
				req.Records = []mapping.ValueRecord{sess.store.Record()}
			}
			return nil
		})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	if req.Path == "" {
		return mcp.NewToolResultError("path is required"), nil
	}
	if req.Values == nil && req.Records == nil {
		return mcp.NewToolResultError("values are required"), nil
	}

	result, err := s.pdfService.StampDocument(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(s.formatStampDocumentResult(result)), nil
}

func (s *Server) handlePreviewDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var req pdf.PreviewDocumentRequest
	if err := bindArguments(request, &req); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if req.TemplateID == "" {
		return mcp.NewToolResultError("template_id is required"), nil
	}

	result, err := s.pdfService.PreviewDocument(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(s.formatPreviewDocumentResult(result)), nil
}

func (s *Server) handleOpenSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var req pdf.DetectFieldsRequest
	if err := bindArguments(request, &req); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if req.Path == "" {
		return mcp.NewToolResultError("path is required"), nil
	}

	detected, err := s.pdfService.DetectFields(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	store := mapping.NewStore(detected.Pages)
	if err := store.Seed(detected.Fields); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("cannot open session: %v", err)), nil
	}
	sess := s.sessions.add(store, detected.Path)

	if s.config.IsDebug() {
		log.Printf("Opened session %s for %s with %d fields", store.ID(), sess.path, len(detected.Fields))
	}

	text := fmt.Sprintf("Session opened: %s\n", store.ID())
	text += fmt.Sprintf("Template: %s\n", sess.path)
	text += fmt.Sprintf("Pages: %d\n", len(detected.Pages))
	text += fmt.Sprintf("Fields: %d (source: %s)\n", len(detected.Fields), detected.Source)
	text += formatWarnings(detected.Warnings)
	text += formatConflicts(store.Conflicts())
	text += "\n" + jsonBlock(store.AllMappings())
	return mcp.NewToolResultText(text), nil
}

type valueArguments struct {
	SessionID string `json:"session_id"`
	Name      string `json:"name"`
	Value     any    `json:"value"`
}

func (s *Server) handleSetFieldValue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args valueArguments
	if err := bindArguments(request, &args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	records, err := pdf.ParseValueData(map[string]any{args.Name: args.Value})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	value := records[0][args.Name]

	err = s.sessions.with(args.SessionID, func(sess *session) error {
		return sess.store.SetValue(args.Name, value)
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if value == "" {
		return mcp.NewToolResultText(fmt.Sprintf("Cleared %s", args.Name)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Set %s = %q", args.Name, value)), nil
}

type placeArguments struct {
	SessionID string  `json:"session_id"`
	Name      string  `json:"name"`
	Kind      string  `json:"kind"`
	Label     string  `json:"label"`
	Multiline bool    `json:"multiline"`
	Page      int     `json:"page"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Zoom      float64 `json:"zoom"`
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
}

func (s *Server) handlePlaceField(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args placeArguments
	if err := bindArguments(request, &args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if strings.TrimSpace(args.Name) == "" {
		return mcp.NewToolResultError("name is required"), nil
	}
	kind, err := extraction.ParseKind(args.Kind)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var placed extraction.DetectedField
	err = s.sessions.with(args.SessionID, func(sess *session) error {
		page, ok := geometry.PageByIndex(sess.store.Pages(), args.Page)
		if !ok {
			return pdferrors.Newf(pdferrors.ErrorTypeGeometryOutOfBounds, "page %d does not exist", args.Page)
		}
		rect, err := overlay.PlaceField(geometry.ViewportPoint{X: args.X, Y: args.Y}, page, args.Zoom, args.Width, args.Height)
		if err != nil {
			return err
		}
		placed = extraction.DetectedField{
			Name:      args.Name,
			Label:     args.Label,
			Kind:      kind,
			Geometry:  rect,
			Multiline: args.Multiline,
		}
		return sess.store.Declare(placed)
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	r := placed.Geometry
	return mcp.NewToolResultText(fmt.Sprintf("Placed %s (%s) on page %d at x=%s y=%s, %sx%s points",
		placed.Name, placed.Kind, r.Page, num(r.X), num(r.Y), num(r.Width), num(r.Height))), nil
}

type moveArguments struct {
	SessionID string  `json:"session_id"`
	Name      string  `json:"name"`
	Page      *int    `json:"page"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
}

func (s *Server) handleMoveField(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args moveArguments
	if err := bindArguments(request, &args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	rect := geometry.Rect{X: args.X, Y: args.Y, Width: args.Width, Height: args.Height}
	err := s.sessions.with(args.SessionID, func(sess *session) error {
		if args.Page != nil {
			rect.Page = *args.Page
		} else {
			for _, f := range sess.store.Fields() {
				if f.Name == args.Name {
					rect.Page = f.Geometry.Page
				}
			}
		}
		return sess.store.Move(args.Name, rect)
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Moved %s to page %d at x=%s y=%s, %sx%s points",
		args.Name, rect.Page, num(rect.X), num(rect.Y), num(rect.Width), num(rect.Height))), nil
}

func (s *Server) handleRemoveField(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	err = s.sessions.with(id, func(sess *session) error {
		return sess.store.Remove(name)
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Removed %s", name)), nil
}

type listArguments struct {
	SessionID string  `json:"session_id"`
	Page      int     `json:"page"`
	Zoom      float64 `json:"zoom"`
}

func (s *Server) handleListMappings(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args listArguments
	if err := bindArguments(request, &args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var text string
	err := s.sessions.with(args.SessionID, func(sess *session) error {
		mappings := sess.store.AllMappings()
		text = fmt.Sprintf("Session %s: %s\n", sess.store.ID(), sess.path)
		text += fmt.Sprintf("Fields: %d\n", len(mappings))
		text += formatConflicts(sess.store.Conflicts()) + "\n"
		text += jsonBlock(mappings)
		if args.Zoom == 0 {
			return nil
		}
		targets, err := sess.store.Overlays(args.Page, args.Zoom)
		if err != nil {
			return err
		}
		text += fmt.Sprintf("\nOverlay of page %d at zoom %s (%d targets):\n", args.Page, num(args.Zoom), len(targets))
		text += jsonBlock(targets)
		return nil
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) handleCloseSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !s.sessions.remove(id) {
		return mcp.NewToolResultError(fmt.Sprintf("no session with id %q", id)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Session %s closed", id)), nil
}

func (s *Server) handleServerInfo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result := s.pdfService.ServerInfo(s.config.ServerName, s.config.Version)
	return mcp.NewToolResultText(s.formatServerInfoResult(result)), nil
}

// Run starts the MCP server in the configured mode
func (s *Server) Run(ctx context.Context) error {
	switch {
	case s.config.IsServerMode():
		return s.runServerMode(ctx)
	case s.config.IsStdioMode():
		return s.runStdioMode(ctx)
	default:
		return fmt.Errorf("unsupported mode: %s", s.config.Mode)
	}
}

// runStdioMode runs the server in stdio mode
func (s *Server) runStdioMode(_ context.Context) error {
	if s.config.IsDebug() {
		log.Printf("Starting field stamping MCP server in stdio mode")
		log.Printf("Template directory: %s", s.pdfService.TemplateDirectory())
	}

	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("failed to serve stdio: %w", err)
	}
	return nil
}

// runServerMode serves MCP over HTTP with server-sent events until ctx ends
func (s *Server) runServerMode(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := s.config.Address()
	sse := server.NewSSEServer(s.mcpServer, server.WithBaseURL("http://"+addr))
	log.Printf("Starting field stamping MCP server on http://%s/sse", addr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- sse.Start(addr)
	}()

	select {
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to serve http: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := sse.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error shutting down server: %v", err)
		}
		return ctx.Err()
	}
}
