package pdf

import (
	"fmt"
	"time"

	"github.com/a3tai/pdf-fieldstamp/internal/pdf/extraction"
)

const (
	serverInfoTemplateLimit = 100
	serverInfoScanTimeout   = 5 * time.Second
)

// AvailableTools describes the MCP tools of the server
var AvailableTools = []ToolInfo{
	{
		Name:        "detect_fields",
		Description: "Find the fillable fields of a PDF template",
		Usage: "Run first on a new template. Reads AcroForm widgets when present, otherwise " +
			"infers fields from printed labels and blanks and reports a confidence per field.",
		Parameters: "path (required): template path relative to the template directory, " +
			"confidence_floor (optional): drop layout fields scoring below this value",
	},
	{
		Name:        "stamp_document",
		Description: "Stamp values into a template at the exact field positions",
		Usage: "Pass values as a flat object for one record, or {\"entries\": [...]} with a row rule " +
			"for repeating rows. The output is the template followed by an incremental update.",
		Parameters: "path (required), values (required unless session_id is given), fields (optional), " +
			"row_rule (optional), output_path (optional), session_id (optional)",
	},
	{
		Name:        "preview_document",
		Description: "Describe a template's pages and draw its fields as outlined boxes",
		Usage:       "Use to check detected geometry before stamping. Give a zoom to get the overlay of one page.",
		Parameters: "template_id (required), outline (optional), output_path (optional), " +
			"page (optional, 0-based), zoom (optional)",
	},
	{
		Name:        "open_session",
		Description: "Start an editing session seeded with the detected fields of a template",
		Usage:       "Returns a session id used by the session tools and stamp_document.",
		Parameters:  "path (required)",
	},
	{
		Name:        "set_field_value",
		Description: "Bind a value to a field in an editing session",
		Usage:       "An empty value clears the binding. Unknown names are rejected.",
		Parameters:  "session_id (required), name (required), value (required)",
	},
	{
		Name:        "place_field",
		Description: "Declare a field by hand at a pointer position on a rendered page",
		Usage:       "The pointer marks the top-left corner of the new field on the page rendered at zoom.",
		Parameters:  "session_id, name, kind, page, x, y, zoom, width, height (all required), label (optional)",
	},
	{
		Name:        "move_field",
		Description: "Change the rectangle of a field in an editing session",
		Usage:       "Coordinates are PDF points, origin bottom-left. The value bound to the field is kept.",
		Parameters:  "session_id, name, x, y, width, height (all required), page (optional, defaults to the field's page)",
	},
	{
		Name:        "remove_field",
		Description: "Drop a field from an editing session",
		Usage:       "Removed fields are not stamped.",
		Parameters:  "session_id (required), name (required)",
	},
	{
		Name:        "list_mappings",
		Description: "List the fields and bound values of an editing session",
		Usage:       "Give a page and zoom to also get the overlay hit targets of that page.",
		Parameters:  "session_id (required), page (optional), zoom (optional)",
	},
	{
		Name:        "close_session",
		Description: "Discard an editing session",
		Usage:       "Sessions live in memory only; close them when the document has been stamped.",
		Parameters:  "session_id (required)",
	},
	{
		Name:        "server_info",
		Description: "Get server information, available tools, templates and usage guidance",
		Usage:       "Call once to discover the template directory and the workflow.",
		Parameters:  "none",
	},
}

// ServerInfo returns server information and usage guidance. The template
// listing is bounded in size and time so that a huge directory cannot stall
// the call.
func (s *Service) ServerInfo(serverName, version string) *ServerInfoResult {
	resultChan := make(chan []TemplateInfo, 1)
	go func() {
		listing, err := s.ListTemplates(ListTemplatesRequest{Limit: serverInfoTemplateLimit})
		if err != nil {
			resultChan <- nil
			return
		}
		resultChan <- listing.Templates
	}()

	templates := []TemplateInfo{}
	select {
	case found := <-resultChan:
		if found != nil {
			templates = found
		}
	case <-time.After(serverInfoScanTimeout):
		s.logger.Printf("Template scan of %s timed out", s.templates.Root())
	}

	kinds := make([]string, len(extraction.Kinds))
	for i, k := range extraction.Kinds {
		kinds[i] = string(k)
	}

	usageGuidance := `Field stamping workflow:

1. FIND THE TEMPLATE:
   - 'server_info' lists the templates in the template directory

2. DETECT FIELDS:
   - 'detect_fields' returns named, typed fields with exact geometry in PDF points
   - source "widgets": fields come from the form itself (no confidence)
   - source "layout": fields were inferred; check low confidence values
   - conflicts list fields whose rectangles overlap; fix them before stamping

3. REVIEW AND EDIT (optional):
   - 'open_session' seeds a session with the detected fields
   - 'place_field' declares missing fields, 'move_field' and 'remove_field' correct them
   - 'set_field_value' binds values
   - 'preview_document' with outline=true draws every field as a labelled box

4. STAMP:
   - 'stamp_document' with values {"name": "value"} for one record
   - use {"entries": [...]} with row_rule {row_height} for repeating rows
   - flags report truncated, wrapped or unencodable values

IMPORTANT NOTES:
- Coordinates are PDF points with the origin at the bottom-left of the page
- Pages are 0-based
- Files up to ` + fmt.Sprintf("%d", s.maxFileSize/(1024*1024)) + `MB are accepted
- Encrypted templates cannot be stamped`

	return &ServerInfoResult{
		ServerName:        serverName,
		Version:           version,
		TemplateDirectory: s.templates.Root(),
		OutputDirectory:   s.outputs.Root(),
		MaxFileSize:       s.maxFileSize,
		ConfidenceFloor:   s.detectOpts.ConfidenceFloor,
		FieldKinds:        kinds,
		AvailableTools:    AvailableTools,
		Templates:         templates,
		UsageGuidance:     usageGuidance,
	}
}
