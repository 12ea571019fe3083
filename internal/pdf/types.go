package pdf

import (
	"github.com/a3tai/pdf-fieldstamp/internal/pdf/extraction"
	"github.com/a3tai/pdf-fieldstamp/internal/pdf/geometry"
	"github.com/a3tai/pdf-fieldstamp/internal/pdf/mapping"
	"github.com/a3tai/pdf-fieldstamp/internal/pdf/overlay"
	"github.com/a3tai/pdf-fieldstamp/internal/pdf/stamp"
)

// TemplateInfo describes a template file in the template directory
type TemplateInfo struct {
	ID           string `json:"id" yaml:"id"` // path relative to the template directory
	Name         string `json:"name" yaml:"name"`
	Size         int64  `json:"size" yaml:"size"`
	ModifiedTime string `json:"modified_time" yaml:"modified_time"`
	HasProfile   bool   `json:"has_profile" yaml:"has_profile"`
}

// Request Types

// DetectFieldsRequest asks for the fields of a template. Data takes
// precedence over Path when both are set.
type DetectFieldsRequest struct {
	Path            string   `json:"path"`
	Data            []byte   `json:"-"`
	ConfidenceFloor *float64 `json:"confidence_floor,omitempty"`
	IgnoreProfile   bool     `json:"ignore_profile,omitempty"`
}

// StampDocumentRequest asks for values to be stamped into a template.
// Without Fields the template's fields are detected first. Values is either a
// flat name -> value object (one record) or {"entries": [...]} (a batch);
// Records, when set, is used as is.
type StampDocumentRequest struct {
	Path       string                     `json:"path"`
	Data       []byte                     `json:"-"`
	Fields     []extraction.DetectedField `json:"fields,omitempty"`
	Values     map[string]any             `json:"values,omitempty"`
	Records    []mapping.ValueRecord      `json:"-"`
	RowRule    *stamp.RowRule             `json:"row_rule,omitempty"`
	OutputPath string                     `json:"output_path,omitempty"`
}

// PreviewDocumentRequest asks for a template's pages and, optionally, an
// outlined copy or the overlay of one page
type PreviewDocumentRequest struct {
	TemplateID string                     `json:"template_id"`
	Fields     []extraction.DetectedField `json:"fields,omitempty"`
	Outline    bool                       `json:"outline,omitempty"`
	OutputPath string                     `json:"output_path,omitempty"`
	Page       int                        `json:"page,omitempty"`
	Zoom       float64                    `json:"zoom,omitempty"`
}

// ListTemplatesRequest filters the template directory listing
type ListTemplatesRequest struct {
	Query string `json:"query,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// Response Types

// DetectFieldsResult lists the fields found in a template
type DetectFieldsResult struct {
	Path      string                     `json:"path,omitempty" yaml:"path,omitempty"`
	Pages     []geometry.Page            `json:"pages" yaml:"pages"`
	Fields    []extraction.DetectedField `json:"fields" yaml:"fields"`
	Source    extraction.Source          `json:"source" yaml:"source"`
	Warnings  []string                   `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Conflicts []extraction.Conflict      `json:"conflicts,omitempty" yaml:"conflicts,omitempty"`
	Profile   bool                       `json:"profile,omitempty" yaml:"profile,omitempty"`
}

// clone deep-copies r so callers can edit the result freely
func (r *DetectFieldsResult) clone() *DetectFieldsResult {
	c := *r
	c.Pages = append([]geometry.Page(nil), r.Pages...)
	c.Fields = append([]extraction.DetectedField(nil), r.Fields...)
	for i, f := range c.Fields {
		if f.Confidence != nil {
			v := *f.Confidence
			c.Fields[i].Confidence = &v
		}
	}
	c.Warnings = append([]string(nil), r.Warnings...)
	c.Conflicts = append([]extraction.Conflict(nil), r.Conflicts...)
	return &c
}

// StampDocumentResult is the stamped document and what had to be compromised
type StampDocumentResult struct {
	Path       string       `json:"path,omitempty" yaml:"path,omitempty"`
	OutputPath string       `json:"output_path,omitempty" yaml:"output_path,omitempty"`
	Output     []byte       `json:"-" yaml:"-"`
	Size       int          `json:"size" yaml:"size"`
	Rows       int          `json:"rows" yaml:"rows"`
	Pages      []int        `json:"pages" yaml:"pages"`
	Flags      []stamp.Flag `json:"flags,omitempty" yaml:"flags,omitempty"`
}

// PreviewDocumentResult describes a template and carries the outlined copy
// when one was requested
type PreviewDocumentResult struct {
	TemplateID string              `json:"template_id" yaml:"template_id"`
	Size       int                 `json:"size" yaml:"size"`
	Pages      []geometry.Page     `json:"pages" yaml:"pages"`
	Fields     int                 `json:"fields" yaml:"fields"`
	Targets    []overlay.HitTarget `json:"targets,omitempty" yaml:"targets,omitempty"`
	Output     []byte              `json:"-" yaml:"-"`
	OutputPath string              `json:"output_path,omitempty" yaml:"output_path,omitempty"`
}

// ListTemplatesResult is the filtered template listing
type ListTemplatesResult struct {
	Directory  string         `json:"directory"`
	Templates  []TemplateInfo `json:"templates"`
	TotalCount int            `json:"total_count"`
	Query      string         `json:"query,omitempty"`
}

// ServerInfoResult describes the server and how to use its tools
type ServerInfoResult struct {
	ServerName        string         `json:"server_name"`
	Version           string         `json:"version"`
	TemplateDirectory string         `json:"template_directory"`
	OutputDirectory   string         `json:"output_directory"`
	MaxFileSize       int64          `json:"max_file_size"`
	ConfidenceFloor   float64        `json:"confidence_floor"`
	FieldKinds        []string       `json:"field_kinds"`
	AvailableTools    []ToolInfo     `json:"available_tools"`
	Templates         []TemplateInfo `json:"templates"`
	UsageGuidance     string         `json:"usage_guidance"`
}

// ToolInfo describes one MCP tool
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Usage       string `json:"usage"`
	Parameters  string `json:"parameters"`
}
