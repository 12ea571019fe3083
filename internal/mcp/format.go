package mcp

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/a3tai/pdf-fieldstamp/internal/pdf"
	"github.com/a3tai/pdf-fieldstamp/internal/pdf/extraction"
)

// num formats a coordinate with at most two decimals
func num(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}

// jsonBlock renders v as indented JSON for the client to parse
func jsonBlock(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("(cannot encode result: %v)\n", err)
	}
	return string(data) + "\n"
}

func formatWarnings(warnings []string) string {
	if len(warnings) == 0 {
		return ""
	}
	text := fmt.Sprintf("Warnings (%d):\n", len(warnings))
	for _, w := range warnings {
		text += fmt.Sprintf("  - %s\n", w)
	}
	return text
}

func formatConflicts(conflicts []extraction.Conflict) string {
	if len(conflicts) == 0 {
		return ""
	}
	text := fmt.Sprintf("Conflicts (%d), fix with move_field or remove_field before stamping:\n", len(conflicts))
	for _, c := range conflicts {
		text += fmt.Sprintf("  - %s overlaps %s on page %d\n", c.First, c.Second, c.Page)
	}
	return text
}

func (s *Server) formatDetectFieldsResult(result *pdf.DetectFieldsResult) string {
	text := fmt.Sprintf("Detected %d field(s) in %s\n", len(result.Fields), result.Path)
	text += fmt.Sprintf("Pages: %d\n", len(result.Pages))
	text += fmt.Sprintf("Source: %s\n", result.Source)
	if result.Profile {
		text += "Profile: applied\n"
	}
	text += formatWarnings(result.Warnings)

	if len(result.Conflicts) > 0 {
		text += "\n" + formatConflicts(result.Conflicts)
	}

	if len(result.Fields) == 0 {
		text += "\nNo fields found. Declare them in a profile or with place_field.\n"
		return text
	}
	text += "\n" + jsonBlock(result)
	return text
}

func (s *Server) formatStampDocumentResult(result *pdf.StampDocumentResult) string {
	text := fmt.Sprintf("Stamped %s\n", result.Path)
	text += fmt.Sprintf("Rows: %d\n", result.Rows)
	text += fmt.Sprintf("Pages written: %v\n", result.Pages)
	text += fmt.Sprintf("Size: %d bytes\n", result.Size)
	if result.OutputPath != "" {
		text += fmt.Sprintf("Saved to: %s\n", result.OutputPath)
	} else {
		text += "Not saved: give output_path to keep the stamped file\n"
	}

	if len(result.Flags) > 0 {
		text += fmt.Sprintf("\nFlags (%d):\n", len(result.Flags))
		for _, f := range result.Flags {
			text += fmt.Sprintf("  - %s: %s (row %d)\n", f.Field, f.Kind, f.Row)
		}
	}
	return text
}

func (s *Server) formatPreviewDocumentResult(result *pdf.PreviewDocumentResult) string {
	text := fmt.Sprintf("Template: %s\n", result.TemplateID)
	text += fmt.Sprintf("Size: %d bytes\n", result.Size)
	text += fmt.Sprintf("Fields: %d\n", result.Fields)
	text += fmt.Sprintf("Pages (%d):\n", len(result.Pages))
	for _, p := range result.Pages {
		text += fmt.Sprintf("  %d. %sx%s points\n", p.Index, num(p.Width), num(p.Height))
	}
	if result.OutputPath != "" {
		text += fmt.Sprintf("Outlined copy saved to: %s\n", result.OutputPath)
	}
	if len(result.Targets) > 0 {
		text += fmt.Sprintf("\nOverlay targets (%d):\n", len(result.Targets))
		text += jsonBlock(result.Targets)
	}
	return text
}

func (s *Server) formatServerInfoResult(result *pdf.ServerInfoResult) string {
	text := fmt.Sprintf("%s v%s - Server Information\n", result.ServerName, result.Version)
	text += fmt.Sprintf("Template Directory: %s\n", result.TemplateDirectory)
	text += fmt.Sprintf("Output Directory: %s\n", result.OutputDirectory)
	text += fmt.Sprintf("Max File Size: %d MB\n", result.MaxFileSize/(1024*1024))
	text += fmt.Sprintf("Confidence Floor: %s\n", num(result.ConfidenceFloor))
	text += fmt.Sprintf("Open Sessions: %d\n", s.sessions.len())
	stats := s.pdfService.DetectionCacheStats()
	text += fmt.Sprintf("Detection Cache: %d/%d entries, %d hits, %d misses\n\n",
		stats.Size, stats.Capacity, stats.Hits, stats.Misses)

	if len(result.Templates) > 0 {
		text += fmt.Sprintf("Templates (%d found):\n", len(result.Templates))
		for i, tmpl := range result.Templates {
			if i >= 10 {
				text += fmt.Sprintf("   ... and %d more templates\n", len(result.Templates)-10)
				break
			}
			text += fmt.Sprintf("   %d. %s (%d bytes)", i+1, tmpl.ID, tmpl.Size)
			if tmpl.HasProfile {
				text += " [profile]"
			}
			text += "\n"
		}
		text += "\n"
	} else {
		text += "Templates: No PDF templates found in the template directory\n\n"
	}

	text += "Available Tools:\n"
	for _, tool := range result.AvailableTools {
		text += fmt.Sprintf("\n• %s\n", tool.Name)
		text += fmt.Sprintf("  Description: %s\n", tool.Description)
		text += fmt.Sprintf("  Usage: %s\n", tool.Usage)
		text += fmt.Sprintf("  Parameters: %s\n", tool.Parameters)
	}

	text += "\nField Kinds: "
	for i, k := range result.FieldKinds {
		if i > 0 {
			text += ", "
		}
		text += k
	}
	text += "\n\n" + result.UsageGuidance
	return text
}
