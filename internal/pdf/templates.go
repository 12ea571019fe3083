package pdf

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/a3tai/pdf-fieldstamp/internal/pdf/profile"
)

// ListTemplates walks the template directory for PDF files, optionally
// filtered by a fuzzy query on the file name
func (s *Service) ListTemplates(req ListTemplatesRequest) (*ListTemplatesResult, error) {
	root := s.templates.Root()
	query := strings.ToLower(strings.TrimSpace(req.Query))

	templates := []TemplateInfo{}
	if _, err := os.Stat(root); errors.Is(err, os.ErrNotExist) {
		return &ListTemplatesResult{Directory: root, Templates: templates, Query: req.Query}, nil
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Continue walking even if we encounter an error with a specific file
			return nil
		}

		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != root {
				return filepath.SkipDir
			}
			return nil
		}

		if req.Limit > 0 && len(templates) >= req.Limit {
			return filepath.SkipAll
		}

		if !isPDFFile(d.Name()) || !matchesQuery(d.Name(), query) {
			return nil
		}

		// Symlinks may point outside the directory
		if within, err := s.templates.Contains(path); err != nil || !within {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if err := s.checkFileInfo(path, info); err != nil {
			return nil
		}

		_, statErr := os.Stat(profile.SidecarPath(path))
		templates = append(templates, TemplateInfo{
			ID:           s.templates.Rel(path),
			Name:         info.Name(),
			Size:         info.Size(),
			ModifiedTime: info.ModTime().Format("2006-01-02 15:04:05"),
			HasProfile:   statErr == nil,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error walking template directory: %w", err)
	}

	return &ListTemplatesResult{
		Directory:  root,
		Templates:  templates,
		TotalCount: len(templates),
		Query:      req.Query,
	}, nil
}

// isPDFFile checks if a file has a PDF extension
func isPDFFile(filename string) bool {
	return strings.HasSuffix(strings.ToLower(filename), ".pdf")
}

// matchesQuery performs fuzzy matching on the file name. Every query word has
// to appear in some word of the name.
func matchesQuery(filename, query string) bool {
	if query == "" {
		return true
	}

	name := strings.ToLower(filename)
	if strings.Contains(name, query) {
		return true
	}

	words := splitIntoWords(strings.TrimSuffix(name, ".pdf"))
	for _, queryWord := range splitIntoWords(query) {
		found := false
		for _, word := range words {
			if strings.Contains(word, queryWord) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// splitIntoWords splits a string into words using common separators
func splitIntoWords(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		switch r {
		case ' ', '_', '-', '.', '(', ')', '[', ']':
			return true
		}
		return false
	})
}
