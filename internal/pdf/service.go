package pdf

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/a3tai/pdf-fieldstamp/internal/pdf/cache"
	"github.com/a3tai/pdf-fieldstamp/internal/pdf/document"
	pdferrors "github.com/a3tai/pdf-fieldstamp/internal/pdf/errors"
	"github.com/a3tai/pdf-fieldstamp/internal/pdf/extraction"
	"github.com/a3tai/pdf-fieldstamp/internal/pdf/geometry"
	"github.com/a3tai/pdf-fieldstamp/internal/pdf/overlay"
	"github.com/a3tai/pdf-fieldstamp/internal/pdf/profile"
	"github.com/a3tai/pdf-fieldstamp/internal/pdf/security"
	"github.com/a3tai/pdf-fieldstamp/internal/pdf/stamp"
)

const (
	maxAllowedFileSize = 1024 * 1024 * 1024 // 1GB
	outputFilePerm     = 0o644
	outputDirPerm      = 0o750
)

// Options configure a Service
type Options struct {
	MaxFileSize     int64
	TemplateDir     string
	OutputDir       string // defaults to TemplateDir
	ConfidenceFloor float64
	MaxLabelGap     float64
	CacheSize       int // detection results kept; defaults to cache.DefaultCapacity
	Logger          *log.Logger
}

// Service handles template operations by orchestrating the detector, the
// stamping engine and template profiles. It keeps no per-request state.
type Service struct {
	maxFileSize int64
	templates   *security.PathValidator
	outputs     *security.PathValidator
	detectOpts  extraction.Options
	engine      *stamp.Engine
	detections  *cache.LRU[*DetectFieldsResult]
	logger      *log.Logger
}

// NewService creates a new service rooted at the template directory
func NewService(opts Options) (*Service, error) {
	templates, err := security.NewPathValidator(opts.TemplateDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create template path validator: %w", err)
	}
	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = opts.TemplateDir
	}
	outputs, err := security.NewPathValidator(outputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create output path validator: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	detectOpts := extraction.Options{
		ConfidenceFloor: opts.ConfidenceFloor,
		MaxLabelGap:     opts.MaxLabelGap,
		Logger:          logger,
	}
	// Reject a bad floor here rather than on the first request.
	if _, err := extraction.NewDetector(detectOpts); err != nil {
		return nil, err
	}

	s := &Service{
		maxFileSize: opts.MaxFileSize,
		templates:   templates,
		outputs:     outputs,
		detectOpts:  detectOpts,
		engine:      stamp.NewEngine(logger),
		detections:  cache.New[*DetectFieldsResult](opts.CacheSize),
		logger:      logger,
	}
	if err := s.ValidateConfiguration(); err != nil {
		return nil, err
	}
	return s, nil
}

// ValidateConfiguration validates the service configuration
func (s *Service) ValidateConfiguration() error {
	if s.maxFileSize <= 0 {
		return fmt.Errorf("maxFileSize must be greater than 0")
	}
	if s.maxFileSize > maxAllowedFileSize {
		return fmt.Errorf("maxFileSize cannot exceed 1GB")
	}
	return nil
}

// GetMaxFileSize returns the maximum file size limit
func (s *Service) GetMaxFileSize() int64 {
	return s.maxFileSize
}

// TemplateDirectory returns the absolute template directory
func (s *Service) TemplateDirectory() string {
	return s.templates.Root()
}

// OutputDirectory returns the absolute output directory
func (s *Service) OutputDirectory() string {
	return s.outputs.Root()
}

// ConfidenceFloor returns the default floor for layout detection
func (s *Service) ConfidenceFloor() float64 {
	return s.detectOpts.ConfidenceFloor
}

// DetectFields returns the fields of a template. Fields declared in the
// template's profile are added unless a detected field already has the name.
func (s *Service) DetectFields(req DetectFieldsRequest) (*DetectFieldsResult, error) {
	data, path, err := s.template(req.Path, req.Data)
	if err != nil {
		return nil, err
	}

	var prof *profile.Profile
	if !req.IgnoreProfile {
		if prof, err = s.profileFor(path); err != nil {
			return nil, err
		}
	}

	result, err := s.detect(data, path, prof, req.ConfidenceFloor)
	if err != nil {
		return nil, err
	}
	if path != "" {
		result.Path = s.templates.Rel(path)
	}

	s.logger.Printf("Detected %d fields in %s (source %s, %d warnings)",
		len(result.Fields), displayName(result.Path), result.Source, len(result.Warnings))
	return result, nil
}

// detect runs detection on a template. Results are cached by template
// content, profile and floor, and every caller gets its own copy.
func (s *Service) detect(data []byte, templatePath string, prof *profile.Profile, floor *float64) (*DetectFieldsResult, error) {
	opts := s.detectOpts
	opts.ConfidenceFloor = prof.Floor(opts.ConfidenceFloor)
	if floor != nil {
		opts.ConfidenceFloor = *floor
	}

	key := detectionKey(data, templatePath, prof, opts.ConfidenceFloor)
	if cached, ok := s.detections.Get(key); ok {
		return cached.clone(), nil
	}

	detector, err := extraction.NewDetector(opts)
	if err != nil {
		return nil, err
	}
	doc, err := document.Open(data)
	if err != nil {
		return nil, err
	}
	detected, err := detector.DetectDocument(doc)
	if err != nil {
		return nil, err
	}

	result := &DetectFieldsResult{
		Pages:    detected.Pages,
		Fields:   detected.Fields,
		Source:   detected.Source,
		Warnings: detected.Warnings,
		Profile:  prof != nil,
	}
	if prof != nil {
		result.Fields, result.Warnings = addDeclared(result.Fields, prof.DeclaredFields(), doc.Pages, result.Warnings)
		extraction.SortReadingOrder(result.Fields)
	}
	result.Conflicts = extraction.FindConflicts(result.Fields)

	s.detections.Put(key, result)
	return result.clone(), nil
}

// detectionKey identifies a detection run. The profile is keyed by its
// sidecar's size and modification time.
func detectionKey(data []byte, templatePath string, prof *profile.Profile, floor float64) string {
	key := fmt.Sprintf("%x|%g", sha256.Sum256(data), floor)
	if prof != nil {
		key += "|profile"
		if info, err := os.Stat(profile.SidecarPath(templatePath)); err == nil {
			key += fmt.Sprintf("|%d|%d", info.Size(), info.ModTime().UnixNano())
		}
	}
	return key
}

// DetectionCacheStats reports the use of the detection cache
func (s *Service) DetectionCacheStats() cache.Stats {
	return s.detections.Stats()
}

// addDeclared appends profile fields that fit the document and do not reuse
// a detected name
func addDeclared(fields, declared []extraction.DetectedField, pages []geometry.Page, warnings []string) ([]extraction.DetectedField, []string) {
	names := make(map[string]bool, len(fields))
	for _, f := range fields {
		names[f.Name] = true
	}
	for _, f := range declared {
		if names[f.Name] {
			warnings = append(warnings, fmt.Sprintf("profile field %q ignored: a detected field has that name", f.Name))
			continue
		}
		if err := geometry.ValidateRect(f.Geometry, pages); err != nil {
			warnings = append(warnings, fmt.Sprintf("profile field %q ignored: %v", f.Name, err))
			continue
		}
		names[f.Name] = true
		fields = append(fields, f)
	}
	return fields, warnings
}

// StampDocument stamps values into a template. The row rule falls back to the
// template's profile; fields fall back to detection.
func (s *Service) StampDocument(req StampDocumentRequest) (*StampDocumentResult, error) {
	data, path, err := s.template(req.Path, req.Data)
	if err != nil {
		return nil, err
	}

	records := req.Records
	if records == nil {
		if records, err = ParseValueData(req.Values); err != nil {
			return nil, err
		}
	}

	prof, err := s.profileFor(path)
	if err != nil {
		return nil, err
	}

	fields := req.Fields
	if len(fields) == 0 {
		detected, err := s.detect(data, path, prof, nil)
		if err != nil {
			return nil, err
		}
		fields = detected.Fields
	}

	rule := req.RowRule
	if rule == nil {
		rule = prof.Rule()
	}

	stamped, err := s.engine.Stamp(data, fields, records, rule)
	if err != nil {
		return nil, err
	}

	result := &StampDocumentResult{
		Output: stamped.Output,
		Size:   len(stamped.Output),
		Rows:   stamped.Rows,
		Pages:  stamped.Pages,
		Flags:  stamped.Flags,
	}
	if path != "" {
		result.Path = s.templates.Rel(path)
	}
	if req.OutputPath != "" {
		if result.OutputPath, err = s.writeOutput(req.OutputPath, path, stamped.Output); err != nil {
			return nil, err
		}
	}

	s.logger.Printf("Stamped %s: %d rows, %d pages, %d flags",
		displayName(result.Path), result.Rows, len(result.Pages), len(result.Flags))
	return result, nil
}

// PreviewDocument returns the pages of a template. With Outline the fields are
// drawn as labelled boxes; with a zoom the fields of Page are projected onto
// the rendering surface.
func (s *Service) PreviewDocument(req PreviewDocumentRequest) (*PreviewDocumentResult, error) {
	data, path, err := s.template(req.TemplateID, nil)
	if err != nil {
		return nil, err
	}
	doc, err := document.Open(data)
	if err != nil {
		return nil, err
	}

	result := &PreviewDocumentResult{
		TemplateID: s.templates.Rel(path),
		Size:       len(data),
		Pages:      doc.Pages,
	}

	fields := req.Fields
	if len(fields) == 0 && (req.Outline || req.Zoom != 0) {
		prof, err := s.profileFor(path)
		if err != nil {
			return nil, err
		}
		detected, err := s.detect(data, path, prof, nil)
		if err != nil {
			return nil, err
		}
		fields = detected.Fields
	}
	result.Fields = len(fields)

	if req.Zoom != 0 {
		page, ok := geometry.PageByIndex(doc.Pages, req.Page)
		if !ok {
			return nil, pdferrors.Newf(pdferrors.ErrorTypeInvalidRequest, "page %d does not exist", req.Page).
				WithPage(req.Page + 1)
		}
		if result.Targets, err = overlay.Present(fields, page, req.Zoom); err != nil {
			return nil, err
		}
	}

	if req.Outline {
		outlined, err := s.engine.Outline(data, fields)
		if err != nil {
			return nil, err
		}
		result.Output = outlined.Output
		if req.OutputPath != "" {
			if result.OutputPath, err = s.writeOutput(req.OutputPath, path, outlined.Output); err != nil {
				return nil, err
			}
		}
	}
	return result, nil
}

// template returns the bytes of a template and, when it was read from disk,
// its absolute path
func (s *Service) template(path string, data []byte) ([]byte, string, error) {
	if data != nil {
		if int64(len(data)) > s.maxFileSize {
			return nil, "", pdferrors.Newf(pdferrors.ErrorTypeInvalidRequest,
				"document too large: %d bytes (max: %d bytes)", len(data), s.maxFileSize)
		}
		return data, "", nil
	}

	abs, err := s.templates.Resolve(path)
	if err != nil {
		return nil, "", fmt.Errorf("security validation failed: %w", err)
	}
	info, err := os.Stat(abs)
	if errors.Is(err, os.ErrNotExist) {
		return nil, "", pdferrors.Newf(pdferrors.ErrorTypeInvalidRequest, "template does not exist: %s", path)
	}
	if err != nil {
		return nil, "", pdferrors.Wrap(pdferrors.ErrorTypeInvalidRequest, "cannot access template", err)
	}
	if err := s.checkFileInfo(abs, info); err != nil {
		return nil, "", err
	}

	data, err = os.ReadFile(abs)
	if err != nil {
		return nil, "", pdferrors.Wrap(pdferrors.ErrorTypeUnreadableDocument, "failed to read template", err)
	}
	return data, abs, nil
}

// checkFileInfo performs the checks that do not need the file content
func (s *Service) checkFileInfo(path string, info os.FileInfo) error {
	if info.IsDir() {
		return pdferrors.Newf(pdferrors.ErrorTypeInvalidRequest, "path is a directory, not a file: %s", path)
	}
	if !isPDFFile(info.Name()) {
		return pdferrors.Newf(pdferrors.ErrorTypeInvalidRequest, "file is not a PDF: %s", path)
	}
	if info.Size() == 0 {
		return pdferrors.Newf(pdferrors.ErrorTypeUnreadableDocument, "file is empty: %s", path)
	}
	if info.Size() > s.maxFileSize {
		return pdferrors.Newf(pdferrors.ErrorTypeInvalidRequest,
			"file too large: %d bytes (max: %d bytes)", info.Size(), s.maxFileSize)
	}
	return nil
}

func (s *Service) profileFor(templatePath string) (*profile.Profile, error) {
	if templatePath == "" {
		return nil, nil
	}
	prof, err := profile.LoadFor(templatePath)
	if err != nil {
		return nil, err
	}
	if prof != nil {
		s.logger.Printf("Using profile %s", filepath.Base(profile.SidecarPath(templatePath)))
	}
	return prof, nil
}

// writeOutput stores data below the output directory and returns the
// relative path written
func (s *Service) writeOutput(rel, templatePath string, data []byte) (string, error) {
	abs, err := s.outputs.Resolve(rel)
	if err != nil {
		return "", fmt.Errorf("security validation failed: %w", err)
	}
	if !isPDFFile(abs) {
		return "", pdferrors.Newf(pdferrors.ErrorTypeInvalidRequest, "output must be a .pdf file: %s", rel)
	}
	if templatePath != "" && abs == templatePath {
		return "", pdferrors.New(pdferrors.ErrorTypeInvalidRequest, "output would overwrite the template")
	}
	if err := os.MkdirAll(filepath.Dir(abs), outputDirPerm); err != nil {
		return "", fmt.Errorf("cannot create output directory: %w", err)
	}
	if err := os.WriteFile(abs, data, outputFilePerm); err != nil {
		return "", fmt.Errorf("failed to write output: %w", err)
	}
	return s.outputs.Rel(abs), nil
}

func displayName(path string) string {
	if path == "" {
		return "uploaded document"
	}
	return path
}
