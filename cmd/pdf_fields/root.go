package main

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/a3tai/pdf-fieldstamp/internal/config"
	"github.com/a3tai/pdf-fieldstamp/internal/pdf"
)

var (
	version   = "dev"     // This will be set by build flags
	gitCommit = "unknown" // This will be set by build flags
)

// options are the persistent flags shared by every command
type options struct {
	output      string
	verbose     bool
	maxFileSize int64
	labelGap    float64
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "pdf_fields",
		Short: "Detect form fields in PDF templates and stamp values into them",
		Long: `pdf_fields works on fillable and printed PDF templates such as daily
inspection sheets, sign-in registers and work permits.

  - detect finds the fields of a template, from its form or from its layout
  - stamp writes values into the fields as an incremental update
  - preview draws the fields as labelled boxes to check their geometry

A <template>.yaml profile next to the template can declare missing fields,
a row rule for repeating rows and the confidence floor.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "yaml", "output format: yaml or json")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log detection and stamping details to stderr")
	root.PersistentFlags().Int64Var(&opts.maxFileSize, "max-file-size", config.DefaultMaxFileSize, "maximum template size in bytes")
	root.PersistentFlags().Float64Var(&opts.labelGap, "label-gap", config.DefaultMaxLabelGap, "farthest distance between a label and its blank, in points")

	root.AddCommand(
		newDetectCmd(opts),
		newStampCmd(opts),
		newPreviewCmd(opts),
		newVersionCmd(),
	)
	return root
}

// service opens a service rooted at the directory of the template. Output
// paths are resolved against outDir, which defaults to the same directory.
func (o *options) service(cmd *cobra.Command, templatePath, outDir string) (*pdf.Service, string, error) {
	abs, err := filepath.Abs(templatePath)
	if err != nil {
		return nil, "", err
	}
	if outDir == "" {
		outDir = filepath.Dir(abs)
	}

	var logger *log.Logger
	if o.verbose {
		logger = log.New(cmd.ErrOrStderr(), "pdf_fields: ", 0)
	} else {
		logger = log.New(io.Discard, "", 0)
	}

	s, err := pdf.NewService(pdf.Options{
		MaxFileSize:     o.maxFileSize,
		TemplateDir:     filepath.Dir(abs),
		OutputDir:       outDir,
		ConfidenceFloor: config.DefaultConfidenceFloor,
		MaxLabelGap:     o.labelGap,
		Logger:          logger,
	})
	if err != nil {
		return nil, "", err
	}
	return s, filepath.Base(abs), nil
}

// outputTarget splits an output file into the directory the service writes
// to and the name relative to it
func outputTarget(out string) (string, string, error) {
	if out == "" {
		return "", "", nil
	}
	abs, err := filepath.Abs(out)
	if err != nil {
		return "", "", err
	}
	if err := os.MkdirAll(filepath.Dir(abs), config.DefaultDirPerm); err != nil {
		return "", "", err
	}
	return filepath.Dir(abs), filepath.Base(abs), nil
}
