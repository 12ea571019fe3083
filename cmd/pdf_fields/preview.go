package main

import (
	"github.com/spf13/cobra"

	"github.com/a3tai/pdf-fieldstamp/internal/pdf"
)

func newPreviewCmd(opts *options) *cobra.Command {
	var (
		fieldsFile string
		outline    bool
		out        string
		page       int
		zoom       float64
	)

	cmd := &cobra.Command{
		Use:   "preview <template.pdf>",
		Short: "Describe a template and draw its fields",
		Example: `  pdf_fields preview forms/permit.pdf
  pdf_fields preview forms/permit.pdf --outline --out previews/permit.pdf
  pdf_fields preview forms/permit.pdf --page 0 --zoom 1.5 -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outDir, outName, err := outputTarget(out)
			if err != nil {
				return err
			}
			s, name, err := opts.service(cmd, args[0], outDir)
			if err != nil {
				return err
			}

			req := pdf.PreviewDocumentRequest{
				TemplateID: name,
				Outline:    outline,
				OutputPath: outName,
				Page:       page,
				Zoom:       zoom,
			}
			if fieldsFile != "" {
				if req.Fields, err = readFields(fieldsFile); err != nil {
					return err
				}
			}

			result, err := s.PreviewDocument(req)
			if err != nil {
				return err
			}
			if result.OutputPath != "" {
				result.OutputPath = out
			}
			return writeOutput(cmd.OutOrStdout(), opts.output, result)
		},
	}

	cmd.Flags().StringVar(&fieldsFile, "fields", "", "JSON or YAML file with the field list (default: detect)")
	cmd.Flags().BoolVar(&outline, "outline", false, "draw every field as a labelled box")
	cmd.Flags().StringVar(&out, "out", "", "where to write the outlined PDF")
	cmd.Flags().IntVar(&page, "page", 0, "0-based page for the overlay")
	cmd.Flags().Float64Var(&zoom, "zoom", 0, "rendering zoom; lists the overlay hit targets of --page")
	cmd.MarkFlagsRequiredTogether("outline", "out")
	return cmd
}
