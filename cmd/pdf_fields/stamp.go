package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/a3tai/pdf-fieldstamp/internal/pdf"
	"github.com/a3tai/pdf-fieldstamp/internal/pdf/stamp"
)

func newStampCmd(opts *options) *cobra.Command {
	var (
		fieldsFile string
		valuesFile string
		out        string
		rowHeight  float64
		offsets    []float64
		static     []string
	)

	cmd := &cobra.Command{
		Use:   "stamp <template.pdf>",
		Short: "Stamp values into a template",
		Long: `Stamp values into a template and write the result to --out.

The values file holds one record ({"worker": "Kim Minsu"}) or a batch
({"entries": [{...}, {...}]}) in JSON or YAML. A batch needs a row rule,
given with --row-height or --offsets or taken from the template profile.
Without --fields the template's fields are detected first.`,
		Example: `  pdf_fields stamp forms/inspection.pdf --values kim.yaml --out out/kim.pdf
  pdf_fields stamp forms/register.pdf --values crew.json --row-height 20 --static site --out out/register.pdf`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := readValues(valuesFile)
			if err != nil {
				return err
			}
			outDir, outName, err := outputTarget(out)
			if err != nil {
				return err
			}
			s, name, err := opts.service(cmd, args[0], outDir)
			if err != nil {
				return err
			}

			req := pdf.StampDocumentRequest{Path: name, Values: values, OutputPath: outName}
			if fieldsFile != "" {
				if req.Fields, err = readFields(fieldsFile); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("row-height") || len(offsets) > 0 || len(static) > 0 {
				req.RowRule = &stamp.RowRule{RowHeight: rowHeight, Offsets: offsets, Static: static}
			}

			result, err := s.StampDocument(req)
			if err != nil {
				return err
			}
			if out != "" {
				result.OutputPath = out
			}
			return writeOutput(cmd.OutOrStdout(), opts.output, result)
		},
	}

	cmd.Flags().StringVar(&fieldsFile, "fields", "", "JSON or YAML file with the field list (default: detect)")
	cmd.Flags().StringVar(&valuesFile, "values", "", "JSON or YAML file with the values (required)")
	cmd.Flags().StringVar(&out, "out", "", "where to write the stamped PDF (required)")
	cmd.Flags().Float64Var(&rowHeight, "row-height", 0, "distance in points between consecutive rows")
	cmd.Flags().Float64SliceVar(&offsets, "offsets", nil, "explicit downward offset of each row, in points")
	cmd.Flags().StringSliceVar(&static, "static", nil, "fields drawn once from the first record")
	_ = cmd.MarkFlagRequired("values")
	_ = cmd.MarkFlagRequired("out")

	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if out == args[0] {
			return fmt.Errorf("--out must differ from the template")
		}
		return nil
	}
	return cmd
}
