package main

import (
	"github.com/spf13/cobra"

	"github.com/a3tai/pdf-fieldstamp/internal/pdf"
)

func newDetectCmd(opts *options) *cobra.Command {
	var (
		floor         float64
		ignoreProfile bool
	)

	cmd := &cobra.Command{
		Use:   "detect <template.pdf>",
		Short: "List the fields of a template",
		Example: `  pdf_fields detect forms/inspection.pdf
  pdf_fields detect --floor 0.7 -o json forms/toolbox-talk.pdf > fields.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, name, err := opts.service(cmd, args[0], "")
			if err != nil {
				return err
			}

			req := pdf.DetectFieldsRequest{Path: name, IgnoreProfile: ignoreProfile}
			if cmd.Flags().Changed("floor") {
				req.ConfidenceFloor = &floor
			}
			result, err := s.DetectFields(req)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), opts.output, result)
		},
	}

	cmd.Flags().Float64Var(&floor, "floor", 0, "drop layout fields scoring below this confidence (default from profile, else 0.5)")
	cmd.Flags().BoolVar(&ignoreProfile, "ignore-profile", false, "do not add fields declared in the template profile")
	return cmd
}
