package stamp

import (
	"math"

	pdferrors "github.com/a3tai/pdf-fieldstamp/internal/pdf/errors"
)

// RowRule places repeating records below the base geometry of their fields.
// With Offsets empty, row i is moved down by i*RowHeight; otherwise by
// Offsets[i]. Fields named in Static are drawn once, from the first record.
type RowRule struct {
	RowHeight float64   `json:"row_height,omitempty" yaml:"row_height,omitempty"`
	Offsets   []float64 `json:"offsets,omitempty" yaml:"offsets,omitempty"`
	Static    []string  `json:"static,omitempty" yaml:"static,omitempty"`
}

// Validate checks the rule can place the given number of records
func (r *RowRule) Validate(records int) error {
	if math.IsNaN(r.RowHeight) || math.IsInf(r.RowHeight, 0) || r.RowHeight < 0 {
		return pdferrors.Newf(pdferrors.ErrorTypeInvalidRowRule, "row height must be a finite value >= 0, got %v", r.RowHeight)
	}
	if len(r.Offsets) > 0 {
		if len(r.Offsets) < records {
			return pdferrors.Newf(pdferrors.ErrorTypeInvalidRowRule,
				"%d records but only %d row offsets", records, len(r.Offsets))
		}
		for i, off := range r.Offsets {
			if math.IsNaN(off) || math.IsInf(off, 0) {
				return pdferrors.Newf(pdferrors.ErrorTypeInvalidRowRule, "row offset %d is not finite", i).WithRow(i)
			}
		}
		return nil
	}
	if records > 1 && r.RowHeight == 0 {
		return pdferrors.New(pdferrors.ErrorTypeInvalidRowRule, "row height must be > 0 when no offsets are given")
	}
	return nil
}

// Offset returns how far row i is moved down from the base geometry
func (r *RowRule) Offset(i int) float64 {
	if r == nil {
		return 0
	}
	if len(r.Offsets) > 0 {
		return r.Offsets[i]
	}
	return float64(i) * r.RowHeight
}

// IsStatic reports whether a field is drawn once rather than per row
func (r *RowRule) IsStatic(name string) bool {
	if r == nil {
		return false
	}
	for _, s := range r.Static {
		if s == name {
			return true
		}
	}
	return false
}
