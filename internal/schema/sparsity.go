package schema

import (
	"errors"
	"io"
	"strings"
)

// Counts holds the number of non-empty values seen per column.
type Counts []int

// CountNonEmpty runs the sparsity pass. next yields data records and returns
// io.EOF when the input is exhausted; any other error aborts the pass unless
// it wraps ErrMalformedRow, in which case the record is skipped. Records
// whose width differs from width are skipped as well.
func CountNonEmpty(next func() ([]string, error), width int) (Counts, error) {
	counts := make(Counts, width)
	for {
		rec, err := next()
		if err == io.EOF {
			return counts, nil
		}
		if err != nil {
			if errors.Is(err, ErrMalformedRow) {
				continue
			}
			return nil, err
		}
		if len(rec) != width {
			continue
		}
		for i, v := range rec {
			if strings.TrimSpace(v) != "" {
				counts[i]++
			}
		}
	}
}

// Mask is the immutable per-column inclusion decision.
type Mask []bool

// Mask keeps column i only when it is mapped and carried data somewhere.
func (c Counts) Mask(fields []Field) Mask {
	m := make(Mask, len(fields))
	for i, f := range fields {
		m[i] = f != Unmapped && i < len(c) && c[i] > 0
	}
	return m
}

// Surviving returns the fields that pass the mask, in column order.
func (m Mask) Surviving(fields []Field) []Field {
	var out []Field
	for i, keep := range m {
		if keep {
			out = append(out, fields[i])
		}
	}
	return out
}

// Dropped returns mapped fields that the mask excludes.
func (m Mask) Dropped(fields []Field) []Field {
	var out []Field
	for i, keep := range m {
		if !keep && fields[i] != Unmapped {
			out = append(out, fields[i])
		}
	}
	return out
}
