package schema

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// URIPrefix is stripped from identifier-bearing fields.
const URIPrefix = "http://purl.org/sig/ont/fma/fma"

var (
	idPattern   = regexp.MustCompile(`^` + regexp.QuoteMeta(URIPrefix) + `(\w+)$`)
	bareIDToken = regexp.MustCompile(`^\w+$`)
)

// ErrMalformedRow marks a row that is skipped rather than imported.
var ErrMalformedRow = errors.New("malformed row")

// Row is one normalized concept row.
type Row struct {
	Line int
	// ID is the stripped identifier: string for text keys, int64 for
	// integer keys.
	ID any
	// ParentID has the same type as ID, or is nil for roots and for parents
	// that cannot be resolved to an FMA identifier.
	ParentID any
	// Values holds every other surviving field. Multi-valued fields are
	// still raw pipe-delimited strings.
	Values map[Field]string
}

// Label returns the preferred label, or "" when the column did not survive.
func (r Row) Label() string { return r.Values[FieldLabel] }

// Normalizer is the stateless second pass. It is safe for concurrent use.
type Normalizer struct {
	keys    KeyType
	bare    bool
	headers []string
	fields  []Field
	mask    Mask
	dec     Decoder
	idCol   int
	parCol  int
}

// NewNormalizer prepares the second pass for one input. headers and fields
// are parallel; mask comes from the completed sparsity pass.
func NewNormalizer(m *Mapping, headers []string, fields []Field, mask Mask, dec Decoder) *Normalizer {
	n := &Normalizer{
		keys:    m.Keys,
		bare:    m.BareIDs,
		headers: headers,
		fields:  fields,
		mask:    mask,
		dec:     dec,
		idCol:   -1,
		parCol:  -1,
	}
	for i, f := range fields {
		switch f {
		case FieldID:
			n.idCol = i
		case FieldParent:
			if mask[i] {
				n.parCol = i
			}
		}
	}
	return n
}

// Normalize turns one raw record into a Row. Rows of the wrong width or
// without a well-formed identifier return an error wrapping
// ErrMalformedRow. A text cell that cannot be decoded returns *DecodeError.
func (n *Normalizer) Normalize(line int, rec []string) (Row, error) {
	if len(rec) != len(n.fields) {
		return Row{}, fmt.Errorf("line %d: %w: expected %d fields, got %d", line, ErrMalformedRow, len(n.fields), len(rec))
	}
	if n.idCol < 0 {
		return Row{}, fmt.Errorf("line %d: %w: no identifier column", line, ErrMalformedRow)
	}

	id, ok := n.key(rec[n.idCol])
	if !ok {
		return Row{}, fmt.Errorf("line %d: %w: identifier %q", line, ErrMalformedRow, rec[n.idCol])
	}

	row := Row{Line: line, ID: id, Values: make(map[Field]string)}
	if n.parCol >= 0 {
		row.ParentID = n.parent(rec[n.parCol])
	}

	for i, f := range n.fields {
		if !n.mask[i] || f == FieldID || f == FieldParent {
			continue
		}
		v, err := n.dec.Decode(strings.TrimSpace(rec[i]))
		if err != nil {
			return Row{}, &DecodeError{Line: line, Column: n.headers[i], Err: err}
		}
		row.Values[f] = v
	}
	return row, nil
}

// key strips the URI prefix and coerces the local token. Without the prefix
// only mappings with BareIDs accept the token.
func (n *Normalizer) key(raw string) (any, bool) {
	raw = strings.TrimSpace(raw)
	var tok string
	if m := idPattern.FindStringSubmatch(raw); m != nil {
		tok = m[1]
	} else if n.bare && bareIDToken.MatchString(raw) {
		tok = raw
	} else {
		return nil, false
	}
	if n.keys == KeyInteger {
		v, err := strconv.ParseInt(tok, 10, 64)
		if err != nil {
			return nil, false
		}
		return v, true
	}
	return tok, true
}

// parent keeps the first FMA identifier of the cell. Exports list several
// parents for a few concepts; the store models one.
func (n *Normalizer) parent(raw string) any {
	for _, seg := range SplitMulti(raw) {
		if p, ok := n.key(seg); ok {
			return p
		}
	}
	return nil
}
