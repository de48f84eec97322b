// Package schema reconciles the column layout of an FMA export with the
// relational schema: versioned header mappings, the column sparsity pass and
// the row normalizer.
package schema

import (
	"fmt"
	"sort"
	"strings"
)

// Field is a canonical semantic field name. Field names double as column
// names in the relational store.
type Field string

// Unmapped marks a header that has no canonical field.
const Unmapped Field = ""

const (
	FieldID          Field = "id"
	FieldLabel       Field = "label"
	FieldParent      Field = "parent_id"
	FieldSynonyms    Field = "synonyms"
	FieldDefinitions Field = "definitions"
	FieldNonEnglish  Field = "non_english_equivalent"
)

// requiredFields must be mapped by every version and present in every input.
var requiredFields = []Field{FieldID, FieldLabel, FieldParent}

// KeyType selects how concept identifiers are typed in the store.
type KeyType string

const (
	KeyText    KeyType = "text"
	KeyInteger KeyType = "integer"
)

// SchemaVersion names one mapping table.
type SchemaVersion string

// AutoVersion asks the registry to pick the version from the input headers.
const AutoVersion SchemaVersion = "auto"

// Mapping is one versioned header → field table plus the storage shape of
// the fields it produces.
type Mapping struct {
	Version SchemaVersion
	Keys    KeyType
	// Headers maps exact header strings to fields. Headers mapped to
	// Unmapped are known to the version but carry nothing we store.
	Headers map[string]Field
	// Inline fields are stored as text columns of the concept table.
	Inline []Field
	// Junctions are multi-valued integer code systems, one table each.
	Junctions []Field
	// BareIDs also accepts identifier tokens that carry no URI prefix.
	BareIDs bool
}

// Map translates headers into a parallel slice of fields.
func (m *Mapping) Map(headers []string) []Field {
	out := make([]Field, len(headers))
	for i, h := range headers {
		out[i] = m.Headers[h]
	}
	return out
}

// known counts how many of headers the mapping recognizes, mapped or not.
func (m *Mapping) known(headers []string) int {
	n := 0
	for _, h := range headers {
		if _, ok := m.Headers[h]; ok {
			n++
		}
	}
	return n
}

// HeaderMismatchError reports an input whose header set does not fit the
// selected schema version.
type HeaderMismatchError struct {
	Version   SchemaVersion
	Missing   []Field
	Duplicate []Field
}

func (e *HeaderMismatchError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+joinFields(e.Missing))
	}
	if len(e.Duplicate) > 0 {
		parts = append(parts, "duplicated "+joinFields(e.Duplicate))
	}
	return fmt.Sprintf("headers do not match schema version %q: %s", e.Version, strings.Join(parts, "; "))
}

// Validate checks the input headers against the mapping. Every required
// field must be mapped by exactly one input column, and no mapped field may
// come from two columns.
func (m *Mapping) Validate(headers []string) error {
	seen := make(map[Field]int)
	for _, f := range m.Map(headers) {
		if f != Unmapped {
			seen[f]++
		}
	}

	var missing, dup []Field
	for _, f := range requiredFields {
		if seen[f] == 0 {
			missing = append(missing, f)
		}
	}
	for f, n := range seen {
		if n > 1 {
			dup = append(dup, f)
		}
	}
	if len(missing) == 0 && len(dup) == 0 {
		return nil
	}
	sort.Slice(dup, func(i, j int) bool { return dup[i] < dup[j] })
	return &HeaderMismatchError{Version: m.Version, Missing: missing, Duplicate: dup}
}

func joinFields(fs []Field) string {
	s := make([]string, len(fs))
	for i, f := range fs {
		s[i] = string(f)
	}
	return strings.Join(s, ", ")
}
