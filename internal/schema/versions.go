package schema

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// ErrUnknownVersion is returned when a schema version is not registered.
var ErrUnknownVersion = errors.New("unknown schema version")

// Built-in versions of the FMA export.
const (
	// V1 is the legacy BioPortal export: the identifier sits in the trailing
	// FMAID column, often without its URI prefix, and every cross-reference
	// is kept inline as text.
	V1 SchemaVersion = "v1"
	// V2 is the normalized export: the identifier moved to the leading
	// Class ID column, keys are integers, and the JHU DTI-81 and Talairach
	// atlas codes are junction tables.
	V2 SchemaVersion = "v2"
)

// Headers both versions know but do not store.
var ignoredHeaders = []string{
	"Obsolete",
	"definition",
	"Eponym",
	"homonym for",
	"http://data.bioontology.org/metadata/prefixIRI",
	"PI-RADS v1 16 ID 16",
	"PI-RADS v1 27 ID 24",
	"PI-RADS v2 ID 34",
	"preferred name",
	"slot synonym",
	"synonym",
}

var sharedHeaders = map[string]Field{
	"Preferred Label":                     FieldLabel,
	"Synonyms":                            FieldSynonyms,
	"Definitions":                         FieldDefinitions,
	"Parents":                             FieldParent,
	"non-English equivalent":              FieldNonEnglish,
	"AAL":                                 "aal",
	"CMA label":                           "cma_label",
	"DK  Freesurfer":                      "dk_freesurfer",
	"JHU DTI-81":                          "jhu_dti_81",
	"JHU White-Matter Tractography Atlas": "jhu_wmta",
	"Neurolex":                            "neurolex",
	"RadLex ID":                           "radlex_id",
	"Talairach":                           "talairach",
}

func v1Mapping() *Mapping {
	h := headerTable(map[string]Field{
		"Class ID": Unmapped,
		"FMAID":    FieldID,
	})
	return &Mapping{
		Version: V1,
		Keys:    KeyText,
		Headers: h,
		BareIDs: true,
		Inline: []Field{
			"aal", "cma_label", "dk_freesurfer", "jhu_dti_81",
			"jhu_wmta", "neurolex", "radlex_id", "talairach",
		},
	}
}

func v2Mapping() *Mapping {
	h := headerTable(map[string]Field{
		"Class ID":       FieldID,
		"CUI":            Unmapped,
		"Semantic Types": Unmapped,
	})
	return &Mapping{
		Version:   V2,
		Keys:      KeyInteger,
		Headers:   h,
		Inline:    []Field{"aal", "cma_label", "dk_freesurfer", "jhu_wmta", "neurolex", "radlex_id"},
		Junctions: []Field{"jhu_dti_81", "talairach"},
	}
}

func headerTable(extra map[string]Field) map[string]Field {
	h := make(map[string]Field, len(sharedHeaders)+len(ignoredHeaders)+len(extra))
	for k, v := range sharedHeaders {
		h[k] = v
	}
	for _, k := range ignoredHeaders {
		h[k] = Unmapped
	}
	for k, v := range extra {
		h[k] = v
	}
	return h
}

// Registry holds the named mapping tables available to an import.
type Registry struct {
	versions map[SchemaVersion]*Mapping
}

// Builtin returns a registry with the v1 and v2 mappings.
func Builtin() *Registry {
	r := &Registry{versions: make(map[SchemaVersion]*Mapping)}
	for _, m := range []*Mapping{v1Mapping(), v2Mapping()} {
		r.versions[m.Version] = m
	}
	return r
}

var identRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Register adds or replaces a version after checking it can produce a valid
// store layout.
func (r *Registry) Register(m *Mapping) error {
	if m.Version == "" || m.Version == AutoVersion {
		return fmt.Errorf("invalid version name %q", m.Version)
	}
	if m.Keys != KeyText && m.Keys != KeyInteger {
		return fmt.Errorf("version %s: key type must be %q or %q, got %q", m.Version, KeyText, KeyInteger, m.Keys)
	}

	mapped := make(map[Field]bool)
	for h, f := range m.Headers {
		if f == Unmapped {
			continue
		}
		if !identRe.MatchString(string(f)) {
			return fmt.Errorf("version %s: header %q maps to invalid field name %q", m.Version, h, f)
		}
		mapped[f] = true
	}
	for _, f := range requiredFields {
		if !mapped[f] {
			return fmt.Errorf("version %s: no header maps to required field %s", m.Version, f)
		}
	}

	storage := make(map[Field]bool)
	for _, f := range append(append([]Field{}, m.Inline...), m.Junctions...) {
		if !mapped[f] {
			return fmt.Errorf("version %s: storage field %s is not mapped by any header", m.Version, f)
		}
		if storage[f] || isCoreField(f) {
			return fmt.Errorf("version %s: field %s listed twice or reserved", m.Version, f)
		}
		storage[f] = true
	}

	r.versions[m.Version] = m
	return nil
}

// Lookup returns the mapping registered under v.
func (r *Registry) Lookup(v SchemaVersion) (*Mapping, error) {
	m, ok := r.versions[v]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownVersion, v, strings.Join(r.names(), ", "))
	}
	return m, nil
}

// Versions lists registered version names in sorted order.
func (r *Registry) Versions() []SchemaVersion {
	out := make([]SchemaVersion, 0, len(r.versions))
	for v := range r.versions {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Registry) names() []string {
	vs := r.Versions()
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = string(v)
	}
	return out
}

// Detect picks the version matching headers. Candidates are versions whose
// Validate accepts the headers; among them the one recognizing the most
// input headers wins. No candidate, or a tie, is an error.
func (r *Registry) Detect(headers []string) (*Mapping, error) {
	var best *Mapping
	bestScore, tie := -1, false
	for _, v := range r.Versions() {
		m := r.versions[v]
		if m.Validate(headers) != nil {
			continue
		}
		score := m.known(headers)
		switch {
		case score > bestScore:
			best, bestScore, tie = m, score, false
		case score == bestScore:
			tie = true
		}
	}
	if best == nil {
		return nil, fmt.Errorf("no schema version matches the input headers (known: %s)", strings.Join(r.names(), ", "))
	}
	if tie {
		return nil, fmt.Errorf("input headers match several schema versions equally; pass --schema-version")
	}
	return best, nil
}

// Resolve returns the mapping for v, detecting it when v is AutoVersion, and
// validates it against headers.
func (r *Registry) Resolve(v SchemaVersion, headers []string) (*Mapping, error) {
	if v == "" || v == AutoVersion {
		return r.Detect(headers)
	}
	m, err := r.Lookup(v)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(headers); err != nil {
		return nil, err
	}
	return m, nil
}

func isCoreField(f Field) bool {
	switch f {
	case FieldID, FieldLabel, FieldParent, FieldSynonyms, FieldDefinitions, FieldNonEnglish:
		return true
	}
	return false
}
