package schema

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// mappingFile is the YAML layout of a mappings file:
//
//	versions:
//	  - name: v3
//	    keys: integer
//	    headers:
//	      "Class ID": id
//	      "Preferred Label": label
//	      "Parents": parent_id
//	      "Obsolete": ""
//	    inline: [radlex_id]
//	    junctions: [talairach]
//	    bare_ids: false
type mappingFile struct {
	Versions []struct {
		Name      string            `yaml:"name"`
		Keys      string            `yaml:"keys"`
		Headers   map[string]string `yaml:"headers"`
		Inline    []string          `yaml:"inline"`
		Junctions []string          `yaml:"junctions"`
		BareIDs   bool              `yaml:"bare_ids"`
	} `yaml:"versions"`
}

// LoadFile registers every version defined in the YAML file at path.
func (r *Registry) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening mappings: %w", err)
	}
	defer f.Close()
	return r.Load(f)
}

// Load registers every version defined in the YAML document read from rd.
// Unknown keys are rejected.
func (r *Registry) Load(rd io.Reader) error {
	dec := yaml.NewDecoder(rd)
	dec.KnownFields(true)

	var mf mappingFile
	if err := dec.Decode(&mf); err != nil && err != io.EOF {
		return fmt.Errorf("decoding mappings: %w", err)
	}

	for _, v := range mf.Versions {
		m := &Mapping{
			Version: SchemaVersion(v.Name),
			Keys:    KeyType(v.Keys),
			Headers: make(map[string]Field, len(v.Headers)),
			BareIDs: v.BareIDs,
		}
		for h, f := range v.Headers {
			m.Headers[h] = Field(f)
		}
		for _, f := range v.Inline {
			m.Inline = append(m.Inline, Field(f))
		}
		for _, f := range v.Junctions {
			m.Junctions = append(m.Junctions, Field(f))
		}
		if err := r.Register(m); err != nil {
			return err
		}
	}
	return nil
}
