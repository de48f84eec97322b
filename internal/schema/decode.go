package schema

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"
)

// Supported input encodings.
const (
	EncodingUTF8        = "utf-8"
	EncodingLatin1      = "latin-1"
	EncodingWindows1252 = "windows-1252"
)

var errInvalidUTF8 = errors.New("invalid UTF-8")

// Decoder turns a raw cell into NFC-normalized UTF-8 text. Implementations
// are safe for concurrent use.
type Decoder interface {
	Decode(s string) (string, error)
}

// NewDecoder returns the decoder for an encoding name.
func NewDecoder(encoding string) (Decoder, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", EncodingUTF8, "utf8":
		return utf8Decoder{}, nil
	case EncodingLatin1, "latin1", "iso-8859-1":
		return charmapDecoder{cm: charmap.ISO8859_1}, nil
	case EncodingWindows1252, "cp1252":
		return charmapDecoder{cm: charmap.Windows1252}, nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", encoding)
	}
}

type utf8Decoder struct{}

func (utf8Decoder) Decode(s string) (string, error) {
	if !utf8.ValidString(s) {
		return "", errInvalidUTF8
	}
	return norm.NFC.String(s), nil
}

type charmapDecoder struct {
	cm *charmap.Charmap
}

// Decode builds a fresh transformer per call; x/text decoders carry state.
func (d charmapDecoder) Decode(s string) (string, error) {
	out, err := d.cm.NewDecoder().String(s)
	if err != nil {
		return "", err
	}
	return norm.NFC.String(out), nil
}

// DecodeError is a cell that could not be decoded. It aborts the import.
type DecodeError struct {
	Line   int
	Column string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("line %d, column %q: decoding text: %v", e.Line, e.Column, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
