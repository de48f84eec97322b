// Package ingest runs the two-pass import of an FMA export into the store.
package ingest

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/zeebo/xxh3"

	"fmadb/internal/schema"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Reader streams one delimited file: the header row first, then records.
type Reader struct {
	f       *os.File
	cr      *csv.Reader
	hasher  *xxh3.Hasher
	line    int
	Headers []string
}

// Open opens path and reads its header row. With digest set, every byte
// read is hashed; Digest is valid once Next has returned io.EOF.
func Open(path string, comma rune, digest bool) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening input: %w", err)
	}

	r := &Reader{f: f}
	var src io.Reader = f
	if digest {
		r.hasher = xxh3.New()
		src = io.TeeReader(f, r.hasher)
	}

	// The BOM goes before the CSV parser sees it, so a quoted first header
	// still parses. The digest above already covers it.
	br := bufio.NewReader(src)
	if b, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(b, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	if comma != 0 {
		cr.Comma = comma
	}
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true
	r.cr = cr

	hdr, err := cr.Read()
	if err != nil {
		f.Close()
		if err == io.EOF {
			return nil, fmt.Errorf("input %s is empty", path)
		}
		return nil, fmt.Errorf("reading header: %w", err)
	}
	headers := make([]string, len(hdr))
	for i, h := range hdr {
		headers[i] = strings.TrimSpace(h)
	}
	r.Headers = headers
	r.line = 1
	return r, nil
}

// Next returns the next record. Records the CSV parser rejects come back as
// errors wrapping schema.ErrMalformedRow so callers can skip them; the
// returned slice is reused by the following call.
func (r *Reader) Next() ([]string, error) {
	rec, err := r.cr.Read()
	if err != nil {
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			r.line = pe.StartLine
			return nil, fmt.Errorf("line %d: %w: %v", pe.StartLine, schema.ErrMalformedRow, pe.Err)
		}
		return nil, err
	}
	r.line, _ = r.cr.FieldPos(0)
	return rec, nil
}

// Line is the input line on which the last record started.
func (r *Reader) Line() int { return r.line }

// Digest returns the xxh3-64 hash of the bytes read, in hex.
func (r *Reader) Digest() string {
	if r.hasher == nil {
		return ""
	}
	return fmt.Sprintf("%016x", r.hasher.Sum64())
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.f.Close()
}
