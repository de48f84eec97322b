package schema

import (
	"strconv"
	"strings"
)

// Delimiter separates values inside a multi-valued cell.
const Delimiter = "|"

// SplitMulti splits a multi-valued cell, trims every segment and drops the
// empty ones. "A | B|C " yields A, B, C; "" yields nothing.
func SplitMulti(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, seg := range strings.Split(s, Delimiter) {
		if seg = strings.TrimSpace(seg); seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

// SplitCodes splits a multi-valued cell of integer codes. Segments that are
// not base-10 integers are skipped and counted.
func SplitCodes(s string) (codes []int64, skipped int) {
	for _, seg := range SplitMulti(s) {
		n, err := strconv.ParseInt(seg, 10, 64)
		if err != nil {
			skipped++
			continue
		}
		codes = append(codes, n)
	}
	return codes, skipped
}
