// Package blobid parses and formats the three-part blob identifier
// (content, part, position) used throughout the storage service.
package blobid

import (
	"errors"
	"strconv"
	"strings"
)

// ErrMalformed is returned by Decode when the input does not match the
// "content,part,position" grammar or either hex field contains a non-hex
// digit.
var ErrMalformed = errors.New("blobid: malformed id")

// ID is the canonical (content, part, position) address of a blob.
// Content and Part may be empty; Position defaults to 0.
type ID struct {
	Content  string
	Part     string
	Position uint64
}

// Decode parses the canonical external form "content,part,position".
//
// Decoding fails if there are fewer than two commas, the position token is
// empty, or either hex field contains a non-hex digit. It does not fail on
// empty content or part fields.
func Decode(s string) (ID, error) {
	firstComma := strings.IndexByte(s, ',')
	if firstComma < 0 {
		return ID{}, ErrMalformed
	}
	secondComma := strings.IndexByte(s[firstComma+1:], ',')
	if secondComma < 0 {
		return ID{}, ErrMalformed
	}
	secondComma += firstComma + 1

	content := s[:firstComma]
	part := s[firstComma+1 : secondComma]
	posTok := s[secondComma+1:]

	if posTok == "" {
		return ID{}, ErrMalformed
	}
	if !isHex(content) || !isHex(part) {
		return ID{}, ErrMalformed
	}

	var pos uint64
	if posTok == "0" {
		pos = 0
	} else {
		p, err := strconv.ParseUint(posTok, 10, 64)
		if err != nil {
			return ID{}, ErrMalformed
		}
		pos = p
	}

	return ID{Content: content, Part: part, Position: pos}, nil
}

// Encode returns the canonical "content,part,position" form.
func (id ID) Encode() string {
	var b strings.Builder
	b.Grow(len(id.Content) + len(id.Part) + 22)
	b.WriteString(id.Content)
	b.WriteByte(',')
	b.WriteString(id.Part)
	b.WriteByte(',')
	b.WriteString(strconv.FormatUint(id.Position, 10))
	return b.String()
}

// isHex reports whether s matches [0-9A-Fa-f]*, including the empty string.
func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
