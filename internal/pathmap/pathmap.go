// Package pathmap maps a blob identifier to its relative location inside
// the hashed directory hierarchy, given a configured slice width and depth.
package pathmap

import (
	"strconv"
	"strings"

	"github.com/zynqcloud/gunkan-blob/internal/blobid"
)

// Mapper is a pure function from BlobId to relative filesystem path, given
// a fixed hash width/depth. It performs no filesystem I/O.
type Mapper struct {
	Width uint
	Depth uint
}

// Relative returns the "/"-joined relative path of id's final blob file:
// slice(0,W) / slice(W,W) / … / slice((D-1)*W, W) / remainder "," part "," position
func (m Mapper) Relative(id blobid.ID) string {
	content := id.Content

	// Upper bound on output length: D slash-separated width-W slices, the
	// remainder of content, two commas, part, and up to 20 decimal digits.
	estimate := len(content) + int(m.Depth) + 2 + len(id.Part) + 20
	var b strings.Builder
	b.Grow(estimate)

	pos := 0
	for i := uint(0); i < m.Depth; i++ {
		end := pos + int(m.Width)
		if end > len(content) {
			end = len(content)
		}
		b.WriteString(content[pos:end])
		b.WriteByte('/')
		pos = end
	}
	b.WriteString(content[pos:])
	b.WriteByte(',')
	b.WriteString(id.Part)
	b.WriteByte(',')
	b.WriteString(strconv.FormatUint(id.Position, 10))
	return b.String()
}

// TempSuffix is appended to a final path to form the in-progress upload name.
const TempSuffix = "@"

// Temp returns the temporary-file path for id: Relative(id) + "@".
func (m Mapper) Temp(id blobid.ID) string {
	return m.Relative(id) + TempSuffix
}
