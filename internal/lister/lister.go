// Package lister walks the hashed directory hierarchy in sorted order,
// resuming from a marker, to satisfy GET /v1/list/<marker>. spec.md §4.6.
package lister

import (
	"sort"
	"strings"

	"github.com/zynqcloud/gunkan-blob/internal/basedir"
	"github.com/zynqcloud/gunkan-blob/internal/blobid"
)

// Lister is a pure configuration value: the recursive walk it drives has
// no state beyond the directory tree itself and the caller-supplied
// marker/max.
type Lister struct {
	Base  *basedir.Handle
	Width uint
	Depth uint
}

// DefaultMax is the hard cap on ids returned by a single List call,
// matching spec.md §4.6's "max = 1000 lines".
const DefaultMax = 1000

// List returns, in sorted order, every blob id strictly greater than
// marker, stopping once max ids have been collected or the tree is
// exhausted. max<=0 is treated as DefaultMax.
func (l Lister) List(marker string, max int) ([]string, error) {
	if max <= 0 {
		max = DefaultMax
	}
	out := make([]string, 0, max)
	err := l.walk(".", "", marker, max, &out)
	return out, err
}

// walk implements one recursive step of spec.md §4.6's algorithm over the
// directory at dirRel (relative to l.Base), whose accumulated id prefix
// (the hash slices read so far, without slashes) is prefix.
func (l Lister) walk(dirRel, prefix, marker string, max int, out *[]string) error {
	if len(*out) >= max {
		return nil
	}

	dir, err := l.Base.OpenDir(dirRel)
	if err != nil {
		return err
	}
	entries, err := dir.ReadDir(-1)
	dir.Close()
	if err != nil {
		return err
	}

	var files, subdirs []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if e.IsDir() {
			if uint(len(name)) == l.Width {
				subdirs = append(subdirs, name)
			}
			continue
		}
		full := prefix + name
		if uint(len(full)) < l.Width+1 {
			continue
		}
		if _, derr := blobid.Decode(full); derr == nil {
			files = append(files, full)
		}
	}

	sort.Strings(files)
	for _, f := range files {
		if len(*out) >= max {
			return nil
		}
		if f > marker {
			*out = append(*out, f)
		}
	}

	sort.Strings(subdirs)
	for _, d := range subdirs {
		if len(*out) >= max {
			return nil
		}
		if full := prefix + d; marker != "" && full <= marker && !strings.HasPrefix(marker, full) {
			continue
		}
		childRel := d
		if dirRel != "." {
			childRel = dirRel + "/" + d
		}
		if err := l.walk(childRel, prefix+d, marker, max, out); err != nil {
			return err
		}
	}
	return nil
}
