package pathmap_test

import (
	"testing"

	"github.com/zynqcloud/gunkan-blob/internal/blobid"
	"github.com/zynqcloud/gunkan-blob/internal/pathmap"
)

func TestRelativeExample(t *testing.T) {
	m := pathmap.Mapper{Width: 3, Depth: 1}
	id := blobid.ID{Content: "abcd1234", Part: "xx", Position: 0}
	got := m.Relative(id)
	want := "abc/d1234,xx,0"
	if got != want {
		t.Errorf("Relative() = %q, want %q", got, want)
	}
}

func TestTempSuffix(t *testing.T) {
	m := pathmap.Mapper{Width: 1, Depth: 1}
	id := blobid.ID{Content: "aa", Part: "00", Position: 0}
	got := m.Temp(id)
	want := "a/a,00,0@"
	if got != want {
		t.Errorf("Temp() = %q, want %q", got, want)
	}
}

func TestInjectiveAcrossDifferentIDs(t *testing.T) {
	m := pathmap.Mapper{Width: 2, Depth: 2}
	ids := []blobid.ID{
		{Content: "deadbeef", Part: "01", Position: 0},
		{Content: "deadbeef", Part: "02", Position: 0},
		{Content: "deadbeef", Part: "01", Position: 1},
		{Content: "deadbeee", Part: "01", Position: 0},
	}
	seen := map[string]bool{}
	for _, id := range ids {
		p := m.Relative(id)
		if seen[p] {
			t.Errorf("collision on %+v -> %q", id, p)
		}
		seen[p] = true
	}
}

func TestDepthGreaterThanContentLength(t *testing.T) {
	m := pathmap.Mapper{Width: 4, Depth: 3}
	id := blobid.ID{Content: "ab", Part: "00", Position: 0}
	got := m.Relative(id)
	want := "ab///,00,0"
	if got != want {
		t.Errorf("Relative() = %q, want %q", got, want)
	}
}
