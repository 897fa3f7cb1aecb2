package lister_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/zynqcloud/gunkan-blob/internal/basedir"
	"github.com/zynqcloud/gunkan-blob/internal/blobid"
	"github.com/zynqcloud/gunkan-blob/internal/lister"
	"github.com/zynqcloud/gunkan-blob/internal/pathmap"
)

func seed(t *testing.T, root string, m pathmap.Mapper, ids ...blobid.ID) {
	t.Helper()
	for _, id := range ids {
		rel := m.Relative(id)
		full := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
		if err := os.WriteFile(full, []byte("x"), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
}

func openBase(t *testing.T) (*basedir.Handle, string) {
	t.Helper()
	dir := t.TempDir()
	h, err := basedir.Open(dir)
	if err != nil {
		t.Fatalf("basedir.Open: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h, dir
}

func TestListSortedAcrossShards(t *testing.T) {
	base, root := openBase(t)
	m := pathmap.Mapper{Width: 2, Depth: 1}
	ids := []blobid.ID{
		{Content: "bbaa", Part: "00", Position: 0},
		{Content: "aabb", Part: "00", Position: 0},
		{Content: "aaaa", Part: "00", Position: 0},
	}
	seed(t, root, m, ids...)

	l := lister.Lister{Base: base, Width: 2, Depth: 1}
	got, err := l.List("", 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}

	want := []string{"aaaa,00,0", "aabb,00,0", "bbaa,00,0"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestListResumesFromMarker(t *testing.T) {
	base, root := openBase(t)
	m := pathmap.Mapper{Width: 2, Depth: 1}
	ids := []blobid.ID{
		{Content: "aaaa", Part: "00", Position: 0},
		{Content: "aabb", Part: "00", Position: 0},
		{Content: "bbaa", Part: "00", Position: 0},
	}
	seed(t, root, m, ids...)

	l := lister.Lister{Base: base, Width: 2, Depth: 1}
	got, err := l.List("aaaa,00,0", 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"aabb,00,0", "bbaa,00,0"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestListRespectsMax(t *testing.T) {
	base, root := openBase(t)
	m := pathmap.Mapper{Width: 2, Depth: 1}
	ids := []blobid.ID{
		{Content: "aaaa", Part: "00", Position: 0},
		{Content: "aabb", Part: "00", Position: 0},
		{Content: "aacc", Part: "00", Position: 0},
	}
	seed(t, root, m, ids...)

	l := lister.Lister{Base: base, Width: 2, Depth: 1}
	got, err := l.List("", 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
}

func TestListSkipsNonBlobFiles(t *testing.T) {
	base, root := openBase(t)
	if err := os.MkdirAll(filepath.Join(root, "aa"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "aa", "junk"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "aa", ".hidden,00,0"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	l := lister.Lister{Base: base, Width: 2, Depth: 1}
	got, err := l.List("", 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %v, want empty", got)
	}
}
