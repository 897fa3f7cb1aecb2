package blobid_test

import (
	"testing"

	"github.com/zynqcloud/gunkan-blob/internal/blobid"
)

func TestDecodeValid(t *testing.T) {
	cases := []struct {
		in   string
		want blobid.ID
	}{
		{"deadbeef,01,0", blobid.ID{Content: "deadbeef", Part: "01", Position: 0}},
		{"ff,00,0", blobid.ID{Content: "ff", Part: "00", Position: 0}},
		{",,0", blobid.ID{Content: "", Part: "", Position: 0}},
		{"abc,def,42", blobid.ID{Content: "abc", Part: "def", Position: 42}},
	}
	for _, c := range cases {
		got, err := blobid.Decode(c.in)
		if err != nil {
			t.Fatalf("Decode(%q): %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("Decode(%q) = %+v, want %+v", c.in, got, c.want)
		}
	}
}

func TestDecodeMalformed(t *testing.T) {
	cases := []string{
		"abc",
		"abc,de",
		"abc,de,x",
		"abc,xyz,0",
		"abc,de,",
	}
	for _, in := range cases {
		if _, err := blobid.Decode(in); err == nil {
			t.Errorf("Decode(%q): expected error, got nil", in)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	ids := []blobid.ID{
		{Content: "deadBEEF", Part: "01", Position: 0},
		{Content: "", Part: "", Position: 12345},
		{Content: "a", Part: "", Position: 0},
	}
	for _, id := range ids {
		got, err := blobid.Decode(id.Encode())
		if err != nil {
			t.Fatalf("round trip %+v: %v", id, err)
		}
		if got != id {
			t.Errorf("round trip %+v: got %+v", id, got)
		}
	}
}
