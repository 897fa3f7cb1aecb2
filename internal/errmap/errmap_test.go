package errmap_test

import (
	"fmt"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/zynqcloud/gunkan-blob/internal/errmap"
)

func TestStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{unix.EINVAL, 400},
		{unix.ENOENT, 404},
		{unix.ENOTDIR, 404},
		{unix.EISDIR, 502},
		{unix.EBUSY, 503},
		{unix.EPERM, 403},
		{unix.EACCES, 403},
		{unix.EROFS, 403},
		{unix.EEXIST, 409},
		{unix.ENOSPC, 500},
		{fmt.Errorf("wrapped: %w", unix.ENOENT), 404},
		{fmt.Errorf("opaque failure"), 500},
	}
	for _, c := range cases {
		if got := errmap.Status(c.err); got != c.want {
			t.Errorf("Status(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}
