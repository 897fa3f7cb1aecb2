//go:build !linux

package config

// diskStats is not implemented on non-Linux platforms and returns (0, 0).
// DiskReady does not tell this apart from a full disk: it reports not
// ready for any positive minFreeBytes.
func diskStats(_ string) (avail, total uint64) { return 0, 0 }
