// Package config parses the CLI surface (spec.md §6.4) into an immutable
// Config value read by every other package at startup and never again.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
)

// Default hash geometry and worker-pool sizes, used when the corresponding
// flag is omitted.
const (
	DefaultHashWidth = 3
	DefaultHashDepth = 1
	DefaultWorkers   = 4
)

// Config is the fully parsed, validated CLI surface. Every field is set
// once at startup and never mutated afterward — the "config: immutable
// after startup" shared resource spec.md §5 names.
type Config struct {
	Namespace string
	Endpoint  string
	BaseDir   string

	Quiet   bool
	Verbose bool
	Daemon  bool
	Init    bool
	PIDFile string

	HashWidth uint
	HashDepth uint

	WorkersIngress  int
	WorkersBERead   int
	WorkersBEWrite  int
	WorkersRTRead   int
	WorkersRTWrite  int

	Fallocate     bool
	FadviseUpload bool
	FsyncData     bool
	FsyncDir      bool
}

// ErrHelpRequested is returned by Parse when -h/--help was given; callers
// should print usage and exit 0, not treat it as a startup failure.
var ErrHelpRequested = errors.New("config: help requested")

// Parse parses args (normally os.Args[1:]) into a Config. errOut receives
// flag.FlagSet's usage text on -h/--help or a parse error.
func Parse(args []string, errOut io.Writer) (*Config, error) {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.Usage = func() {
		fmt.Fprintln(errOut, "usage: server [OPTIONS] NAMESPACE ENDPOINT BASEDIR")
		fs.PrintDefaults()
	}

	cfg := &Config{}
	fs.BoolVar(&cfg.Quiet, "q", false, "quiet: log at warning level and above")
	fs.BoolVar(&cfg.Quiet, "quiet", false, "quiet: log at warning level and above")
	fs.BoolVar(&cfg.Verbose, "v", false, "verbose: log at debug level")
	fs.BoolVar(&cfg.Verbose, "verbose", false, "verbose: log at debug level")
	fs.BoolVar(&cfg.Daemon, "d", false, "daemonize (warning: unsupported on this platform, logged and ignored)")
	fs.BoolVar(&cfg.Daemon, "daemon", false, "daemonize (warning: unsupported on this platform, logged and ignored)")
	fs.BoolVar(&cfg.Init, "i", false, "create the base directory hierarchy and exit")
	fs.BoolVar(&cfg.Init, "init", false, "create the base directory hierarchy and exit")
	fs.StringVar(&cfg.PIDFile, "p", "", "write pid to PATH at startup, remove at clean shutdown")
	fs.StringVar(&cfg.PIDFile, "pid", "", "write pid to PATH at startup, remove at clean shutdown")

	hashWidth := fs.Uint("hash-width", DefaultHashWidth, "characters per hashed directory slice")
	hashDepth := fs.Uint("hash-depth", DefaultHashDepth, "number of hashed directory slices")
	workersIngress := fs.Int("workers-ingress", DefaultWorkers, "acceptor batch size hint (unused beyond validation)")
	workersBERead := fs.Int("workers-be-read", DefaultWorkers, "best-effort read executor queue depth hint")
	workersBEWrite := fs.Int("workers-be-write", DefaultWorkers, "best-effort write executor queue depth hint")
	workersRTRead := fs.Int("workers-rt-read", DefaultWorkers, "real-time read executor queue depth hint")
	workersRTWrite := fs.Int("workers-rt-write", DefaultWorkers, "real-time write executor queue depth hint")

	fs.BoolVar(&cfg.Fallocate, "fallocate", false, "speculatively preallocate upload temp files")
	fs.BoolVar(&cfg.FadviseUpload, "fadvise-upload", false, "POSIX_FADV_DONTNEED the written range after commit")
	fs.BoolVar(&cfg.FsyncData, "fsync-data", false, "fdatasync the file after commit")
	fs.BoolVar(&cfg.FsyncDir, "fsync-dir", false, "fdatasync the parent directory after commit")

	help := fs.Bool("h", false, "show this help message")
	helpLong := fs.Bool("help", false, "show this help message")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, ErrHelpRequested
		}
		return nil, err
	}
	if *help || *helpLong {
		fs.Usage()
		return nil, ErrHelpRequested
	}

	cfg.HashWidth = *hashWidth
	cfg.HashDepth = *hashDepth
	cfg.WorkersIngress = *workersIngress
	cfg.WorkersBERead = *workersBERead
	cfg.WorkersBEWrite = *workersBEWrite
	cfg.WorkersRTRead = *workersRTRead
	cfg.WorkersRTWrite = *workersRTWrite

	rest := fs.Args()
	if len(rest) != 3 {
		fs.Usage()
		return nil, fmt.Errorf("config: expected NAMESPACE ENDPOINT BASEDIR, got %d positional arguments", len(rest))
	}
	cfg.Namespace, cfg.Endpoint, cfg.BaseDir = rest[0], rest[1], rest[2]

	return cfg, nil
}

// DiskReady reports whether the filesystem holding path has at least
// minFreeBytes available, and the bytes actually available. Backs the
// supplemented /healthz/ready check (SPEC_FULL.md §3).
func DiskReady(path string, minFreeBytes uint64) (ready bool, avail uint64) {
	avail, _ = diskStats(path)
	return avail >= minFreeBytes, avail
}
