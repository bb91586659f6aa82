package walk

import (
	"syscall"

	"github.com/mtwalk/mtwalk/internal/pool"
)

// taskKind classifies a pool task for priority ordering. The zero value
// must be the highest-priority kind (dirExit) so comparePriority's rank
// table stays simple to read.
type taskKind int

const (
	kindDirExit taskKind = iota
	kindFile
	kindDirEnter
)

// poolArg is the argument every task is submitted with. In FIFO mode the
// pool never inspects it; in priority mode it drives comparePriority.
type poolArg struct {
	kind taskKind
	path string
	run  func()
}

// submit wraps pool.Submit so callers only ever hand over a closure and
// a classification; the pool itself is oblivious to what "kind" means.
func (tr *traversal) submit(kind taskKind, path string, run func()) error {
	arg := &poolArg{kind: kind, path: path, run: run}
	return tr.pool.Submit(func(a any) { a.(*poolArg).run() }, arg)
}

// comparePriority implements the spec's priority discipline: dir-exit
// before file before dir-enter, ties broken by reverse lexicographic
// path order (deeper/later paths drain first).
func comparePriority(a, b any) int {
	pa, pb := a.(*poolArg), b.(*poolArg)
	if pa.kind != pb.kind {
		if pa.kind < pb.kind {
			return 1
		}
		return -1
	}
	switch {
	case pa.path > pb.path:
		return 1
	case pa.path < pb.path:
		return -1
	default:
		return 0
	}
}

// newPool constructs the pool backing one traversal: priority mode when
// Config.Sort is set (so siblings drain in a stable, exit-first order),
// FIFO otherwise. The traversal's own pool is always unbounded — Traverse
// takes no qmax parameter, matching the public traverse() surface in the
// spec, which only the standalone thread pool primitive exposes.
func newPool(cfg Config) workPool {
	if cfg.Sort {
		return pool.NewPriority(cfg.Workers, 0, comparePriority)
	}
	return pool.New(cfg.Workers, 0)
}

// statDev extracts the device ID from a *syscall.Stat_t, when the
// platform's os.FileInfo.Sys() exposes one (true on Linux and other
// Unix-like systems, which is the only target this package supports —
// mirroring dug/internal/scan/worker.go's unguarded syscall.Stat_t
// assertion).
func statDev(st interface {
	Sys() any
}) (uint64, bool) {
	sys, ok := st.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, false
	}
	return uint64(sys.Dev), true
}
