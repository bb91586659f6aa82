// Package sizefmt renders byte counts the way the `mtdu` family of tools
// reports them: as raw bytes, as a fixed block count, or as a
// human-readable magnitude string.
package sizefmt

import "github.com/dustin/go-humanize"

// Unit selects how a byte count is rendered.
type Unit int

const (
	// Bytes renders the raw count with no scaling, mtdu's "-b".
	Bytes Unit = iota
	// Kibibytes renders ceil(bytes/1024), mtdu's "-k" (the default POSIX
	// du block size).
	Kibibytes
	// Mebibytes renders ceil(bytes/1024/1024), mtdu's "-m".
	Mebibytes
	// Human renders a short magnitude-suffixed string via go-humanize,
	// mtdu's "-h".
	Human
)

// Mode selects which of apparent size or on-disk usage a Formatter
// reports, mirroring mtdu's "-A" flag (apparent size overrides the
// default block-based disk usage).
type Mode int

const (
	// DiskUsage reports space actually allocated on disk (the default).
	DiskUsage Mode = iota
	// ApparentSize reports the logical byte length of files.
	ApparentSize
)

// Formatter renders byte counts consistently for one invocation of a
// size-reporting command.
type Formatter struct {
	Unit Unit
	Mode Mode
}

// New returns a Formatter defaulting to disk usage rendered in kibibytes,
// matching POSIX du's defaults.
func New() Formatter {
	return Formatter{Unit: Kibibytes, Mode: DiskUsage}
}

// Format renders n bytes according to f.Unit.
func (f Formatter) Format(n int64) string {
	if n < 0 {
		n = 0
	}
	switch f.Unit {
	case Bytes:
		return humanize.Comma(n)
	case Mebibytes:
		return humanize.Comma(ceilDiv(n, 1024*1024))
	case Human:
		return humanize.IBytes(uint64(n))
	default: // Kibibytes
		return humanize.Comma(ceilDiv(n, 1024))
	}
}

// BlockBytes converts a st_blocks-style 512-byte block count (as reported
// by syscall.Stat_t.Blocks) into a byte count, the unit a Formatter in
// DiskUsage mode expects.
func BlockBytes(blocks int64) int64 {
	return blocks * 512
}

func ceilDiv(n, d int64) int64 {
	if n <= 0 {
		return 0
	}
	return (n + d - 1) / d
}
