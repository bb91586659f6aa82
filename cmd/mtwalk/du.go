package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mtwalk/mtwalk/internal/browse"
	"github.com/mtwalk/mtwalk/internal/exclude"
	"github.com/mtwalk/mtwalk/internal/history"
	"github.com/mtwalk/mtwalk/internal/sizefmt"
	"github.com/mtwalk/mtwalk/internal/walk"

	tea "github.com/charmbracelet/bubbletea"
)

var duCmd = &cobra.Command{
	Use:   "du [path...]",
	Short: "Summarize directory space usage",
	RunE:  runDu,
}

var (
	duWorkers       int
	duExclude       []string
	duApparentSize  bool
	duAllFiles      bool
	duSummarize     bool
	duTotal         bool
	duOneFileSystem bool
	duHuman         bool
	duBlockUnit     string
	duHistoryPath   string
	duBrowse        bool
)

func init() {
	duCmd.Flags().IntVarP(&duWorkers, "workers", "j", 4, "number of worker goroutines")
	duCmd.Flags().StringSliceVarP(&duExclude, "exclude", "e", nil, "exclude paths matching this pattern (repeatable)")
	duCmd.Flags().BoolVarP(&duApparentSize, "apparent-size", "A", false, "print apparent sizes rather than disk usage")
	duCmd.Flags().BoolVarP(&duAllFiles, "all", "a", false, "print size for all files, not just directories")
	duCmd.Flags().BoolVarP(&duSummarize, "summarize", "s", false, "only display a total for each argument")
	duCmd.Flags().BoolVarP(&duTotal, "total", "c", false, "produce a grand total")
	duCmd.Flags().BoolVarP(&duOneFileSystem, "one-file-system", "x", false, "do not cross filesystem boundaries")
	duCmd.Flags().BoolVarP(&duHuman, "human-readable", "H", false, "print sizes in human readable format")
	duCmd.Flags().StringVar(&duBlockUnit, "block-unit", "k", "block unit when not human readable: b|k|m")
	duCmd.Flags().StringVar(&duHistoryPath, "history", "", "append this run's totals to a scan history database")
	duCmd.Flags().BoolVar(&duBrowse, "browse", false, "launch the interactive browser after the scan completes")
}

type fileData struct {
	size  int64
	files int64
	dirs  int64
}

func runDu(cmd *cobra.Command, args []string) error {
	if duAllFiles && duSummarize {
		return fmt.Errorf("cannot both summarize and show all entries")
	}
	if len(args) == 0 {
		args = []string{"."}
	}

	excl := exclude.New()
	for _, p := range duExclude {
		if err := excl.Add(p); err != nil {
			return fmt.Errorf("invalid exclude pattern %q: %w", p, err)
		}
	}

	unit := sizefmt.Kibibytes
	switch duBlockUnit {
	case "b":
		unit = sizefmt.Bytes
	case "m":
		unit = sizefmt.Mebibytes
	}
	if duHuman {
		unit = sizefmt.Human
	}
	mode := sizefmt.DiskUsage
	if duApparentSize {
		mode = sizefmt.ApparentSize
	}
	fmtr := sizefmt.Formatter{Unit: unit, Mode: mode}

	log := newLogger()
	var grandTotal int64
	failed := false

	var hstore *history.Store
	if duHistoryPath != "" {
		var err error
		hstore, err = history.Open(duHistoryPath)
		if err != nil {
			return err
		}
		defer hstore.Close()
	}

	for _, root := range args {
		started := time.Now()
		data, fc, dc, ec, root, tree, err := duOne(root, excl, mode, log)
		if err != nil {
			return err
		}
		if ec > 0 {
			failed = true
		}
		if data != nil {
			grandTotal += data.size
		}
		if duSummarize && data != nil {
			fmt.Printf("%s\t%s\n", fmtr.Format(data.size), root)
		}
		if hstore != nil {
			var apparent, disk int64
			if mode == sizefmt.ApparentSize {
				apparent = data.size
			} else {
				disk = data.size
			}
			if _, err := hstore.Record(history.Scan{
				Root: root, ApparentSize: apparent, DiskUsage: disk,
				FileCount: fc, DirCount: dc, ErrorCount: int64(ec),
				StartedAt: started, Duration: time.Since(started),
			}); err != nil {
				log.Warn("history record failed", "error", err)
			}
		}
		if duBrowse && tree != nil {
			if _, err := tea.NewProgram(browse.New(tree), tea.WithAltScreen()).Run(); err != nil {
				log.Warn("browser exited with error", "error", err)
			}
		}
	}

	if duTotal {
		fmt.Printf("%s\ttotal\n", fmtr.Format(grandTotal))
	}
	if failed {
		return fmt.Errorf("du: one or more errors occurred")
	}
	return nil
}

func duOne(root string, excl *exclude.Set, mode sizefmt.Mode, log interface {
	Error(msg string, args ...any)
}) (*fileData, int64, int64, int, string, *browse.Node, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, 0, 0, 0, root, nil, err
	}

	// fileCount, dirCount, errCount, and nodeByPath are written from the
	// DirExit/File/Error hooks below, which run concurrently across
	// independent subtrees (the traversal core holds no lock over
	// callback-produced state), so every access to them is guarded by mu.
	var mu sync.Mutex
	var fileCount, dirCount int64
	var errCount int

	sizeOf := func(st os.FileInfo) int64 {
		if mode == sizefmt.ApparentSize {
			return st.Size()
		}
		if sysSt, ok := st.Sys().(*syscall.Stat_t); ok {
			return sizefmt.BlockBytes(sysSt.Blocks)
		}
		return st.Size()
	}

	var nodeByPath = map[string]*browse.Node{}

	hooks := walk.Hooks{
		DirEnter: func(path string, st os.FileInfo, parentCont any) (bool, any) {
			rel := relOrDot(absRoot, path)
			if excl.Match(rel, true) {
				return false, nil
			}
			return true, nil
		},
		DirExit: func(path string, st os.FileInfo, cont any, entries []walk.Entry) any {
			var size int64
			var files, dirs int64
			node := &browse.Node{Name: filepath.Base(path), Path: path, IsDir: true}

			mu.Lock()
			for _, e := range entries {
				fd, ok := e.Data.(*fileData)
				if !ok || fd == nil {
					continue
				}
				size += fd.size
				files += fd.files
				dirs += fd.dirs
				if child, ok := nodeByPath[filepath.Join(path, e.Name)]; ok {
					node.Children = append(node.Children, child)
				}
			}
			dirs++
			dirCount++
			node.ApparentSize, node.DiskUsage = applySize(mode, size)
			node.FileCount, node.DirCount = files, dirs
			nodeByPath[path] = node
			mu.Unlock()

			if !duSummarize {
				fmtrLine := sizefmt.Formatter{Unit: duLineUnit(), Mode: mode}
				fmt.Printf("%s\t%s\n", fmtrLine.Format(size), path)
			}
			return &fileData{size: size, files: files, dirs: dirs}
		},
		File: func(path string, st os.FileInfo) any {
			rel := relOrDot(absRoot, path)
			if excl.Match(rel, false) {
				return nil
			}
			size := sizeOf(st)
			node := &browse.Node{Name: filepath.Base(path), Path: path}
			node.ApparentSize, node.DiskUsage = applySize(mode, size)

			mu.Lock()
			nodeByPath[path] = node
			fileCount++
			mu.Unlock()

			if duAllFiles {
				fmtrLine := sizefmt.Formatter{Unit: duLineUnit(), Mode: mode}
				fmt.Printf("%s\t%s\n", fmtrLine.Format(size), path)
			}
			return &fileData{size: size, files: 1}
		},
		Error: func(path string, st os.FileInfo, cont any) any {
			log.Error("du", "path", path, "error", "stat or read failed")
			mu.Lock()
			errCount++
			mu.Unlock()
			return nil
		},
	}

	cfg := walk.DefaultConfig().WithWorkers(duWorkers).WithOneFileSystem(duOneFileSystem)
	v, err := walk.Traverse(*cfg, absRoot, hooks)
	if err != nil {
		return nil, 0, 0, 0, root, nil, err
	}

	fd, _ := v.(*fileData)
	if fd == nil {
		fd = &fileData{}
	}
	tree := nodeByPath[absRoot]
	return fd, fileCount, dirCount, errCount, root, tree, nil
}

func applySize(mode sizefmt.Mode, size int64) (apparent, disk int64) {
	if mode == sizefmt.ApparentSize {
		return size, 0
	}
	return 0, size
}

func duLineUnit() sizefmt.Unit {
	if duHuman {
		return sizefmt.Human
	}
	switch duBlockUnit {
	case "b":
		return sizefmt.Bytes
	case "m":
		return sizefmt.Mebibytes
	default:
		return sizefmt.Kibibytes
	}
}

func relOrDot(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return "."
	}
	return strings.TrimPrefix(rel, "./")
}
