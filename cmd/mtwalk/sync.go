package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mtwalk/mtwalk/internal/walk"
)

var syncCmd = &cobra.Command{
	Use:   "sync <source> <destination>",
	Short: "One-way sync a directory tree, copying only what changed",
	Args:  cobra.ExactArgs(2),
	RunE:  runSync,
}

var (
	syncWorkers   int
	syncVerbose   bool
	syncNoDelete  bool
	syncHardlinks bool
)

func init() {
	syncCmd.Flags().IntVarP(&syncWorkers, "workers", "j", 4, "number of worker goroutines")
	syncCmd.Flags().BoolVarP(&syncVerbose, "verbose", "v", false, "print each path as it is copied or removed")
	syncCmd.Flags().BoolVarP(&syncNoDelete, "no-delete", "D", false, "do not delete destination entries absent from source")
	syncCmd.Flags().BoolVarP(&syncHardlinks, "hardlinks", "H", false, "preserve hardlinks between files in the same run")
}

// syncCont is deposited by dirEnter and consumed by the matching dirExit:
// it remembers what the destination directory looked like before any
// children were synced, so dirExit can decide whether to prune it and
// whether its mode/owner/mtime still need fixing up.
type syncCont struct {
	dstPath   string
	dstExists bool
	dstStat   os.FileInfo
	srcStat   os.FileInfo
}

func runSync(cmd *cobra.Command, args []string) error {
	srcRoot, dstRoot := args[0], args[1]
	log := newLogger()

	s := &syncer{srcRoot: srcRoot, dstRoot: dstRoot, log: log}
	if syncHardlinks {
		s.hardlinks = make(map[hardlinkKey]string)
	}

	hooks := walk.Hooks{
		DirEnter: s.dirEnter,
		DirExit:  s.dirExit,
		File:     s.file,
		Error: func(path string, st os.FileInfo, cont any) any {
			log.Error("sync", "path", path, "error", "stat or read failed")
			s.setFailed()
			return nil
		},
	}

	_, err := walk.Traverse(walk.Config{
		Workers:   syncWorkers,
		FileTasks: true,
		Sort:      true,
	}, srcRoot, hooks)
	if err != nil {
		return err
	}
	if s.hasFailed() {
		return fmt.Errorf("sync: one or more errors occurred")
	}
	return nil
}

type syncer struct {
	srcRoot string
	dstRoot string
	log     logAdapter

	mu     sync.Mutex
	failed bool

	// hardlinks records, for each source inode already synced this run,
	// the destination path it was copied to, so a later file sharing that
	// inode can be linked to it instead of copied a second time. nil when
	// hardlink preservation is off. hlMu is held from lookup through
	// insert so two workers racing to sync the same inode never both
	// copy it (mirroring the table in mtsync.c's traverse_file).
	hlMu      sync.Mutex
	hardlinks map[hardlinkKey]string
}

// hardlinkKey identifies an inode by the (device, inode) pair stat(2)
// reports; it is only meaningful within a single device, which is all a
// single sync source root ever spans for purposes of this table.
type hardlinkKey struct {
	dev, ino uint64
}

// setFailed records a synchronization failure. Called from the DirEnter,
// DirExit, and File hook closures, which the traversal core may run
// concurrently across independent subtrees (see internal/walk's hook
// contract), so the write is guarded.
func (s *syncer) setFailed() {
	s.mu.Lock()
	s.failed = true
	s.mu.Unlock()
}

func (s *syncer) hasFailed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}

type logAdapter interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

func (s *syncer) dstFor(srcPath string) string {
	rel, err := filepath.Rel(s.srcRoot, srcPath)
	if err != nil || rel == "." {
		return s.dstRoot
	}
	return filepath.Join(s.dstRoot, rel)
}

func (s *syncer) dirEnter(srcPath string, srcStat os.FileInfo, parentCont any) (bool, any) {
	dstPath := s.dstFor(srcPath)

	dstStat, err := os.Lstat(dstPath)
	dstExists := err == nil
	if err != nil && !os.IsNotExist(err) {
		s.log.Error("sync", "path", dstPath, "error", err)
		s.setFailed()
		return false, nil
	}

	if dstExists && !dstStat.IsDir() {
		if err := os.Remove(dstPath); err != nil {
			s.log.Error("sync", "path", dstPath, "error", err)
		}
		dstExists = false
	}

	if !dstExists {
		if err := os.Mkdir(dstPath, 0700); err != nil && !os.IsExist(err) {
			s.log.Error("sync", "path", dstPath, "error", err)
			s.setFailed()
			return false, nil
		}
	}

	return true, &syncCont{dstPath: dstPath, dstExists: dstExists, dstStat: dstStat, srcStat: srcStat}
}

func (s *syncer) dirExit(srcPath string, srcStat os.FileInfo, cont any, entries []walk.Entry) any {
	c, _ := cont.(*syncCont)
	if c == nil {
		return nil
	}

	if !syncNoDelete && c.dstExists && !sameMtime(c.srcStat, c.dstStat) {
		s.pruneAbsent(c.dstPath, entries)
	}

	if !c.dstExists || modeOf(c.srcStat) != modeOf(c.dstStat) {
		if err := os.Chmod(c.dstPath, srcStat.Mode()); err != nil {
			s.log.Error("sync", "path", c.dstPath, "error", err)
			s.setFailed()
			return nil
		}
	}

	if uid, gid, ok := ownerOf(c.srcStat); ok {
		if !c.dstExists || !sameOwner(c.srcStat, c.dstStat) {
			if err := os.Chown(c.dstPath, uid, gid); err != nil {
				s.log.Error("sync", "path", c.dstPath, "error", err)
				s.setFailed()
				return nil
			}
		}
	}

	if err := setTimes(c.dstPath, srcStat, false); err != nil {
		s.log.Error("sync", "path", c.dstPath, "error", err)
		s.setFailed()
	}
	return nil
}

// pruneAbsent removes any entry in dstPath that is not present in
// entries, recursively removing subdirectories.
func (s *syncer) pruneAbsent(dstPath string, entries []walk.Entry) {
	present := make(map[string]bool, len(entries))
	for _, e := range entries {
		present[e.Name] = true
	}

	d, err := os.Open(dstPath)
	if err != nil {
		s.log.Error("sync", "path", dstPath, "error", err)
		s.setFailed()
		return
	}
	names, err := d.Readdirnames(-1)
	d.Close()
	if err != nil {
		s.log.Error("sync", "path", dstPath, "error", err)
		s.setFailed()
		return
	}

	for _, name := range names {
		if present[name] {
			continue
		}
		target := filepath.Join(dstPath, name)
		if syncVerbose {
			fmt.Printf("deleting %s\n", target)
		}
		if err := os.RemoveAll(target); err != nil {
			s.log.Error("sync", "path", target, "error", err)
			s.setFailed()
		}
	}
}

func (s *syncer) file(srcPath string, srcStat os.FileInfo) any {
	dstPath := s.dstFor(srcPath)
	rel := strings.TrimPrefix(s.relPath(srcPath), "/")

	if s.hardlinks != nil && s.syncHardlink(srcPath, dstPath, srcStat, rel) {
		return nil
	}

	switch {
	case srcStat.Mode()&os.ModeSymlink != 0:
		s.syncSymlink(srcPath, dstPath, srcStat, rel)
	case srcStat.Mode().IsRegular():
		s.syncFile(srcPath, dstPath, srcStat, rel)
	default:
		s.log.Error("sync", "path", rel, "error", "unsupported file type")
		s.setFailed()
	}
	return nil
}

// syncHardlink handles a regular source file with more than one link: if
// its inode was already copied earlier in this run, it links dstPath to
// that earlier destination instead of copying the data again; otherwise
// it performs the normal copy and records the destination for later
// files sharing the inode. Returns false for anything that is not a
// multiply-linked regular file, in which case the caller falls through to
// the ordinary copy path. The caller only invokes it when hardlink
// tracking is on.
// Grounded on mtsync.c's traverse_file g_preserve_hardlinks block.
func (s *syncer) syncHardlink(srcPath, dstPath string, srcStat os.FileInfo, rel string) bool {
	if !srcStat.Mode().IsRegular() {
		return false
	}
	sysSt, ok := srcStat.Sys().(*syscall.Stat_t)
	if !ok || sysSt.Nlink <= 1 {
		return false
	}
	key := hardlinkKey{dev: uint64(sysSt.Dev), ino: sysSt.Ino}

	s.hlMu.Lock()
	defer s.hlMu.Unlock()

	if existingDst, ok := s.hardlinks[key]; ok {
		s.linkTo(existingDst, dstPath, rel)
		return true
	}

	// First sighting of this inode this run. Hold hlMu across the copy
	// so a second worker racing on the same inode blocks on the lookup
	// above instead of copying it a second time.
	s.syncFile(srcPath, dstPath, srcStat, rel)
	if !s.hasFailed() {
		s.hardlinks[key] = dstPath
	}
	return true
}

// linkTo makes dstPath a hardlink to existingDst, the destination path
// an earlier file sharing dstPath's source inode was already copied to.
func (s *syncer) linkTo(existingDst, dstPath, rel string) {
	dstStat, err := os.Lstat(dstPath)
	dstExists := err == nil
	if err != nil && !os.IsNotExist(err) {
		s.log.Error("sync", "path", dstPath, "error", err)
		s.setFailed()
		return
	}

	if dstExists {
		if existingStat, err := os.Lstat(existingDst); err == nil && os.SameFile(dstStat, existingStat) {
			return
		}
		if err := os.RemoveAll(dstPath); err != nil {
			s.log.Error("sync", "path", dstPath, "error", err)
			s.setFailed()
			return
		}
	}

	if syncVerbose {
		fmt.Printf("%s\n", rel)
	}
	if err := os.Link(existingDst, dstPath); err != nil {
		s.log.Error("sync", "path", dstPath, "error", err)
		s.setFailed()
	}
}

func (s *syncer) relPath(srcPath string) string {
	rel, err := filepath.Rel(s.srcRoot, srcPath)
	if err != nil {
		return srcPath
	}
	return rel
}

func (s *syncer) syncFile(srcPath, dstPath string, srcStat os.FileInfo, rel string) {
	dstStat, err := os.Lstat(dstPath)
	dstExists := err == nil
	if err != nil && !os.IsNotExist(err) {
		s.log.Error("sync", "path", dstPath, "error", err)
		s.setFailed()
		return
	}

	if dstExists && !dstStat.Mode().IsRegular() {
		if err := os.RemoveAll(dstPath); err != nil {
			s.log.Error("sync", "path", dstPath, "error", err)
		}
		dstExists = false
	}

	needsCopy := !dstExists || srcStat.Size() != dstStat.Size() || !sameMtime(srcStat, dstStat)
	if needsCopy {
		if syncVerbose {
			fmt.Printf("%s\n", rel)
		}
		if err := copyFile(srcPath, dstPath); err != nil {
			s.log.Error("sync", "path", dstPath, "error", err)
			s.setFailed()
			return
		}
		if err := os.Chmod(dstPath, srcStat.Mode()); err != nil {
			s.log.Error("sync", "path", dstPath, "error", err)
			s.setFailed()
			return
		}
		if uid, gid, ok := ownerOf(srcStat); ok {
			if err := os.Chown(dstPath, uid, gid); err != nil {
				s.log.Error("sync", "path", dstPath, "error", err)
				s.setFailed()
				return
			}
		}
		if err := setTimes(dstPath, srcStat, false); err != nil {
			s.log.Error("sync", "path", dstPath, "error", err)
			s.setFailed()
		}
		return
	}

	if modeOf(srcStat) != modeOf(dstStat) {
		if err := os.Chmod(dstPath, srcStat.Mode()); err != nil {
			s.log.Error("sync", "path", dstPath, "error", err)
			s.setFailed()
			return
		}
	}
	if !sameOwner(srcStat, dstStat) {
		if uid, gid, ok := ownerOf(srcStat); ok {
			if err := os.Chown(dstPath, uid, gid); err != nil {
				s.log.Error("sync", "path", dstPath, "error", err)
				s.setFailed()
			}
		}
	}
}

func (s *syncer) syncSymlink(srcPath, dstPath string, srcStat os.FileInfo, rel string) {
	srcTarget, err := os.Readlink(srcPath)
	if err != nil {
		s.log.Error("sync", "path", srcPath, "error", err)
		s.setFailed()
		return
	}

	dstStat, err := os.Lstat(dstPath)
	dstExists := err == nil
	if err != nil && !os.IsNotExist(err) {
		s.log.Error("sync", "path", dstPath, "error", err)
		s.setFailed()
		return
	}

	if dstExists && dstStat.Mode()&os.ModeSymlink == 0 {
		if err := os.RemoveAll(dstPath); err != nil {
			s.log.Error("sync", "path", dstPath, "error", err)
		}
		dstExists = false
	}

	if dstExists {
		dstTarget, err := os.Readlink(dstPath)
		if err != nil || dstTarget != srcTarget {
			os.Remove(dstPath)
			dstExists = false
		}
	}

	if !dstExists {
		if syncVerbose {
			fmt.Printf("%s\n", rel)
		}
		if err := os.Symlink(srcTarget, dstPath); err != nil {
			s.log.Error("sync", "path", dstPath, "error", err)
			s.setFailed()
			return
		}
	}

	if err := setTimes(dstPath, srcStat, true); err != nil {
		s.log.Error("sync", "path", dstPath, "error", err)
		s.setFailed()
	}
}

func copyFile(srcPath, dstPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return err
	}
	return nil
}

func sameMtime(a, b os.FileInfo) bool {
	return a.ModTime().Equal(b.ModTime())
}

func modeOf(st os.FileInfo) os.FileMode {
	return st.Mode().Perm()
}

func ownerOf(st os.FileInfo) (uid, gid int, ok bool) {
	sysSt, ok := st.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0, false
	}
	return int(sysSt.Uid), int(sysSt.Gid), true
}

func sameOwner(a, b os.FileInfo) bool {
	au, ag, aok := ownerOf(a)
	bu, bg, bok := ownerOf(b)
	if !aok || !bok {
		return true
	}
	return au == bu && ag == bg
}

// setTimes applies src's mtime to dst. symlink mtimes cannot be set
// portably without lutimes, so for symlinks this is always a no-op.
func setTimes(path string, src os.FileInfo, symlink bool) error {
	if symlink {
		return nil
	}
	return os.Chtimes(path, src.ModTime(), src.ModTime())
}
