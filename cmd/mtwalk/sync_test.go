package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRunSyncCopiesTreeAndPrunesAbsent(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()

	writeFile(t, filepath.Join(src, "a.txt"), 10)
	if err := os.Mkdir(filepath.Join(src, "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(src, "sub", "b.txt"), 20)

	// a destination-only file that should be pruned once mtimes diverge.
	if err := os.Mkdir(dst, 0755); err != nil && !os.IsExist(err) {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dst, "stale.txt"), 1)
	// give src a strictly newer mtime than dst so the delete pass runs.
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(src, future, future); err != nil {
		t.Fatal(err)
	}

	syncWorkers = 2
	syncVerbose = false
	syncNoDelete = false

	if err := runSync(syncCmd, []string{src, dst}); err != nil {
		t.Fatalf("runSync: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dst, "a.txt")); err != nil {
		t.Fatalf("expected a.txt copied: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dst, "sub", "b.txt")); err != nil {
		t.Fatalf("expected sub/b.txt copied: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dst, "stale.txt")); !os.IsNotExist(err) {
		t.Fatalf("expected stale.txt to be pruned, stat err=%v", err)
	}

	srcData, err := os.ReadFile(filepath.Join(src, "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	dstData, err := os.ReadFile(filepath.Join(dst, "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if len(srcData) != len(dstData) {
		t.Fatalf("expected copied file to match size: src=%d dst=%d", len(srcData), len(dstData))
	}
}

func TestRunSyncNoDeleteKeepsExtraFiles(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "a.txt"), 10)
	writeFile(t, filepath.Join(dst, "extra.txt"), 1)

	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(src, future, future); err != nil {
		t.Fatal(err)
	}

	syncWorkers = 2
	syncNoDelete = true
	defer func() { syncNoDelete = false }()

	if err := runSync(syncCmd, []string{src, dst}); err != nil {
		t.Fatalf("runSync: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dst, "extra.txt")); err != nil {
		t.Fatalf("expected extra.txt preserved under --no-delete: %v", err)
	}
}

func TestRunSyncPreservesHardlinks(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "a.txt"), 10)
	if err := os.Link(filepath.Join(src, "a.txt"), filepath.Join(src, "b.txt")); err != nil {
		t.Skipf("hardlinks unsupported on this filesystem: %v", err)
	}

	syncWorkers = 2
	syncNoDelete = false
	syncHardlinks = true
	defer func() { syncHardlinks = false }()

	if err := runSync(syncCmd, []string{src, dst}); err != nil {
		t.Fatalf("runSync: %v", err)
	}

	aStat, err := os.Stat(filepath.Join(dst, "a.txt"))
	if err != nil {
		t.Fatalf("expected a.txt copied: %v", err)
	}
	bStat, err := os.Stat(filepath.Join(dst, "b.txt"))
	if err != nil {
		t.Fatalf("expected b.txt copied: %v", err)
	}
	if !os.SameFile(aStat, bStat) {
		t.Fatalf("expected dst a.txt and b.txt to share an inode (hardlink preserved)")
	}
}

func TestRunSyncWithoutHardlinksCopiesSeparately(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "a.txt"), 10)
	if err := os.Link(filepath.Join(src, "a.txt"), filepath.Join(src, "b.txt")); err != nil {
		t.Skipf("hardlinks unsupported on this filesystem: %v", err)
	}

	syncWorkers = 2
	syncNoDelete = false
	syncHardlinks = false

	if err := runSync(syncCmd, []string{src, dst}); err != nil {
		t.Fatalf("runSync: %v", err)
	}

	aStat, err := os.Stat(filepath.Join(dst, "a.txt"))
	if err != nil {
		t.Fatalf("expected a.txt copied: %v", err)
	}
	bStat, err := os.Stat(filepath.Join(dst, "b.txt"))
	if err != nil {
		t.Fatalf("expected b.txt copied: %v", err)
	}
	if os.SameFile(aStat, bStat) {
		t.Fatalf("expected separate copies when hardlink preservation is off")
	}
}

func TestRunSyncRecreatesSymlink(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "target.txt"), 5)
	if err := os.Symlink("target.txt", filepath.Join(src, "link")); err != nil {
		t.Fatal(err)
	}

	syncWorkers = 2
	syncNoDelete = false

	if err := runSync(syncCmd, []string{src, dst}); err != nil {
		t.Fatalf("runSync: %v", err)
	}

	got, err := os.Readlink(filepath.Join(dst, "link"))
	if err != nil {
		t.Fatalf("expected symlink recreated: %v", err)
	}
	if got != "target.txt" {
		t.Fatalf("expected symlink target 'target.txt', got %q", got)
	}
}
