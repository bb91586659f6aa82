package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mtwalk/mtwalk/internal/walk"
)

var rmCmd = &cobra.Command{
	Use:   "rm [path...]",
	Short: "Remove a directory tree bottom-up, many files in parallel",
	RunE:  runRm,
}

var (
	rmWorkers int
	rmVerbose bool
)

func init() {
	rmCmd.Flags().IntVarP(&rmWorkers, "workers", "j", 4, "number of worker goroutines")
	rmCmd.Flags().BoolVarP(&rmVerbose, "verbose", "v", false, "print each path as it is removed")
}

// removeFailed is published in place of the original C traverse_*
// functions' self-pointer sentinel: the original reuses a function
// pointer as a non-nil "this entry still has content or failed to
// remove" marker. Go has no equivalent reusable value, so this package
// uses an explicit zero-size sentinel type instead.
type removeFailed struct{}

func runRm(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("rm: path not given")
	}

	log := newLogger()
	failed := false

	for _, root := range args {
		v, err := walk.Traverse(walk.Config{
			Workers:   rmWorkers,
			FileTasks: true,
			Sort:      true,
		}, root, walk.Hooks{
			DirExit: func(path string, st os.FileInfo, cont any, entries []walk.Entry) any {
				for _, e := range entries {
					if e.Data != nil {
						return removeFailed{}
					}
				}
				if err := os.Remove(path); err != nil {
					log.Error("rm", "path", path, "error", err)
					return removeFailed{}
				}
				if rmVerbose {
					fmt.Printf("removed directory: `%s'\n", path)
				}
				return nil
			},
			File: func(path string, st os.FileInfo) any {
				if err := os.Remove(path); err != nil {
					log.Error("rm", "path", path, "error", err)
					return removeFailed{}
				}
				if rmVerbose {
					fmt.Printf("removed `%s'\n", path)
				}
				return nil
			},
			Error: func(path string, st os.FileInfo, cont any) any {
				log.Error("rm", "path", path, "error", "stat or read failed")
				return removeFailed{}
			},
		})
		if err != nil {
			log.Error("rm", "path", root, "error", err)
			failed = true
			continue
		}
		if v != nil {
			failed = true
		}
	}

	if failed {
		return fmt.Errorf("rm: one or more paths could not be fully removed")
	}
	return nil
}
