package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mtwalk/mtwalk/internal/exclude"
	"github.com/mtwalk/mtwalk/internal/walk"
)

const (
	defaultFactorGT = 10
	defaultFactorLT = 100
)

var outliersCmd = &cobra.Command{
	Use:   "outliers [path...]",
	Short: "Report files and subdirectories far from their siblings' average size",
	RunE:  runOutliers,
}

var (
	outWorkers int
	outExclude []string
	outGreater float64
	outLess    float64
	outUseLess bool
)

func init() {
	outliersCmd.Flags().IntVarP(&outWorkers, "workers", "j", 4, "number of worker goroutines")
	outliersCmd.Flags().StringSliceVarP(&outExclude, "exclude", "e", nil, "exclude paths matching this pattern (repeatable)")

	outliersCmd.Flags().Float64VarP(&outGreater, "g", "g", defaultFactorGT, "flag entries at least this many times the sibling average")
	outliersCmd.Flags().Lookup("g").NoOptDefVal = fmt.Sprintf("%g", defaultFactorGT)

	outliersCmd.Flags().Float64VarP(&outLess, "l", "l", defaultFactorLT, "flag entries at most 1/this many times the sibling average")
	outliersCmd.Flags().Lookup("l").NoOptDefVal = fmt.Sprintf("%g", defaultFactorLT)
}

// outlierData mirrors mtoutliers.c's struct traverse_data: size is this
// entry's total (apparent) size including its own subtree, unreportedSize
// is the portion of that total not already accounted for by a nested
// outlier reported further down the tree.
type outlierData struct {
	size           int64
	unreportedSize int64
}

func runOutliers(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("outliers: path not given")
	}
	outUseLess = cmd.Flags().Changed("l") && !cmd.Flags().Changed("g")

	excl := exclude.New()
	for _, p := range outExclude {
		if err := excl.Add(p); err != nil {
			return fmt.Errorf("invalid exclude pattern %q: %w", p, err)
		}
	}

	factor := outGreater
	if outUseLess {
		factor = outLess
	}

	log := newLogger()
	failed := false

	for _, root := range args {
		if err := outliersOne(root, excl, factor, outUseLess, log); err != nil {
			log.Error("outliers", "path", root, "error", err)
			failed = true
		}
	}
	if failed {
		return fmt.Errorf("outliers: one or more errors occurred")
	}
	return nil
}

func outliersOne(root string, excl *exclude.Set, factor float64, lessThan bool, log interface {
	Error(msg string, args ...any)
}) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return err
	}

	hooks := walk.Hooks{
		DirEnter: func(path string, st os.FileInfo, parentCont any) (bool, any) {
			rel := relOrDot(absRoot, path)
			if excl.Match(rel, true) {
				return false, nil
			}
			return true, nil
		},
		DirExit: func(path string, st os.FileInfo, cont any, entries []walk.Entry) any {
			var size, unreported int64
			var count int
			for _, e := range entries {
				d, ok := e.Data.(*outlierData)
				if !ok || d == nil {
					continue
				}
				size += d.size
				unreported += d.unreportedSize
				count++
			}

			if size > 0 && count > 0 {
				if lessThan {
					cutoff := float64(size) / (factor * float64(count))
					for _, e := range entries {
						d, ok := e.Data.(*outlierData)
						if !ok || d == nil {
							continue
						}
						if float64(d.size) <= cutoff {
							fmt.Printf("%12d %s\n", d.size, filepath.Join(path, e.Name))
						}
					}
				} else {
					cutoff := factor * float64(size) / float64(count)
					for _, e := range entries {
						d, ok := e.Data.(*outlierData)
						if !ok || d == nil {
							continue
						}
						if float64(d.unreportedSize) >= cutoff {
							unreported -= d.unreportedSize
							fmt.Printf("%12d %s\n", d.size, filepath.Join(path, e.Name))
						}
					}
				}
			}

			return &outlierData{size: size, unreportedSize: unreported}
		},
		File: func(path string, st os.FileInfo) any {
			if !st.Mode().IsRegular() {
				return nil
			}
			rel := relOrDot(absRoot, path)
			if excl.Match(rel, false) {
				return nil
			}
			return &outlierData{size: st.Size(), unreportedSize: st.Size()}
		},
		Error: func(path string, st os.FileInfo, cont any) any {
			log.Error("outliers", "path", path, "error", "stat or read failed")
			return nil
		},
	}

	_, err = walk.Traverse(walk.Config{
		Workers: outWorkers,
		Sort:    true,
	}, absRoot, hooks)
	return err
}
