package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vmkit/metaspace"
	"github.com/vmkit/metaspace/chunklevel"
)

var (
	// Global flags: the Settings surface.
	commitCapMB   int64
	granuleKB     int
	classSpaceMB  int
	uncommit      bool
	enlarge       bool
	poisonBlocks  bool
	verboseOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "msbench",
	Short: "Exercise and measure the metaspace allocator",
	Long: `msbench drives synthetic metadata allocation workloads against a
metaspace context and reports usage, fragmentation and freelist
composition. It exists to compare Settings presets and to reproduce
allocator behavior outside a host runtime.`,
	Version: "0.1.0",
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.Int64Var(&commitCapMB, "commit-cap-mb", 0, "Commit budget in MiB (0 = unlimited)")
	pf.IntVar(&granuleKB, "granule-kb", 64, "Commit granule in KiB")
	pf.IntVar(&classSpaceMB, "class-space-mb", 0, "Bounded class space in MiB (0 = off)")
	pf.BoolVar(&uncommit, "uncommit", false, "Uncommit returned chunks")
	pf.BoolVar(&enlarge, "enlarge", true, "Allow in-place chunk enlargement")
	pf.BoolVar(&poisonBlocks, "poison", false, "Poison deallocated blocks")
	pf.BoolVarP(&verboseOutput, "verbose", "v", false, "Enable verbose output")
}

func settingsFromFlags() metaspace.Settings {
	const wordsPerKiB = 1024 / chunklevel.BytesPerWord
	return metaspace.Settings{
		CommitGranuleWords: granuleKB * wordsPerKiB,
		MaxCommittedWords:  commitCapMB * 1024 * wordsPerKiB,
		ClassSpaceWords:    classSpaceMB * 1024 * wordsPerKiB,
		UncommitOnReturn:   uncommit,
		EnlargeInPlace:     enlarge,
		PoisonBlocks:       poisonBlocks,
	}
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
