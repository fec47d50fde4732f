package main

import (
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/vmkit/metaspace"
	"github.com/vmkit/metaspace/chunklevel"
)

var (
	runArenas       int
	runAllocs       int
	runMaxWords     int
	runDeallocPct   int
	runClassPct     int
	runDestroyOrder string
	runSeed         int64
	runReclaim      bool
)

func init() {
	cmd := newRunCmd()
	cmd.Flags().IntVar(&runArenas, "arenas", 64, "Number of owner arenas")
	cmd.Flags().IntVar(&runAllocs, "allocs", 500, "Allocations per arena")
	cmd.Flags().IntVar(&runMaxWords, "max-words", 1024, "Maximum allocation size in words")
	cmd.Flags().IntVar(&runDeallocPct, "dealloc-pct", 10, "Percentage of blocks deallocated early")
	cmd.Flags().IntVar(&runClassPct, "class-pct", 0, "Percentage of allocations routed to the class category")
	cmd.Flags().StringVar(&runDestroyOrder, "destroy-order", "fifo", "Arena destruction order: fifo, lifo or random")
	cmd.Flags().Int64Var(&runSeed, "seed", 1, "Workload random seed")
	cmd.Flags().BoolVar(&runReclaim, "reclaim", true, "Run the maintenance sweep after destruction")
	rootCmd.AddCommand(cmd)
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Drive a synthetic allocation workload",
		Long: `The run command creates many owner arenas, fills them with random-
sized allocations, destroys them in the chosen order and reports the
allocator's state at each phase.

Example:
  msbench run --arenas 256 --allocs 1000
  msbench run --commit-cap-mb 64 --uncommit --destroy-order random`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkload()
		},
	}
}

type workloadReport struct {
	allocated    int64 // words requested
	allocations  int64
	deallocated  int64
	failed       int64
	elapsedAlloc time.Duration
}

func runWorkload() error {
	var logger *slog.Logger
	if verboseOutput {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	ms, err := metaspace.New(settingsFromFlags(), logger)
	if err != nil {
		return err
	}
	rng := rand.New(rand.NewSource(runSeed))
	pr := message.NewPrinter(language.English)

	pairs := make([]*metaspace.ArenaPair, runArenas)
	for i := range pairs {
		pairs[i] = ms.NewArenaPair()
	}

	var rep workloadReport
	start := time.Now()
	for _, p := range pairs {
		type block struct {
			addr  uintptr
			words int
			class bool
		}
		var live []block
		for i := 0; i < runAllocs; i++ {
			words := 1 + rng.Intn(runMaxWords)
			class := rng.Intn(100) < runClassPct
			addr, err := p.Allocate(words, class)
			if err != nil {
				// Budget pressure is an expected outcome, not a
				// benchmark failure.
				rep.failed++
				continue
			}
			rep.allocations++
			rep.allocated += int64(words)
			live = append(live, block{addr, words, class})
			if runDeallocPct > 0 && rng.Intn(100) < runDeallocPct && len(live) > 0 {
				victim := rng.Intn(len(live))
				b := live[victim]
				p.Deallocate(b.addr, b.words, b.class)
				live = append(live[:victim], live[victim+1:]...)
				rep.deallocated += int64(b.words)
			}
		}
	}
	rep.elapsedAlloc = time.Since(start)

	pr.Printf("allocated %v blocks / %v words (%s), %v freed early, %v failed in %v\n",
		rep.allocations, rep.allocated,
		humanize.IBytes(uint64(rep.allocated)*chunklevel.BytesPerWord),
		rep.deallocated, rep.failed, rep.elapsedAlloc.Round(time.Millisecond))
	fmt.Println()
	fmt.Println("after fill:")
	fmt.Println(ms.Statistics())

	destroyPairs(pairs, rng)
	fmt.Println()
	fmt.Println("after destruction:")
	fmt.Println(ms.Statistics())

	if runReclaim {
		purged := ms.Reclaim()
		fmt.Println()
		pr.Printf("after reclaim (%v nodes unmapped):\n", purged)
		fmt.Println(ms.Statistics())
	}
	return nil
}

func destroyPairs(pairs []*metaspace.ArenaPair, rng *rand.Rand) {
	switch runDestroyOrder {
	case "lifo":
		for i := len(pairs) - 1; i >= 0; i-- {
			pairs[i].Destroy()
		}
	case "random":
		rng.Shuffle(len(pairs), func(i, j int) { pairs[i], pairs[j] = pairs[j], pairs[i] })
		fallthrough
	default: // fifo
		for _, p := range pairs {
			p.Destroy()
		}
	}
}
