package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/vmkit/metaspace"
	"github.com/vmkit/metaspace/chunklevel"
)

func init() {
	rootCmd.AddCommand(newGeometryCmd())
}

func newGeometryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "geometry",
		Short: "Print the chunk level table and effective settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printGeometry()
		},
	}
}

func printGeometry() error {
	// Validate the flag combination the same way run would.
	s := settingsFromFlags()
	ms, err := metaspace.New(s, nil)
	if err != nil {
		return err
	}
	pr := message.NewPrinter(language.English)

	fmt.Printf("word size: %d bytes\n", chunklevel.BytesPerWord)
	pr.Printf("commit granule: %v words (%s)\n", s.CommitGranuleWords,
		humanize.IBytes(uint64(s.CommitGranuleWords)*chunklevel.BytesPerWord))
	fmt.Println()
	fmt.Println("level  chunk size        words")
	for l := chunklevel.RootChunkLevel; l <= chunklevel.HighestLevel; l++ {
		pr.Printf("%-6v %-17s %v\n", l,
			humanize.IBytes(uint64(chunklevel.ByteSize(l))), chunklevel.WordSize(l))
	}
	fmt.Println()
	fmt.Println(ms.Statistics())
	return nil
}
