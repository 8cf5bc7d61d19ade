// Package main provides the entry point for the embedtree CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/embedtree/cmd/embedtree/commands"
	"github.com/Sumatoshi-tech/embedtree/pkg/version"
)

func main() {
	version.InitBinaryVersion()

	rootCmd := &cobra.Command{
		Use:   "embedtree",
		Short: "Intrusive red-black tree multimaps with hibernating arenas",
		Long: `embedtree exercises ordered uint32 multimaps built on an intrusive
red-black tree.

Commands:
  bench     Randomized workload over sharded arenas
  dump      Print the tree of a multimap built from arguments
  snapshot  Save and load compressed arena snapshots`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(commands.NewBenchCommand())
	rootCmd.AddCommand(commands.NewDumpCommand())
	rootCmd.AddCommand(commands.NewSnapshotCommand())
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "embedtree", version.String())
		},
	}
}
