package commands

import (
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/embedtree/pkg/multimap"
)

// NewDumpCommand creates the dump command.
func NewDumpCommand() *cobra.Command {
	opts := dumpOptions{format: FormatText}

	cmd := &cobra.Command{
		Use:   "dump key[=value]...",
		Short: "Build a multimap from the arguments and print its tree",
		Long: `Build a multimap from the arguments and print its red-black tree.

Repeated keys form duplicate groups; their values are listed newest first.
A bare key uses its argument position as value.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := opts.validate()
			if err != nil {
				return err
			}

			items, err := parseItems(args)
			if err != nil {
				return err
			}

			m := multimap.New(multimap.NewArena())
			for _, item := range items {
				m.Insert(item)
			}

			err = m.Verify()
			if err != nil {
				return err
			}

			return dumpMaps(cmd.OutOrStdout(), opts, m)
		},
	}

	addDumpFlags(cmd, &opts)

	return cmd
}

func addDumpFlags(cmd *cobra.Command, opts *dumpOptions) {
	cmd.Flags().StringVar(&opts.format, "format", FormatText, "Output format: text, yaml, json")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colored tree output")
	cmd.Flags().IntVar(&opts.maxValues, "max-values", 0, "Values listed per key in text output (0 = all)")
}
