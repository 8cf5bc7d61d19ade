package commands

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/embedtree/pkg/multimap"
)

// ErrEmptySnapshot is returned when a snapshot holds no map.
var ErrEmptySnapshot = errors.New("snapshot holds no map")

// NewSnapshotCommand creates the snapshot command group.
func NewSnapshotCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Save and load compressed arena snapshots",
	}

	cmd.AddCommand(newSnapshotSaveCommand(), newSnapshotLoadCommand())

	return cmd
}

func newSnapshotSaveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "save path key[=value]...",
		Short: "Hibernate a multimap built from the arguments and write it to path",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := parseItems(args[1:])
			if err != nil {
				return err
			}

			arena := multimap.NewArena()
			m := multimap.New(arena)

			for _, item := range items {
				m.Insert(item)
			}

			values, positions := m.Len(), m.Positions()

			err = arena.Hibernate()
			if err != nil {
				return fmt.Errorf("hibernate: %w", err)
			}

			compressed := arena.HibernatedBytes()

			err = arena.Serialize(args[0])
			if err != nil {
				return fmt.Errorf("serialize: %w", err)
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "saved %s values under %s keys to %s (%s compressed)\n",
				humanize.Comma(int64(values)), humanize.Comma(int64(positions)), args[0],
				humanize.Bytes(uint64(compressed))) //nolint:gosec // sizes are never negative.

			return err
		},
	}
}

func newSnapshotLoadCommand() *cobra.Command {
	opts := dumpOptions{format: FormatText}

	cmd := &cobra.Command{
		Use:   "load path",
		Short: "Restore a snapshot, verify every map in it and print them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := opts.validate()
			if err != nil {
				return err
			}

			arena := multimap.NewArena()

			err = arena.Deserialize(args[0])
			if err != nil {
				return fmt.Errorf("deserialize: %w", err)
			}

			err = arena.Boot()
			if err != nil {
				return fmt.Errorf("boot: %w", err)
			}

			sentinels := arena.Sentinels()
			if len(sentinels) == 0 {
				return fmt.Errorf("%w: %s", ErrEmptySnapshot, args[0])
			}

			maps := make([]*multimap.Map, len(sentinels))

			for idx, sentinel := range sentinels {
				maps[idx], err = multimap.Attach(arena, sentinel)
				if err != nil {
					return err
				}
			}

			return dumpMaps(cmd.OutOrStdout(), opts, maps...)
		},
	}

	addDumpFlags(cmd, &opts)

	return cmd
}
