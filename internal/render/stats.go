package render

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/Sumatoshi-tech/embedtree/pkg/multimap"
)

const percentageValue = 100

// ShardStats is one row of the statistics table.
type ShardStats struct {
	Arena  multimap.Stats
	Shard  int
	Maps   int
	Values int
}

// StatsTable writes a table with one row per shard and a totals footer.
func StatsTable(w io.Writer, rows []ShardStats) error {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.DrawBorder = false
	tbl.Style().Options.SeparateColumns = false

	tbl.AppendHeader(table.Row{"Shard", "Maps", "Values", "Entries", "Used", "Free", "Fragmentation", "Hibernated"})

	var total ShardStats

	for _, row := range rows {
		tbl.AppendRow(table.Row{
			row.Shard,
			humanize.Comma(int64(row.Maps)),
			humanize.Comma(int64(row.Values)),
			humanize.Comma(int64(row.Arena.Entries)),
			humanize.Comma(int64(row.Arena.Used)),
			humanize.Comma(int64(row.Arena.Free)),
			fragmentation(row.Arena),
			hibernated(row.Arena),
		})

		total.Maps += row.Maps
		total.Values += row.Values
		total.Arena.Entries += row.Arena.Entries
		total.Arena.Used += row.Arena.Used
		total.Arena.Free += row.Arena.Free
		total.Arena.HibernatedBytes += row.Arena.HibernatedBytes
	}

	tbl.AppendFooter(table.Row{
		"Total " + strconv.Itoa(len(rows)),
		humanize.Comma(int64(total.Maps)),
		humanize.Comma(int64(total.Values)),
		humanize.Comma(int64(total.Arena.Entries)),
		humanize.Comma(int64(total.Arena.Used)),
		humanize.Comma(int64(total.Arena.Free)),
		fragmentation(total.Arena),
		humanize.Bytes(uint64(total.Arena.HibernatedBytes)), //nolint:gosec // sizes are never negative.
	})

	_, err := fmt.Fprintln(w, tbl.Render())
	if err != nil {
		return fmt.Errorf("write stats table: %w", err)
	}

	return nil
}

// Phase is one row of the phase table.
type Phase struct {
	Name    string
	Elapsed time.Duration
}

// PhaseTable writes the duration of each phase and their sum.
func PhaseTable(w io.Writer, phases []Phase) error {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.DrawBorder = false
	tbl.Style().Options.SeparateColumns = false

	tbl.AppendHeader(table.Row{"Phase", "Elapsed"})

	var total time.Duration

	for _, phase := range phases {
		tbl.AppendRow(table.Row{phase.Name, phase.Elapsed.Round(time.Microsecond)})
		total += phase.Elapsed
	}

	tbl.AppendFooter(table.Row{"Total", total.Round(time.Microsecond)})

	_, err := fmt.Fprintln(w, tbl.Render())
	if err != nil {
		return fmt.Errorf("write phase table: %w", err)
	}

	return nil
}

func fragmentation(stats multimap.Stats) string {
	if stats.Entries == 0 {
		return "-"
	}

	return fmt.Sprintf("%.1f%%", float64(stats.Free)*percentageValue/float64(stats.Entries))
}

func hibernated(stats multimap.Stats) string {
	if !stats.Hibernated {
		return "-"
	}

	return humanize.Bytes(uint64(stats.HibernatedBytes)) //nolint:gosec // sizes are never negative.
}
