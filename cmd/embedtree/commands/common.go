// Package commands implements the embedtree CLI subcommands.
package commands

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Sumatoshi-tech/embedtree/internal/render"
	"github.com/Sumatoshi-tech/embedtree/pkg/multimap"
	"github.com/Sumatoshi-tech/embedtree/pkg/observability"
)

// Output formats of dump and snapshot load.
const (
	FormatText = "text"
	FormatYAML = "yaml"
	FormatJSON = "json"
)

var (
	// ErrBadItem is returned for arguments that are not key or key=value.
	ErrBadItem = errors.New("item must be key or key=value with uint32 numbers")
	// ErrUnknownFormat is returned for an unsupported --format.
	ErrUnknownFormat = errors.New("unknown format")
)

// observabilityInit matches observability.Init so tests can substitute it.
type observabilityInit func(cfg observability.Config, opts ...observability.Option) (observability.Providers, error)

// parseItems turns key or key=value arguments into items. A bare key takes
// its argument index as value.
func parseItems(args []string) ([]multimap.Item, error) {
	items := make([]multimap.Item, 0, len(args))

	for idx, arg := range args {
		rawKey, rawValue, hasValue := strings.Cut(arg, "=")

		key, err := strconv.ParseUint(rawKey, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrBadItem, arg)
		}

		value := uint64(idx)

		if hasValue {
			value, err = strconv.ParseUint(rawValue, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("%w: %q", ErrBadItem, arg)
			}
		}

		items = append(items, multimap.Item{Key: uint32(key), Value: uint32(value)})
	}

	return items, nil
}

type dumpOptions struct {
	format    string
	noColor   bool
	maxValues int
}

func (opts dumpOptions) validate() error {
	switch opts.format {
	case FormatText, FormatYAML, FormatJSON:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, opts.format)
	}

	return nil
}

func dumpMaps(w io.Writer, opts dumpOptions, maps ...*multimap.Map) error {
	switch opts.format {
	case FormatYAML:
		return render.YAML(w, maps...)
	case FormatJSON:
		return render.JSON(w, maps...)
	}

	for idx, m := range maps {
		if len(maps) > 1 {
			header := fmt.Sprintf("# map %d: %d values, %d keys\n", m.Sentinel(), m.Len(), m.Positions())
			if idx > 0 {
				header = "\n" + header
			}

			_, err := io.WriteString(w, header)
			if err != nil {
				return fmt.Errorf("write header: %w", err)
			}
		}

		err := render.Tree(w, m, render.TreeOptions{NoColor: opts.noColor, MaxValues: opts.maxValues})
		if err != nil {
			return fmt.Errorf("render map %d: %w", m.Sentinel(), err)
		}
	}

	return nil
}
