// Package render formats multimaps and arena statistics for terminals and
// machine-readable dumps.
package render

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/Sumatoshi-tech/embedtree/pkg/multimap"
	"github.com/Sumatoshi-tech/embedtree/pkg/rbtree"
)

const (
	branchMid  = "├─"
	branchLast = "└─"
	indentMid  = "│  "
	indentLast = "   "
)

// TreeOptions control Tree.
type TreeOptions struct {
	// NoColor prints red positions without escape sequences.
	NoColor bool
	// MaxValues limits the values listed per key. Zero lists all of them.
	MaxValues int
}

// Tree writes the shape of m, one position per line in pre-order, with the
// values of each key newest first. Red positions are highlighted.
func Tree(w io.Writer, m *multimap.Map, opts TreeOptions) error {
	red := color.New(color.FgRed, color.Bold)
	black := color.New(color.Bold)

	if opts.NoColor {
		red.DisableColor()
		black.DisableColor()
	}

	printer := &treePrinter{w: w, arena: m.Arena(), opts: opts, red: red, black: black}

	root := rbtree.Root(m.Arena(), m.Sentinel())
	if root == rbtree.Nil {
		_, err := fmt.Fprintln(w, "(empty)")

		return err
	}

	printer.walk(root, "", "")

	return printer.err
}

type treePrinter struct {
	w     io.Writer
	arena *multimap.Arena
	red   *color.Color
	black *color.Color
	err   error
	opts  TreeOptions
}

func (p *treePrinter) walk(pos rbtree.Ref, prefix, label string) {
	if p.err != nil {
		return
	}

	paint := p.black
	if p.arena.Node(pos).Color() == rbtree.Red {
		paint = p.red
	}

	key := strconv.FormatUint(uint64(p.arena.Item(pos).Key), 10)

	_, p.err = fmt.Fprintf(p.w, "%s%s%s %s\n", prefix, label, paint.Sprint(key), p.values(pos))
	if p.err != nil {
		return
	}

	childPrefix := prefix
	if label == branchMid+"L " {
		childPrefix += indentMid
	} else if label != "" {
		childPrefix += indentLast
	}

	left, right := rbtree.Left(p.arena, pos), rbtree.Right(p.arena, pos)

	if left != rbtree.Nil {
		leftLabel := branchLast + "L "
		if right != rbtree.Nil {
			leftLabel = branchMid + "L "
		}

		p.walk(left, childPrefix, leftLabel)
	}

	if right != rbtree.Nil {
		p.walk(right, childPrefix, branchLast+"R ")
	}
}

func (p *treePrinter) values(pos rbtree.Ref) string {
	var (
		parts []string
		total int
	)

	for handle := range rbtree.Values(p.arena, pos) {
		total++

		if p.opts.MaxValues > 0 && len(parts) == p.opts.MaxValues {
			continue
		}

		parts = append(parts, strconv.FormatUint(uint64(p.arena.Item(handle).Value), 10))
	}

	if total > len(parts) {
		parts = append(parts, fmt.Sprintf("+%d", total-len(parts)))
	}

	return "[" + strings.Join(parts, " ") + "]"
}
