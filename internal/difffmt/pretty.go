package difffmt

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"capnpdiff/internal/change"
	"capnpdiff/internal/schema"
	"capnpdiff/internal/source"
)

var (
	wireColor = color.New(color.FgRed, color.Bold)
	codeColor = color.New(color.FgYellow, color.Bold)
	noneColor = color.New(color.FgGreen)
	dimColor  = color.New(color.Faint)
)

// Pretty renders the diff for humans, one block per change:
//
//	<path>:<line>:<col>: <BREAKAGE> <kind>: <message>
//	    N | <source line>
//	      | ^~~~~
//
// Snippets require a FileSet with the referenced sources loaded; without
// one only the header lines are printed.
func Pretty(w io.Writer, d *change.Diff, fs *source.FileSet, opts PrettyOpts) error {
	paths := make(map[schema.NodeID]string, len(d.Files))
	for _, f := range d.Files {
		paths[f.ID] = f.Path
	}

	for i := range d.Changes {
		if err := prettyChange(w, &d.Changes[i], paths, fs, opts); err != nil {
			return err
		}
	}

	return prettySummary(w, d, opts)
}

func prettyChange(w io.Writer, c *change.Change, paths map[schema.NodeID]string, fs *source.FileSet, opts PrettyOpts) error {
	path := paths[c.File]
	if opts.PathMode == PathModeBasename {
		path = filepath.Base(path)
	}

	pos := ""
	var f *source.File
	var start source.LineCol
	if fs != nil {
		if f = fs.Get(c.Span.File); f != nil {
			start, _ = fs.Resolve(c.Span)
			pos = fmt.Sprintf(":%d:%d", start.Line, start.Col)
		}
	}

	label := c.Breakage.String()
	if opts.Color {
		label = breakageColor(c.Breakage).Sprint(strings.ToUpper(label))
	} else {
		label = strings.ToUpper(label)
	}

	if _, err := fmt.Fprintf(w, "%s%s: %s %s: %s\n", path, pos, label, c.Kind, c.Describe()); err != nil {
		return err
	}

	if opts.ShowSnippets && f != nil && !c.Span.Empty() {
		if err := prettySnippet(w, f, c.Span, start, opts); err != nil {
			return err
		}
	}
	return nil
}

func prettySnippet(w io.Writer, f *source.File, span source.Span, start source.LineCol, opts PrettyOpts) error {
	firstLine := start.Line
	if opts.Context > 0 && firstLine > uint32(opts.Context) {
		firstLine -= uint32(opts.Context)
	} else if opts.Context > 0 {
		firstLine = 1
	}
	lastLine := start.Line + uint32(opts.Context)
	if max := f.LineCount(); lastLine > max {
		lastLine = max
	}

	gutter := len(fmt.Sprintf("%d", lastLine))
	for ln := firstLine; ln <= lastLine; ln++ {
		text := f.GetLine(ln)
		if _, err := fmt.Fprintf(w, "  %*d | %s\n", gutter, ln, text); err != nil {
			return err
		}
		if ln != start.Line {
			continue
		}

		// Подчёркиваем диапазон только в его первой строке.
		prefix := ""
		if int(start.Col) > 1 {
			prefix = text[:min(int(start.Col)-1, len(text))]
		}
		pad := runewidth.StringWidth(prefix)
		width := int(span.Len())
		if rest := len(text) - len(prefix); width > rest {
			width = rest
		}
		if width < 1 {
			width = 1
		}
		marker := "^" + strings.Repeat("~", width-1)
		if opts.Color {
			marker = dimColor.Sprint(marker)
		}
		if _, err := fmt.Fprintf(w, "  %*s | %s%s\n", gutter, "", strings.Repeat(" ", pad), marker); err != nil {
			return err
		}
	}
	return nil
}

func prettySummary(w io.Writer, d *change.Diff, opts PrettyOpts) error {
	if len(d.Changes) == 0 {
		_, err := fmt.Fprintln(w, "no changes")
		return err
	}

	var none, code, wire int
	for i := range d.Changes {
		switch d.Changes[i].Breakage {
		case change.BreakNone:
			none++
		case change.BreakCode:
			code++
		case change.BreakWire:
			wire++
		}
	}

	parts := make([]string, 0, 3)
	add := func(n int, label string, c *color.Color) {
		if n == 0 {
			return
		}
		s := fmt.Sprintf("%d %s", n, label)
		if opts.Color {
			s = c.Sprint(s)
		}
		parts = append(parts, s)
	}
	add(wire, "wire-breaking", wireColor)
	add(code, "code-breaking", codeColor)
	add(none, "compatible", noneColor)

	_, err := fmt.Fprintf(w, "%d changes: %s\n", len(d.Changes), strings.Join(parts, ", "))
	return err
}

func breakageColor(b change.Breakage) *color.Color {
	switch b {
	case change.BreakWire:
		return wireColor
	case change.BreakCode:
		return codeColor
	default:
		return noneColor
	}
}
