package difffmt

import (
	"encoding/json"
	"fmt"
	"io"

	"capnpdiff/internal/change"
	"capnpdiff/internal/schema"
	"capnpdiff/internal/source"
)

// LocationJSON представляет местоположение изменения в файле.
type LocationJSON struct {
	File      string `json:"file"`
	StartByte uint32 `json:"start_byte"`
	EndByte   uint32 `json:"end_byte"`
	StartLine uint32 `json:"start_line,omitempty"`
	StartCol  uint32 `json:"start_col,omitempty"`
	EndLine   uint32 `json:"end_line,omitempty"`
	EndCol    uint32 `json:"end_col,omitempty"`
	Snippet   string `json:"snippet,omitempty"`
}

// ChangeJSON is one change record in JSON form.
type ChangeJSON struct {
	Kind     string       `json:"kind"`
	Breakage string       `json:"breakage"`
	Message  string       `json:"message"`
	RefKind  string       `json:"ref_kind"`
	RefID    string       `json:"ref_id"`
	Name     string       `json:"name,omitempty"`
	OldName  string       `json:"old_name,omitempty"`
	Ordinal  *uint32      `json:"ordinal,omitempty"`
	Target   string       `json:"target,omitempty"`
	Reason   string       `json:"reason,omitempty"`
	Location LocationJSON `json:"location"`
}

// FileJSON is one file-table entry.
type FileJSON struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

// SummaryJSON counts changes per breakage level.
type SummaryJSON struct {
	Total int `json:"total"`
	None  int `json:"none"`
	Code  int `json:"code"`
	Wire  int `json:"wire"`
}

// DiffJSON is the root JSON document.
type DiffJSON struct {
	Changes []ChangeJSON `json:"changes"`
	Files   []FileJSON   `json:"files"`
	Summary SummaryJSON  `json:"summary"`
}

// BuildDiffOutput assembles the JSON document without serializing it.
// fs may be nil when positions and snippets are not requested.
func BuildDiffOutput(d *change.Diff, fs *source.FileSet, opts JSONOpts) DiffJSON {
	paths := make(map[schema.NodeID]string, len(d.Files))
	out := DiffJSON{
		Changes: make([]ChangeJSON, 0, len(d.Changes)),
		Files:   make([]FileJSON, 0, len(d.Files)),
	}
	for _, f := range d.Files {
		paths[f.ID] = f.Path
		out.Files = append(out.Files, FileJSON{ID: nodeIDString(f.ID), Path: f.Path})
	}

	for _, c := range d.Changes {
		cj := ChangeJSON{
			Kind:     c.Kind.String(),
			Breakage: c.Breakage.String(),
			Message:  c.Describe(),
			RefKind:  c.Ref.Kind.String(),
			RefID:    nodeIDString(c.Ref.ID),
			Name:     c.Ref.Name,
			OldName:  c.OldName,
			Target:   c.Target,
			Reason:   c.Reason,
			Location: LocationJSON{
				File:      paths[c.File],
				StartByte: c.Span.Start,
				EndByte:   c.Span.End,
			},
		}
		if c.Ref.Kind.Member() {
			ord := c.Ref.Ordinal
			cj.Ordinal = &ord
		}
		if fs != nil && (opts.IncludePositions || opts.IncludeSnippets) {
			fillPositions(&cj.Location, c.Span, fs, opts)
		}

		switch c.Breakage {
		case change.BreakNone:
			out.Summary.None++
		case change.BreakCode:
			out.Summary.Code++
		case change.BreakWire:
			out.Summary.Wire++
		}
		out.Summary.Total++
		out.Changes = append(out.Changes, cj)
	}
	return out
}

func fillPositions(loc *LocationJSON, span source.Span, fs *source.FileSet, opts JSONOpts) {
	f := fs.Get(span.File)
	if f == nil {
		return
	}
	start, end := fs.Resolve(span)
	if opts.IncludePositions {
		loc.StartLine = start.Line
		loc.StartCol = start.Col
		loc.EndLine = end.Line
		loc.EndCol = end.Col
	}
	if opts.IncludeSnippets {
		loc.Snippet = f.GetLine(start.Line)
	}
}

// JSON renders the diff as an indented JSON document.
func JSON(w io.Writer, d *change.Diff, fs *source.FileSet, opts JSONOpts) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(BuildDiffOutput(d, fs, opts))
}

func nodeIDString(id schema.NodeID) string {
	return fmt.Sprintf("0x%016x", uint64(id))
}
