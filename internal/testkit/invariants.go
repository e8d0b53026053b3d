package testkit

import (
	"fmt"

	"capnpdiff/internal/change"
	"capnpdiff/internal/schema"
)

// CheckDiffInvariants runs the output laws every packaged diff must
// hold:
// 1) every change references a file present in the file table
// 2) changes are sorted by (file path, start byte)
// 3) the file table itself is sorted by path
func CheckDiffInvariants(d *change.Diff) error {
	if d == nil {
		return fmt.Errorf("nil diff")
	}

	paths := make(map[schema.NodeID]string, len(d.Files))
	for i, f := range d.Files {
		paths[f.ID] = f.Path
		if i > 0 && d.Files[i-1].Path > f.Path {
			return fmt.Errorf("file table unsorted at %q", f.Path)
		}
	}

	prevPath := ""
	prevStart := uint32(0)
	for i := range d.Changes {
		c := &d.Changes[i]
		path, ok := paths[c.File]
		if !ok {
			return fmt.Errorf("change %s references file %#x missing from table", c.Kind, uint64(c.File))
		}
		if path < prevPath || (path == prevPath && c.Span.Start < prevStart) {
			return fmt.Errorf("changes unsorted at index %d (%s:%d after %s:%d)", i, path, c.Span.Start, prevPath, prevStart)
		}
		prevPath, prevStart = path, c.Span.Start
	}
	return nil
}

// CheckBreakageTable verifies the fixed kind-to-breakage rows that do
// not depend on context.
func CheckBreakageTable(d *change.Diff) error {
	for i := range d.Changes {
		c := &d.Changes[i]
		want, fixed := fixedBreakage(c.Kind)
		if fixed && c.Breakage != want {
			return fmt.Errorf("%s has breakage %s, want %s", c.Kind, c.Breakage, want)
		}
	}
	return nil
}

// fixedBreakage returns the mandated breakage for kinds with only one
// legal value. node_removed and node_type_changed depend on context and
// are not checked here.
func fixedBreakage(k change.Kind) (change.Breakage, bool) {
	switch k {
	case change.KindNodeAdded, change.KindAnnotationTargetAdded:
		return change.BreakNone, true
	case change.KindNodeRenamed, change.KindConstValueChanged, change.KindAnnotationTargetRemoved:
		return change.BreakCode, true
	case change.KindNodeIDChanged, change.KindMemberOrdinalChanged,
		change.KindFieldDefaultChanged, change.KindUnsupported:
		return change.BreakWire, true
	}
	return change.BreakNone, false
}
