package change

import (
	"fmt"
	"sort"

	"capnpdiff/internal/schema"
)

// Bag accumulates changes in traversal order. The differ emits freely;
// Package restores the output ordering afterwards.
type Bag struct {
	items []Change
}

// NewBag creates an empty bag.
func NewBag() *Bag {
	return &Bag{items: make([]Change, 0, 16)}
}

// Add appends a change.
func (b *Bag) Add(c Change) {
	b.items = append(b.items, c)
}

// Len возвращает число накопленных изменений.
func (b *Bag) Len() int {
	return len(b.items)
}

// Items returns a read-only view of the accumulated changes.
// ВАЖНО: не модифицируйте возвращаемый срез!
func (b *Bag) Items() []Change {
	return b.items
}

// Dedup drops exact duplicates (same kind, ref, and span), which the
// nested fallback can produce when a node is reachable twice.
func (b *Bag) Dedup() {
	seen := make(map[string]bool, len(b.items))
	out := b.items[:0]
	for _, c := range b.items {
		key := fmt.Sprintf("%d:%d:%d:%s:%d:%s:%s", c.Kind, c.Ref.Kind, c.Ref.ID, c.Ref.Name, c.Ref.Ordinal, c.Span, c.Target)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	b.items = out
}

// MaxBreakage returns the highest breakage present in the bag.
func (b *Bag) MaxBreakage() Breakage {
	max := BreakNone
	for i := range b.items {
		if b.items[i].Breakage > max {
			max = b.items[i].Breakage
		}
	}
	return max
}

// FileEntry maps a file id to its path.
type FileEntry struct {
	ID   schema.NodeID
	Path string
}

// Diff is the packaged output: changes sorted by (file path, start byte)
// plus the file table covering every file they reference.
type Diff struct {
	Changes []Change
	Files   []FileEntry
}

// MaxBreakage returns the highest breakage present in the diff.
func (d *Diff) MaxBreakage() Breakage {
	max := BreakNone
	for i := range d.Changes {
		if d.Changes[i].Breakage > max {
			max = d.Changes[i].Breakage
		}
	}
	return max
}

// Package sorts the bag and assembles the file table. paths maps every
// file id the differ touched to its path (the new path when the file
// still exists, the old path for removed files).
func Package(b *Bag, paths map[schema.NodeID]string) *Diff {
	b.Dedup()

	pathOf := func(id schema.NodeID) string {
		return paths[id]
	}
	sort.SliceStable(b.items, func(i, j int) bool {
		pi, pj := pathOf(b.items[i].File), pathOf(b.items[j].File)
		if pi != pj {
			return pi < pj
		}
		return b.items[i].Span.Start < b.items[j].Span.Start
	})

	// Таблица файлов: только те, на которые ссылается хотя бы одно изменение.
	referenced := make(map[schema.NodeID]bool)
	for i := range b.items {
		referenced[b.items[i].File] = true
	}
	files := make([]FileEntry, 0, len(referenced))
	for id := range referenced {
		files = append(files, FileEntry{ID: id, Path: paths[id]})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	return &Diff{Changes: b.items, Files: files}
}
