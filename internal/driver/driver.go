package driver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"capnpdiff/internal/change"
	"capnpdiff/internal/differ"
	"capnpdiff/internal/schema"
	"capnpdiff/internal/source"
)

// Side tags progress events with the schema being processed.
type Side uint8

const (
	SideOld Side = iota
	SideNew
)

func (s Side) String() string {
	if s == SideOld {
		return "old"
	}
	return "new"
}

// Stage is a coarse pipeline phase for progress reporting.
type Stage uint8

const (
	StageCompile Stage = iota
	StageDecode
	StageDiff
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageCompile:
		return "compile"
	case StageDecode:
		return "decode"
	case StageDiff:
		return "diff"
	case StageDone:
		return "done"
	}
	return "unknown"
}

// Event is one progress notification.
type Event struct {
	Side   Side
	Stage  Stage
	Cached bool
}

// Sink receives progress events.
type Sink interface {
	Send(Event)
}

// ChannelSink forwards events into a channel, dropping them when the
// receiver lags: progress display must never stall the pipeline.
type ChannelSink struct {
	Ch chan<- Event
}

func (s ChannelSink) Send(e Event) {
	select {
	case s.Ch <- e:
	default:
	}
}

// NopSink discards events.
type NopSink struct{}

func (NopSink) Send(Event) {}

// Input names one side's schema sources. When Revision is set the files
// are read from git history instead of the working tree.
type Input struct {
	Dir      string // base directory; "" means the working directory
	Files    []string
	Revision string
}

// Options configures a diff run.
type Options struct {
	Compiler CompilerOptions
	RepoDir  string // git repository root for revision inputs
	Cache    *DiskCache
	Progress Sink
}

func (o *Options) progress() Sink {
	if o.Progress == nil {
		return NopSink{}
	}
	return o.Progress
}

// LoadSchema produces one side's decoded request: materialize the
// revision if any, consult the cache, run the compiler on miss, decode.
func LoadSchema(ctx context.Context, opts *Options, side Side, in Input) (*schema.Request, error) {
	dir := in.Dir
	if in.Revision != "" {
		matDir, cleanup, err := MaterializeRevision(ctx, opts.RepoDir, in.Revision, in.Files)
		if err != nil {
			return nil, fmt.Errorf("%s schema at %s: %w", side, in.Revision, err)
		}
		defer cleanup()
		dir = matDir
	}

	digest, err := InputDigest(opts.Compiler, dir, in.Files)
	if err != nil {
		return nil, fmt.Errorf("%s schema: %w", side, err)
	}

	raw, cached, err := opts.Cache.Get(digest)
	if err != nil {
		return nil, fmt.Errorf("%s schema cache: %w", side, err)
	}
	opts.progress().Send(Event{Side: side, Stage: StageCompile, Cached: cached})
	if !cached {
		raw, err = Compile(ctx, opts.Compiler, dir, in.Files)
		if err != nil {
			return nil, fmt.Errorf("%s schema: %w", side, err)
		}
		if err := opts.Cache.Put(digest, raw); err != nil {
			return nil, fmt.Errorf("%s schema cache: %w", side, err)
		}
	}

	opts.progress().Send(Event{Side: side, Stage: StageDecode, Cached: cached})
	req, err := schema.DecodeRequest(raw)
	if err != nil {
		return nil, fmt.Errorf("%s schema: %w", side, err)
	}
	return req, nil
}

// DiffInputs loads both sides concurrently and diffs them. The two loads
// are independent; the final sort inside the differ keeps output
// ordering deterministic regardless.
func DiffInputs(ctx context.Context, opts *Options, oldIn, newIn Input) (*change.Diff, error) {
	var oldReq, newReq *schema.Request

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		req, err := LoadSchema(gctx, opts, SideOld, oldIn)
		oldReq = req
		return err
	})
	g.Go(func() error {
		req, err := LoadSchema(gctx, opts, SideNew, newIn)
		newReq = req
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	opts.progress().Send(Event{Stage: StageDiff})
	d, err := differ.Diff(oldReq, newReq)
	if err != nil {
		return nil, err
	}
	opts.progress().Send(Event{Stage: StageDone})
	return d, nil
}

// LoadSources fills a FileSet with the files named in the diff's file
// table, reading concurrently. Missing files are skipped: renderers
// degrade to byte offsets.
func LoadSources(ctx context.Context, d *change.Diff, baseDir string) *source.FileSet {
	fs := source.NewFileSet()
	type loaded struct {
		id      source.FileID
		path    string
		content []byte
	}
	results := make([]*loaded, len(d.Files))

	g, _ := errgroup.WithContext(ctx)
	for i, f := range d.Files {
		i, f := i, f
		g.Go(func() error {
			path := f.Path
			if baseDir != "" {
				path = filepath.Join(baseDir, filepath.FromSlash(path))
			}
			content, err := os.ReadFile(path)
			if err != nil {
				return nil // пропускаем: сниппеты опциональны
			}
			results[i] = &loaded{id: source.FileID(f.ID), path: f.Path, content: content}
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		if r != nil {
			fs.Add(r.id, r.path, r.content)
		}
	}
	return fs
}
