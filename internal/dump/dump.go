// Package dump writes the objects of interest found on the system to JSON
// files, so that new identifier entries can be authored from them.
package dump

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/juju/errors"

	"github.com/tabletdrivercleanup/tdc/internal/cleanup"
	"github.com/tabletdrivercleanup/tdc/internal/logging"
	"github.com/tabletdrivercleanup/tdc/internal/workerpool"
)

var log = logging.L("dump")

// Source produces the objects one module dumps.
type Source interface {
	Metadata() cleanup.Metadata
	// FileName is the dump file name inside the dump directory.
	FileName() string
	// Wording selects the message printed once the file is written.
	Wording() Wording
	// Collect enumerates and filters the objects. The returned value is a
	// slice ready for JSON encoding.
	Collect(ctx context.Context) (objects any, count int, err error)
}

// Wording selects how Message refers to the dump file.
type Wording int

const (
	// DumpedTo prints "Dumped 2 devices to devices.json".
	DumpedTo Wording = iota
	// DumpedInto prints "Dumped 2 drivers into 'drivers.json'".
	DumpedInto
)

// Option configures a Source built by Of.
type Option func(*settings)

type settings struct {
	wording Wording
}

// WithWording sets the wording of the operator message.
func WithWording(w Wording) Option {
	return func(s *settings) { s.wording = w }
}

type source[O any] struct {
	settings
	meta      cleanup.Metadata
	fileName  string
	enumerate func(context.Context) ([]O, error)
	keep      func(O) bool
}

// Of returns a Source dumping the enumerated objects that keep accepts.
func Of[O any](meta cleanup.Metadata, fileName string, enumerate func(context.Context) ([]O, error), keep func(O) bool, opts ...Option) Source {
	s := &source[O]{meta: meta, fileName: fileName, enumerate: enumerate, keep: keep}
	for _, opt := range opts {
		opt(&s.settings)
	}
	return s
}

func (s *source[O]) Metadata() cleanup.Metadata { return s.meta }
func (s *source[O]) FileName() string           { return s.fileName }
func (s *source[O]) Wording() Wording           { return s.wording }

func (s *source[O]) Collect(ctx context.Context) (any, int, error) {
	all, err := s.enumerate(ctx)
	if err != nil {
		return nil, 0, errors.WithType(errors.Annotatef(err, "cannot enumerate %s", s.meta.Noun), cleanup.ErrEnumeration)
	}
	kept := make([]O, 0, len(all))
	for _, o := range all {
		if s.keep(o) {
			kept = append(kept, o)
		}
	}
	return kept, len(kept), nil
}

// Result is the outcome of dumping one source.
type Result struct {
	Metadata cleanup.Metadata
	Path     string
	Count    int
	Wording  Wording
	Err      error
}

// Message is the line printed for the operator.
func (r Result) Message() string {
	noun := r.Metadata.Noun
	switch r.Count {
	case 0:
		return fmt.Sprintf("No %s to dump", noun)
	case 1:
		noun = strings.TrimSuffix(noun, "s")
	}
	if r.Wording == DumpedInto {
		return fmt.Sprintf("Dumped %d %s into '%s'", r.Count, noun, filepath.Base(r.Path))
	}
	return fmt.Sprintf("Dumped %d %s to %s", r.Count, noun, filepath.Base(r.Path))
}

// Write dumps src into dir. The file is created, and left empty, even when
// nothing is of interest.
func Write(ctx context.Context, dir string, src Source) Result {
	meta := src.Metadata()
	res := Result{Metadata: meta, Path: filepath.Join(dir, src.FileName()), Wording: src.Wording()}
	dlog := logging.WithModule(log, meta.Name)

	objects, count, err := src.Collect(ctx)
	if err != nil {
		res.Err = errors.Annotatef(err, "module %q", meta.Name)
		return res
	}
	res.Count = count

	if err := os.MkdirAll(dir, 0755); err != nil {
		res.Err = errors.Annotatef(err, "cannot create dump directory %s", dir)
		return res
	}
	f, err := os.Create(res.Path)
	if err != nil {
		res.Err = errors.Annotatef(err, "cannot create dump file %s", res.Path)
		return res
	}
	defer f.Close()

	if count == 0 {
		dlog.Info("nothing to dump", "file", res.Path)
		return res
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(objects); err != nil {
		res.Err = errors.Annotatef(err, "failed to dump %s into '%s'", meta.Noun, filepath.Base(res.Path))
		return res
	}
	dlog.Info("dump written", "file", res.Path, "count", count)
	return res
}

// Run dumps every source concurrently on a pool of workers and returns the
// results in source order.
func Run(ctx context.Context, dir string, workers int, sources []Source) []Result {
	results := make([]Result, len(sources))
	pool := workerpool.New(workers, len(sources))

	for i, src := range sources {
		i, src := i, src
		err := pool.Submit(func(context.Context) {
			results[i] = Write(ctx, dir, src)
		})
		if err != nil {
			results[i] = Result{Metadata: src.Metadata(), Err: errors.Annotate(err, "cannot schedule dump")}
		}
	}

	// Every result slot must be written before returning.
	pool.Shutdown(context.Background())
	return results
}
