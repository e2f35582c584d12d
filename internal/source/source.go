// Package source discovers task descriptors for the producer.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/chupacca/pcmatrix/internal/logger"
)

// ErrUnavailable means the source as a whole can no longer be read, as
// opposed to a single unreadable descriptor.
var ErrUnavailable = errors.New("task source unavailable")

// Descriptor is the raw content of one task file.
type Descriptor struct {
	Name string // file name without extension
	Path string
	Data []byte
}

// Source yields descriptors one at a time. Next returns io.EOF once the
// source is exhausted, and ctx.Err() if ctx is done first. Any other error
// concerns a single descriptor unless it wraps ErrUnavailable.
type Source interface {
	Next(ctx context.Context) (Descriptor, error)
}

type Options struct {
	Ext     string // only names ending in Ext are descriptors; empty accepts all
	Watch   bool   // after the initial scan, wait for new files instead of ending
	Consume bool   // remove each file after reading it
}

// Dir reads descriptors from the regular files of one directory, in name
// order. Hidden files are ignored so writers can stage a file under a dot
// name and rename it into place.
//
// A Dir is used by a single goroutine.
type Dir struct {
	dir  string
	opts Options

	watcher *fsnotify.Watcher
	scanned bool
	pending []string
	seen    map[string]struct{}
}

// NewDir fails if dir cannot be listed.
func NewDir(dir string, opts Options) (*Dir, error) {
	fi, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrUnavailable, dir)
	}
	if _, err := os.ReadDir(dir); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	d := &Dir{dir: dir, opts: opts, seen: make(map[string]struct{})}
	if opts.Watch {
		// Watch before the first scan so nothing created in between is lost;
		// seen drops the duplicates.
		if d.watcher, err = fsnotify.NewWatcher(); err != nil {
			return nil, fmt.Errorf("creating watcher: %w", err)
		}
		if err := d.watcher.Add(dir); err != nil {
			d.watcher.Close()
			return nil, fmt.Errorf("%w: watching %s: %v", ErrUnavailable, dir, err)
		}
	}
	return d, nil
}

func (d *Dir) Next(ctx context.Context) (Descriptor, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Descriptor{}, err
		}

		if !d.scanned {
			if err := d.scan(); err != nil {
				return Descriptor{}, err
			}
			d.scanned = true
		}

		if len(d.pending) > 0 {
			name := d.pending[0]
			d.pending = d.pending[1:]
			return d.read(name)
		}

		if d.watcher == nil {
			return Descriptor{}, io.EOF
		}
		if err := d.wait(ctx); err != nil {
			return Descriptor{}, err
		}
	}
}

// Close stops watching. It does not affect files already returned.
func (d *Dir) Close() error {
	if d.watcher != nil {
		return d.watcher.Close()
	}
	return nil
}

func (d *Dir) accept(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	return d.opts.Ext == "" || filepath.Ext(name) == d.opts.Ext
}

func (d *Dir) enqueue(name string) {
	if _, ok := d.seen[name]; ok {
		return
	}
	d.seen[name] = struct{}{}
	d.pending = append(d.pending, name)
}

func (d *Dir) scan() error {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && d.accept(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		d.enqueue(name)
	}
	return nil
}

// wait blocks until the watcher reports at least one new descriptor.
func (d *Dir) wait(ctx context.Context) error {
	for len(d.pending) == 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-d.watcher.Events:
			if !ok {
				return fmt.Errorf("%w: watcher closed", ErrUnavailable)
			}
			if ev.Has(fsnotify.Remove) && filepath.Clean(ev.Name) == filepath.Clean(d.dir) {
				return fmt.Errorf("%w: %s was removed", ErrUnavailable, d.dir)
			}
			if !ev.Has(fsnotify.Create) {
				continue
			}
			name := filepath.Base(ev.Name)
			fi, err := os.Lstat(ev.Name)
			if err != nil || !fi.Mode().IsRegular() || !d.accept(name) {
				continue
			}
			d.enqueue(name)

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return fmt.Errorf("%w: watcher closed", ErrUnavailable)
			}
			// Events may have been dropped; a rescan picks up what was missed.
			logger.Warnf("source: watcher error on %s, rescanning: %v", d.dir, err)
			if err := d.scan(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Dir) read(name string) (Descriptor, error) {
	path := filepath.Join(d.dir, name)
	desc := Descriptor{
		Name: strings.TrimSuffix(name, filepath.Ext(name)),
		Path: path,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return desc, fmt.Errorf("reading %s: %w", path, err)
	}
	desc.Data = data

	if d.opts.Consume {
		if err := os.Remove(path); err != nil {
			logger.Warnf("source: could not remove %s: %v", path, err)
		} else {
			// A file later created under the same name is a new descriptor.
			delete(d.seen, name)
		}
	}
	return desc, nil
}
