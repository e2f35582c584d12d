// Package collector is the result sink: it stores every Result the workers
// hand over and reports it in the log.
package collector

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/chupacca/pcmatrix/internal/logger"
	"github.com/chupacca/pcmatrix/internal/metrics"
	"github.com/chupacca/pcmatrix/pkg/backlog"
	"github.com/chupacca/pcmatrix/pkg/types"
)

// Sink accepts results from every worker concurrently.
type Sink interface {
	Write(ctx context.Context, r types.Result) error
}

// record is the on-disk form of a Result.
type record struct {
	TaskID   string  `yaml:"task_id"`
	Name     string  `yaml:"name"`
	Kind     string  `yaml:"kind"`
	Worker   int     `yaml:"worker"`
	Status   string  `yaml:"status"`
	Value    *int64  `yaml:"value,omitempty"`
	Matrix   string  `yaml:"matrix,omitempty"`
	Error    string  `yaml:"error,omitempty"`
	Started  string  `yaml:"started"`
	Duration float64 `yaml:"duration_seconds"`
}

// Dir writes one YAML file per result into a directory. Distinct results
// never share a file, so concurrent writes need no locking.
type Dir struct {
	dir string
}

// NewDir creates dir if needed.
func NewDir(dir string) (*Dir, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating sink dir: %w", err)
	}
	return &Dir{dir: dir}, nil
}

// FileName is the name the result is stored under inside the sink dir. The
// full task id keeps results with the same output name apart.
func FileName(r types.Result) string {
	return fmt.Sprintf("%s-%s.yaml", sanitize(r.Output), r.TaskID)
}

func (d *Dir) Write(_ context.Context, r types.Result) error {
	rec := record{
		TaskID:   r.TaskID.String(),
		Name:     r.TaskName,
		Kind:     string(r.Kind),
		Worker:   r.WorkerID,
		Status:   "ok",
		Value:    r.Outcome.Value,
		Matrix:   r.Outcome.Matrix,
		Started:  r.Started.UTC().Format("2006-01-02T15:04:05.000000Z07:00"),
		Duration: r.Duration.Seconds(),
	}
	if !r.OK() {
		rec.Status = "failed"
		rec.Error = r.Err.Error()
	}

	data, err := yaml.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("encoding result %s: %w", r.TaskID, err)
	}

	// Write under a hidden name and rename, so readers of the sink never see
	// a partial file.
	final := filepath.Join(d.dir, FileName(r))
	tmp := filepath.Join(d.dir, "."+filepath.Base(final)+".tmp")
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing result %s: %w", r.TaskID, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing result %s: %w", r.TaskID, err)
	}

	if r.OK() {
		logger.Infof("✓ task %s (%s %s) handled by worker %02d", r.TaskName, r.Kind, shortID(r), r.WorkerID)
	} else {
		logger.Warnf("✗ task %s (%s %s) handled by worker %02d, ERROR: %v", r.TaskName, r.Kind, shortID(r), r.WorkerID, r.Err)
	}
	return nil
}

// Counting wraps a Sink, settling the backlog and recording metrics for
// every result handed to it, whether or not the write succeeds.
type Counting struct {
	next    Sink
	backlog *backlog.Counter
	metrics *metrics.Handle
}

// Count returns next wrapped in a Counting sink. m may be nil.
func Count(next Sink, b *backlog.Counter, m *metrics.Handle) *Counting {
	return &Counting{next: next, backlog: b, metrics: m}
}

func (c *Counting) Write(ctx context.Context, r types.Result) error {
	err := c.next.Write(ctx, r)
	c.backlog.Dec()
	if c.metrics != nil {
		c.metrics.Completed(r)
	}
	return err
}

func shortID(r types.Result) string {
	return r.TaskID.String()[:8]
}

// sanitize keeps a descriptor-supplied name from escaping the sink dir.
func sanitize(name string) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	if name == "" {
		return "task"
	}
	return name
}
