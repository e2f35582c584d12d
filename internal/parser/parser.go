// Package parser turns a YAML task descriptor into a Task.
//
//	name: m1          # optional, defaults to the file name
//	cmd: sum          # generate, sum, average, display or exit
//	rows: 5
//	cols: 5
//	gen: random       # random, sequential, constant, identity or zero
//	ele: 9
//	seed: 42
//	target: out-name
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/chupacca/pcmatrix/internal/source"
	"github.com/chupacca/pcmatrix/pkg/types"
)

var ErrMalformed = errors.New("malformed task descriptor")

type document struct {
	Name   string `yaml:"name"`
	Cmd    string `yaml:"cmd"`
	Rows   int    `yaml:"rows"`
	Cols   int    `yaml:"cols"`
	Gen    string `yaml:"gen"`
	Ele    int    `yaml:"ele"`
	Seed   int64  `yaml:"seed"`
	Target string `yaml:"target"`
}

// Parse decodes d. The returned task has no ID; the producer assigns one.
//
// Kinds the executor does not know are accepted here so that they surface
// as failed results rather than disappearing at the producer.
func Parse(d source.Descriptor) (types.Task, error) {
	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(d.Data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return types.Task{}, fmt.Errorf("%w: %s is empty", ErrMalformed, d.Name)
		}
		return types.Task{}, fmt.Errorf("%w: %s: %v", ErrMalformed, d.Name, err)
	}

	kind := types.Kind(strings.ToLower(strings.TrimSpace(doc.Cmd)))
	switch kind {
	case "":
		return types.Task{}, fmt.Errorf("%w: %s has no cmd", ErrMalformed, d.Name)
	case types.KindStop:
		return types.Task{}, fmt.Errorf("%w: %s uses reserved cmd %q", ErrMalformed, d.Name, kind)
	}

	name := doc.Name
	if name == "" {
		name = d.Name
	}
	return types.Task{
		Name:    name,
		Kind:    kind,
		Rows:    doc.Rows,
		Cols:    doc.Cols,
		Gen:     types.GenType(strings.ToLower(strings.TrimSpace(doc.Gen))),
		Element: doc.Ele,
		Seed:    doc.Seed,
		Target:  doc.Target,
	}, nil
}
