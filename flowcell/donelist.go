package flowcell

import (
	"fmt"
	"io"
	"os"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/tsv"
)

// DoneList is the per-instrument list of flowcells that have been handed to
// the pipeline. It is append-only.
type DoneList struct {
	path  string
	names map[string]bool
}

type doneEntry struct {
	Name string
}

// OpenDoneList reads the done list at path, creating an empty one if it does
// not exist.
func OpenDoneList(path string) (*DoneList, error) {
	f, err := os.OpenFile(path, os.O_RDONLY|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.E(err, "open done list")
	}
	defer f.Close() // nolint: errcheck
	d := &DoneList{path: path, names: map[string]bool{}}
	r := tsv.NewReader(f)
	r.Comment = '#'
	for {
		var e doneEntry
		if err := r.Read(&e); err != nil {
			if err == io.EOF {
				break
			}
			return nil, errors.E(err, "read done list", path)
		}
		d.names[e.Name] = true
	}
	return d, nil
}

// Contains reports whether the flowcell is listed.
func (d *DoneList) Contains(fc string) bool { return d.names[fc] }

// Len returns the number of flowcells listed.
func (d *DoneList) Len() int { return len(d.names) }

// Add appends the flowcell to the list.
func (d *DoneList) Add(fc string) error {
	if d.names[fc] {
		return nil
	}
	f, err := os.OpenFile(d.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return errors.E(err, "open done list")
	}
	if _, err := fmt.Fprintln(f, fc); err != nil {
		f.Close() // nolint: errcheck
		return errors.E(err, "append to done list", d.path)
	}
	if err := f.Close(); err != nil {
		return errors.E(err, "append to done list", d.path)
	}
	d.names[fc] = true
	return nil
}
