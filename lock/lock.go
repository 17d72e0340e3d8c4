// Package lock implements a cross-process lock backed by a marker file.
//
// The marker is created with O_CREATE|O_EXCL, so of any number of processes
// (or goroutines) racing on the same path exactly one acquires it. A marker
// left behind by a crashed holder is not expired; it has to be removed by
// hand.
package lock

import (
	"fmt"
	"os"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// Lock is a marker-file lock. Different Lock values with the same path
// exclude each other.
type Lock struct {
	path string
}

// New returns a lock on path. It does not touch the filesystem.
func New(path string) *Lock {
	return &Lock{path: path}
}

// Path returns the marker file path.
func (l *Lock) Path() string { return l.path }

// TryAcquire creates the marker. It returns false, without side effects, if
// the marker already exists.
func (l *Lock) TryAcquire() (bool, error) {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if os.IsExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.E(err, "create lock", l.path)
	}
	host, _ := os.Hostname()
	_, werr := fmt.Fprintf(f, "%s %d\n", host, os.Getpid())
	if err := f.Close(); err != nil && werr == nil {
		werr = err
	}
	if werr != nil {
		// The lock is held regardless; the content is informational.
		log.Error.Printf("lock %s: write holder: %v", l.path, werr)
	}
	return true, nil
}

// Release removes the marker. Releasing a lock that is not held is not an
// error.
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return errors.E(err, "release lock", l.path)
	}
	return nil
}
