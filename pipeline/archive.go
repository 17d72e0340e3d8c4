package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// ArchiveDelay is how long after their upload to LIMS result directories
// are requested for archival.
const ArchiveDelay = 48 * time.Hour

// ArchiveDate returns the day whose result directories ArchiveList
// requests.
func ArchiveDate(env *Env) time.Time {
	return env.now().Add(-ArchiveDelay)
}

// ArchiveList appends the result directories LIMS recorded on ArchiveDate
// to the archive request list at listPath, one per line, and returns them.
// Nothing is written when LIMS fails.
func ArchiveList(ctx context.Context, env *Env, listPath string) ([]string, error) {
	date := ArchiveDate(env)
	paths, err := env.LIMS.ResultsPaths(ctx, date)
	if err != nil {
		return nil, err
	}
	log.Printf("archive: %d result directories from %s", len(paths), date.Format("2006-01-02"))
	f, err := os.OpenFile(listPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.E(err, "open archive request list")
	}
	w := bufio.NewWriter(f)
	for _, p := range paths {
		fmt.Fprintln(w, p)
	}
	if err := w.Flush(); err != nil {
		f.Close() // nolint: errcheck
		return nil, errors.E(err, "append to archive request list", listPath)
	}
	if err := f.Close(); err != nil {
		return nil, errors.E(err, "append to archive request list", listPath)
	}
	return paths, nil
}
