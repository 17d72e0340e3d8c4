package batch

import (
	"context"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"v.io/x/lib/gosh"
)

func writeScript(t *testing.T, dir, name, body string) string {
	path := filepath.Join(dir, name)
	require.NoError(t, ioutil.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755))
	return path
}

func TestLocalRunnerSubmit(t *testing.T) {
	sh := gosh.NewShell(nil)
	defer sh.Cleanup()
	dir := sh.MakeTempDir()
	// The fake client records its stdin and replies with a job ID.
	msub := writeScript(t, dir, "msub", `cat > "$(dirname "$0")/stdin"
echo "$@" > "$(dirname "$0")/args"
echo
echo 5150
`)
	s := NewScheduler(msub, LocalRunner{})
	j := NewJob(filepath.Join(dir, "job"), "bwa aln -t 8 ref r1 > r1.sai")
	h, err := s.Submit(context.Background(), j)
	require.NoError(t, err)
	assert.Equal(t, "5150", h.JobID)

	stdin, err := ioutil.ReadFile(filepath.Join(dir, "stdin"))
	require.NoError(t, err)
	assert.Equal(t, "bwa aln -t 8 ref r1 > r1.sai", string(stdin))
	args, err := ioutil.ReadFile(filepath.Join(dir, "args"))
	require.NoError(t, err)
	assert.Contains(t, string(args), "-N "+j.Name())
}

func TestLocalRunnerFailure(t *testing.T) {
	sh := gosh.NewShell(nil)
	defer sh.Cleanup()
	dir := sh.MakeTempDir()
	msub := writeScript(t, dir, "msub", "echo 777\necho 'no such queue' >&2\nexit 3\n")
	s := NewScheduler(msub, LocalRunner{})
	h, err := s.Submit(context.Background(), NewJob(filepath.Join(dir, "job"), "true"))
	require.Error(t, err)
	assert.Equal(t, "", h.JobID)
	serr, ok := err.(*SubmissionError)
	require.True(t, ok)
	assert.Contains(t, serr.Output, "no such queue")
	_, ok = serr.Err.(*ToolError)
	assert.True(t, ok)
}

func TestLocalRunnerMissingProgram(t *testing.T) {
	out, err := LocalRunner{Env: []string{"PATH=/nonexistent"}}.Run(context.Background(), Command{Path: "surely-not-installed"})
	assert.Equal(t, "", out)
	_, ok := err.(*ToolError)
	assert.True(t, ok, "%v", err)
}
