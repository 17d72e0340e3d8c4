package batch

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// SubmissionError is returned when the batch system rejects a job or its
// reply carries no job ID.
type SubmissionError struct {
	Job     string
	Command string
	Output  string
	Err     error
}

func (e *SubmissionError) Error() string {
	msg := fmt.Sprintf("submit %s: %v", e.Job, e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += "\noutput: " + out
	}
	return msg + "\ncommand: " + e.Command
}

// Unwrap returns the underlying error.
func (e *SubmissionError) Unwrap() error { return e.Err }

// Scheduler submits jobs to the batch system. It never waits for jobs to
// run; ordering between jobs is left to the batch system through
// dependencies.
type Scheduler struct {
	// Program is the submission client. Empty means DefaultProgram.
	Program string
	Runner  Runner
}

// NewScheduler returns a scheduler that runs program through r.
func NewScheduler(program string, r Runner) *Scheduler {
	return &Scheduler{Program: program, Runner: r}
}

// Submit submits j and returns its handle. Submission is attempted once. On
// failure the job stays unsubmitted and a *SubmissionError is returned.
func (s *Scheduler) Submit(ctx context.Context, j *Job) (Handle, error) {
	if j.submitted != nil {
		return Handle{}, errors.E(errors.Invalid, "job", j.name, "already submitted as", j.submitted.JobID)
	}
	c := Render(s.Program, j)
	out, err := s.Runner.Run(ctx, c)
	if err != nil {
		return Handle{}, &SubmissionError{Job: j.name, Command: c.String(), Output: out, Err: err}
	}
	id, ok := ParseJobID(out)
	if !ok {
		return Handle{}, &SubmissionError{Job: j.name, Command: c.String(), Output: out,
			Err: errors.New("no job ID in batch system reply")}
	}
	h := Handle{JobName: j.name, JobID: id}
	j.submitted = &h
	log.Printf("submitted %s as %s on %s after %v", j.name, id, j.queue, j.deps)
	log.Debug.Printf("submit: %s", c)
	return h, nil
}

var (
	jobIDLine   = regexp.MustCompile(`^\s*(?:Job\s+<)?(\d+)`)
	firstNumber = regexp.MustCompile(`\d+`)
)

// ParseJobID extracts the job ID from the reply of the submission client.
// The last line that starts with a number (optionally tagged "Job <") wins;
// failing that, the first number anywhere in the reply is used.
func ParseJobID(out string) (string, bool) {
	lines := strings.Split(out, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if m := jobIDLine.FindStringSubmatch(lines[i]); m != nil {
			return m[1], true
		}
	}
	if m := firstNumber.FindString(out); m != "" {
		return m, true
	}
	return "", false
}
