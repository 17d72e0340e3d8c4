// Package pipeline implements the stages of the sequencing pipeline.
//
// A stage validates its inputs synchronously, then submits batch jobs and
// returns their handles without waiting for them. Ordering between stages
// is expressed only through job dependencies: a job whose prerequisite
// fails never starts. Stages that run inside a batch job (the in-job
// helpers) are ordinary functions called by the seqpipe command.
package pipeline

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/grailbio/base/log"
	"github.com/grailbio/seqpipe/batch"
	"github.com/grailbio/seqpipe/config"
	"github.com/grailbio/seqpipe/flowcell"
	"github.com/grailbio/seqpipe/lims"
	"github.com/grailbio/seqpipe/notify"
)

// Env is what every stage needs from its surroundings.
type Env struct {
	Site      *config.Site
	Layout    flowcell.Layout
	Scheduler *batch.Scheduler
	// Runner runs external tools in the calling process.
	Runner   batch.Runner
	LIMS     *lims.Client
	Reporter *notify.Reporter
	// Now is the clock. Nil means time.Now.
	Now func() time.Time
}

// NewEnv returns the environment of a site: tools and the batch client run
// on the local host and mail goes through the site's SMTP relay.
func NewEnv(ctx context.Context, site *config.Site) (*Env, error) {
	runner := batch.LocalRunner{}
	reporter := &notify.Reporter{
		From:   site.Email.From,
		Mailer: notify.SMTPMailer{Host: site.Email.SMTPHost, Port: site.Email.SMTPPort},
	}
	if site.Email.RecipientsFile != "" {
		r, err := notify.LoadRecipients(ctx, site.Email.RecipientsFile)
		if err != nil {
			return nil, err
		}
		reporter.Recipients = r
	}
	return &Env{
		Site:      site,
		Layout:    flowcell.Layout{Root: site.Sequencers.RootDir},
		Scheduler: batch.NewScheduler(site.Scheduler.Program, runner),
		Runner:    runner,
		LIMS:      &lims.Client{Perl: site.LIMS.Perl, ScriptDir: site.LIMS.ScriptDir, Runner: runner},
		Reporter:  reporter,
		Now:       time.Now,
	}, nil
}

func (e *Env) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

// self returns the shell command that runs a seqpipe subcommand with the
// same site configuration.
func (e *Env) self(sub string, args ...string) string {
	words := []string{batch.Quote(e.Site.Tools.Seqpipe), sub}
	if e.Site.Path != "" {
		words = append(words, "-config", batch.Quote(e.Site.Path))
	}
	for _, a := range args {
		words = append(words, batch.Quote(a))
	}
	return strings.Join(words, " ")
}

// submit submits j with its working directory set to dir, after the jobs
// in deps.
func (e *Env) submit(ctx context.Context, j *batch.Job, dir string, deps ...batch.Handle) (batch.Handle, error) {
	j.SetWorkDir(dir)
	for _, d := range deps {
		if err := j.DependOn(d); err != nil {
			return batch.Handle{}, err
		}
	}
	return e.Scheduler.Submit(ctx, j)
}

// Report sends an error report about a failure in dir. The batch job ID and
// the host are taken from the environment.
func (e *Env) Report(subject, dir, fcBarcode string, err error) {
	host, _ := os.Hostname()
	rep := notify.ErrorReport{
		Subject:   subject,
		Detail:    err.Error(),
		WorkDir:   dir,
		Hostname:  host,
		JobID:     os.Getenv("PBS_JOBID"),
		FCBarcode: fcBarcode,
	}
	if e.Reporter == nil {
		log.Error.Printf("%s: %s", subject, rep.Body())
		return
	}
	e.Reporter.ReportError(rep)
}

// Result is what a stage did: the handles of the jobs it submitted, in
// submission order, or the reason it did not apply.
type Result struct {
	Handles []batch.Handle
	// Skipped is nonempty when the stage did not apply.
	Skipped string
}

func (r *Result) add(h ...batch.Handle) { r.Handles = append(r.Handles, h...) }
