package pipeline

import (
	"context"
	"path/filepath"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/seqpipe/flowcell"
	"github.com/grailbio/seqpipe/lock"
)

// Detector finds flowcells that finished copying and starts their
// analysis. One pass runs under Lock; a pass that cannot take the lock does
// nothing. A crashed pass leaves the lock behind and it must be removed by
// hand.
type Detector struct {
	Env  *Env
	Lock *lock.Lock
	// Process starts the analysis of a new flowcell. Nil means Preprocess
	// with all actions.
	Process func(ctx context.Context, fc string) error
}

// Run makes one pass over every instrument and returns the flowcells it
// started. A flowcell is added to its instrument's done list before its
// analysis starts, so it is started at most once even if starting fails;
// such failures are reported and the pass continues.
func (d *Detector) Run(ctx context.Context) (started []string, err error) {
	ok, err := d.Lock.TryAcquire()
	if err != nil {
		return nil, err
	}
	if !ok {
		log.Printf("another detector holds %s; exiting", d.Lock.Path())
		return nil, nil
	}
	defer func() {
		if rerr := d.Lock.Release(); rerr != nil && err == nil {
			err = rerr
		}
	}()
	process := d.Process
	if process == nil {
		process = func(ctx context.Context, fc string) error {
			_, err := Preprocess(ctx, d.Env, fc, AllActions, "")
			return err
		}
	}
	instruments, err := d.Env.Layout.Instruments()
	if err != nil {
		return nil, err
	}
	for _, inst := range instruments {
		log.Debug.Printf("checking %s for new flowcells", inst)
		done, err := flowcell.OpenDoneList(filepath.Join(inst, d.Env.Site.Sequencers.DoneList))
		if err != nil {
			return started, err
		}
		fcs, err := d.Env.Layout.Flowcells(inst)
		if err != nil {
			return started, err
		}
		for _, fc := range fcs {
			if done.Contains(fc) {
				continue
			}
			ready, err := flowcell.Ready(filepath.Join(inst, fc), d.Env.now())
			if err != nil {
				log.Error.Printf("%s: %v", fc, err)
				continue
			}
			if !ready {
				continue
			}
			if err := done.Add(fc); err != nil {
				return started, errors.E(err, "update done list of", inst)
			}
			log.Printf("starting analysis of %s", fc)
			started = append(started, fc)
			if err := process(ctx, fc); err != nil {
				d.Env.Report("Error in pre-processing flowcell "+fc+" for analysis", inst, "", err)
			}
		}
	}
	return started, nil
}
