package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/seqpipe/batch"
	"github.com/grailbio/seqpipe/config"
	"github.com/grailbio/seqpipe/flowcell"
)

const unzipMemoryMB = 2000

// Align submits the alignment of the sequence files of an analysis
// directory:
//
//	[unzip] -> aln read1 || aln read2 -> sampe -> process-bam
//	[unzip] -> aln read1 -> samse -> process-bam
//
// Every job but the unzip job takes a whole node of the lane's queue. A
// lane without reference is skipped.
func Align(ctx context.Context, env *Env, dir string) (Result, error) {
	var res Result
	p, err := config.ReadParams(ctx, dir)
	if err != nil {
		return res, err
	}
	if !p.Aligned() {
		res.Skipped = fmt.Sprintf("no alignment for %s: reference is %q", p.FCBarcode, p.ReferencePath)
		log.Printf("%s", res.Skipped)
		return res, nil
	}
	reads, err := flowcell.SequenceFiles(dir)
	if err != nil {
		return res, errors.E(err, "list sequence files of", dir)
	}
	switch {
	case len(reads) == 0:
		return res, errors.E(errors.Precondition, "could not find sequence files in directory", dir)
	case len(reads) > 2:
		return res, errors.E(errors.Precondition, "more than two sequence files detected in directory", dir)
	}
	fcb := p.FCBarcode

	var after []batch.Handle
	if strings.HasSuffix(reads[0], ".bz2") {
		j := batch.NewJob(fcb+"_unzip_sequences", "bzip2 -d "+quoteAll(reads))
		if err := setPartial(j, unzipMemoryMB, 1, p.Queue); err != nil {
			return res, err
		}
		h, err := env.submit(ctx, j, dir)
		if err != nil {
			return res, err
		}
		res.add(h)
		after = append(after, h)
		for i := range reads {
			reads[i] = strings.TrimSuffix(reads[i], ".bz2")
		}
	}

	cores := env.alignCores(p.Queue)
	sais := make([]string, len(reads))
	alns := make([]batch.Handle, len(reads))
	for i, r := range reads {
		sais[i] = r + ".sai"
		j := batch.NewJob(fmt.Sprintf("%s_aln_read%d", fcb, i+1), alnCommand(env.Site.BWA.Path, cores, p, r, sais[i]))
		if err := j.LockWholeNode(p.Queue); err != nil {
			return res, err
		}
		if alns[i], err = env.submit(ctx, j, dir, after...); err != nil {
			return res, err
		}
		res.add(alns[i])
	}

	sam := filepath.Join(dir, fcb+".sam")
	rg := ReadGroup(p, env.now())
	var j *batch.Job
	if len(reads) == 2 {
		j = batch.NewJob(fcb+"_bwa_sampe", fmt.Sprintf("%s sampe -P -r %s %s %s > %s",
			batch.Quote(env.Site.BWA.Path), batch.Quote(rg), batch.Quote(p.ReferencePath),
			quoteAll(append(sais, reads...)), batch.Quote(sam)))
	} else {
		j = batch.NewJob(fcb+"_bwa_samse", fmt.Sprintf("%s samse -r %s %s %s %s > %s",
			batch.Quote(env.Site.BWA.Path), batch.Quote(rg), batch.Quote(p.ReferencePath),
			batch.Quote(sais[0]), batch.Quote(reads[0]), batch.Quote(sam)))
	}
	if err := j.LockWholeNode(p.Queue); err != nil {
		return res, err
	}
	combined, err := env.submit(ctx, j, dir, alns...)
	if err != nil {
		return res, err
	}
	res.add(combined)

	j = batch.NewJob(fcb+"_processBam", env.self("process-bam", "-dir", dir))
	if err := j.LockWholeNode(p.Queue); err != nil {
		return res, err
	}
	h, err := env.submit(ctx, j, dir, combined)
	if err != nil {
		return res, err
	}
	res.add(h)
	return res, nil
}

// queueLimits returns the node limits of queue. Limits missing from the
// site configuration are those of a whole node.
func (e *Env) queueLimits(queue string) config.QueueLimits {
	q := e.Site.Scheduler.Queue[queue]
	mem, cores := batch.WholeNode{Queue: queue}.Resources()
	if q.MaxMemory <= 0 {
		q.MaxMemory = mem
	}
	if q.MaxCores <= 0 {
		q.MaxCores = cores
	}
	return q
}

// alignCores is the thread count of bwa aln on a node of queue.
func (e *Env) alignCores(queue string) int {
	return e.queueLimits(queue).MaxCores
}

func alnCommand(bwa string, cores int, p config.AnalysisParams, reads, sai string) string {
	cmd := fmt.Sprintf("%s aln -t %d", batch.Quote(bwa), cores)
	if p.BaseQualFormat == config.Phred64 {
		cmd += " -I"
	}
	return fmt.Sprintf("%s %s %s > %s", cmd, batch.Quote(p.ReferencePath), batch.Quote(reads), batch.Quote(sai))
}

// ReadGroup returns the @RG header line bwa writes into the alignment, with
// tabs escaped as bwa expects them on its command line. The sample defaults
// to the flowcell barcode, and so does the platform unit.
func ReadGroup(p config.AnalysisParams, now time.Time) string {
	sample := p.SampleName
	if sample == "" {
		sample = p.FCBarcode
	}
	fields := []string{"@RG", "ID:0", "SM:" + sample}
	if p.LibraryName != "" {
		fields = append(fields, "LB:"+p.LibraryName)
	}
	pu := p.RGPUField
	if pu == "" {
		pu = p.FCBarcode
	}
	fields = append(fields, "PU:"+pu, "CN:BCM", "DT:"+now.Format("2006-01-02T15:04:05-0700"), "PL:Illumina")
	return strings.Join(fields, `\t`)
}

func setPartial(j *batch.Job, memoryMB, cores int, queue string) error {
	if err := j.SetMemory(memoryMB); err != nil {
		return err
	}
	if err := j.SetCores(cores); err != nil {
		return err
	}
	return j.SetQueue(queue)
}
