package pipeline

import (
	"context"
	"os"
	"path/filepath"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/seqpipe/batch"
	"github.com/grailbio/seqpipe/config"
	"github.com/grailbio/seqpipe/flowcell"
)

const (
	sequenceAnalysisMemoryMB = 8000
	sequenceAnalysisCores    = 1
)

// PostSequence runs after the sequence files of a lane are built. It uploads
// the purity filter metrics, submits the sequence analysis, starts the
// alignment and moves the CASAVA FASTQ segments out of the way. A failed
// upload is reported and does not stop the lane.
func PostSequence(ctx context.Context, env *Env, dir string) (Result, error) {
	var res Result
	p, err := config.ReadParams(ctx, dir)
	if err != nil {
		return res, err
	}
	if err := UploadSequenceMetrics(ctx, env, dir, p); err != nil {
		env.Report("LIMS upload error for : "+p.FCBarcode, dir, p.FCBarcode, err)
	}

	j := batch.NewJob(p.FCBarcode+"_SequenceAnalysis", env.self("analyze-sequence", "-dir", dir))
	if err := setPartial(j, sequenceAnalysisMemoryMB, sequenceAnalysisCores, config.DefaultQueue); err != nil {
		return res, err
	}
	h, err := env.submit(ctx, j, dir)
	if err != nil {
		return res, err
	}
	res.add(h)

	aligned, err := Align(ctx, env, dir)
	res.add(aligned.Handles...)
	if err != nil {
		return res, err
	}
	return res, moveSegments(dir)
}

// moveSegments moves the CASAVA FASTQ segments of dir into its
// casava_fastq subdirectory.
func moveSegments(dir string) error {
	segs, err := filepath.Glob(filepath.Join(dir, "*.fastq.gz"))
	if err != nil || len(segs) == 0 {
		return err
	}
	dst := filepath.Join(dir, flowcell.CasavaFastqDir)
	if err := os.MkdirAll(dst, 0755); err != nil {
		return errors.E(err, "create", dst)
	}
	for _, s := range segs {
		if err := os.Rename(s, filepath.Join(dst, filepath.Base(s))); err != nil {
			return errors.E(err, "move", s)
		}
	}
	log.Printf("moved %d FASTQ segments to %s", len(segs), dst)
	return nil
}
