package pipeline

import (
	"context"
	"os"
	"path/filepath"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/seqpipe/config"
	"github.com/grailbio/seqpipe/encoding/fastq"
	"github.com/grailbio/seqpipe/flowcell"
	"github.com/grailbio/seqpipe/lims"
	perrors "github.com/pkg/errors"
)

// AnalyzeSequence is the body of the sequence analysis job. It measures the
// uniqueness of the reads and uploads it to LIMS.
func AnalyzeSequence(ctx context.Context, env *Env, dir string) error {
	p, err := config.ReadParams(ctx, dir)
	if err != nil {
		return err
	}
	reads, err := flowcell.SequenceFiles(dir)
	if err != nil {
		return err
	}
	switch {
	case len(reads) == 0:
		return errors.E(errors.Precondition, "could not find sequence files in directory", dir)
	case len(reads) > 2:
		return errors.E(errors.Precondition, "more than two sequence files detected in directory", dir)
	}
	fcb := p.FCBarcode
	tmp := filepath.Join(env.Site.Picard.TempDir, "seqpipe-"+fcb)
	if id := os.Getenv("PBS_JOBID"); id != "" {
		tmp = filepath.Join(env.Site.Picard.TempDir, id)
	}
	if err := os.MkdirAll(tmp, 0755); err != nil {
		return errors.E(err, "create", tmp)
	}
	defer func() {
		if err := os.RemoveAll(tmp); err != nil {
			log.Error.Printf("remove %s: %v", tmp, err)
		}
	}()

	args := []string{"R1=" + reads[0]}
	if len(reads) == 2 {
		args = append(args, "R2="+reads[1])
	}
	xmlPath := filepath.Join(dir, fcb+"_uniqueness.xml")
	args = append(args, "O="+filepath.Join(dir, fcb+"_uniqueness.txt"), "X="+xmlPath, "TMP_DIR="+tmp)
	if err := env.run(ctx, dir, step{"sequenceAnalyzer", env.analyzer(sequenceAnalyzerJar, args...)}); err != nil {
		return err
	}
	m, err := readAnalysisMetrics(ctx, xmlPath)
	if err != nil {
		return err
	}
	unique := m.Uniqueness.PercentUnique
	if unique == "" {
		return errors.E(errors.Invalid, "no PercentUnique in", xmlPath)
	}
	log.Printf("%s: %s%% unique reads", fcb, unique)
	return env.LIMS.SetLaneStatus(ctx, fcb, lims.UniquePercentFinished, lims.M("UNIQUE_PERCENT", unique))
}

// BuildFastq is the body of the build-fastq job: it writes the purity
// filtered sequence files of a lane from the CASAVA FASTQ segments.
func BuildFastq(ctx context.Context, dir, prefix string, paired bool) error {
	stats, err := fastq.BuildSequences(ctx, dir, prefix, paired)
	if perrors.Cause(err) == fastq.ErrNoSegments {
		return errors.E(errors.Precondition, err, "build sequence files of", prefix)
	}
	if err != nil {
		return errors.E(err, "build sequence files of", prefix)
	}
	for _, s := range stats {
		log.Printf("%s read %d: %.2f%% of %d reads passed filter", prefix, s.Read, s.PercentPassed(), s.Total)
	}
	return nil
}
