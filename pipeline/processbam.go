package pipeline

import (
	"context"
	"path/filepath"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/seqpipe/batch"
	"github.com/grailbio/seqpipe/config"
)

// Intermediate files removed once the marked BAM exists.
var intermediates = []string{"*.sam", "*.sai", "*_sorted.bam"}

// MarkedBAM returns the name of the final BAM of a flowcell barcode.
func MarkedBAM(fcBarcode string) string { return fcBarcode + "_marked.bam" }

// ProcessBam is the body of the process-bam job. It turns the SAM written
// by bwa into a sorted, duplicate-marked BAM, analyzes it, uploads the
// alignment metrics, removes intermediate files, compresses the sequence
// files and mails the results.
func ProcessBam(ctx context.Context, env *Env, dir string) error {
	p, err := config.ReadParams(ctx, dir)
	if err != nil {
		return err
	}
	fcb := p.FCBarcode
	sam := filepath.Join(dir, fcb+".sam")
	if !exists(sam) {
		return errors.E(errors.Precondition, "did not find", sam)
	}
	sorted := filepath.Join(dir, fcb+"_sorted.bam")
	marked := filepath.Join(dir, MarkedBAM(fcb))
	err = env.run(ctx, dir,
		step{"sortSam", env.picard("SortSam.jar", "I="+sam, "O="+sorted, "SO=coordinate")},
		step{"markDups", env.picard("MarkDuplicates.jar", "I="+sorted, "O="+marked,
			"M="+filepath.Join(dir, fcb+"_marked.metrics"), "AS=true")},
		step{"bamAnalyzer", env.analyzer(bamAnalyzerJar, "I="+marked,
			"O="+filepath.Join(dir, MapStatsFile), "X="+filepath.Join(dir, BAMAnalysisFile))},
	)
	if err != nil {
		return err
	}
	if err := UploadAnalysisMetrics(ctx, env, dir, p); err != nil {
		env.Report("LIMS upload error for : "+fcb, dir, fcb, err)
	}
	n, err := removeMatching(dir, intermediates...)
	if err != nil {
		return err
	}
	log.Printf("%s: removed %d intermediate files", fcb, n)
	if plain, _ := filepath.Glob(filepath.Join(dir, "*_sequence.txt")); len(plain) > 0 {
		zip := batch.Command{Path: "bzip2", Args: plain, Dir: dir}
		if _, err := env.Runner.Run(ctx, zip); err != nil {
			return errors.E(err, "compress sequence files of", fcb)
		}
	}
	if err := env.Reporter.SendResults(dir, fcb, p.LibraryName); err != nil {
		log.Error.Printf("%s: mail results: %v", fcb, err)
	}
	return nil
}
