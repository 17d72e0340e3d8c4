package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/seqpipe/batch"
	"github.com/grailbio/seqpipe/config"
	"golang.org/x/sys/unix"
)

// Files written by a merge.
const (
	MergedBAM        = "merged.bam"
	FinalBAM         = "final.bam"
	mergeMetricsFile = "markDups.metrics"
	markedBAMPattern = "*_marked.bam"
)

// MergeRequest asks for the final BAMs of several analysis directories to be
// merged into one BAM of a sample.
type MergeRequest struct {
	Sample    string
	OutputDir string
	// Inputs are analysis directories, each holding one *_marked.bam.
	Inputs []string
	// After are jobs the merge must wait for.
	After []batch.Handle
}

// ValidateMerge checks a merge request and returns the BAM of each input
// directory, in input order.
func ValidateMerge(sample, outputDir string, inputs []string) ([]string, error) {
	if sample == "" {
		return nil, errors.E(errors.Invalid, "merge: sample name must be specified")
	}
	if len(inputs) < 2 {
		return nil, errors.E(errors.Precondition, "merge: at least two files required")
	}
	if !isDir(outputDir) {
		return nil, errors.E(errors.Invalid, "merge: output directory", outputDir, "does not exist")
	}
	bams := make([]string, len(inputs))
	errs := make([]error, len(inputs))
	_ = traverse.Each(len(inputs), func(i int) error {
		bams[i], errs[i] = markedBAM(inputs[i])
		return nil
	})
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return bams, nil
}

func markedBAM(dir string) (string, error) {
	if !isDir(dir) {
		return "", errors.E(errors.Precondition, "merge: input directory", dir, "does not exist")
	}
	matches, err := filepath.Glob(filepath.Join(dir, markedBAMPattern))
	if err != nil {
		return "", errors.E(err, "list", dir)
	}
	if len(matches) != 1 {
		return "", errors.E(errors.Precondition,
			fmt.Sprintf("merge: exactly one bam expected in %s, found %d", dir, len(matches)))
	}
	return matches[0], nil
}

// Merge validates req and submits the merge job: one whole node on the
// default queue running in the output directory. Nothing is submitted when
// validation fails.
func Merge(ctx context.Context, env *Env, req MergeRequest) (Result, error) {
	var res Result
	if _, err := ValidateMerge(req.Sample, req.OutputDir, req.Inputs); err != nil {
		return res, err
	}
	args := append([]string{"-sample", req.Sample, "-out", req.OutputDir}, req.Inputs...)
	j := batch.NewJob("Merge_"+req.Sample, env.self("merge-run", args...))
	if err := j.LockWholeNode(config.DefaultQueue); err != nil {
		return res, err
	}
	h, err := env.submit(ctx, j, req.OutputDir, req.After...)
	if err != nil {
		return res, err
	}
	res.add(h)
	return res, nil
}

// MergeRun is the body of the merge job. It merges the input BAMs, marks
// duplicates in the merged BAM and analyzes the result.
func MergeRun(ctx context.Context, env *Env, sample, outputDir string, inputs []string) error {
	bams, err := ValidateMerge(sample, outputDir, inputs)
	if err != nil {
		return err
	}
	if err := unix.Access(outputDir, unix.W_OK); err != nil {
		return errors.E(errors.Invalid, err, "merge: output directory", outputDir, "is not writable")
	}
	for _, b := range bams {
		others, err := foreignSamples(ctx, b, sample)
		if err != nil {
			return err
		}
		if len(others) > 0 {
			log.Error.Printf("merge %s: %s has read groups of samples %v", sample, b, others)
		}
	}
	lim := env.queueLimits(config.DefaultQueue)
	log.Printf("merge %s: max memory %dMB, max cores %d for queue %s, picard heap %s",
		sample, lim.MaxMemory, lim.MaxCores, config.DefaultQueue, env.Site.Picard.MaxHeapSize)
	merged := filepath.Join(outputDir, MergedBAM)
	final := filepath.Join(outputDir, FinalBAM)
	mergeArgs := make([]string, 0, len(bams)+3)
	for _, b := range bams {
		mergeArgs = append(mergeArgs, "I="+b)
	}
	mergeArgs = append(mergeArgs, "O="+merged, "USE_THREADING=true", "AS=true")
	return env.run(ctx, outputDir,
		step{"mergeLog", env.picard("MergeSamFiles.jar", mergeArgs...)},
		step{"markDups", env.picard("MarkDuplicates.jar", "I="+merged, "O="+final,
			"AS=true", "M="+filepath.Join(outputDir, mergeMetricsFile))},
		step{"bamAnalyzer", env.analyzer(bamAnalyzerJar, "I="+final,
			"O="+filepath.Join(outputDir, MapStatsFile), "X="+filepath.Join(outputDir, BAMAnalysisFile))},
	)
}

var sampleTag = sam.NewTag("SM")

// ReadGroupSamples returns the sample names of the read groups in the
// header of a BAM file.
func ReadGroupSamples(ctx context.Context, path string) (samples []string, err error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(errors.Precondition, err, "open", path)
	}
	defer file.CloseAndReport(ctx, f, &err)
	r, err := bam.NewReader(f.Reader(ctx), 1)
	if err != nil {
		return nil, errors.E(errors.Precondition, err, "read BAM header of", path)
	}
	for _, rg := range r.Header().RGs() {
		if sm := rg.Get(sampleTag); sm != "" {
			samples = append(samples, sm)
		}
	}
	return samples, r.Close()
}

// foreignSamples returns the read group samples of a BAM other than sample.
func foreignSamples(ctx context.Context, path, sample string) ([]string, error) {
	samples, err := ReadGroupSamples(ctx, path)
	if err != nil {
		return nil, err
	}
	var others []string
	for _, s := range samples {
		if s != sample {
			others = append(others, s)
		}
	}
	return others, nil
}
