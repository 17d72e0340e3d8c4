package cmd

import (
	"context"
	"io"

	"github.com/grailbio/base/log"
	"github.com/grailbio/seqpipe/pipeline"
	"v.io/x/lib/cmdline"
)

// The subcommands below are the bodies of batch jobs. They take the
// analysis directory of a lane.

func newCmdBuildFastq() *cmdline.Command {
	c := newStageCommand("build-fastq", "Build the purity filtered sequence files of a lane", "")
	dir := c.cmd.Flags.String("dir", "", "Analysis directory")
	prefix := c.cmd.Flags.String("prefix", "", "Sequence file prefix, the flowcell barcode")
	paired := c.cmd.Flags.Bool("paired", false, "Build read 2 as well")
	return c.run(func(ctx context.Context, env *pipeline.Env, stdout io.Writer, argv []string) error {
		if err := noArgs("build-fastq", argv); err != nil {
			return err
		}
		if err := required("dir", *dir); err != nil {
			return err
		}
		err := pipeline.BuildFastq(ctx, *dir, *prefix, *paired)
		return reported(env, "Error in building sequence files", *dir, *prefix, err)
	})
}

func newCmdPostSequence() *cmdline.Command {
	c := newStageCommand("post-sequence", "Upload sequence metrics and submit the analysis and alignment of a lane", "")
	dir := c.cmd.Flags.String("dir", "", "Analysis directory")
	return c.run(func(ctx context.Context, env *pipeline.Env, stdout io.Writer, argv []string) error {
		if err := noArgs("post-sequence", argv); err != nil {
			return err
		}
		if err := required("dir", *dir); err != nil {
			return err
		}
		res, err := pipeline.PostSequence(ctx, env, *dir)
		printResult(stdout, res)
		return reported(env, "Error in post sequence processing", *dir, fcBarcodeOf(ctx, *dir), err)
	})
}

func newCmdAnalyzeSequence() *cmdline.Command {
	c := newStageCommand("analyze-sequence", "Measure and upload the uniqueness of a lane's reads", "")
	dir := c.cmd.Flags.String("dir", "", "Analysis directory")
	return c.run(func(ctx context.Context, env *pipeline.Env, stdout io.Writer, argv []string) error {
		if err := noArgs("analyze-sequence", argv); err != nil {
			return err
		}
		if err := required("dir", *dir); err != nil {
			return err
		}
		err := pipeline.AnalyzeSequence(ctx, env, *dir)
		return reported(env, "Error in sequence analysis", *dir, fcBarcodeOf(ctx, *dir), err)
	})
}

func newCmdAlign() *cmdline.Command {
	c := newStageCommand("align", "Submit the alignment jobs of a lane", "")
	dir := c.cmd.Flags.String("dir", "", "Analysis directory")
	return c.run(func(ctx context.Context, env *pipeline.Env, stdout io.Writer, argv []string) error {
		if err := noArgs("align", argv); err != nil {
			return err
		}
		if err := required("dir", *dir); err != nil {
			return err
		}
		res, err := pipeline.Align(ctx, env, *dir)
		printResult(stdout, res)
		return reported(env, "Error in alignment", *dir, fcBarcodeOf(ctx, *dir), err)
	})
}

func newCmdProcessBam() *cmdline.Command {
	c := newStageCommand("process-bam", "Sort, mark duplicates and analyze the alignment of a lane", "")
	dir := c.cmd.Flags.String("dir", "", "Analysis directory")
	return c.run(func(ctx context.Context, env *pipeline.Env, stdout io.Writer, argv []string) error {
		if err := noArgs("process-bam", argv); err != nil {
			return err
		}
		if err := required("dir", *dir); err != nil {
			return err
		}
		err := pipeline.ProcessBam(ctx, env, *dir)
		return reported(env, "Error in BAM processing", *dir, fcBarcodeOf(ctx, *dir), err)
	})
}

func newCmdUpload() *cmdline.Command {
	c := newStageCommand("upload", "Upload the metrics of a lane to LIMS", "")
	dir := c.cmd.Flags.String("dir", "", "Analysis directory")
	status := c.cmd.Flags.String("status", "", "Lane status: SEQUENCE_FINISHED or ANALYSIS_FINISHED")
	return c.run(func(ctx context.Context, env *pipeline.Env, stdout io.Writer, argv []string) error {
		if err := noArgs("upload", argv); err != nil {
			return err
		}
		if err := required("dir", *dir); err != nil {
			return err
		}
		st, err := pipeline.ParseStatus(*status)
		if err != nil {
			return err
		}
		err = pipeline.Upload(ctx, env, *dir, st)
		fcb := fcBarcodeOf(ctx, *dir)
		return reported(env, "LIMS upload error for : "+fcb, *dir, fcb, err)
	})
}

func newCmdMergeRun() *cmdline.Command {
	c := newStageCommand("merge-run", "Merge, mark duplicates and analyze the BAMs of one sample", "dir...")
	sample := c.cmd.Flags.String("sample", "", "Sample name")
	out := c.cmd.Flags.String("out", "", "Output directory")
	return c.run(func(ctx context.Context, env *pipeline.Env, stdout io.Writer, argv []string) error {
		log.Printf("merging %d inputs of %s into %s", len(argv), *sample, *out)
		err := pipeline.MergeRun(ctx, env, *sample, *out, argv)
		return reported(env, "Error in merging "+*sample, *out, "", err)
	})
}
