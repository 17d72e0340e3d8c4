package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/seqpipe/batch"
	"github.com/grailbio/seqpipe/lock"
	"github.com/grailbio/seqpipe/pipeline"
	"v.io/x/lib/cmdline"
)

// DetectLock is the name of the detector's lock, relative to the
// sequencers root directory.
const DetectLock = ".seqpipe_detect.lock"

func noArgs(name string, argv []string) error {
	if len(argv) != 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("%s takes no arguments, but got %v", name, argv))
	}
	return nil
}

func required(flag, val string) error {
	if val == "" {
		return errors.E(errors.Invalid, "-"+flag, "is required")
	}
	return nil
}

// flowcellDir returns the base calls directory of fc for error reports, or
// "" if it cannot be found.
func flowcellDir(env *pipeline.Env, fc string) string {
	dir, err := env.Layout.BaseCallsDir(fc)
	if err != nil {
		return ""
	}
	return dir
}

func newCmdDetect() *cmdline.Command {
	c := newStageCommand("detect", "Start the analysis of flowcells that finished copying", "")
	lockPath := c.cmd.Flags.String("lock", "", "Lock file held during the scan. Defaults to "+DetectLock+" in the sequencers root")
	return c.run(func(ctx context.Context, env *pipeline.Env, stdout io.Writer, argv []string) error {
		if err := noArgs("detect", argv); err != nil {
			return err
		}
		path := *lockPath
		if path == "" {
			path = filepath.Join(env.Site.Sequencers.RootDir, DetectLock)
		}
		d := &pipeline.Detector{Env: env, Lock: lock.New(path)}
		started, err := d.Run(ctx)
		for _, fc := range started {
			fmt.Fprintln(stdout, fc)
		}
		return reported(env, "Error in flowcell detection", env.Site.Sequencers.RootDir, "", err)
	})
}

func newCmdPreprocess() *cmdline.Command {
	c := newStageCommand("preprocess", "Prepare a flowcell for analysis and start demultiplexing", "")
	fc := c.cmd.Flags.String("flowcell", "", "Flowcell directory name")
	actions := c.cmd.Flags.String("actions", "all", `Comma-separated preprocessing actions: build_fc_defn,
upload_start_date, build_barcode_defn, build_sample_sheet, run_next_step or all`)
	mask := c.cmd.Flags.String("bases-mask", "", "CASAVA --use-bases-mask value")
	return c.run(func(ctx context.Context, env *pipeline.Env, stdout io.Writer, argv []string) error {
		if err := noArgs("preprocess", argv); err != nil {
			return err
		}
		if err := required("flowcell", *fc); err != nil {
			return err
		}
		a, err := pipeline.ParseActions(strings.Split(*actions, ","))
		if err != nil {
			return err
		}
		log.Printf("preprocessing %s: %s", *fc, a)
		res, err := pipeline.Preprocess(ctx, env, *fc, a, *mask)
		printResult(stdout, res)
		return reported(env, "Error in pre-processing flowcell "+*fc, flowcellDir(env, *fc), "", err)
	})
}

func newCmdBclToFastq() *cmdline.Command {
	c := newStageCommand("bcl2fastq", "Configure CASAVA and submit demultiplexing and the lane jobs of a flowcell", "")
	fc := c.cmd.Flags.String("flowcell", "", "Flowcell directory name")
	mask := c.cmd.Flags.String("bases-mask", "", "CASAVA --use-bases-mask value")
	return c.run(func(ctx context.Context, env *pipeline.Env, stdout io.Writer, argv []string) error {
		if err := noArgs("bcl2fastq", argv); err != nil {
			return err
		}
		if err := required("flowcell", *fc); err != nil {
			return err
		}
		res, err := pipeline.BclToFastq(ctx, env, *fc, *mask)
		printResult(stdout, res)
		return reported(env, "Error in BCL to FASTQ conversion of "+*fc, flowcellDir(env, *fc), "", err)
	})
}

func newCmdLane() *cmdline.Command {
	c := newStageCommand("lane", "Write the analysis parameters of a lane and submit its FASTQ jobs", "")
	fc := c.cmd.Flags.String("flowcell", "", "Flowcell directory name")
	lb := c.cmd.Flags.String("lane-barcode", "", "Lane barcode, e.g. 2 or 2-ID03")
	queue := c.cmd.Flags.String("queue", "", "Batch queue of the lane's alignment jobs. Defaults to normal")
	return c.run(func(ctx context.Context, env *pipeline.Env, stdout io.Writer, argv []string) error {
		if err := noArgs("lane", argv); err != nil {
			return err
		}
		for flag, val := range map[string]string{"flowcell": *fc, "lane-barcode": *lb} {
			if err := required(flag, val); err != nil {
				return err
			}
		}
		res, err := pipeline.Lane(ctx, env, *fc, *lb, *queue)
		printResult(stdout, res)
		return reported(env, "Error in starting lane "+*lb+" of "+*fc, flowcellDir(env, *fc), "", err)
	})
}

func newCmdMerge() *cmdline.Command {
	c := newStageCommand("merge", "Submit a job merging the BAMs of several analysis directories of one sample", "dir...")
	sample := c.cmd.Flags.String("sample", "", "Sample name")
	out := c.cmd.Flags.String("out", "", "Existing output directory")
	after := c.cmd.Flags.String("after", "", "Comma-separated batch job IDs the merge waits for")
	return c.run(func(ctx context.Context, env *pipeline.Env, stdout io.Writer, argv []string) error {
		req := pipeline.MergeRequest{Sample: *sample, OutputDir: *out, Inputs: argv}
		if *after != "" {
			for _, id := range strings.Split(*after, ",") {
				req.After = append(req.After, batch.Handle{JobID: strings.TrimSpace(id)})
			}
		}
		return merge(ctx, env, stdout, req)
	})
}

func merge(ctx context.Context, env *pipeline.Env, stdout io.Writer, req pipeline.MergeRequest) error {
	res, err := pipeline.Merge(ctx, env, req)
	printResult(stdout, res)
	return reported(env, "Error in submitting the merge of "+req.Sample, req.OutputDir, "", err)
}

func newCmdCleanCandidates() *cmdline.Command {
	c := newStageCommand("clean-candidates", "List flowcells whose intensity files can be removed", "")
	return c.run(func(ctx context.Context, env *pipeline.Env, stdout io.Writer, argv []string) error {
		if err := noArgs("clean-candidates", argv); err != nil {
			return err
		}
		fcs, err := pipeline.CleaningCandidates(env)
		for _, fc := range fcs {
			fmt.Fprintln(stdout, fc)
		}
		return reported(env, "Error in finding flowcells to clean", env.Site.Sequencers.RootDir, "", err)
	})
}

func newCmdClean() *cmdline.Command {
	c := newStageCommand("clean", "Remove the intensity, filter and image files of flowcells", "flowcell...")
	return c.run(func(ctx context.Context, env *pipeline.Env, stdout io.Writer, argv []string) error {
		if len(argv) == 0 {
			return errors.E(errors.Invalid, "clean takes at least one flowcell")
		}
		return clean(env, stdout, argv)
	})
}

// clean cleans the flowcells in order and stops at the first failure.
func clean(env *pipeline.Env, stdout io.Writer, fcs []string) error {
	for _, fc := range fcs {
		removed, err := pipeline.Clean(env, fc)
		if err != nil {
			return reported(env, "Error in cleaning flowcell "+fc, flowcellDir(env, fc), "", err)
		}
		fmt.Fprintf(stdout, "%s\t%d\n", fc, len(removed))
	}
	return nil
}

// ArchiveList is the name of the archive request list, relative to the
// sequencers root directory.
const ArchiveList = "archive_request_list.txt"

func newCmdArchiveList() *cmdline.Command {
	c := newStageCommand("archive-list", "Append the result directories LIMS recorded two days ago to the archive request list", "")
	list := c.cmd.Flags.String("list", "", "Archive request list. Defaults to "+ArchiveList+" in the sequencers root")
	return c.run(func(ctx context.Context, env *pipeline.Env, stdout io.Writer, argv []string) error {
		if err := noArgs("archive-list", argv); err != nil {
			return err
		}
		path := *list
		if path == "" {
			path = filepath.Join(env.Site.Sequencers.RootDir, ArchiveList)
		}
		return archiveList(ctx, env, stdout, path)
	})
}

func archiveList(ctx context.Context, env *pipeline.Env, stdout io.Writer, path string) error {
	paths, err := pipeline.ArchiveList(ctx, env, path)
	for _, p := range paths {
		fmt.Fprintln(stdout, p)
	}
	date := pipeline.ArchiveDate(env).Format("2006-01-02")
	return reported(env, "Archive Script : Error encountered in appending directory paths for date : "+date, filepath.Dir(path), "", err)
}
