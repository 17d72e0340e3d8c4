// Package cmd implements the seqpipe command. Every pipeline stage is a
// subcommand; the batch jobs the stages submit run seqpipe subcommands
// themselves.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/seqpipe/config"
	"github.com/grailbio/seqpipe/pipeline"
	"v.io/x/lib/cmdline"
)

// DefaultConfig is the site configuration used when -config is not given.
// The SEQPIPE_CONFIG environment variable overrides it.
const DefaultConfig = "/etc/seqpipe/config_params.yml"

func defaultConfig() string {
	if path := os.Getenv("SEQPIPE_CONFIG"); path != "" {
		return path
	}
	return DefaultConfig
}

// stageCommand is a subcommand that needs the site environment.
type stageCommand struct {
	cmd    *cmdline.Command
	config *string
}

func newStageCommand(name, short, argsName string) *stageCommand {
	c := &stageCommand{cmd: &cmdline.Command{Name: name, Short: short, ArgsName: argsName}}
	c.config = c.cmd.Flags.String("config", defaultConfig(), "Site configuration file")
	return c
}

// run sets the body of the subcommand. The body gets the environment of
// the site named by -config.
func (c *stageCommand) run(fn func(ctx context.Context, env *pipeline.Env, stdout io.Writer, argv []string) error) *cmdline.Command {
	c.cmd.Runner = cmdutil.RunnerFunc(func(cenv *cmdline.Env, argv []string) error {
		ctx := vcontext.Background()
		site, err := config.LoadSite(ctx, *c.config)
		if err != nil {
			return err
		}
		env, err := pipeline.NewEnv(ctx, site)
		if err != nil {
			return err
		}
		return fn(ctx, env, cenv.Stdout, argv)
	})
	return c.cmd
}

// reported sends an error report for a failed stage and returns err.
func reported(env *pipeline.Env, subject, dir, fcBarcode string, err error) error {
	if err != nil {
		env.Report(subject, dir, fcBarcode, err)
	}
	return err
}

// fcBarcodeOf returns the flowcell barcode recorded in an analysis
// directory, or "" if it has none.
func fcBarcodeOf(ctx context.Context, dir string) string {
	p, err := config.ReadParams(ctx, dir)
	if err != nil {
		return ""
	}
	return p.FCBarcode
}

// printResult writes the jobs a stage submitted, one per line.
func printResult(w io.Writer, res pipeline.Result) {
	if res.Skipped != "" {
		fmt.Fprintln(w, "skipped:", res.Skipped)
	}
	for _, h := range res.Handles {
		fmt.Fprintf(w, "%s\t%s\n", h.JobID, h.JobName)
	}
}

func newCmdRoot() *cmdline.Command {
	return &cmdline.Command{
		Name:     "seqpipe",
		Short:    "Sequencing pipeline job scheduling",
		LookPath: false,
		Children: []*cmdline.Command{
			newCmdDetect(),
			newCmdPreprocess(),
			newCmdBclToFastq(),
			newCmdLane(),
			newCmdBuildFastq(),
			newCmdPostSequence(),
			newCmdAnalyzeSequence(),
			newCmdAlign(),
			newCmdProcessBam(),
			newCmdUpload(),
			newCmdMerge(),
			newCmdMergeRun(),
			newCmdCleanCandidates(),
			newCmdClean(),
			newCmdArchiveList(),
		},
	}
}

func Run() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile)
	cmdline.HideGlobalFlagsExcept()
	cmdline.Main(newCmdRoot())
}
