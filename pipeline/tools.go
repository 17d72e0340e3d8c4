package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/seqpipe/batch"
)

// Result files of the analyzers.
const (
	MapStatsFile        = "BWA_Map_Stats.txt"
	BAMAnalysisFile     = "BAMAnalysisInfo.xml"
	analyzerHeap        = "-Xmx8G"
	sequenceAnalyzerJar = "SequenceAnalyzer.jar"
	bamAnalyzerJar      = "BAMAnalyzer.jar"
)

// step is one external program run in a directory; its output is kept in
// <name>.log next to its results.
type step struct {
	name string
	cmd  batch.Command
}

// picard returns the invocation of a Picard tool with the site's memory,
// temp dir and validation settings.
func (e *Env) picard(jar string, args ...string) batch.Command {
	p := e.Site.Picard
	a := []string{p.MaxHeapSize, "-jar", e.Site.PicardJar(jar)}
	a = append(a, args...)
	a = append(a,
		"TMP_DIR="+p.TempDir,
		fmt.Sprintf("MAX_RECORDS_IN_RAM=%d", p.MaxRecordsInRAM),
		"VALIDATION_STRINGENCY="+p.Stringency)
	return batch.Command{Path: "java", Args: a}
}

// analyzer returns the invocation of an in-house analyzer jar.
func (e *Env) analyzer(jar string, args ...string) batch.Command {
	return batch.Command{Path: "java", Args: append([]string{analyzerHeap, "-jar", e.Site.Jar(jar)}, args...)}
}

// run runs steps in order in dir and stops at the first failure.
func (e *Env) run(ctx context.Context, dir string, steps ...step) error {
	for _, s := range steps {
		s.cmd.Dir = dir
		log.Printf("%s: %s", s.name, s.cmd)
		out, err := e.Runner.Run(ctx, s.cmd)
		if werr := writeLog(ctx, filepath.Join(dir, s.name+".log"), out); werr != nil {
			log.Error.Printf("%s: %v", s.name, werr)
		}
		if err != nil {
			return errors.E(err, s.name, "failed in", dir)
		}
	}
	return nil
}

func writeLog(ctx context.Context, path, out string) (err error) {
	f, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, f, &err)
	_, err = f.Writer(ctx).Write([]byte(out))
	return err
}

// removeMatching deletes the files of dir matching any of patterns and
// returns how many were removed.
func removeMatching(dir string, patterns ...string) (int, error) {
	n := 0
	for _, pat := range patterns {
		paths, err := filepath.Glob(filepath.Join(dir, pat))
		if err != nil {
			return n, err
		}
		for _, p := range paths {
			if err := os.Remove(p); err != nil {
				return n, errors.E(err, "remove", p)
			}
			n++
		}
	}
	return n, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func quoteAll(args []string) string {
	q := make([]string, len(args))
	for i, a := range args {
		q[i] = batch.Quote(a)
	}
	return strings.Join(q, " ")
}
