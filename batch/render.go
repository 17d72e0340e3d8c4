package batch

import (
	"fmt"
	"strings"
)

// DefaultProgram is the batch submission client.
const DefaultProgram = "msub"

// Render translates j into the submission command. The job's command line is
// fed to the submission program on stdin.
func Render(program string, j *Job) Command {
	if program == "" {
		program = DefaultProgram
	}
	memoryMB, cores := j.alloc.Resources()
	args := []string{
		"-N", j.name,
		"-o", j.Stdout(),
		"-e", j.Stderr(),
		"-q", j.queue,
	}
	if j.workDir != "" {
		args = append(args, "-d", j.workDir)
	}
	args = append(args, "-V")
	if clause := dependClause(j.deps); clause != "" {
		args = append(args, "-l", clause)
	}
	args = append(args, "-l", fmt.Sprintf("nodes=1:ppn=%d,mem=%dmb", cores, memoryMB))
	return Command{Path: program, Args: args, Stdin: j.command, Dir: j.workDir}
}

// dependClause returns the afterok clause for deps, or "" if there are none.
// Every listed job must succeed.
func dependClause(deps []Handle) string {
	if len(deps) == 0 {
		return ""
	}
	ids := make([]string, len(deps))
	for i, d := range deps {
		ids[i] = d.JobID
	}
	return "depend=afterok:" + strings.Join(ids, ":")
}
