package pipeline

import "github.com/grailbio/seqpipe/flowcell"

// CleaningCandidates lists the flowcell directories whose intermediate
// files are old enough to be deleted.
func CleaningCandidates(env *Env) ([]string, error) {
	return env.Layout.CleaningCandidates(env.now())
}

// Clean deletes the intermediate intensity and base call files of a
// flowcell and returns what it removed.
func Clean(env *Env, fc string) ([]string, error) {
	dir, err := env.Layout.Find(fc)
	if err != nil {
		return nil, err
	}
	return flowcell.Clean(dir)
}
