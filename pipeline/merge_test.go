package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/seqpipe/batch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeBAM(t *testing.T, path string, samples ...string) {
	text := "@HD\tVN:1.4\tSO:coordinate\n"
	for i, s := range samples {
		text += "@RG\tID:" + string(rune('0'+i)) + "\tSM:" + s + "\n"
	}
	h, err := sam.NewHeader([]byte(text), nil)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	f, err := os.Create(path)
	require.NoError(t, err)
	w, err := bam.NewWriter(f, h, 1)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
}

// mergeInputs creates analysis directories under the fixture root, each
// holding the given number of marked BAMs.
func mergeInputs(t *testing.T, f *fixture, bams ...int) (out string, inputs []string) {
	out = filepath.Join(f.root, "merged")
	require.NoError(t, os.MkdirAll(out, 0755))
	for i, n := range bams {
		dir := filepath.Join(f.root, "lanes", string(rune('a'+i)))
		require.NoError(t, os.MkdirAll(dir, 0755))
		for j := 0; j < n; j++ {
			writeBAM(t, filepath.Join(dir, MarkedBAM(string(rune('A'+j)))), "NA12878")
		}
		inputs = append(inputs, dir)
	}
	return out, inputs
}

func TestMergeRequiresTwoInputs(t *testing.T) {
	f, cleanup := newFixture(t)
	defer cleanup()
	out, inputs := mergeInputs(t, f, 1)

	_, err := Merge(context.Background(), f.env, MergeRequest{Sample: "NA12878", OutputDir: out, Inputs: inputs})
	require.Error(t, err)
	assert.True(t, IsDependencyNotMet(err), "%v", err)
	assert.Contains(t, err.Error(), "at least two files required")
	assert.Empty(t, f.submits.Commands())
}

func TestMergeRequiresOneBAMPerInput(t *testing.T) {
	for _, counts := range [][]int{{1, 0}, {2, 1}} {
		f, cleanup := newFixture(t)
		out, inputs := mergeInputs(t, f, counts...)

		_, err := Merge(context.Background(), f.env, MergeRequest{Sample: "NA12878", OutputDir: out, Inputs: inputs})
		require.Error(t, err)
		assert.True(t, IsDependencyNotMet(err), "%v", err)
		assert.False(t, IsSubmission(err))
		assert.Contains(t, err.Error(), "exactly one bam expected")
		assert.Empty(t, f.submits.Commands())
		cleanup()
	}
}

func TestMergeValidation(t *testing.T) {
	f, cleanup := newFixture(t)
	defer cleanup()
	out, inputs := mergeInputs(t, f, 1, 1)

	_, err := ValidateMerge("", out, inputs)
	assert.True(t, IsConfiguration(err), "%v", err)
	_, err = ValidateMerge("NA12878", filepath.Join(f.root, "nonexistent"), inputs)
	assert.True(t, IsConfiguration(err), "%v", err)
	_, err = ValidateMerge("NA12878", out, []string{inputs[0], filepath.Join(f.root, "missing")})
	assert.True(t, IsDependencyNotMet(err), "%v", err)

	bams, err := ValidateMerge("NA12878", out, inputs)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(inputs[0], "A_marked.bam"),
		filepath.Join(inputs[1], "A_marked.bam"),
	}, bams)
}

func TestMergeSubmitsOneWholeNodeJob(t *testing.T) {
	f, cleanup := newFixture(t)
	defer cleanup()
	out, inputs := mergeInputs(t, f, 1, 1)
	upstream := []batch.Handle{{JobName: "a", JobID: "77"}, {JobName: "b", JobID: "78"}}

	res, err := Merge(context.Background(), f.env, MergeRequest{
		Sample: "NA12878", OutputDir: out, Inputs: inputs, After: upstream})
	require.NoError(t, err)
	require.Len(t, res.Handles, 1)
	assert.Equal(t, "1001", res.Handles[0].JobID)

	cmds := f.submits.Commands()
	require.Len(t, cmds, 1)
	c := cmds[0]
	assert.Equal(t, "msub", c.Path)
	assert.True(t, strings.HasPrefix(flagValue(c, "-N"), "Merge_NA12878_"))
	assert.Equal(t, "normal", flagValue(c, "-q"))
	assert.Equal(t, out, flagValue(c, "-d"))
	assert.Equal(t, "depend=afterok:77:78", depends(c))
	assert.Equal(t, "nodes=1:ppn=8,mem=28000mb", shape(c))
	assert.Equal(t, "/opt/seqpipe/bin/seqpipe merge-run -config /etc/seqpipe/config_params.yml "+
		"-sample NA12878 -out "+out+" "+inputs[0]+" "+inputs[1], c.Stdin)
}

func TestReadGroupSamples(t *testing.T) {
	f, cleanup := newFixture(t)
	defer cleanup()
	path := filepath.Join(f.root, "x.bam")
	writeBAM(t, path, "NA12878", "NA12891")

	samples, err := ReadGroupSamples(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"NA12878", "NA12891"}, samples)
	others, err := foreignSamples(context.Background(), path, "NA12878")
	require.NoError(t, err)
	assert.Equal(t, []string{"NA12891"}, others)

	touchFiles(t, f.root, "junk.bam")
	_, err = ReadGroupSamples(context.Background(), filepath.Join(f.root, "junk.bam"))
	assert.True(t, IsDependencyNotMet(err), "%v", err)
}

func TestMergeRun(t *testing.T) {
	f, cleanup := newFixture(t)
	defer cleanup()
	out, inputs := mergeInputs(t, f, 1, 1)

	require.NoError(t, MergeRun(context.Background(), f.env, "NA12878", out, inputs))
	assert.Equal(t, []string{"MergeSamFiles.jar", "MarkDuplicates.jar", "BAMAnalyzer.jar"}, f.java())
	cmds := f.tools.Commands()
	require.Len(t, cmds, 3)
	for _, c := range cmds {
		assert.Equal(t, out, c.Dir)
	}
	merge := cmds[0].Args
	assert.Contains(t, merge, "I="+filepath.Join(inputs[0], "A_marked.bam"))
	assert.Contains(t, merge, "I="+filepath.Join(inputs[1], "A_marked.bam"))
	assert.Contains(t, merge, "O="+filepath.Join(out, MergedBAM))
	assert.Contains(t, merge, "VALIDATION_STRINGENCY=LENIENT")
	assert.Contains(t, cmds[1].Args, "O="+filepath.Join(out, FinalBAM))
	for _, log := range []string{"mergeLog.log", "markDups.log", "bamAnalyzer.log"} {
		_, err := os.Stat(filepath.Join(out, log))
		assert.NoError(t, err, log)
	}
}

func TestMergeRunStopsAtFirstFailure(t *testing.T) {
	f, cleanup := newFixture(t)
	defer cleanup()
	out, inputs := mergeInputs(t, f, 1, 1)
	f.fail["java"] = "Exception in thread main"

	err := MergeRun(context.Background(), f.env, "NA12878", out, inputs)
	require.Error(t, err)
	assert.True(t, IsExternalTool(err), "%v", err)
	assert.Contains(t, err.Error(), "mergeLog")
	assert.Len(t, f.tools.Commands(), 1)
}
