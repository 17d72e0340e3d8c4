package pipeline

import (
	"context"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/seqpipe/config"
	"github.com/grailbio/seqpipe/flowcell"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"
)

func testDefinition() *flowcell.Definition {
	def := &flowcell.Definition{Name: "C0AK6ABXX", NumCycles: "101+7", Type: "paired"}
	def.AddLane(flowcell.Lane{ID: "1", ReferencePath: "sequence"})
	def.AddLane(flowcell.Lane{ID: "2-ID03", ReferencePath: "/stornext/ref/hg19.fa", Sample: "NA12878", Library: "LIB1"})
	return def
}

func TestLane(t *testing.T) {
	f, cleanup := newFixture(t)
	defer cleanup()
	ctx := context.Background()
	bc := f.baseCalls(t)
	require.NoError(t, flowcell.WriteDefinition(ctx, bc, testDefinition()))
	dir := f.analysisDir(t, "2-ID03")

	res, err := Lane(ctx, f.env, testFC, "2-ID03", "")
	assert.NoError(t, err)
	expect.EQ(t, len(res.Handles), 2)

	p, err := config.ReadParams(ctx, dir)
	assert.NoError(t, err)
	expect.EQ(t, p, config.AnalysisParams{
		ReferencePath:  "/stornext/ref/hg19.fa",
		LibraryName:    "LIB1",
		SampleName:     "NA12878",
		RGPUField:      "700142_20110930_C0AK6ABXX-2-ID03",
		FCBarcode:      "C0AK6ABXX-2-ID03",
		BaseQualFormat: config.Phred33,
		Queue:          "normal",
	})

	cmds := f.submits.Commands()
	expect.EQ(t, len(cmds), 2)
	build, post := cmds[0], cmds[1]
	expect.EQ(t, build.Stdin, "/opt/seqpipe/bin/seqpipe build-fastq -config /etc/seqpipe/config_params.yml "+
		"-dir "+dir+" -prefix C0AK6ABXX-2-ID03 -paired")
	expect.EQ(t, shape(build), "nodes=1:ppn=2,mem=16000mb")
	expect.EQ(t, depends(build), "")
	expect.EQ(t, post.Stdin, "/opt/seqpipe/bin/seqpipe post-sequence -config /etc/seqpipe/config_params.yml -dir "+dir)
	expect.EQ(t, shape(post), "nodes=1:ppn=1,mem=8000mb")
	expect.EQ(t, depends(post), "depend=afterok:1001")
	expect.True(t, strings.HasPrefix(flagValue(post, "-N"), "C0AK6ABXX-2-ID03_post_sequence_"))
}

func TestLaneErrors(t *testing.T) {
	f, cleanup := newFixture(t)
	defer cleanup()
	ctx := context.Background()
	bc := f.baseCalls(t)

	_, err := Lane(ctx, f.env, testFC, "2-ID03", "")
	expect.True(t, IsDependencyNotMet(err))

	require.NoError(t, flowcell.WriteDefinition(ctx, bc, testDefinition()))
	f.analysisDir(t, "5")
	_, err = Lane(ctx, f.env, testFC, "5", "")
	expect.True(t, IsConfiguration(err))

	_, err = Lane(ctx, f.env, "110930_SN142_0999_AXXXXXXXX", "1", "")
	expect.True(t, IsDependencyNotMet(err))
	expect.EQ(t, len(f.submits.Commands()), 0)
}

func TestBclToFastq(t *testing.T) {
	f, cleanup := newFixture(t)
	defer cleanup()
	ctx := context.Background()
	bc := f.baseCalls(t)
	require.NoError(t, flowcell.WriteDefinition(ctx, bc, testDefinition()))

	_, err := BclToFastq(ctx, f.env, testFC, "")
	expect.True(t, IsDependencyNotMet(err))
	expect.EQ(t, len(f.tools.Commands()), 0)

	touchFiles(t, bc, flowcell.SampleSheetFile)
	res, err := BclToFastq(ctx, f.env, testFC, "Y101,I6n,Y101")
	assert.NoError(t, err)
	expect.EQ(t, len(res.Handles), 3)

	results := flowcell.ResultsDirFor(bc)
	tools := f.tools.Commands()
	expect.EQ(t, len(tools), 1)
	expect.EQ(t, tools[0].Path, "/opt/casava/bin/configureBclToFastq.pl")
	expect.EQ(t, tools[0].Args, []string{
		"--input-dir", bc,
		"--output-dir", results,
		"--sample-sheet", filepath.Join(bc, flowcell.SampleSheetFile),
		"--mismatches", "1",
		"--ignore-missing-stats",
		"--ignore-missing-bcl",
		"--use-bases-mask", "Y101,I6n,Y101",
	})

	cmds := f.submits.Commands()
	expect.EQ(t, len(cmds), 3)
	mk := cmds[0]
	expect.EQ(t, mk.Stdin, "make -j8")
	expect.EQ(t, flagValue(mk, "-q"), "high")
	expect.EQ(t, flagValue(mk, "-d"), results)
	expect.EQ(t, shape(mk), "nodes=1:ppn=8,mem=28000mb")
	for i, lb := range []string{"1", "2-ID03"} {
		c := cmds[i+1]
		expect.EQ(t, depends(c), "depend=afterok:1001")
		expect.EQ(t, c.Stdin, "/opt/seqpipe/bin/seqpipe lane -config /etc/seqpipe/config_params.yml "+
			"-flowcell "+testFC+" -lane-barcode "+lb)
	}
}

func TestBclToFastqConfigureFailure(t *testing.T) {
	f, cleanup := newFixture(t)
	defer cleanup()
	ctx := context.Background()
	bc := f.baseCalls(t)
	require.NoError(t, flowcell.WriteDefinition(ctx, bc, testDefinition()))
	touchFiles(t, bc, flowcell.SampleSheetFile)
	f.fail["configureBclToFastq.pl"] = "Sample sheet error"

	_, err := BclToFastq(ctx, f.env, testFC, "")
	expect.True(t, IsExternalTool(err))
	expect.False(t, IsSubmission(err))
	expect.EQ(t, len(f.submits.Commands()), 0)
}

func TestParseActions(t *testing.T) {
	a, err := ParseActions([]string{"all"})
	assert.NoError(t, err)
	expect.EQ(t, a, AllActions)
	expect.EQ(t, a.String(), "all")

	a, err = ParseActions([]string{"build_fc_defn,build_sample_sheet", "upload_start_date"})
	assert.NoError(t, err)
	expect.True(t, a.Has(BuildDefinition|BuildSampleSheet|UploadStartDate))
	expect.False(t, a.Has(RunNextStep))
	expect.EQ(t, a.String(), "build_fc_defn,build_sample_sheet,upload_start_date")

	_, err = ParseActions(nil)
	expect.True(t, IsConfiguration(err))
	_, err = ParseActions([]string{"build_everything"})
	expect.True(t, IsConfiguration(err))
}

func TestPreprocessAll(t *testing.T) {
	f, cleanup := newFixture(t)
	defer cleanup()
	ctx := context.Background()
	bc := f.baseCalls(t)
	f.replies["getFlowCellInfo.pl"] = "C0AK6ABXX-1\nC0AK6ABXX-2-ID03\n"
	f.replies["getAnalysisPreData.pl"] = "FLOWCELL_TYPE=paired;Library=LIB1;Sample=NA12878;" +
		"ChipDesign=None;NUMBER_OF_CYCLES_READ1=101+7;BUILD_PATH=/stornext/ref/hg19.fa"

	res, err := Preprocess(ctx, f.env, testFC, AllActions, "")
	assert.NoError(t, err)
	expect.EQ(t, len(res.Handles), 3)

	def, err := flowcell.ReadDefinition(ctx, bc)
	assert.NoError(t, err)
	expect.EQ(t, def.Name, "C0AK6ABXX")
	expect.EQ(t, def.Type, "paired")
	expect.EQ(t, def.NumCycles, "101+7")
	expect.EQ(t, def.LaneBarcodes(), []string{"1", "2-ID03"})
	lane, err := def.Lane("2-ID03")
	assert.NoError(t, err)
	expect.EQ(t, lane, flowcell.Lane{ID: "2-ID03", ReferencePath: "/stornext/ref/hg19.fa", Sample: "NA12878", Library: "LIB1"})

	barcodes, err := flowcell.ReadBarcodeDefinition(ctx, bc)
	assert.NoError(t, err)
	expect.EQ(t, barcodes, map[string]string{"ID03": "CAGATC"})

	sheet, err := ioutil.ReadFile(filepath.Join(bc, flowcell.SampleSheetFile))
	assert.NoError(t, err)
	expect.HasSubstr(t, string(sheet), testFC+",2,C0AK6ABXX-2-ID03,sequence,CAGATC,")

	var scripts []string
	for _, call := range f.lims() {
		scripts = append(scripts, strings.Join(call, " "))
	}
	expect.EQ(t, scripts, []string{
		"getFlowCellInfo.pl C0AK6ABXX",
		"getAnalysisPreData.pl C0AK6ABXX-1",
		"getAnalysisPreData.pl C0AK6ABXX-2-ID03",
		"setFlowCellAnalysisStartDate.pl C0AK6ABXX",
	})
}

func TestPreprocessSelectedActions(t *testing.T) {
	f, cleanup := newFixture(t)
	defer cleanup()
	ctx := context.Background()
	bc := f.baseCalls(t)
	require.NoError(t, flowcell.WriteDefinition(ctx, bc, testDefinition()))

	res, err := Preprocess(ctx, f.env, testFC, BuildBarcodeDefinition|BuildSampleSheet, "")
	assert.NoError(t, err)
	expect.EQ(t, len(res.Handles), 0)
	expect.EQ(t, len(f.lims()), 0)
	expect.EQ(t, len(f.submits.Commands()), 0)
	_, err = ioutil.ReadFile(filepath.Join(bc, flowcell.SampleSheetFile))
	assert.NoError(t, err)
}

func TestPreprocessLIMSError(t *testing.T) {
	f, cleanup := newFixture(t)
	defer cleanup()
	f.baseCalls(t)
	f.replies["getFlowCellInfo.pl"] = "Error: no such flowcell\n"

	_, err := Preprocess(context.Background(), f.env, testFC, AllActions, "")
	expect.True(t, IsExternalTool(err))
	expect.EQ(t, len(f.submits.Commands()), 0)
}
