package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/grailbio/seqpipe/batch"
	"github.com/grailbio/seqpipe/config"
	"github.com/grailbio/seqpipe/flowcell"
	"github.com/grailbio/seqpipe/lims"
	"github.com/grailbio/seqpipe/notify"
	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/require"
)

const (
	testFC       = "110930_SN142_0212_BC0AK6ABXX"
	testSiteYAML = `
sequencers:
  rootDir: %s
casava:
  bclToFastqPath: /opt/casava/bin/configureBclToFastq.pl
bwa:
  path: /opt/bwa/bwa
picard:
  path: /opt/picard
  tempDir: %s
lims:
  scriptDir: /opt/lims
tools:
  javaDir: /opt/seqpipe/java
  seqpipe: /opt/seqpipe/bin/seqpipe
  barcodeLabels: %s
scheduler:
  queue:
    normal:
      maxCores: 8
    hptest:
      maxCores: 16
`
)

var testNow = time.Date(2011, 10, 3, 12, 0, 0, 0, time.FixedZone("CDT", -5*3600))

type fixture struct {
	env     *Env
	root    string
	submits *batch.FakeRunner
	tools   *batch.FakeRunner
	mailer  *notify.FakeMailer
	stderr  *bytes.Buffer
	// replies maps a tool (or LIMS script) name to its output.
	replies map[string]string
	// fail maps a tool name to the output of a failing run.
	fail map[string]string
}

func newFixture(t *testing.T) (*fixture, func()) {
	dir, cleanup := testutil.TempDir(t, "", "seqpipe")
	root := filepath.Join(dir, "instruments")
	tmp := filepath.Join(dir, "tmp")
	labels := filepath.Join(dir, "barcode_label.txt")
	require.NoError(t, os.MkdirAll(root, 0755))
	require.NoError(t, os.MkdirAll(tmp, 0755))
	require.NoError(t, ioutil.WriteFile(labels, []byte("ID03,CAGATC\nID05,ACAGTG\n"), 0644))

	site, err := config.ParseSite([]byte(fmt.Sprintf(testSiteYAML, root, tmp, labels)))
	require.NoError(t, err)
	site.Path = "/etc/seqpipe/config_params.yml"
	f := &fixture{
		root:    root,
		submits: &batch.FakeRunner{},
		mailer:  &notify.FakeMailer{},
		stderr:  &bytes.Buffer{},
		replies: map[string]string{},
		fail:    map[string]string{},
	}
	f.tools = &batch.FakeRunner{Respond: f.respond}
	f.env = &Env{
		Site:      site,
		Layout:    flowcell.Layout{Root: root},
		Scheduler: batch.NewScheduler("msub", f.submits),
		Runner:    f.tools,
		LIMS:      &lims.Client{ScriptDir: "/opt/lims", Runner: f.tools},
		Reporter: &notify.Reporter{
			From: "sol-pipe@example.com",
			Recipients: notify.Recipients{
				Results: []string{"results@example.com"},
				Errors:  []string{"errors@example.com"},
			},
			Mailer: f.mailer,
			Stderr: f.stderr,
		},
		Now: func() time.Time { return testNow },
	}
	return f, cleanup
}

// respond answers LIMS scripts by script name and other tools by program
// name. Unlisted LIMS scripts succeed; unlisted tools print nothing.
func (f *fixture) respond(c batch.Command) (string, error) {
	key := filepath.Base(c.Path)
	if key == "perl" && len(c.Args) > 0 {
		key = filepath.Base(c.Args[0])
	}
	if out, ok := f.fail[key]; ok {
		return out, &batch.ToolError{Command: c.String(), Output: out, Err: errors.New("exit status 1")}
	}
	if out, ok := f.replies[key]; ok {
		return out, nil
	}
	if strings.HasSuffix(key, ".pl") {
		return "success\n", nil
	}
	return "", nil
}

// baseCalls creates the base calls directory of testFC.
func (f *fixture) baseCalls(t *testing.T) string {
	dir := filepath.Join(f.root, "SN142", testFC, flowcell.BaseCallsSubdir)
	require.NoError(t, os.MkdirAll(dir, 0755))
	return dir
}

// analysisDir creates the analysis directory of a lane barcode of testFC.
func (f *fixture) analysisDir(t *testing.T, laneBarcode string) string {
	dir := flowcell.AnalysisDir(flowcell.ResultsDirFor(f.baseCalls(t)), testFC, laneBarcode)
	require.NoError(t, os.MkdirAll(dir, 0755))
	return dir
}

// lims returns the LIMS script invocations, as argument lists without
// the script directory.
func (f *fixture) lims() [][]string {
	var calls [][]string
	for _, c := range f.tools.Commands() {
		if c.Path == "perl" {
			calls = append(calls, append([]string{filepath.Base(c.Args[0])}, c.Args[1:]...))
		}
	}
	return calls
}

// java returns the jars run with java, in order.
func (f *fixture) java() []string {
	var jars []string
	for _, c := range f.tools.Commands() {
		if c.Path != "java" {
			continue
		}
		for i, a := range c.Args {
			if a == "-jar" && i+1 < len(c.Args) {
				jars = append(jars, filepath.Base(c.Args[i+1]))
			}
		}
	}
	return jars
}

func lane2Params() config.AnalysisParams {
	return config.AnalysisParams{
		ReferencePath:  "/stornext/ref/hg19.fa",
		LibraryName:    "LIB1",
		SampleName:     "NA12878",
		RGPUField:      "700142_20110930_C0AK6ABXX-2",
		FCBarcode:      "C0AK6ABXX-2",
		BaseQualFormat: config.Phred33,
		Queue:          config.DefaultQueue,
	}
}

func writeParams(t *testing.T, dir string, p config.AnalysisParams) {
	require.NoError(t, config.WriteParams(context.Background(), dir, p))
}

func touchFiles(t *testing.T, dir string, names ...string) {
	for _, n := range names {
		path := filepath.Join(dir, n)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, ioutil.WriteFile(path, []byte(n), 0644))
	}
}

// flagValues returns the values following every occurrence of flag in c.
func flagValues(c batch.Command, flag string) []string {
	var vals []string
	for i, a := range c.Args {
		if a == flag && i+1 < len(c.Args) {
			vals = append(vals, c.Args[i+1])
		}
	}
	return vals
}

func flagValue(c batch.Command, flag string) string {
	if v := flagValues(c, flag); len(v) > 0 {
		return v[0]
	}
	return ""
}

// depends returns the afterok clause of a submission, or "".
func depends(c batch.Command) string {
	for _, v := range flagValues(c, "-l") {
		if strings.HasPrefix(v, "depend=") {
			return v
		}
	}
	return ""
}

// shape returns the node request of a submission.
func shape(c batch.Command) string {
	for _, v := range flagValues(c, "-l") {
		if strings.HasPrefix(v, "nodes=") {
			return v
		}
	}
	return ""
}
