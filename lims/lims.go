// Package lims talks to the laboratory information management system
// through its command-line scripts.
//
// Every script is a perl program in the LIMS API directory. A script fails
// when it exits non-zero or when its output mentions "error"; updates report
// "success" when LIMS accepted them.
package lims

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/seqpipe/batch"
)

// PipelineVersion is reported with every lane status.
const PipelineVersion = "casava1.8"

const (
	flowcellInfoScript  = "getFlowCellInfo.pl"
	analysisDataScript  = "getAnalysisPreData.pl"
	analysisStartScript = "setFlowCellAnalysisStartDate.pl"
	laneStatusScript    = "setIlluminaLaneStatus.pl"
	resultsPathScript   = "getResultsPathInfo.pl"
)

// Client runs LIMS scripts.
type Client struct {
	// Perl is the interpreter. Empty means "perl".
	Perl      string
	ScriptDir string
	Runner    batch.Runner
}

func (c *Client) run(ctx context.Context, script string, args ...string) (string, error) {
	perl := c.Perl
	if perl == "" {
		perl = "perl"
	}
	cmd := batch.Command{Path: perl, Args: append([]string{filepath.Join(c.ScriptDir, script)}, args...)}
	log.Debug.Printf("lims: %s", cmd)
	out, err := c.Runner.Run(ctx, cmd)
	if err != nil {
		return out, err
	}
	if strings.Contains(strings.ToLower(out), "error") {
		return out, &batch.ToolError{Command: cmd.String(), Output: out, Err: errors.New("LIMS reported an error")}
	}
	return out, nil
}

// ResultsPaths returns the result directories LIMS recorded on date. Each
// line of the script's output is a ';'-separated record whose second field
// is the path; records without one are skipped.
func (c *Client) ResultsPaths(ctx context.Context, date time.Time) ([]string, error) {
	day := date.Format("2006-01-02")
	out, err := c.run(ctx, resultsPathScript, day)
	if err != nil {
		return nil, errors.E(err, "obtain result paths for", day)
	}
	var paths []string
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Split(strings.TrimSpace(line), ";")
		if len(fields) < 2 || strings.TrimSpace(fields[1]) == "" {
			continue
		}
		paths = append(paths, strings.TrimSpace(fields[1]))
	}
	return paths, nil
}

var barcodePrefix = regexp.MustCompile(`^[A-Za-z0-9_]+-`)

// LaneBarcodes returns the lane barcodes LIMS lists for the flowcell, e.g.
// "1", "2-ID03". limsName is the flowcell name as LIMS knows it.
func (c *Client) LaneBarcodes(ctx context.Context, limsName string) ([]string, error) {
	out, err := c.run(ctx, flowcellInfoScript, limsName)
	if err != nil {
		return nil, errors.E(err, "query lane barcodes of", limsName)
	}
	var barcodes []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		barcodes = append(barcodes, barcodePrefix.ReplaceAllString(line, ""))
	}
	if len(barcodes) == 0 {
		return nil, errors.E(errors.Precondition, "LIMS lists no lanes for flowcell", limsName)
	}
	return barcodes, nil
}

// LaneInfo is what LIMS knows about a lane barcode before analysis.
type LaneInfo struct {
	// Paired is false for fragment flowcells.
	Paired        bool
	Library       string
	Sample        string
	ChipDesign    string
	NumCycles     string
	ReferencePath string
}

var (
	sequenceRef = regexp.MustCompile(`BUILD_PATH=\s*[Ss]equence`)
	stornextRef = regexp.MustCompile(`/stornext/\S+`)
	noneValue   = regexp.MustCompile(`^[Nn]one`)
)

// ParseLaneInfo parses the ';'-separated reply of the analysis data query.
func ParseLaneInfo(out string) LaneInfo {
	info := LaneInfo{Paired: true}
	for _, tok := range strings.Split(out, ";") {
		tok = strings.TrimSpace(tok)
		eq := strings.IndexByte(tok, '=')
		if eq < 0 {
			continue
		}
		val := strings.TrimSpace(tok[eq+1:])
		switch key := tok[:eq]; {
		case key == "FLOWCELL_TYPE":
			info.Paired = strings.HasPrefix(val, "p")
		case key == "Library":
			info.Library = val
		case key == "Sample":
			if !noneValue.MatchString(val) {
				info.Sample = val
			}
		case key == "ChipDesign":
			if !noneValue.MatchString(val) {
				info.ChipDesign = val
			}
		case key == "NUMBER_OF_CYCLES_READ1", key == "NUMBER_OF_CYCLES_READ2":
			info.NumCycles = val
		case key == "BUILD_PATH":
			if sequenceRef.MatchString(tok) {
				info.ReferencePath = "sequence"
			} else if ref := stornextRef.FindString(tok); ref != "" {
				info.ReferencePath = ref
			}
		}
	}
	return info
}

// LaneInfo queries the analysis data of a flowcell barcode.
func (c *Client) LaneInfo(ctx context.Context, fcBarcode string) (LaneInfo, error) {
	out, err := c.run(ctx, analysisDataScript, fcBarcode)
	if err != nil {
		return LaneInfo{}, errors.E(err, "query analysis data of", fcBarcode)
	}
	return ParseLaneInfo(out), nil
}

// SetAnalysisStartDate records that the analysis of the flowcell started.
func (c *Client) SetAnalysisStartDate(ctx context.Context, limsName string) error {
	out, err := c.run(ctx, analysisStartScript, limsName)
	if err != nil {
		return errors.E(err, "upload analysis start date of", limsName)
	}
	checkSuccess(analysisStartScript, limsName, out)
	return nil
}

// Status is a lane status known to LIMS.
type Status string

const (
	SequenceFinished      Status = "SEQUENCE_FINISHED"
	AnalysisFinished      Status = "ANALYSIS_FINISHED"
	UniquePercentFinished Status = "UNIQUE_PERCENT_FINISHED"
)

// Metric is a key and value uploaded with a lane status.
type Metric struct {
	Key, Value string
}

// M is shorthand for building a metric from any value.
func M(key string, value interface{}) Metric {
	return Metric{key, fmt.Sprint(value)}
}

// LaneStatusArgs returns the script arguments of a lane status update.
func LaneStatusArgs(fcBarcode string, status Status, metrics []Metric) []string {
	args := []string{fcBarcode, string(status)}
	for _, m := range metrics {
		args = append(args, m.Key, m.Value)
	}
	return append(args, "PIPELINE_VERSION", PipelineVersion)
}

// SetLaneStatus uploads a lane status with its metrics.
func (c *Client) SetLaneStatus(ctx context.Context, fcBarcode string, status Status, metrics ...Metric) error {
	for _, m := range metrics {
		if m.Value == "" || strings.ContainsAny(m.Value, " \t\n") {
			return errors.E(errors.Invalid, fmt.Sprintf("LIMS metric %s has invalid value %q", m.Key, m.Value))
		}
	}
	out, err := c.run(ctx, laneStatusScript, LaneStatusArgs(fcBarcode, status, metrics)...)
	if err != nil {
		return errors.E(err, "upload", string(status), "for", fcBarcode)
	}
	checkSuccess(laneStatusScript, fcBarcode, out)
	return nil
}

func checkSuccess(script, name, out string) {
	if strings.Contains(strings.ToLower(out), "success") {
		log.Printf("%s %s: uploaded to LIMS", script, name)
		return
	}
	log.Error.Printf("%s %s: LIMS did not confirm the update: %q", script, name, strings.TrimSpace(out))
}
