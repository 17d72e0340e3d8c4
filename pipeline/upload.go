package pipeline

import (
	"context"
	"encoding/xml"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/seqpipe/config"
	"github.com/grailbio/seqpipe/encoding/fastq"
	"github.com/grailbio/seqpipe/flowcell"
	"github.com/grailbio/seqpipe/lims"
)

// analysisMetrics is the part of the analyzers' XML reports the pipeline
// reads.
type analysisMetrics struct {
	XMLName    xml.Name `xml:"AnalysisMetrics"`
	Alignments []struct {
		ReadType string `xml:"ReadType,attr"`
		ReadInfo []struct {
			PercentMapped   string `xml:"PercentMapped,attr"`
			PercentMismatch string `xml:"PercentMismatch,attr"`
		} `xml:"ReadInfo"`
	} `xml:"AlignmentResults"`
	Uniqueness struct {
		PercentUnique string `xml:"PercentUnique,attr"`
	} `xml:"Uniqueness"`
}

func readAnalysisMetrics(ctx context.Context, path string) (*analysisMetrics, error) {
	data, err := file.ReadFile(ctx, path)
	if err != nil {
		return nil, errors.E(errors.Precondition, err, "did not find", path)
	}
	m := &analysisMetrics{}
	if err := xml.Unmarshal(data, m); err != nil {
		return nil, errors.E(errors.Invalid, err, "parse", path)
	}
	return m, nil
}

// alignment returns the mapped and mismatch percentages of read n. A read
// the analyzer did not report counts as unaligned.
func (m *analysisMetrics) alignment(n int) (mapped, mismatch string) {
	mapped, mismatch = "0", "100"
	for _, a := range m.Alignments {
		if a.ReadType == fmt.Sprintf("READ%d", n) && len(a.ReadInfo) > 0 {
			mapped, mismatch = a.ReadInfo[0].PercentMapped, a.ReadInfo[0].PercentMismatch
		}
	}
	return
}

// Upload uploads the metrics of an analysis directory for a lane status:
// lims.SequenceFinished or lims.AnalysisFinished.
func Upload(ctx context.Context, env *Env, dir string, status lims.Status) error {
	p, err := config.ReadParams(ctx, dir)
	if err != nil {
		return err
	}
	switch status {
	case lims.SequenceFinished:
		return UploadSequenceMetrics(ctx, env, dir, p)
	case lims.AnalysisFinished:
		return UploadAnalysisMetrics(ctx, env, dir, p)
	default:
		return errors.E(errors.Invalid, "cannot upload lane status", string(status))
	}
}

// UploadSequenceMetrics uploads the purity filter results of each read.
func UploadSequenceMetrics(ctx context.Context, env *Env, dir string, p config.AnalysisParams) (err error) {
	path := filepath.Join(dir, fastq.MetricsFile)
	f, err := file.Open(ctx, path)
	if err != nil {
		return errors.E(errors.Precondition, err, "did not find", path)
	}
	defer file.CloseAndReport(ctx, f, &err)
	stats, err := fastq.ReadMetrics(f.Reader(ctx))
	if err != nil {
		return errors.E(errors.Invalid, err, path)
	}
	if len(stats) == 0 {
		return errors.E(errors.Precondition, "no reads in", path)
	}
	for _, s := range stats {
		metrics := []lims.Metric{
			lims.M("READ", s.Read),
			lims.M("PERCENT_PF_READS", fmt.Sprintf("%.2f", s.PercentPassed())),
		}
		if s.Read == 1 {
			metrics = append(metrics, lims.M("RAW_READS", s.Total), lims.M("PF_READS", s.Passed))
		}
		if err := env.LIMS.SetLaneStatus(ctx, p.FCBarcode, lims.SequenceFinished, metrics...); err != nil {
			return err
		}
	}
	return nil
}

// UploadAnalysisMetrics uploads the alignment results of each read from
// the BAM analyzer's report.
func UploadAnalysisMetrics(ctx context.Context, env *Env, dir string, p config.AnalysisParams) error {
	m, err := readAnalysisMetrics(ctx, filepath.Join(dir, BAMAnalysisFile))
	if err != nil {
		return err
	}
	reads, err := flowcell.SequenceFiles(dir)
	if err != nil {
		return err
	}
	n := 1
	if len(reads) >= 2 {
		n = 2
	}
	ref := p.ReferencePath
	if ref == "" {
		ref = "none"
	}
	for read := 1; read <= n; read++ {
		mapped, mismatch := m.alignment(read)
		err := env.LIMS.SetLaneStatus(ctx, p.FCBarcode, lims.AnalysisFinished,
			lims.M("READ", read),
			lims.M("PERCENT_ALIGN_PF", mapped),
			lims.M("PERCENT_ERROR_RATE_PF", mismatch),
			lims.M("REFERENCE_PATH", ref),
			lims.M("RESULTS_PATH", dir))
		if err != nil {
			return err
		}
	}
	return nil
}

// ParseStatus parses the name of an uploadable lane status.
func ParseStatus(s string) (lims.Status, error) {
	switch st := lims.Status(strings.ToUpper(s)); st {
	case lims.SequenceFinished, lims.AnalysisFinished:
		return st, nil
	}
	return "", errors.E(errors.Invalid, "unknown lane status", s)
}
