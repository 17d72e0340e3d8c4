package fastq

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/base/tsv"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// MetricsFile is the purity filter report written next to the sequence
// files.
const MetricsFile = "SequencePFMetrics.metrics"

// FilterStats counts the reads of one read direction.
type FilterStats struct {
	Read   int
	Total  int64
	Passed int64
}

// PercentPassed returns the percentage of reads that passed the filter.
func (s FilterStats) PercentPassed() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Passed) / float64(s.Total) * 100
}

// Filter copies the reads of r that passed the chastity filter to w and
// adds them to s.
func Filter(r io.Reader, w *Writer, s *FilterStats) error {
	sc := NewScanner(r)
	var read Read
	for sc.Scan(&read) {
		s.Total++
		if !read.PassedFilter() {
			continue
		}
		if err := w.Write(&read); err != nil {
			return err
		}
		s.Passed++
	}
	return sc.Err()
}

// FilterSegments filters the gzipped FASTQ segments, in order, into one
// sequence file at out.
func FilterSegments(ctx context.Context, segments []string, out string, read int) (stats FilterStats, err error) {
	stats.Read = read
	dst, err := file.Create(ctx, out)
	if err != nil {
		return stats, errors.Wrapf(err, "create %s", out)
	}
	defer file.CloseAndReport(ctx, dst, &err)
	w := NewWriter(dst.Writer(ctx))
	for _, seg := range segments {
		if err = filterSegment(ctx, seg, w, &stats); err != nil {
			return stats, err
		}
	}
	err = w.Flush()
	return stats, err
}

func filterSegment(ctx context.Context, path string, w *Writer, stats *FilterStats) (err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	gz, err := gzip.NewReader(in.Reader(ctx))
	if err != nil {
		return errors.Wrapf(err, "gunzip %s", path)
	}
	if err = Filter(gz, w, stats); err != nil {
		return errors.Wrap(err, path)
	}
	return gz.Close()
}

// Segments returns the sorted CASAVA FASTQ segments of one read direction
// in dir.
func Segments(dir string, read int) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, fmt.Sprintf("*_R%d_*.fastq.gz", read)))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// SequenceFileName returns the name of the sequence file of one read
// direction.
func SequenceFileName(prefix string, read int) string {
	return fmt.Sprintf("%s_%d_sequence.txt", prefix, read)
}

// ErrNoSegments is returned by BuildSequences when a read direction has no
// FASTQ segments.
var ErrNoSegments = errors.New("no FASTQ segments")

// BuildSequences writes the purity-filtered sequence files <prefix>_1 and,
// for paired flowcells, <prefix>_2 in dir, processing both reads
// concurrently, and writes the metrics file.
func BuildSequences(ctx context.Context, dir, prefix string, paired bool) ([]FilterStats, error) {
	reads := []int{1}
	if paired {
		reads = append(reads, 2)
	}
	segments := make([][]string, len(reads))
	for i, read := range reads {
		segs, err := Segments(dir, read)
		if err != nil {
			return nil, err
		}
		if len(segs) == 0 {
			return nil, errors.Wrapf(ErrNoSegments, "read %d in %s", read, dir)
		}
		segments[i] = segs
	}
	stats := make([]FilterStats, len(reads))
	err := traverse.Each(len(reads), func(i int) error {
		out := filepath.Join(dir, SequenceFileName(prefix, reads[i]))
		var err error
		stats[i], err = FilterSegments(ctx, segments[i], out, reads[i])
		if err == nil {
			log.Printf("read %d: %d of %d reads passed filter (%.2f%%) -> %s",
				reads[i], stats[i].Passed, stats[i].Total, stats[i].PercentPassed(), out)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := writeMetricsFile(ctx, filepath.Join(dir, MetricsFile), stats); err != nil {
		return nil, err
	}
	return stats, nil
}

func writeMetricsFile(ctx context.Context, path string, stats []FilterStats) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer file.CloseAndReport(ctx, out, &err)
	return WriteMetrics(out.Writer(ctx), stats)
}

// WriteMetrics writes stats as TSV with a header row.
func WriteMetrics(w io.Writer, stats []FilterStats) error {
	t := tsv.NewWriter(w)
	for _, h := range []string{"READ", "TOTAL_READS", "PF_READS", "PERCENT_PF_READS"} {
		t.WriteString(h)
	}
	if err := t.EndLine(); err != nil {
		return err
	}
	for _, s := range stats {
		t.WriteUint32(uint32(s.Read))
		t.WriteString(strconv.FormatInt(s.Total, 10))
		t.WriteString(strconv.FormatInt(s.Passed, 10))
		t.WriteString(strconv.FormatFloat(s.PercentPassed(), 'f', 2, 64))
		if err := t.EndLine(); err != nil {
			return err
		}
	}
	return t.Flush()
}

type metricsRow struct {
	Read    int64  `tsv:"READ"`
	Total   int64  `tsv:"TOTAL_READS"`
	Passed  int64  `tsv:"PF_READS"`
	Percent string `tsv:"PERCENT_PF_READS"`
}

// ReadMetrics parses a metrics file written by WriteMetrics.
func ReadMetrics(r io.Reader) ([]FilterStats, error) {
	t := tsv.NewReader(r)
	t.HasHeaderRow = true
	t.UseHeaderNames = true
	var stats []FilterStats
	for {
		var row metricsRow
		if err := t.Read(&row); err != nil {
			if err == io.EOF {
				break
			}
			return nil, errors.Wrap(err, "read purity filter metrics")
		}
		stats = append(stats, FilterStats{Read: int(row.Read), Total: row.Total, Passed: row.Passed})
	}
	return stats, nil
}
