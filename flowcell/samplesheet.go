package flowcell

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
)

// Files written to the base calls directory before CASAVA runs.
const (
	SampleSheetFile       = "SampleSheet.csv"
	BarcodeDefinitionFile = "barcode_definition.txt"
)

var sampleSheetHeader = []string{
	"flowcell", "lane", "sample", "reference", "index",
	"description", "control", "recipe", "operator", "project",
}

// ReadBarcodeLabels parses "label,sequence" lines, such as the site's
// barcode_label.txt.
func ReadBarcodeLabels(r io.Reader) (map[string]string, error) {
	labels := map[string]string{}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) < 2 {
			return nil, errors.E(errors.Invalid, "malformed barcode label line:", line)
		}
		labels[strings.TrimSpace(fields[0])] = strings.TrimSpace(fields[1])
	}
	return labels, sc.Err()
}

// BarcodeDefinition selects the index sequences of the lane barcodes. When
// the sequences differ in length by exactly 3, the shorter ones are padded
// with "CTC". It returns nil if no lane carries an index.
func BarcodeDefinition(laneBarcodes []string, labels map[string]string) (map[string]string, error) {
	def := map[string]string{}
	for _, lb := range laneBarcodes {
		tag := BarcodeTag(lb)
		if !strings.Contains(tag, "ID") {
			continue
		}
		seq, ok := labels[tag]
		if !ok {
			return nil, errors.E(errors.Invalid, "no sequence for barcode tag", tag)
		}
		def[tag] = seq
	}
	if len(def) == 0 {
		return nil, nil
	}
	min, max := -1, 0
	for _, seq := range def {
		if min < 0 || len(seq) < min {
			min = len(seq)
		}
		if len(seq) > max {
			max = len(seq)
		}
	}
	if max-min == 3 {
		for tag, seq := range def {
			if len(seq) == min {
				def[tag] = seq + "CTC"
			}
		}
	}
	return def, nil
}

// WriteBarcodeDefinition writes def as sorted "tag,sequence" lines to the
// barcode definition file in dir.
func WriteBarcodeDefinition(ctx context.Context, dir string, def map[string]string) (err error) {
	tags := make([]string, 0, len(def))
	for tag := range def {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	path := filepath.Join(dir, BarcodeDefinitionFile)
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "create", path)
	}
	defer file.CloseAndReport(ctx, out, &err)
	w := bufio.NewWriter(out.Writer(ctx))
	for _, tag := range tags {
		fmt.Fprintf(w, "%s,%s\n", tag, def[tag])
	}
	return w.Flush()
}

// ReadBarcodeDefinition reads the barcode definition file in dir.
func ReadBarcodeDefinition(ctx context.Context, dir string) (map[string]string, error) {
	data, err := file.ReadFile(ctx, filepath.Join(dir, BarcodeDefinitionFile))
	if err != nil {
		return nil, errors.E(errors.Precondition, err, "read barcode definition")
	}
	return ReadBarcodeLabels(strings.NewReader(string(data)))
}

// WriteSampleSheet writes the CASAVA sample sheet of the flowcell fc to
// dir. def supplies the index sequences of barcoded lanes.
func WriteSampleSheet(ctx context.Context, dir, fc string, laneBarcodes []string, def map[string]string) (err error) {
	rows := [][]string{sampleSheetHeader}
	for _, lb := range laneBarcodes {
		index := ""
		if tag := BarcodeTag(lb); tag != "" {
			seq, ok := def[tag]
			if !ok {
				return errors.E(errors.Invalid, "invalid barcode tag", tag, "in lane barcode", lb)
			}
			index = seq
		}
		rows = append(rows, []string{
			fc, LaneNumber(lb), Barcode(fc, lb), NoReference, index,
			"desc", "n", "r1", "fiona", fc,
		})
	}
	path := filepath.Join(dir, SampleSheetFile)
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "create", path)
	}
	defer file.CloseAndReport(ctx, out, &err)
	w := csv.NewWriter(out.Writer(ctx))
	if err = w.WriteAll(rows); err != nil {
		return err
	}
	log.Printf("wrote %s with %d lanes", path, len(laneBarcodes))
	return nil
}
