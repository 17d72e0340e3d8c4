package config

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
)

const (
	// ParamsFile is the name of the analysis parameters file in a lane's
	// analysis directory.
	ParamsFile = "BWAConfigParams.txt"
	// ParamsVersion is the format version written by EncodeParams. Files
	// without a version are version 1, which has the same keys.
	ParamsVersion = 2
	// NoReference as the reference path means the lane is not aligned.
	NoReference = "sequence"

	Phred33 = "PHRED+33"
	Phred64 = "PHRED+64"
)

// AnalysisParams are the per-lane settings written by the lane stage and
// read by the jobs it schedules.
type AnalysisParams struct {
	ReferencePath  string
	LibraryName    string
	SampleName     string
	ChipDesign     string
	RGPUField      string
	FCBarcode      string
	FilterPhix     bool
	BaseQualFormat string
	Queue          string
}

// Aligned reports whether the lane has a reference to align against.
func (p AnalysisParams) Aligned() bool {
	return p.ReferencePath != "" && p.ReferencePath != NoReference
}

// Validate checks field values.
func (p AnalysisParams) Validate() error {
	switch p.BaseQualFormat {
	case Phred33, Phred64:
	default:
		return errors.E(errors.Invalid, fmt.Sprintf("invalid base quality format %q", p.BaseQualFormat))
	}
	if p.FCBarcode == "" {
		return errors.E(errors.Invalid, "analysis parameters: empty flowcell barcode")
	}
	return nil
}

func (p *AnalysisParams) setDefaults() {
	if p.ReferencePath == "" {
		p.ReferencePath = NoReference
	}
	if p.BaseQualFormat == "" {
		p.BaseQualFormat = Phred33
	}
	if p.Queue == "" {
		p.Queue = DefaultQueue
	}
}

type paramField struct {
	key string
	str *string
	b   *bool
}

func (p *AnalysisParams) fields() []paramField {
	return []paramField{
		{key: "REFERENCE_PATH", str: &p.ReferencePath},
		{key: "LIBRARY_NAME", str: &p.LibraryName},
		{key: "SAMPLE_NAME", str: &p.SampleName},
		{key: "FILTER_PHIX", b: &p.FilterPhix},
		{key: "CHIP_DESIGN", str: &p.ChipDesign},
		{key: "RG_PU_FIELD", str: &p.RGPUField},
		{key: "FC_BARCODE", str: &p.FCBarcode},
		{key: "BASE_QUAL_FORMAT", str: &p.BaseQualFormat},
		{key: "SCHEDULER_QUEUE", str: &p.Queue},
	}
}

// EncodeParams writes p as KEY=value lines, preceded by the format version.
func EncodeParams(w io.Writer, p AnalysisParams) error {
	p.setDefaults()
	if err := p.Validate(); err != nil {
		return err
	}
	b := bufio.NewWriter(w)
	fmt.Fprintf(b, "FORMAT_VERSION=%d\n", ParamsVersion)
	for _, f := range p.fields() {
		if f.b != nil {
			fmt.Fprintf(b, "%s=%t\n", f.key, *f.b)
			continue
		}
		if strings.ContainsAny(*f.str, "\r\n") {
			return errors.E(errors.Invalid, fmt.Sprintf("analysis parameter %s contains a newline", f.key))
		}
		fmt.Fprintf(b, "%s=%s\n", f.key, *f.str)
	}
	return b.Flush()
}

// DecodeParams parses parameters written by EncodeParams, or by the
// unversioned writer that preceded it. Unknown keys are rejected.
func DecodeParams(r io.Reader) (AnalysisParams, error) {
	var p AnalysisParams
	byKey := map[string]paramField{}
	for _, f := range p.fields() {
		byKey[f.key] = f
	}
	sc := bufio.NewScanner(r)
	for lineno := 1; sc.Scan(); lineno++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			return p, errors.E(errors.Invalid, fmt.Sprintf("analysis parameters line %d: missing '=': %q", lineno, line))
		}
		key, val := strings.TrimSpace(line[:eq]), strings.TrimSpace(line[eq+1:])
		if key == "FORMAT_VERSION" {
			v, err := strconv.Atoi(val)
			if err != nil || v < 1 {
				return p, errors.E(errors.Invalid, fmt.Sprintf("analysis parameters: bad version %q", val))
			}
			if v > ParamsVersion {
				return p, errors.E(errors.Invalid, fmt.Sprintf("analysis parameters: version %d is newer than %d", v, ParamsVersion))
			}
			continue
		}
		f, ok := byKey[key]
		if !ok {
			return p, errors.E(errors.Invalid, fmt.Sprintf("analysis parameters line %d: unknown key %s", lineno, key))
		}
		if f.b == nil {
			*f.str = val
			continue
		}
		if val == "" {
			continue
		}
		b, err := strconv.ParseBool(val)
		if err != nil {
			return p, errors.E(errors.Invalid, fmt.Sprintf("analysis parameters: %s=%q is not a boolean", key, val))
		}
		*f.b = b
	}
	if err := sc.Err(); err != nil {
		return p, errors.E(err, "read analysis parameters")
	}
	p.setDefaults()
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// WriteParams writes p to ParamsFile in dir.
func WriteParams(ctx context.Context, dir string, p AnalysisParams) (err error) {
	var buf bytes.Buffer
	if err = EncodeParams(&buf, p); err != nil {
		return err
	}
	path := filepath.Join(dir, ParamsFile)
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "create", path)
	}
	defer file.CloseAndReport(ctx, out, &err)
	_, err = out.Writer(ctx).Write(buf.Bytes())
	return err
}

// ReadParams reads ParamsFile from dir. A missing file is a configuration
// error.
func ReadParams(ctx context.Context, dir string) (AnalysisParams, error) {
	path := filepath.Join(dir, ParamsFile)
	data, err := file.ReadFile(ctx, path)
	if err != nil {
		return AnalysisParams{}, errors.E(errors.Invalid, err, "read analysis parameters", path)
	}
	p, err := DecodeParams(bytes.NewReader(data))
	if err != nil {
		return p, errors.E(err, path)
	}
	return p, nil
}
