package pipeline

import (
	"context"
	"sort"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/seqpipe/flowcell"
	"github.com/grailbio/seqpipe/lims"
)

// Actions is a set of preprocessing actions.
type Actions uint

const (
	// BuildDefinition writes FCDefinition.xml from LIMS.
	BuildDefinition Actions = 1 << iota
	// UploadStartDate records the analysis start in LIMS.
	UploadStartDate
	// BuildBarcodeDefinition writes the index sequences of the flowcell.
	BuildBarcodeDefinition
	// BuildSampleSheet writes SampleSheet.csv.
	BuildSampleSheet
	// RunNextStep starts the BCL conversion.
	RunNextStep

	AllActions = BuildDefinition | UploadStartDate | BuildBarcodeDefinition | BuildSampleSheet | RunNextStep
)

var actionNames = map[string]Actions{
	"build_fc_defn":      BuildDefinition,
	"upload_start_date":  UploadStartDate,
	"build_barcode_defn": BuildBarcodeDefinition,
	"build_sample_sheet": BuildSampleSheet,
	"run_next_step":      RunNextStep,
	"all":                AllActions,
}

// ParseActions parses action names. At least one action is required.
func ParseActions(names []string) (Actions, error) {
	var a Actions
	for _, n := range names {
		for _, n := range strings.Split(n, ",") {
			n = strings.TrimSpace(n)
			if n == "" {
				continue
			}
			v, ok := actionNames[n]
			if !ok {
				return 0, errors.E(errors.Invalid, "unknown action", n)
			}
			a |= v
		}
	}
	if a == 0 {
		return 0, errors.E(errors.Invalid, "no action specified")
	}
	return a, nil
}

// Has reports whether a contains every action of b.
func (a Actions) Has(b Actions) bool { return a&b == b }

func (a Actions) String() string {
	if a == AllActions {
		return "all"
	}
	var names []string
	for n, v := range actionNames {
		if v != AllActions && a.Has(v) {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

// Preprocess prepares a flowcell for analysis in the flowcell's base calls
// directory and, with RunNextStep, starts the BCL conversion.
func Preprocess(ctx context.Context, env *Env, fc string, actions Actions, basesMask string) (Result, error) {
	var res Result
	bc, err := env.Layout.BaseCallsDir(fc)
	if err != nil {
		return res, err
	}
	log.Printf("preprocessing %s: %s", fc, actions)
	if actions.Has(BuildDefinition) {
		def, err := DefinitionFromLIMS(ctx, env.LIMS, fc)
		if err != nil {
			return res, err
		}
		if err := flowcell.WriteDefinition(ctx, bc, def); err != nil {
			return res, err
		}
	}
	if actions.Has(UploadStartDate) {
		if err := env.LIMS.SetAnalysisStartDate(ctx, flowcell.LIMSName(fc)); err != nil {
			log.Error.Printf("%s: %v", fc, err)
		}
	}
	if actions.Has(BuildBarcodeDefinition) {
		if err := buildBarcodeDefinition(ctx, env, bc); err != nil {
			return res, err
		}
	}
	if actions.Has(BuildSampleSheet) {
		if err := buildSampleSheet(ctx, bc, fc); err != nil {
			return res, err
		}
	}
	if actions.Has(RunNextStep) {
		return BclToFastq(ctx, env, fc, basesMask)
	}
	return res, nil
}

// DefinitionFromLIMS builds the flowcell definition from what LIMS knows
// about each lane barcode.
func DefinitionFromLIMS(ctx context.Context, c *lims.Client, fc string) (*flowcell.Definition, error) {
	name := flowcell.LIMSName(fc)
	barcodes, err := c.LaneBarcodes(ctx, name)
	if err != nil {
		return nil, err
	}
	def := &flowcell.Definition{Name: name}
	for _, lb := range barcodes {
		info, err := c.LaneInfo(ctx, name+"-"+lb)
		if err != nil {
			return nil, err
		}
		def.NumCycles = info.NumCycles
		if def.Type == "" {
			def.Type = "fragment"
			if info.Paired {
				def.Type = "paired"
			}
		}
		def.AddLane(flowcell.Lane{
			ID:            lb,
			ReferencePath: info.ReferencePath,
			Sample:        info.Sample,
			Library:       info.Library,
			ChipDesign:    info.ChipDesign,
		})
	}
	return def, nil
}

func laneBarcodes(ctx context.Context, bc string) ([]string, error) {
	def, err := flowcell.ReadDefinition(ctx, bc)
	if err != nil {
		return nil, err
	}
	barcodes := def.LaneBarcodes()
	if len(barcodes) == 0 {
		return nil, errors.E(errors.Precondition, "no lane barcodes in", flowcell.DefinitionFile)
	}
	return barcodes, nil
}

func tagged(barcodes []string) bool {
	for _, lb := range barcodes {
		if flowcell.BarcodeTag(lb) != "" {
			return true
		}
	}
	return false
}

func buildBarcodeDefinition(ctx context.Context, env *Env, bc string) error {
	barcodes, err := laneBarcodes(ctx, bc)
	if err != nil {
		return err
	}
	var labels map[string]string
	if tagged(barcodes) {
		path := env.Site.Tools.BarcodeLabels
		if path == "" {
			return errors.E(errors.Invalid, "barcoded lanes but no tools.barcodeLabels in site configuration")
		}
		data, err := file.ReadFile(ctx, path)
		if err != nil {
			return errors.E(errors.Invalid, err, "read barcode labels")
		}
		if labels, err = flowcell.ReadBarcodeLabels(strings.NewReader(string(data))); err != nil {
			return err
		}
	}
	def, err := flowcell.BarcodeDefinition(barcodes, labels)
	if err != nil {
		return err
	}
	return flowcell.WriteBarcodeDefinition(ctx, bc, def)
}

func buildSampleSheet(ctx context.Context, bc, fc string) error {
	barcodes, err := laneBarcodes(ctx, bc)
	if err != nil {
		return err
	}
	var def map[string]string
	if tagged(barcodes) {
		if def, err = flowcell.ReadBarcodeDefinition(ctx, bc); err != nil {
			return err
		}
	}
	return flowcell.WriteSampleSheet(ctx, bc, fc, barcodes, def)
}
