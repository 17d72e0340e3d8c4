package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/seqpipe/batch"
	"github.com/grailbio/seqpipe/config"
	"github.com/grailbio/seqpipe/flowcell"
)

// BclToFastq converts the base calls of a flowcell to FASTQ. CASAVA is
// configured in the calling process; the conversion itself runs as a make
// job on a whole node of the CASAVA queue, and one lane job per lane
// barcode waits for it. basesMask overrides CASAVA's --use-bases-mask when
// nonempty.
func BclToFastq(ctx context.Context, env *Env, fc, basesMask string) (Result, error) {
	var res Result
	bc, err := env.Layout.BaseCallsDir(fc)
	if err != nil {
		return res, err
	}
	sheet := filepath.Join(bc, flowcell.SampleSheetFile)
	if !exists(sheet) {
		return res, errors.E(errors.Precondition, "missing", flowcell.SampleSheetFile, "in directory", bc)
	}
	def, err := flowcell.ReadDefinition(ctx, bc)
	if err != nil {
		return res, err
	}
	out := flowcell.ResultsDirFor(bc)
	configure := batch.Command{
		Path: env.Site.Casava.BclToFastqPath,
		Args: []string{
			"--input-dir", bc,
			"--output-dir", out,
			"--sample-sheet", sheet,
			"--mismatches", "1",
			"--ignore-missing-stats",
			"--ignore-missing-bcl",
		},
		Dir: bc,
	}
	if basesMask != "" {
		configure.Args = append(configure.Args, "--use-bases-mask", basesMask)
	}
	log.Printf("configuring BCL conversion of %s: %s", fc, configure)
	if _, err := env.Runner.Run(ctx, configure); err != nil {
		return res, errors.E(err, "configure BCL conversion of", fc)
	}

	cores := env.Site.Scheduler.HighQueue.MaxCores
	mk := batch.NewJob(fc+"_BclToFastQ", fmt.Sprintf("make -j%d", cores))
	if err := mk.LockWholeNode(config.CasavaQueue); err != nil {
		return res, err
	}
	h, err := env.submit(ctx, mk, out)
	if err != nil {
		return res, err
	}
	res.add(h)
	for _, lb := range def.LaneBarcodes() {
		j := batch.NewJob(flowcell.Barcode(fc, lb)+"_lane",
			env.self("lane", "-flowcell", fc, "-lane-barcode", lb))
		lh, err := env.submit(ctx, j, out, h)
		if err != nil {
			return res, err
		}
		res.add(lh)
	}
	return res, nil
}
