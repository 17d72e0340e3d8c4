package pipeline

import (
	"context"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/seqpipe/batch"
	"github.com/grailbio/seqpipe/config"
	"github.com/grailbio/seqpipe/flowcell"
)

// Resources of the lane jobs.
const (
	buildFastqMemoryMB   = 16000
	buildFastqCores      = 2
	postSequenceMemoryMB = 8000
	postSequenceCores    = 1
)

// Lane starts the analysis of one lane barcode after BCL conversion. It
// writes the handoff record into the lane's analysis directory and submits
// build-fastq followed by post-sequence.
func Lane(ctx context.Context, env *Env, fc, laneBarcode, queue string) (Result, error) {
	var res Result
	bc, err := env.Layout.BaseCallsDir(fc)
	if err != nil {
		return res, err
	}
	dir := flowcell.AnalysisDir(flowcell.ResultsDirFor(bc), fc, laneBarcode)
	if !isDir(dir) {
		return res, errors.E(errors.Precondition, "analysis directory", dir, "does not exist")
	}
	def, err := flowcell.ReadDefinition(ctx, bc)
	if err != nil {
		return res, err
	}
	lane, err := def.Lane(laneBarcode)
	if err != nil {
		return res, err
	}
	if queue == "" {
		queue = config.DefaultQueue
	}
	fcb := flowcell.Barcode(fc, laneBarcode)
	p := config.AnalysisParams{
		ReferencePath:  lane.ReferencePath,
		LibraryName:    lane.Library,
		SampleName:     lane.Sample,
		ChipDesign:     lane.ChipDesign,
		RGPUField:      flowcell.PUField(fc, laneBarcode),
		FCBarcode:      fcb,
		BaseQualFormat: config.Phred33,
		Queue:          queue,
	}
	if err := config.WriteParams(ctx, dir, p); err != nil {
		return res, err
	}

	args := []string{"-dir", dir, "-prefix", fcb}
	if def.Paired() {
		args = append(args, "-paired")
	}
	build := batch.NewJob(fcb+"_BuildSequences", env.self("build-fastq", args...))
	if err := setPartial(build, buildFastqMemoryMB, buildFastqCores, queue); err != nil {
		return res, err
	}
	h, err := env.submit(ctx, build, dir)
	if err != nil {
		return res, err
	}
	res.add(h)

	post := batch.NewJob(fcb+"_post_sequence", env.self("post-sequence", "-dir", dir))
	if err := setPartial(post, postSequenceMemoryMB, postSequenceCores, queue); err != nil {
		return res, err
	}
	if h, err = env.submit(ctx, post, dir, h); err != nil {
		return res, err
	}
	res.add(h)
	return res, nil
}
