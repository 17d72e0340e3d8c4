package pipeline

import (
	"github.com/grailbio/base/errors"
	"github.com/grailbio/seqpipe/batch"
)

// IsConfiguration reports whether err was caused by missing or invalid
// configuration: a bad site file, a malformed handoff record, an unknown
// lane barcode or an incomplete request.
func IsConfiguration(err error) bool {
	return err != nil && errors.Is(errors.Invalid, err)
}

// IsDependencyNotMet reports whether err was caused by a missing input
// file or directory that a stage requires before it can submit anything.
func IsDependencyNotMet(err error) bool {
	return err != nil && errors.Is(errors.Precondition, err)
}

// IsSubmission reports whether err is a failed batch submission.
func IsSubmission(err error) bool {
	_, ok := batch.AsSubmissionError(err)
	return ok
}

// IsExternalTool reports whether err is the failure of an external program
// run by the stage itself (CASAVA configuration, LIMS scripts, Picard).
func IsExternalTool(err error) bool {
	_, ok := batch.AsToolError(err)
	return ok
}
