package batch

import "github.com/grailbio/base/errors"

// AsSubmissionError returns the first *SubmissionError in err's chain.
func AsSubmissionError(err error) (*SubmissionError, bool) {
	for ; err != nil; err = unwrap(err) {
		if e, ok := err.(*SubmissionError); ok {
			return e, true
		}
	}
	return nil, false
}

// AsToolError returns the first *ToolError in err's chain. A tool error
// that caused a failed submission is not reported.
func AsToolError(err error) (*ToolError, bool) {
	for ; err != nil; err = unwrap(err) {
		switch e := err.(type) {
		case *SubmissionError:
			return nil, false
		case *ToolError:
			return e, true
		}
	}
	return nil, false
}

func unwrap(err error) error {
	switch e := err.(type) {
	case *errors.Error:
		return e.Err
	case interface{ Unwrap() error }:
		return e.Unwrap()
	}
	return nil
}
