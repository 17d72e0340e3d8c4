// Package fastq reads and writes FASTQ files and builds the purity-filtered
// sequence files the aligner consumes from CASAVA's gzipped FASTQ segments.
package fastq

import (
	"bufio"
	"bytes"
	"io"
	"regexp"

	"github.com/pkg/errors"
)

var (
	// ErrShort is returned when a truncated FASTQ file is encountered.
	ErrShort = errors.New("short FASTQ file")
	// ErrInvalid is returned when an invalid FASTQ file is encountered.
	ErrInvalid = errors.New("invalid FASTQ file")
)

// A Read is a FASTQ read, comprising an ID, sequence, line 3
// ("unknown"), and a quality string.
type Read struct {
	ID, Seq, Unk, Qual string
}

// passedFilter matches the read number and filter flag of a CASAVA 1.8
// header, e.g. "@HWI-ST142:212:C0AK6ABXX:2:1101:1234:2000 1:N:0:ATCACG".
var passedFilter = regexp.MustCompile(`\s\d:N:`)

// PassedFilter reports whether the read was not flagged by the chastity
// filter.
func (r *Read) PassedFilter() bool {
	return passedFilter.MatchString(r.ID)
}

var errEOF = errors.New("eof")

// Scanner reads FASTQ records. Scanners are not threadsafe.
//
// Scanner requires ID lines to begin with "@" and line 3 to begin with "+".
// Trailing whitespace, including the carriage returns of files written on
// other platforms, is removed from every line.
type Scanner struct {
	b    *bufio.Scanner
	err  error
	line int
}

// NewScanner constructs a new Scanner that reads raw FASTQ data from the
// provided reader.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{b: bufio.NewScanner(r)}
}

// Scan the next read into the provided read. Scan returns a boolean
// indicating whether the scan succeeded. Once Scan returns false, it
// never returns true again. Upon completion, the user should check
// the Err method to determine whether scanning stopped because of an
// error or because the end of the stream was reached.
func (f *Scanner) Scan(read *Read) bool {
	if f.err != nil {
		return false
	}
	if !f.b.Scan() {
		if f.err = f.b.Err(); f.err == nil {
			f.err = errEOF
		}
		return false
	}
	f.line++
	id := bytes.TrimRight(f.b.Bytes(), " \t\r")
	if len(id) == 0 || id[0] != '@' {
		f.err = errors.Wrapf(ErrInvalid, "line %d: header does not start with '@'", f.line)
		return false
	}
	read.ID = string(id)
	if !f.scan() {
		return false
	}
	read.Seq = f.text()
	if !f.scan() {
		return false
	}
	unk := f.text()
	if len(unk) == 0 || unk[0] != '+' {
		f.err = errors.Wrapf(ErrInvalid, "line %d: separator does not start with '+'", f.line)
		return false
	}
	read.Unk = unk
	if !f.scan() {
		return false
	}
	read.Qual = f.text()
	return true
}

func (f *Scanner) scan() bool {
	ok := f.b.Scan()
	if !ok {
		if f.err = f.b.Err(); f.err == nil {
			f.err = ErrShort
		}
		return false
	}
	f.line++
	return true
}

func (f *Scanner) text() string {
	return string(bytes.TrimRight(f.b.Bytes(), " \t\r"))
}

// Err returns the scanning error, if any.
func (f *Scanner) Err() error {
	if f.err == errEOF {
		return nil
	}
	return f.err
}
