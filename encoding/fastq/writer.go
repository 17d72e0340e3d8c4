package fastq

import (
	"bufio"
	"io"
)

// Writer is a buffered FASTQ writer. Callers must Flush.
type Writer struct {
	w   *bufio.Writer
	err error
	n   int64
}

// NewWriter constructs a new FASTQ writer
// that writes reads to the underlying writer w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriterSize(w, 1<<20)}
}

// Write writes the read r in FASTQ format.
// An error is returned if the write failed.
func (w *Writer) Write(r *Read) error {
	w.writeln(r.ID)
	w.writeln(r.Seq)
	w.writeln(r.Unk)
	w.writeln(r.Qual)
	if w.err == nil {
		w.n++
	}
	return w.err
}

// Count returns the number of reads written.
func (w *Writer) Count() int64 { return w.n }

func (w *Writer) writeln(line string) {
	if w.err != nil {
		return
	}
	_, w.err = w.w.WriteString(line)
	if w.err == nil {
		w.err = w.w.WriteByte('\n')
	}
}

// Flush writes buffered reads to the underlying writer.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	return w.w.Flush()
}
