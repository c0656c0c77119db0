package synth

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// NoSource marks a record that is the user's own message.
const NoSource = -1

// noSourceLabel is how NoSource is spelled in dataset files.
const noSourceLabel = "None"

// OutputRecord is one line of a synthesized dataset.
type OutputRecord struct {
	UserID int
	Source int // donor user id, or NoSource
	Fields [2]string
}

// Injected reports whether the record was copied from a donor.
func (r OutputRecord) Injected() bool { return r.Source != NoSource }

// RecordWriter receives synthesized records in output order.
type RecordWriter interface {
	WriteRecord(rec OutputRecord) error
}

// TSVWriter writes records as "{user_id}\t{source|None}\t{field1}\t{field2}\n".
type TSVWriter struct {
	w *bufio.Writer
}

func NewTSVWriter(w io.Writer) *TSVWriter {
	return &TSVWriter{w: bufio.NewWriterSize(w, 256*1024)}
}

func (t *TSVWriter) WriteRecord(rec OutputRecord) error {
	t.w.WriteString(strconv.Itoa(rec.UserID))
	t.w.WriteByte('\t')
	if rec.Source == NoSource {
		t.w.WriteString(noSourceLabel)
	} else {
		t.w.WriteString(strconv.Itoa(rec.Source))
	}
	t.w.WriteByte('\t')
	t.w.WriteString(rec.Fields[0])
	t.w.WriteByte('\t')
	t.w.WriteString(rec.Fields[1])
	if err := t.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("writing record: %w", err)
	}
	return nil
}

// Flush writes any buffered records to the underlying writer.
func (t *TSVWriter) Flush() error {
	return t.w.Flush()
}

// ParseOutputRecord parses one dataset line as written by TSVWriter.
func ParseOutputRecord(line string) (OutputRecord, error) {
	parts := strings.SplitN(strings.TrimSuffix(line, "\n"), "\t", 4)
	if len(parts) != 4 {
		return OutputRecord{}, fmt.Errorf("dataset line has %d fields, want 4", len(parts))
	}

	userID, err := strconv.Atoi(parts[0])
	if err != nil {
		return OutputRecord{}, fmt.Errorf("parsing user id: %w", err)
	}

	source := NoSource
	if parts[1] != noSourceLabel {
		source, err = strconv.Atoi(parts[1])
		if err != nil {
			return OutputRecord{}, fmt.Errorf("parsing source id: %w", err)
		}
	}

	return OutputRecord{UserID: userID, Source: source, Fields: [2]string{parts[2], parts[3]}}, nil
}
