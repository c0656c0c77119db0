package synth

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
)

// Record is the payload of one corpus line: every tab-separated field after
// the user key. Fields are opaque.
type Record []string

// Full reports whether the record carries the two fields written to a dataset.
func (r Record) Full() bool { return len(r) >= 2 }

// UserGroup holds one user's records in corpus order.
type UserGroup []Record

// UserIndex maps a user id (the slice position) to the original user identifier.
type UserIndex []string

// Corpus is the grouped form of a corpus file. Every group stays resident
// until synthesis finishes because donors are looked up by arbitrary id.
type Corpus struct {
	Groups []UserGroup
	Index  UserIndex
	Lines  int64 // non-blank lines grouped
	Blank  int64 // blank lines skipped
}

// Users returns the number of grouped users.
func (c *Corpus) Users() int { return len(c.Groups) }

// Records returns the number of records across all groups.
func (c *Corpus) Records() int64 {
	var n int64
	for _, g := range c.Groups {
		n += int64(len(g))
	}
	return n
}

var gzipMagic = []byte{0x1f, 0x8b}

// corpusFile closes the decompressor and the underlying file together.
type corpusFile struct {
	io.Reader
	gz *gzip.Reader
	f  *os.File
}

func (c *corpusFile) Close() error {
	var firstErr error
	if c.gz != nil {
		firstErr = c.gz.Close()
	}
	if err := c.f.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// OpenCorpus opens a corpus file for reading. Gzip input is detected by its
// magic bytes; anything else is read as plain text.
func OpenCorpus(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening corpus: %w", err)
	}

	br := bufio.NewReaderSize(f, 1<<20)
	head, err := br.Peek(len(gzipMagic))
	if err != nil && err != io.EOF {
		f.Close()
		return nil, fmt.Errorf("reading corpus header: %w", err)
	}

	if !bytes.Equal(head, gzipMagic) {
		return &corpusFile{Reader: br, f: f}, nil
	}

	gz, err := gzip.NewReader(br)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("opening gzip stream: %w", err)
	}
	return &corpusFile{Reader: gz, gz: gz, f: f}, nil
}
