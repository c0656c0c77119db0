package testutil

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
)

// CorpusUser describes one user's block of lines in a generated corpus.
type CorpusUser struct {
	Name    string
	Records int
}

// CorpusLines builds corpus lines for users in order. Record j of user u
// is "u\tu-id-j\tu-text-j", so injected records are easy to trace back.
func CorpusLines(users ...CorpusUser) []string {
	var lines []string
	for _, u := range users {
		for j := 0; j < u.Records; j++ {
			lines = append(lines, fmt.Sprintf("%s\t%s-id-%d\t%s-text-%d", u.Name, u.Name, j, u.Name, j))
		}
	}
	return lines
}

// WriteCorpus writes lines to dir/name, gzip-compressed when the name ends
// in ".gz", and returns the path.
func WriteCorpus(t *testing.T, dir, name string, lines []string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating corpus: %v", err)
	}
	defer f.Close()

	var w io.Writer = f
	var gz *gzip.Writer
	if strings.HasSuffix(name, ".gz") {
		gz = gzip.NewWriter(f)
		w = gz
	}

	bw := bufio.NewWriter(w)
	for _, line := range lines {
		bw.WriteString(line)
		bw.WriteByte('\n')
	}
	if err := bw.Flush(); err != nil {
		t.Fatalf("writing corpus: %v", err)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			t.Fatalf("closing gzip corpus: %v", err)
		}
	}
	return path
}

// ReadDataset reads a plain or gzip dataset file and returns its lines.
func ReadDataset(t *testing.T, path string) []string {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening dataset: %v", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			t.Fatalf("opening gzip dataset: %v", err)
		}
		defer gz.Close()
		r = gz
	}

	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("reading dataset: %v", err)
	}
	return lines
}
