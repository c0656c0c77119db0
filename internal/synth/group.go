package synth

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	// DefaultMaxLineSize bounds a single corpus line.
	DefaultMaxLineSize = 16 * 1024 * 1024

	progressLines    = 1_000_000
	cancelCheckLines = 1 << 16
)

// GroupOptions tunes the grouping pass.
type GroupOptions struct {
	MaxLineSize int
	// Strict fails the pass on the first record with fewer than two payload
	// fields instead of letting synthesis omit it.
	Strict bool
}

// Group scans a corpus that is contiguous by user key and collects each
// user's records. A user key that reappears after another user starts a new
// group; the corpus is never re-sorted.
//
// Each closed group is streamed to index as "{id}\t{user}\n", the final group
// included. Lines are trimmed of surrounding whitespace; blank lines are
// counted and skipped.
func Group(ctx context.Context, r io.Reader, index io.Writer, opts GroupOptions, logger Logger) (*Corpus, error) {
	maxLine := opts.MaxLineSize
	if maxLine <= 0 {
		maxLine = DefaultMaxLineSize
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, min(64*1024, maxLine)), maxLine)
	iw := bufio.NewWriter(index)

	c := &Corpus{}
	var current string
	var lineNo int64

	for sc.Scan() {
		lineNo++
		if lineNo%cancelCheckLines == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		line := strings.TrimSpace(sc.Text())
		if line == "" {
			c.Blank++
			continue
		}

		fields := strings.Split(line, "\t")
		user, payload := fields[0], Record(fields[1:])
		if opts.Strict && !payload.Full() {
			return nil, &MalformedRecordError{Line: lineNo, User: user, Fields: len(payload)}
		}

		if len(c.Groups) == 0 || user != current {
			if len(c.Groups) > 0 {
				if err := writeIndexLine(iw, len(c.Groups)-1, current); err != nil {
					return nil, err
				}
			}
			c.Groups = append(c.Groups, UserGroup{})
			c.Index = append(c.Index, user)
			current = user
		}
		last := len(c.Groups) - 1
		c.Groups[last] = append(c.Groups[last], payload)

		c.Lines++
		if c.Lines%progressLines == 0 {
			logger.Info("corpus lines grouped", "lines", c.Lines, "users", len(c.Groups))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scanning corpus at line %d: %w", lineNo+1, err)
	}

	if len(c.Groups) > 0 {
		if err := writeIndexLine(iw, len(c.Groups)-1, current); err != nil {
			return nil, err
		}
	}
	if err := iw.Flush(); err != nil {
		return nil, fmt.Errorf("flushing user index: %w", err)
	}

	logger.Info("corpus grouped", "lines", c.Lines, "users", len(c.Groups), "blank", c.Blank)
	return c, nil
}

func writeIndexLine(w *bufio.Writer, id int, user string) error {
	w.WriteString(strconv.Itoa(id))
	w.WriteByte('\t')
	w.WriteString(user)
	if err := w.WriteByte('\n'); err != nil {
		return fmt.Errorf("writing user index: %w", err)
	}
	return nil
}
