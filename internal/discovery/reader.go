package discovery

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"replbatch/internal/band"
)

// ReaderSource parses `<size> <path>` records from a text stream. Records
// may be newline- or NUL-delimited.
type ReaderSource struct {
	r      io.Reader
	closer io.Closer
}

// NewReaderSource wraps a stream. If r is also an io.Closer it is closed
// by Close.
func NewReaderSource(r io.Reader) *ReaderSource {
	src := &ReaderSource{r: r}
	if c, ok := r.(io.Closer); ok {
		src.closer = c
	}
	return src
}

// Items reads the whole stream.
func (s *ReaderSource) Items(ctx context.Context) ([]band.WorkItem, error) {
	scanner := bufio.NewScanner(s.r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	scanner.Split(splitRecords)

	var items []band.WorkItem
	n := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n++
		record := strings.TrimSpace(scanner.Text())
		if record == "" {
			continue
		}

		it, err := parseRecord(record)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", n, err)
		}
		items = append(items, it)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read discovery stream: %w", err)
	}

	return items, nil
}

// Close closes the underlying stream when it is closable.
func (s *ReaderSource) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// parseRecord splits "<size> <path>"; the path keeps any embedded spaces.
func parseRecord(record string) (band.WorkItem, error) {
	fields := strings.SplitN(record, " ", 2)
	if len(fields) != 2 || fields[1] == "" {
		return band.WorkItem{}, fmt.Errorf("malformed record %q: want \"<size> <path>\"", record)
	}

	size, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || size < 0 {
		return band.WorkItem{}, fmt.Errorf("malformed size in record %q", record)
	}

	return band.WorkItem{Size: size, Path: fields[1]}, nil
}

// splitRecords is a bufio.SplitFunc accepting NUL or newline delimiters.
func splitRecords(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\x00\n"); i >= 0 {
		return i + 1, dropCR(data[:i]), nil
	}
	if atEOF {
		return len(data), dropCR(data), nil
	}
	return 0, nil, nil
}

func dropCR(data []byte) []byte {
	if len(data) > 0 && data[len(data)-1] == '\r' {
		return data[:len(data)-1]
	}
	return data
}
