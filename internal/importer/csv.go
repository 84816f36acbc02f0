package importer

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// row is one CSV record keyed by header.
type row struct {
	line   int
	values map[string]string
}

// get returns the trimmed value of the first present column.
func (r row) get(columns ...string) string {
	for _, col := range columns {
		if v, ok := r.values[col]; ok {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// readRows parses a headered CSV. A leading byte-order mark is dropped, short
// rows are padded and blank lines are skipped. line is the 1-based source
// line of each record, counting the header as line 1.
func readRows(r io.Reader) ([]row, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	reader := csv.NewReader(br)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows []row
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		line, _ := reader.FieldPos(0)
		values := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(record) {
				values[name] = record[i]
			} else {
				values[name] = ""
			}
		}
		rows = append(rows, row{line: line, values: values})
	}
}

// parseBool accepts true/t/yes/y/1 in any case; everything else is false.
func parseBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "t", "yes", "y", "1":
		return true
	}
	return false
}

// parseList splits "[a, 'b', \"c\"]" or "a; b" style lists into trimmed values.
func parseList(raw string) []string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "[")
	raw = strings.TrimSuffix(raw, "]")
	sep := ","
	if strings.Contains(raw, ";") {
		sep = ";"
	}
	var out []string
	for _, part := range strings.Split(raw, sep) {
		if v := strings.Trim(strings.TrimSpace(part), `'"`); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
