package core

import (
	"fmt"
	"strings"
	"time"
)

// ExportFormat is a delimited download format.
type ExportFormat string

// Supported export formats.
const (
	FormatCSV ExportFormat = "csv"
	FormatTSV ExportFormat = "tsv"
)

const utf8BOM = "\ufeff"

// ParseExportFormat accepts "csv" and "tsv"; anything else is csv.
func ParseExportFormat(raw string) ExportFormat {
	if ExportFormat(strings.ToLower(raw)) == FormatTSV {
		return FormatTSV
	}
	return FormatCSV
}

// Delimiter returns the field separator of the format.
func (f ExportFormat) Delimiter() rune {
	if f == FormatTSV {
		return '\t'
	}
	return ','
}

// ContentType returns the MIME type served for the format.
func (f ExportFormat) ContentType() string {
	if f == FormatTSV {
		return "text/tab-separated-values; charset=utf-8"
	}
	return "text/csv; charset=utf-8"
}

// escapeCell quotes a cell containing the delimiter, a quote, CR or LF and
// doubles embedded quotes. Other cells are written as-is.
func escapeCell(cell string, delimiter rune) string {
	if !strings.ContainsRune(cell, delimiter) && !strings.ContainsAny(cell, "\"\r\n") {
		return cell
	}
	return `"` + strings.ReplaceAll(cell, `"`, `""`) + `"`
}

// ToDelimited renders a header line followed by one line per row. Missing
// row keys render as empty cells.
func ToDelimited(rows []map[string]string, headers []string, delimiter rune) string {
	var b strings.Builder
	sep := string(delimiter)
	writeLine := func(cells []string) {
		for i, cell := range cells {
			if i > 0 {
				b.WriteString(sep)
			}
			b.WriteString(escapeCell(cell, delimiter))
		}
		b.WriteByte('\n')
	}
	writeLine(headers)
	cells := make([]string, len(headers))
	for _, row := range rows {
		for i, h := range headers {
			cells[i] = row[h]
		}
		writeLine(cells)
	}
	return b.String()
}

// Render serializes rows in the format. CSV output starts with a UTF-8
// byte-order mark so spreadsheet applications detect the encoding.
func (f ExportFormat) Render(rows []map[string]string, headers []string) []byte {
	body := ToDelimited(rows, headers, f.Delimiter())
	if f == FormatCSV {
		body = utf8BOM + body
	}
	return []byte(body)
}

// ExportFilename builds "prefix-label-YYYY-MM-DD.ext".
func ExportFilename(prefix, label string, now time.Time, format ExportFormat) string {
	if label == "" {
		label = "all"
	}
	return fmt.Sprintf("%s-%s-%s.%s", prefix, label, now.Format(time.DateOnly), format)
}

// Rows flattens records into export rows keyed by column header.
func Rows[T any](records []T, columns []Column[T]) ([]string, []map[string]string) {
	headers := make([]string, len(columns))
	for i, col := range columns {
		headers[i] = col.Header
	}
	rows := make([]map[string]string, 0, len(records))
	for _, record := range records {
		row := make(map[string]string, len(columns))
		for _, col := range columns {
			row[col.Header] = col.Value(record)
		}
		rows = append(rows, row)
	}
	return headers, rows
}

// Export column headers added by FlattenForest.
const (
	HeaderDepartment   = "Department"
	HeaderOrganization = "Organization"
)

// FlattenForest flattens a hierarchy into export rows. Each row carries the
// root organization as Department and the node it is attached to as
// Organization, followed by the record columns.
func FlattenForest[T any](roots []*Node[T], columns []Column[T]) ([]string, []map[string]string) {
	headers, _ := Rows[T](nil, columns)
	headers = append([]string{HeaderDepartment, HeaderOrganization}, headers...)
	var rows []map[string]string
	for _, root := range roots {
		root.Walk(func(n *Node[T], _ int) {
			_, recordRows := Rows(n.Records, columns)
			for _, row := range recordRows {
				row[HeaderDepartment] = root.Name
				row[HeaderOrganization] = n.Name
				rows = append(rows, row)
			}
		})
	}
	return headers, rows
}

// ExportFile is a rendered download.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
	Rows        int
}
