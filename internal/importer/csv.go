package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// readDelimited decodes data as text and parses it as a ';' separated table.
// Every line is parsed on its own so a broken quote cannot swallow the lines
// after it.
func readDelimited(data []byte) (*table, error) {
	text, err := decodeText(data)
	if err != nil {
		return nil, err
	}

	var tbl *table
	for i, line := range strings.Split(normalizeLines(text), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}

		cells, err := parseLine(line)
		if tbl == nil {
			if err != nil {
				return nil, fmt.Errorf("%w: header: %v", ErrMalformedTable, err)
			}
			tbl = &table{header: trimAll(cells)}
			continue
		}

		if err != nil {
			err = fmt.Errorf("%w: %v", ErrMalformedRow, err)
		}
		tbl.rows = append(tbl.rows, row{line: i + 1, cells: cells, err: err})
	}

	if tbl == nil {
		return nil, fmt.Errorf("%w: empty file", ErrMalformedTable)
	}
	return tbl, nil
}

// parseLine splits one line into fields. Stray quotes inside an unquoted
// field are kept literally; an unterminated quoted field is an error.
func parseLine(line string) ([]string, error) {
	cells, err := readRecord(line, false)
	if errors.Is(err, csv.ErrBareQuote) {
		return readRecord(line, true)
	}
	return cells, err
}

func readRecord(line string, lazy bool) ([]string, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.Comma = Delimiter
	r.FieldsPerRecord = -1
	r.LazyQuotes = lazy
	r.TrimLeadingSpace = true

	cells, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	return cells, err
}

// decodeText strips a byte order mark and rejects input that is not valid
// UTF-8 (UTF-16 with a BOM is converted).
func decodeText(data []byte) (string, error) {
	utf16BOM := bytes.HasPrefix(data, []byte{0xFF, 0xFE}) || bytes.HasPrefix(data, []byte{0xFE, 0xFF})
	if !utf16BOM && !utf8.Valid(data) {
		return "", fmt.Errorf("%w: not valid UTF-8", ErrFileUnreadable)
	}

	decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	out, _, err := transform.Bytes(decoder, data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFileUnreadable, err)
	}

	return string(out), nil
}

// normalizeLines keeps the header line as is and strips trailing separators
// and surrounding whitespace from every data line.
func normalizeLines(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for i := range lines {
		if i == 0 {
			lines[i] = strings.TrimRight(lines[i], "\r")
			continue
		}
		lines[i] = strings.TrimSpace(strings.TrimRight(strings.TrimSpace(lines[i]), string(Delimiter)))
	}
	return strings.Join(lines, "\n")
}

func trimAll(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.TrimSpace(c)
	}
	return out
}
