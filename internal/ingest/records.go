package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/roach88/syndicate/internal/workflow"
)

// Column names recognized for record identity and display, checked in
// order. Everything else becomes a candidate placeholder field.
var (
	idColumns    = []string{"source_id", "id", "sku", "mls"}
	labelColumns = []string{"label", "title", "name", "address"}
)

// LoadRecords reads a delimited batch file into records. The delimiter is
// inferred from the extension: .tsv and .tab are tab-separated, anything
// else is comma-separated.
func LoadRecords(fs afero.Fs, path string) ([]workflow.Record, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open records: %w", err)
	}
	defer f.Close()

	comma := ','
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tsv", ".tab":
		comma = '\t'
	}
	return ParseRecords(f, comma)
}

// ParseRecords reads delimited rows into records. The first row is the
// header; its cells become field names and candidate placeholder tokens.
// Rows shorter than the header are padded with empty fields so a ragged
// export never drops data silently.
func ParseRecords(r io.Reader, comma rune) ([]workflow.Record, error) {
	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.FieldsPerRecord = -1 // tolerate ragged rows
	cr.TrimLeadingSpace = true

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse records: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("parse records: empty input")
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(h)
	}

	records := make([]workflow.Record, 0, len(rows)-1)
	for rowIdx, row := range rows[1:] {
		fields := make(map[string]string, len(header))
		for i, name := range header {
			if name == "" {
				continue
			}
			if i < len(row) {
				fields[name] = strings.TrimSpace(row[i])
			} else {
				fields[name] = ""
			}
		}

		rec := workflow.Record{
			SourceID: pickColumn(fields, idColumns),
			Label:    pickColumn(fields, labelColumns),
			Fields:   fields,
		}
		if rec.SourceID == "" {
			// Row number keeps the record addressable in results even
			// when the source has no id column.
			rec.SourceID = fmt.Sprintf("row-%d", rowIdx+1)
		}
		if rec.Label == "" {
			rec.Label = rec.SourceID
		}
		records = append(records, rec)
	}
	return records, nil
}

// pickColumn returns the first non-empty value among the named columns,
// matching case-insensitively the way placeholder lookup does.
func pickColumn(fields map[string]string, names []string) string {
	rec := workflow.Record{Fields: fields}
	for _, name := range names {
		if v, ok := rec.Field(name); ok && v != "" {
			return v
		}
	}
	return ""
}
