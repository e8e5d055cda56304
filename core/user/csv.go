package user

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/pkg/errors"
)

var errEmptyCSV = errors.New("csv has no header row")

// ParseImportCSV reads import rows from CSV data whose first record is the header.
// Blank lines and rows made only of empty cells are dropped.
func ParseImportCSV(r io.Reader) ([]ImportRow, error) {
	rdr := csv.NewReader(r)
	rdr.FieldsPerRecord = -1
	rdr.TrimLeadingSpace = true

	header, err := rdr.Read()
	if err == io.EOF {
		return nil, errEmptyCSV
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading csv header")
	}
	for i, col := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))
	}

	rows := make([]ImportRow, 0)
	for {
		record, err := rdr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "reading csv record")
		}

		row := make(ImportRow, len(header))
		var filled bool
		for i, val := range record {
			if i >= len(header) || header[i] == "" {
				continue
			}
			val = strings.TrimSpace(val)
			if val != "" {
				filled = true
			}
			row[header[i]] = val
		}
		if filled {
			rows = append(rows, row)
		}
	}
	return rows, nil
}
