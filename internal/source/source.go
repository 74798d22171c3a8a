// Package source loads raw revenue records from CSV.
package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chrisconley/arrbucket/specs"
)

// Record field column names after mapping. Any other column becomes a dimension.
const (
	ColumnCustomerID = "customer_id"
	ColumnARR        = "arr"
	ColumnPeriod     = "period"
	ColumnRecurring  = "is_recurring"
)

// Load reads the CSV file at path. columns renames source headers before they are
// matched against record fields.
func Load(path string, columns map[string]string) ([]specs.RawRecordSpec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	records, err := Read(f, columns)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// Read parses CSV with a header row. Empty ARR cells are null; the recurring flag
// is left unset when empty or unrecognised so the pre-checks can judge it.
func Read(r io.Reader, columns map[string]string) ([]specs.RawRecordSpec, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read header: empty input")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	names := make([]string, len(header))
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		name := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if mapped, ok := columns[name]; ok {
			name = mapped
		}
		if seen[name] {
			return nil, fmt.Errorf("column %q appears more than once", name)
		}
		seen[name] = true
		names[i] = name
	}

	var missing []string
	for _, required := range []string{ColumnCustomerID, ColumnARR, ColumnPeriod} {
		if !seen[required] {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing columns: %s", strings.Join(missing, ", "))
	}

	var records []specs.RawRecordSpec
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		records = append(records, parseRow(names, row))
	}
	return records, nil
}

func parseRow(names, row []string) specs.RawRecordSpec {
	var record specs.RawRecordSpec
	for i, name := range names {
		value := strings.TrimSpace(row[i])
		switch name {
		case ColumnCustomerID:
			record.CustomerID = value
		case ColumnARR:
			if value != "" {
				record.ARR = &value
			}
		case ColumnPeriod:
			record.Period = value
		case ColumnRecurring:
			record.Recurring = parseRecurring(value)
		default:
			if record.Dimensions == nil {
				record.Dimensions = make(map[string]string)
			}
			record.Dimensions[name] = value
		}
	}
	return record
}

func parseRecurring(value string) *bool {
	var b bool
	switch strings.ToLower(value) {
	case "true", "t", "1", "yes", "y":
		b = true
	case "false", "f", "0", "no", "n":
		b = false
	default:
		return nil
	}
	return &b
}
