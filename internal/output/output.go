// Package output writes assembled reports as JSON or CSV.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chrisconley/arrbucket/specs"
)

const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// Write renders report to path, or to stdout when path is empty.
//
// The CSV format writes the bucket table to path and, when a path is given, the
// growth and rejection tables next to it with "_growth" and "_rejections" suffixes.
func Write(path, format string, report specs.ReportSpec) error {
	switch format {
	case FormatJSON, FormatCSV:
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}

	if path == "" {
		if format == FormatJSON {
			return WriteJSON(os.Stdout, report)
		}
		return WriteBucketsCSV(os.Stdout, report.Buckets)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if format == FormatJSON {
		return writeFile(path, func(w io.Writer) error { return WriteJSON(w, report) })
	}

	if err := writeFile(path, func(w io.Writer) error { return WriteBucketsCSV(w, report.Buckets) }); err != nil {
		return err
	}
	if err := writeFile(siblingPath(path, "growth"), func(w io.Writer) error { return WriteGrowthCSV(w, report.Growth) }); err != nil {
		return err
	}
	return writeFile(siblingPath(path, "rejections"), func(w io.Writer) error { return WriteRejectionsCSV(w, report.Rejections) })
}

// WriteJSON writes the full report as indented JSON.
func WriteJSON(w io.Writer, report specs.ReportSpec) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

// WriteBucketsCSV writes one row per bucket.
func WriteBucketsCSV(w io.Writer, buckets []specs.BucketReportSpec) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"bucket", "lower", "upper", "record_count", "total_arr", "average_arr", "arr_share", "count_share"}); err != nil {
		return err
	}
	for _, b := range buckets {
		row := []string{
			b.Bucket,
			b.Lower,
			b.Upper,
			strconv.Itoa(b.RecordCount),
			b.TotalARR,
			b.AverageARR,
			b.ARRShare,
			b.CountShare,
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteGrowthCSV writes one row per bucket movement.
func WriteGrowthCSV(w io.Writer, growth []specs.GrowthSpec) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"bucket", "status", "prior_total", "current_total", "delta", "percentage", "prior_count", "current_count"}); err != nil {
		return err
	}
	for _, g := range growth {
		row := []string{
			g.Bucket,
			g.Status,
			g.PriorTotal,
			g.CurrentTotal,
			g.Delta,
			g.Percentage,
			strconv.Itoa(g.PriorCount),
			strconv.Itoa(g.CurrentCount),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteRejectionsCSV writes one row per rejected record.
func WriteRejectionsCSV(w io.Writer, rejections []specs.RejectionSpec) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"index", "customer_id", "period", "rule", "field", "raw_value", "message"}); err != nil {
		return err
	}
	for _, r := range rejections {
		row := []string{
			strconv.Itoa(r.Index),
			r.CustomerID,
			r.Period,
			r.Rule,
			r.Field,
			r.RawValue,
			r.Message,
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeFile(path string, write func(io.Writer) error) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(file); err != nil {
		file.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return file.Close()
}

func siblingPath(path, suffix string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_" + suffix + ext
}
