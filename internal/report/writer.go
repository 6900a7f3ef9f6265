package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
)

// Output formats.
const (
	FormatText = "text"
	FormatCSV  = "csv"
	FormatBoth = "both"
)

// WriteText prints t as an aligned table.
func WriteText(w io.Writer, t Table) error {
	if _, err := fmt.Fprintf(w, "\n%s\n\n", t.Title); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(t.Header, "\t"))
	for _, row := range t.Rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// WriteCSV writes t to dir/t.File and returns the path.
func WriteCSV(dir string, t Table) (string, error) {
	path := filepath.Join(dir, t.File)
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("could not create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(t.Header); err != nil {
		return "", fmt.Errorf("could not write headers to CSV: %w", err)
	}
	if err := writer.WriteAll(t.Rows); err != nil {
		return "", fmt.Errorf("could not write records to CSV: %w", err)
	}
	return path, nil
}

// Emit renders every table in the requested format. CSV paths written are
// returned in table order.
func Emit(w io.Writer, dir, format string, tables []Table) ([]string, error) {
	format = strings.ToLower(format)
	if format == "" {
		format = FormatText
	}
	if format != FormatText && format != FormatCSV && format != FormatBoth {
		return nil, fmt.Errorf("unknown format %q, want text, csv or both", format)
	}
	var paths []string
	for _, t := range tables {
		if format == FormatText || format == FormatBoth {
			if err := WriteText(w, t); err != nil {
				return paths, fmt.Errorf("write %s: %w", t.Title, err)
			}
		}
		if format == FormatCSV || format == FormatBoth {
			path, err := WriteCSV(dir, t)
			if err != nil {
				return paths, err
			}
			paths = append(paths, path)
		}
	}
	return paths, nil
}
