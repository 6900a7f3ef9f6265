package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// TraceCollector is a logrus hook that keeps every entry carrying a
// "Conversation" field so the socket trace can be written to CSV.
type TraceCollector struct {
	mu      sync.Mutex
	entries []*logrus.Entry
}

func (h *TraceCollector) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *TraceCollector) Fire(entry *logrus.Entry) error {
	if _, ok := entry.Data["Conversation"]; !ok {
		return nil
	}
	h.mu.Lock()
	h.entries = append(h.entries, entry)
	h.mu.Unlock()
	return nil
}

func (h *TraceCollector) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// WriteCSV writes the collected entries, one column per field in sorted
// order.
func (h *TraceCollector) WriteCSV(filename string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("could not create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	fieldSet := map[string]struct{}{}
	for _, entry := range h.entries {
		for key := range entry.Data {
			fieldSet[key] = struct{}{}
		}
	}
	var headers []string
	for field := range fieldSet {
		headers = append(headers, field)
	}
	sort.Strings(headers)

	if err := writer.Write(headers); err != nil {
		return fmt.Errorf("could not write headers to CSV: %w", err)
	}
	for _, entry := range h.entries {
		record := make([]string, len(headers))
		for i, header := range headers {
			if value, ok := entry.Data[header]; ok {
				record[i] = fmt.Sprintf("%v", value)
			}
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("could not write record to CSV: %w", err)
		}
	}
	return nil
}
