package output

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// tableHeader is shared by the tsv, csv and markdown formats.
var tableHeader = []string{"ID", "KIND", "STATE", "TRIGGER", "STARTED", "BYTES_FREED", "SUMMARY"}

func tableRow(r *Result) [][]string {
	rows := make([][]string, len(r.Records))
	for i, rec := range r.Records {
		rows[i] = []string{
			rec.ID,
			string(rec.Kind),
			string(rec.State),
			rec.Trigger,
			rec.StartedAt.Format(time.RFC3339),
			strconv.FormatInt(rec.BytesFreed, 10),
			rec.Summary,
		}
	}
	return rows
}

// TSVFormatter writes tab-separated values with a header row.
type TSVFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *TSVFormatter) Format(w *bytes.Buffer, r *Result) error {
	w.WriteString(strings.Join(tableHeader, "\t") + "\n")
	for _, row := range tableRow(r) {
		for i, cell := range row {
			row[i] = strings.ReplaceAll(cell, "\t", " ")
		}
		w.WriteString(strings.Join(row, "\t") + "\n")
	}
	return nil
}

// CSVFormatter writes RFC 4180 comma-separated values.
type CSVFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *CSVFormatter) Format(w *bytes.Buffer, r *Result) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(tableHeader); err != nil {
		return err
	}
	if err := writer.WriteAll(tableRow(r)); err != nil {
		return err
	}
	return writer.Error()
}

// MarkdownFormatter writes a GitHub-flavored Markdown table.
type MarkdownFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *MarkdownFormatter) Format(w *bytes.Buffer, r *Result) error {
	fmt.Fprintf(w, "| %s |\n", strings.Join(tableHeader, " | "))
	w.WriteString("|" + strings.Repeat("---|", len(tableHeader)) + "\n")
	for _, row := range tableRow(r) {
		for i, cell := range row {
			row[i] = escapeMarkdownPipe(cell)
		}
		fmt.Fprintf(w, "| %s |\n", strings.Join(row, " | "))
	}
	return nil
}

func escapeMarkdownPipe(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func init() {
	Register("tsv", func() Formatter { return &TSVFormatter{} })
	Register("csv", func() Formatter { return &CSVFormatter{} })
	Register("markdown", func() Formatter { return &MarkdownFormatter{} })
}

var (
	_ Formatter = (*TSVFormatter)(nil)
	_ Formatter = (*CSVFormatter)(nil)
	_ Formatter = (*MarkdownFormatter)(nil)
)
