package results

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ExportFormat selects how Export renders a report.
type ExportFormat string

const (
	ExportJSON ExportFormat = "json"
	ExportCSV  ExportFormat = "csv"
)

// ErrUnsupportedFormat is returned for formats other than json and csv.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// ParseExportFormat accepts a case-insensitive format name; empty means json.
func ParseExportFormat(raw string) (ExportFormat, error) {
	switch ExportFormat(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ExportJSON:
		return ExportJSON, nil
	case ExportCSV:
		return ExportCSV, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, raw)
	}
}

// ContentType is the MIME type of an export in this format.
func (f ExportFormat) ContentType() string {
	if f == ExportCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/json; charset=utf-8"
}

var csvHeader = []string{
	"Issue ID", "Severity", "Title", "Description",
	"Framework", "Section", "Reference", "Page", "Remediation",
}

// Export writes r to w in the given format. CSV has one row per issue.
func Export(w io.Writer, r Report, format ExportFormat) error {
	switch format {
	case ExportJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
		return nil
	case ExportCSV:
		return exportCSV(w, r)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func exportCSV(w io.Writer, r Report) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return err
	}
	for _, issue := range r.Issues {
		var framework, section, reference, page string
		if reg := issue.Regulation; reg != nil {
			framework, section, reference = reg.Framework, reg.Section, reg.Reference
		}
		if loc := issue.Location; loc != nil && loc.Page > 0 {
			page = strconv.Itoa(loc.Page)
		}
		row := []string{
			issue.ID,
			string(issue.Severity),
			issue.Title,
			issue.Description,
			framework,
			section,
			reference,
			page,
			issue.Remediation,
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
