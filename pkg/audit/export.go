package audit

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// ParseExportFormat validates a format name, defaulting to JSON
func ParseExportFormat(name string) (ExportFormat, error) {
	switch ExportFormat(name) {
	case "", ExportFormatJSON:
		return ExportFormatJSON, nil
	case ExportFormatNDJSON:
		return ExportFormatNDJSON, nil
	case ExportFormatCSV:
		return ExportFormatCSV, nil
	}
	return "", fmt.Errorf("unsupported export format %q", name)
}

// ContentType returns the MIME type for the format
func (f ExportFormat) ContentType() string {
	switch f {
	case ExportFormatNDJSON:
		return "application/x-ndjson"
	case ExportFormatCSV:
		return "text/csv"
	default:
		return "application/json"
	}
}

// Export writes records to w in the given format
func Export(w io.Writer, records []Record, format ExportFormat) error {
	switch format {
	case ExportFormatNDJSON:
		return exportNDJSON(w, records)
	case ExportFormatCSV:
		return exportCSV(w, records)
	default:
		return exportJSON(w, records)
	}
}

// exportJSON writes records as a JSON array
func exportJSON(w io.Writer, records []Record) error {
	if records == nil {
		records = []Record{}
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(records)
}

// exportNDJSON writes records as newline-delimited JSON
func exportNDJSON(w io.Writer, records []Record) error {
	encoder := json.NewEncoder(w)

	for i := range records {
		if err := encoder.Encode(&records[i]); err != nil {
			return fmt.Errorf("failed to encode record: %w", err)
		}
	}

	return nil
}

// exportCSV writes records as CSV with a header row
func exportCSV(w io.Writer, records []Record) error {
	writer := csv.NewWriter(w)

	header := []string{
		"ID",
		"Timestamp",
		"ActorUserID",
		"ActorName",
		"ActorRole",
		"Action",
		"ResourceType",
		"ResourceID",
		"OrganizationID",
		"Decision",
		"Reason",
	}

	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, record := range records {
		row := []string{
			record.ID,
			record.Timestamp.Format(time.RFC3339Nano),
			record.ActorUserID,
			record.ActorName,
			string(record.ActorRole),
			record.Action,
			string(record.ResourceType),
			record.ResourceID,
			record.OrganizationID,
			string(record.Decision),
			record.Reason,
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("CSV writer error: %w", err)
	}

	return nil
}
