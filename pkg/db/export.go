package db

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// ExportCSV exports the readings matching filter in CSV format
func (db *DB) ExportCSV(w io.Writer, filter ReadingFilter) error {
	readings, err := db.ListReadings(filter)
	if err != nil {
		return err
	}

	csvWriter := csv.NewWriter(w)

	headers := []string{"Recorded At", "Device", "Bus", "Address", "Label", "Value", "Unit"}
	if err := csvWriter.Write(headers); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}

	for _, r := range readings {
		row := []string{
			r.RecordedAt.Local().Format(timeLayout),
			r.Device,
			r.Bus,
			fmt.Sprintf("0x%02x", r.Address),
			r.Label,
			strconv.FormatFloat(r.Value, 'f', -1, 64),
			r.Unit,
		}
		if err := csvWriter.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// ExportJSON exports the readings matching filter in JSON format
func (db *DB) ExportJSON(w io.Writer, filter ReadingFilter) error {
	readings, err := db.ListReadings(filter)
	if err != nil {
		return err
	}
	if readings == nil {
		readings = []*Reading{}
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(readings); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}
