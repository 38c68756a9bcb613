package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strconv"
	"time"
)

var csvHeader = []string{"at", "action", "target_type", "target_id", "data"}

// WriteCSV renders rows as CSV with a header line. Data is embedded as a
// compact JSON object.
func WriteCSV(rows []TimelineRow) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, row := range rows {
		targetID := ""
		if row.TargetID != nil {
			targetID = strconv.FormatInt(*row.TargetID, 10)
		}
		data := ""
		if len(row.Data) > 0 {
			encoded, err := json.Marshal(row.Data)
			if err != nil {
				return nil, err
			}
			data = string(encoded)
		}
		record := []string{row.At.UTC().Format(time.RFC3339), row.Action, row.TargetType, targetID, data}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
