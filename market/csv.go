package market

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"
)

// LoadBarsCSV reads bars from a CSV file with columns
// timestamp_ms,open,high,low,close,volume. A header row is skipped.
func LoadBarsCSV(path string) ([]Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bar file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 6
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read bar file: %w", err)
	}

	bars := make([]Bar, 0, len(records))
	for i, rec := range records {
		ts, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			if i == 0 {
				continue // header row
			}
			return nil, fmt.Errorf("bad timestamp on line %d: %w", i+1, err)
		}
		var vals [5]float64
		for j := 1; j < 6; j++ {
			v, err := strconv.ParseFloat(rec[j], 64)
			if err != nil {
				return nil, fmt.Errorf("bad value on line %d col %d: %w", i+1, j+1, err)
			}
			vals[j-1] = v
		}
		bars = append(bars, Bar{
			Timestamp: time.UnixMilli(ts).UTC(),
			Open:      vals[0],
			High:      vals[1],
			Low:       vals[2],
			Close:     vals[3],
			Volume:    vals[4],
		})
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("bar file %s contains no bars", path)
	}
	return bars, nil
}
