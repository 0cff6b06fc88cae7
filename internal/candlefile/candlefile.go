// Package candlefile reads and writes candle series as CSV files.
// The commands use it to run backtests from exported data without a
// database.
package candlefile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"ashare-backtest-lab/internal/domain"
)

// File format errors
var (
	ErrBadHeader = errors.New("candle file: unexpected header")
	ErrBadRow    = errors.New("candle file: malformed row")
)

// header is the column layout, matching the candles table.
var header = []string{"symbol", "timestamp_ms", "open", "high", "low", "close", "volume", "atr"}

// LoadCSV reads a candle series from a CSV file. Rows are returned
// sorted by timestamp regardless of file order.
func LoadCSV(path string) ([]*domain.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open candle file: %w", err)
	}
	defer f.Close()

	candles, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return candles, nil
}

// ReadCSV reads a candle series from r.
func ReadCSV(r io.Reader) ([]*domain.Candle, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(header)

	first, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i, col := range header {
		if first[i] != col {
			return nil, fmt.Errorf("%w: column %d is %q, want %q", ErrBadHeader, i, first[i], col)
		}
	}

	var candles []*domain.Candle
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}

		candle, err := parseRow(record)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		candles = append(candles, candle)
	}

	sort.Slice(candles, func(i, j int) bool {
		return candles[i].TimestampMs < candles[j].TimestampMs
	})
	return candles, nil
}

// WriteCSV writes a candle series to w in the same layout LoadCSV reads.
func WriteCSV(w io.Writer, candles []*domain.Candle) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, c := range candles {
		record := []string{
			c.Symbol,
			strconv.FormatInt(c.TimestampMs, 10),
			formatFloat(c.Open),
			formatFloat(c.High),
			formatFloat(c.Low),
			formatFloat(c.Close),
			formatFloat(c.Volume),
			formatFloat(c.ATR),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func parseRow(record []string) (*domain.Candle, error) {
	if record[0] == "" {
		return nil, fmt.Errorf("%w: empty symbol", ErrBadRow)
	}
	ts, err := strconv.ParseInt(record[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: timestamp_ms %q", ErrBadRow, record[1])
	}

	fields := make([]float64, 6)
	for i := 0; i < 6; i++ {
		v, err := strconv.ParseFloat(record[2+i], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s %q", ErrBadRow, header[2+i], record[2+i])
		}
		fields[i] = v
	}

	return &domain.Candle{
		Symbol:      record[0],
		TimestampMs: ts,
		Open:        fields[0],
		High:        fields[1],
		Low:         fields[2],
		Close:       fields[3],
		Volume:      fields[4],
		ATR:         fields[5],
	}, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
