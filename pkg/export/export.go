package export

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/manslikestiffler/smart-granary/pkg/models"
)

// DefaultFilename is used when no name is given
const DefaultFilename = "sensor-data.csv"

// ErrNoData is returned when there is nothing to export
var ErrNoData = errors.New("no readings to export")

// Columns returns the CSV header for readings: id, timestamp, every sensor the
// first reading defines, then location when the first reading has one.
func Columns(first models.Reading) []string {
	cols := []string{"id", "timestamp"}
	for _, key := range models.SensorKeys {
		if _, ok := first.Value(key); ok {
			cols = append(cols, key)
		}
	}
	if first.Location != "" {
		cols = append(cols, "location")
	}
	return cols
}

// WriteCSV writes readings as CSV. String fields are always quoted, numbers are
// written bare and rows are joined by a single newline. A sensor missing from a
// later reading leaves its cell empty.
func WriteCSV(w io.Writer, readings []models.Reading) error {
	if len(readings) == 0 {
		return ErrNoData
	}

	bw := bufio.NewWriter(w)
	cols := Columns(readings[0])
	if _, err := bw.WriteString(strings.Join(cols, ",")); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	cells := make([]string, len(cols))
	for _, r := range readings {
		for i, col := range cols {
			cells[i] = cell(r, col)
		}
		if _, err := bw.WriteString("\n" + strings.Join(cells, ",")); err != nil {
			return fmt.Errorf("failed to write reading %d: %w", r.ID, err)
		}
	}

	return bw.Flush()
}

// WriteGzipCSV writes gzip-compressed CSV at the given compression level
func WriteGzipCSV(w io.Writer, readings []models.Reading, level int) error {
	zw, err := gzip.NewWriterLevel(w, level)
	if err != nil {
		return fmt.Errorf("failed to create gzip writer: %w", err)
	}
	zw.Name = DefaultFilename
	zw.ModTime = time.Now()

	if err := WriteCSV(zw, readings); err != nil {
		zw.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish gzip stream: %w", err)
	}
	return nil
}

func cell(r models.Reading, col string) string {
	switch col {
	case "id":
		return strconv.FormatInt(r.ID, 10)
	case "timestamp":
		return quote(r.ISOTimestamp())
	case "location":
		if r.Location == "" {
			return ""
		}
		return quote(r.Location)
	}
	if v, ok := r.Value(col); ok {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
