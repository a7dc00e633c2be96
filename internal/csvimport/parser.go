// Package csvimport turns a CSV export of serial numbers into device records.
//
// The parser is deliberately permissive: lines without a usable serial number are
// dropped and parsing continues. Lines are split before fields are parsed, so a
// quoted field cannot contain a newline.
package csvimport

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kuhlman-labs/jamf-redeploy/internal/models"
)

var (
	// ErrEmptyInput is returned when the content has no non-blank lines
	ErrEmptyInput = errors.New("CSV file is empty")

	// ErrNoValidRecords is returned when no line yields a device record
	ErrNoValidRecords = errors.New("no valid computer records found in CSV")
)

// headerMarkers identify a header row when found in the first non-blank line
var headerMarkers = []string{"serial", "computer", "name"}

const headerSerialValue = "serial number"

// Result is the output of ParseWithStats
type Result struct {
	Records   []*models.DeviceRecord
	HasHeader bool
	// Skipped counts data lines that produced no record
	Skipped int
}

// Parse converts CSV content into device records in file order.
func Parse(content string) ([]*models.DeviceRecord, error) {
	res, err := ParseWithStats(content)
	if err != nil {
		return nil, err
	}
	return res.Records, nil
}

// ParseWithStats is Parse that also reports header detection and skipped lines.
func ParseWithStats(content string) (*Result, error) {
	lines := nonBlankLines(content)
	if len(lines) == 0 {
		return nil, ErrEmptyInput
	}

	res := &Result{HasHeader: isHeader(lines[0])}
	dataLines := lines
	if res.HasHeader {
		dataLines = lines[1:]
	}

	res.Records = make([]*models.DeviceRecord, 0, len(dataLines))
	for _, line := range dataLines {
		record, ok := parseLine(line)
		if !ok {
			res.Skipped++
			continue
		}
		res.Records = append(res.Records, record)
	}

	if len(res.Records) == 0 {
		return nil, ErrNoValidRecords
	}
	return res, nil
}

// ParseReader reads all of r and parses it.
func ParseReader(r io.Reader) ([]*models.DeviceRecord, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	return Parse(string(data))
}

// LoadFile reads and parses the CSV file at path.
func LoadFile(path string) ([]*models.DeviceRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer func() { _ = f.Close() }()

	records, err := ParseReader(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// nonBlankLines splits content on \n, \r\n and \r and drops blank lines.
func nonBlankLines(content string) []string {
	content = strings.TrimPrefix(content, "\ufeff")
	content = lineBreaks.Replace(content)

	var lines []string
	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

var lineBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n")

func isHeader(line string) bool {
	lower := strings.ToLower(line)
	for _, marker := range headerMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func parseLine(line string) (*models.DeviceRecord, bool) {
	fields := SplitFields(line)

	serial := strings.TrimSpace(fields[0])
	if serial == "" || strings.EqualFold(serial, headerSerialValue) {
		return nil, false
	}

	var name, notes string
	if len(fields) > 1 {
		name = fields[1]
	}
	if len(fields) > 2 {
		notes = fields[2]
	}
	return models.NewDeviceRecord(serial, name, notes), true
}

// SplitFields splits a single CSV line into raw, untrimmed fields.
// A doubled quote inside a quoted field yields one literal quote; any other quote
// toggles quoting. It always returns at least one field.
func SplitFields(line string) []string {
	var (
		fields   []string
		current  strings.Builder
		inQuotes bool
	)

	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		switch {
		case ch == '"':
			if inQuotes && i+1 < len(runes) && runes[i+1] == '"' {
				current.WriteRune('"')
				i++
			} else {
				inQuotes = !inQuotes
			}
		case ch == ',' && !inQuotes:
			fields = append(fields, current.String())
			current.Reset()
		default:
			current.WriteRune(ch)
		}
	}

	return append(fields, current.String())
}
