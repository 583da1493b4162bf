package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/warp/stock-ledger/inventory"
	"github.com/warp/stock-ledger/ledger"
)

// legacyColumns are the recognised CSV headers. sku and on_hand are required.
var legacyColumns = []string{"sku", "description", "ean", "on_hand", "asof"}

func readLegacyFile(path string) ([]inventory.LegacyRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		var records []inventory.LegacyRecord
		if err := json.NewDecoder(f).Decode(&records); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
		return records, nil
	case ".csv":
		return readLegacyCSV(f)
	default:
		return nil, fmt.Errorf("unsupported export format %q (use .csv or .json)", filepath.Ext(path))
	}
}

func readLegacyCSV(r io.Reader) ([]inventory.LegacyRecord, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"sku", "on_hand"} {
		if _, ok := index[required]; !ok {
			return nil, fmt.Errorf("missing column %q (known columns: %s)", required, strings.Join(legacyColumns, ", "))
		}
	}

	field := func(row []string, name string) string {
		i, ok := index[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var records []inventory.LegacyRecord
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rec := inventory.LegacyRecord{
			SKU:         field(row, "sku"),
			Description: field(row, "description"),
			EAN:         field(row, "ean"),
			OnHand:      field(row, "on_hand"),
		}
		if raw := field(row, "asof"); raw != "" {
			d, err := ledger.ParseDate(raw)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			rec.AsOf = d
		}
		records = append(records, rec)
	}
	return records, nil
}
