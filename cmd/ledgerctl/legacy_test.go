package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stock-ledger/ledger"
)

func TestReadLegacyCSV(t *testing.T) {
	// GIVEN: A CSV export with reordered columns and no description
	in := "on_hand, SKU ,asof,ean\n12,A1,2024-01-31,\n3.0,B2,,4006381333931\n"

	// WHEN: Reading it
	records, err := readLegacyCSV(strings.NewReader(in))

	// THEN: Columns are matched by header name
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "A1", records[0].SKU)
	assert.Equal(t, "12", records[0].OnHand)
	assert.Equal(t, ledger.MustParseDate("2024-01-31"), records[0].AsOf)
	assert.Equal(t, "3.0", records[1].OnHand)
	assert.True(t, records[1].AsOf.IsZero())
	assert.Equal(t, "4006381333931", records[1].EAN)
}

func TestReadLegacyCSV_MissingColumn(t *testing.T) {
	_, err := readLegacyCSV(strings.NewReader("sku,description\nA1,milk\n"))
	assert.ErrorContains(t, err, "on_hand")
}

func TestReadLegacyCSV_BadDate(t *testing.T) {
	_, err := readLegacyCSV(strings.NewReader("sku,on_hand,asof\nA1,1,31/01/2024\n"))
	assert.ErrorContains(t, err, "line 2")
}

func TestReadLegacyFile_ByExtension(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "export.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`[{"sku":"A1","on_hand":"5","asof":"2024-02-01"}]`), 0o600))
	records, err := readLegacyFile(jsonPath)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "5", records[0].OnHand)

	txtPath := filepath.Join(dir, "export.txt")
	require.NoError(t, os.WriteFile(txtPath, []byte("x"), 0o600))
	_, err = readLegacyFile(txtPath)
	assert.Error(t, err)
}
