package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func writeTempCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bars.csv")
	assert.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadCSV(t *testing.T) {
	path := writeTempCSV(t, `timestamp,open,high,low,close,volume
2025-04-07T09:01:00+09:00,1500,1502,1499,1501,0
2025-04-07T09:02:00+09:00,1501,1503,1500.5,1502.5,0
`)

	bars, err := LoadCSV(path)
	assert.NoError(t, err)
	if assert.Len(t, bars, 2) {
		want, _ := time.Parse(time.RFC3339, "2025-04-07T09:01:00+09:00")
		assert.True(t, bars[0].Timestamp.Equal(want))
		assert.Equal(t, 1500.0, bars[0].Open)
		assert.Equal(t, 1502.5, bars[1].Close)
	}
}

func TestLoadCSVWithoutHeader(t *testing.T) {
	path := writeTempCSV(t, "2025-04-07T09:01:00+09:00,1500,1502,1499,1501,0\n")

	bars, err := LoadCSV(path)
	assert.NoError(t, err)
	assert.Len(t, bars, 1)
}

func TestLoadCSVRejectsBadRow(t *testing.T) {
	path := writeTempCSV(t, `timestamp,open,high,low,close,volume
2025-04-07T09:01:00+09:00,xx,1502,1499,1501,0
`)

	_, err := LoadCSV(path)
	assert.Error(t, err)
}

func TestLoadCSVMissingFile(t *testing.T) {
	_, err := LoadCSV("/nonexistent/bars.csv")
	assert.Error(t, err)
}
