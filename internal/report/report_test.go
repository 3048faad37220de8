package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "run.csv")
	rows := []*Row{
		{Dekad: "20200101", PeriodStart: "2020-01-01", PeriodEnd: "2020-01-10", Status: StatusSkipped, Output: "/out/a.tif"},
		{Dekad: "20200111", PeriodStart: "2020-01-11", PeriodEnd: "2020-01-20", Product: "CGLS_NDVI300_GLOBE_OLCI_V201", Status: StatusWritten, Output: "/out/b.tif"},
		{Dekad: "20200121", PeriodStart: "2020-01-21", PeriodEnd: "2020-01-31", Product: "CGLS_NDVI300_GLOBE_OLCI_V201", Status: StatusFailed, Detail: "translation failed"},
	}

	require.NoError(t, Write(path, rows))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "dekad,period_start,period_end,product,output,status,detail", lines[0])
	assert.Contains(t, lines[1], "skipped")
	assert.Contains(t, lines[2], "written")
	assert.Contains(t, lines[3], "translation failed")
}

func TestWriteEmptyReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.csv")
	require.NoError(t, Write(path, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "dekad,period_start,period_end,product,output,status,detail", strings.TrimSpace(string(data)))
}
