package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
)

// Statuses of one time slice in the ingest walk.
const (
	StatusWritten = "written"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// Row records what happened to one time slice.
type Row struct {
	Dekad       string `csv:"dekad"`
	PeriodStart string `csv:"period_start"`
	PeriodEnd   string `csv:"period_end"`
	Product     string `csv:"product"`
	Output      string `csv:"output"`
	Status      string `csv:"status"`
	Detail      string `csv:"detail"`
}

// Write stores the run report as CSV.
func Write(path string, rows []*Row) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report %s: %w", path, err)
	}
	defer f.Close()
	if err := gocsv.MarshalFile(&rows, f); err != nil {
		return fmt.Errorf("failed to write report %s: %w", path, err)
	}
	return nil
}
