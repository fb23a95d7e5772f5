// Package export defines the narrow interfaces to the spreadsheet/CRM side of
// the system. The real clients live outside this repository; the workflows
// only ever append rows and look up tax ids.
package export

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Exporter appends one row to a named sheet. Errors are non-fatal to a turn:
// callers log and move on, guarded by the sheet_row_added scratch flag for
// at-most-once semantics.
type Exporter interface {
	AppendRow(ctx context.Context, sheet string, row []string) error
}

// Directory resolves a company tax id to the CRM facts the workflows need
// (status, assigned commercial agent, contact data). A nil map means the tax
// id is unknown.
type Directory interface {
	LookupTaxID(ctx context.Context, taxID string) (map[string]string, error)
}

// LogExporter is the default when no spreadsheet target is configured: rows
// are logged and dropped.
type LogExporter struct {
	logger *zap.Logger
}

func NewLogExporter(logger *zap.Logger) *LogExporter {
	return &LogExporter{logger: logger}
}

func (e *LogExporter) AppendRow(ctx context.Context, sheet string, row []string) error {
	e.logger.Info("Export row (no export target configured)",
		zap.String("sheet", sheet),
		zap.Strings("row", row))
	return nil
}

// MemoryExporter collects rows in memory. Used in tests and local runs.
type MemoryExporter struct {
	mu   sync.Mutex
	rows map[string][][]string
}

func NewMemoryExporter() *MemoryExporter {
	return &MemoryExporter{rows: map[string][][]string{}}
}

func (e *MemoryExporter) AppendRow(ctx context.Context, sheet string, row []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rows[sheet] = append(e.rows[sheet], row)
	return nil
}

func (e *MemoryExporter) Rows(sheet string) [][]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([][]string(nil), e.rows[sheet]...)
}

// StaticDirectory is an in-memory tax id directory for tests and local runs.
type StaticDirectory struct {
	Entries map[string]map[string]string
}

func (d *StaticDirectory) LookupTaxID(ctx context.Context, taxID string) (map[string]string, error) {
	if d == nil || d.Entries == nil {
		return nil, nil
	}
	return d.Entries[taxID], nil
}
