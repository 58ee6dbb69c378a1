package repo

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/miradorstack/mirador-forecast/internal/models"
)

// FileStore reads observations from a CSV or XLSX file. The file is re-read
// on every call so edits are picked up without a restart.
type FileStore struct {
	path   string
	sheet  string
	logger *slog.Logger
}

// NewFileStore creates a store over path. sheet selects the XLSX worksheet;
// empty means the first one.
func NewFileStore(path, sheet string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{path: path, sheet: sheet, logger: logger}
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

// GetObservations implements ObservationStore.
func (s *FileStore) GetObservations(ctx context.Context) ([]models.Observation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.readRows()
	if err != nil {
		return nil, err
	}
	return s.parseRows(rows)
}

func (s *FileStore) readRows() ([][]string, error) {
	switch strings.ToLower(filepath.Ext(s.path)) {
	case ".xlsx":
		f, err := excelize.OpenFile(s.path)
		if err != nil {
			return nil, fmt.Errorf("open workbook %s: %w", s.path, err)
		}
		defer f.Close()
		sheet := s.sheet
		if sheet == "" {
			sheet = f.GetSheetName(0)
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		return rows, nil
	case ".csv", "":
		file, err := os.Open(s.path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", s.path, err)
		}
		defer file.Close()
		r := csv.NewReader(file)
		r.FieldsPerRecord = -1
		r.TrimLeadingSpace = true
		rows, err := r.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("parse csv %s: %w", s.path, err)
		}
		return rows, nil
	default:
		return nil, fmt.Errorf("unsupported observation file %s: use .csv or .xlsx", s.path)
	}
}

func (s *FileStore) parseRows(rows [][]string) ([]models.Observation, error) {
	if len(rows) < 2 {
		return nil, fmt.Errorf("%s: need a header row and at least one data row", s.path)
	}
	cols, err := resolveColumns(rows[0])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}

	observations := make([]models.Observation, 0, len(rows)-1)
	dropped := 0
	for _, row := range rows[1:] {
		if len(row) <= cols["sku"] || len(row) <= cols["date"] || len(row) <= cols["value"] {
			dropped++
			continue
		}
		value, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(row[cols["value"]]), ",", ""), 64)
		if err != nil {
			dropped++
			continue
		}
		obs, ok := toObservation(row[cols["sku"]], row[cols["date"]], value)
		if !ok {
			dropped++
			continue
		}
		observations = append(observations, obs)
	}
	if dropped > 0 {
		s.logger.Warn("skipped invalid rows", slog.String("path", s.path), slog.Int("count", dropped))
	}
	return observations, nil
}

func resolveColumns(header []string) (map[string]int, error) {
	cols := make(map[string]int, len(headerAliases))
	for canonical, aliases := range headerAliases {
		idx := findColumn(header, aliases...)
		if idx < 0 {
			return nil, fmt.Errorf("missing %s column (accepted: %s)", canonical, strings.Join(aliases, ", "))
		}
		cols[canonical] = idx
	}
	return cols, nil
}

func findColumn(header []string, names ...string) int {
	for _, name := range names {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), name) {
				return i
			}
		}
	}
	return -1
}
