package ledger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/gh-nvat/pipecheck/src/pkg/models"
)

// ErrNoValidLedger is returned when a folder holds no ledger with the expected schema
var ErrNoValidLedger = fmt.Errorf("%w: no valid ledger files", models.ErrConfigurationMismatch)

// LoadResult collects the rows of every valid ledger in a folder
type LoadResult struct {
	Rows    []models.LedgerRow
	Files   []string // valid files, sorted
	Skipped []string // files rejected for schema or value errors
}

// LoadAll reads every "*.csv" in dir. Files with an unexpected schema are
// skipped with a warning; zero valid files is an error.
func LoadAll(dir string) (*LoadResult, error) {
	logger.WithField("dir", dir).Info("LoadAll: starting...")

	files, err := filepath.Glob(filepath.Join(dir, "*"+FILE_EXTENSION))
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger files: %w", err)
	}
	sort.Strings(files)

	res := &LoadResult{}
	for _, f := range files {
		rows, err := ReadFile(f)
		if err != nil {
			logger.WithField("file", f).WithField("error", err).Warn("Skipping ledger file")
			res.Skipped = append(res.Skipped, f)
			continue
		}
		res.Files = append(res.Files, f)
		res.Rows = append(res.Rows, rows...)
	}

	if len(res.Files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoValidLedger, dir)
	}
	logger.Infof("LoadAll: done, %d rows from %d files (%d skipped).", len(res.Rows), len(res.Files), len(res.Skipped))
	return res, nil
}

// ReadFile parses one ledger. Extra columns are tolerated, missing ones are not.
func ReadFile(path string) ([]models.LedgerRow, error) {
	f, err := os.Open(path) // #nosec G304
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()
	return Read(f)
}

// Read parses ledger rows from r
func Read(r io.Reader) ([]models.LedgerRow, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty ledger", models.ErrConfigurationMismatch)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrConfigurationMismatch, err)
	}

	index := make(map[string]int, len(header))
	for i, col := range header {
		index[col] = i
	}
	for _, col := range Header {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", models.ErrConfigurationMismatch, col)
		}
	}

	var rows []models.LedgerRow
	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrConfigurationMismatch, err)
		}

		structure, err := ParseBool(record[index[COLUMN_DIRTREE_MATCH]])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		content, err := ParseBool(record[index[COLUMN_OUTPUT_MATCH]])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, models.LedgerRow{
			ImageRef:       record[index[COLUMN_IMAGE]],
			WorkflowName:   record[index[COLUMN_WORKFLOW]],
			DataSampleID:   record[index[COLUMN_DATA_SAMPLE]],
			StructureMatch: structure,
			ContentMatch:   content,
		})
	}
	return rows, nil
}

// Aggregate groups rows by image, in order of first appearance. An image is
// eligible when every one of its rows passed both checks.
func Aggregate(rows []models.LedgerRow) []models.ImageVerdict {
	var order []string
	byImage := make(map[string]*models.ImageVerdict)
	for _, row := range rows {
		v, ok := byImage[row.ImageRef]
		if !ok {
			v = &models.ImageVerdict{ImageRef: row.ImageRef, Eligible: true}
			byImage[row.ImageRef] = v
			order = append(order, row.ImageRef)
		}
		v.Rows = append(v.Rows, row)
		v.Eligible = v.Eligible && row.Passed()
	}

	verdicts := make([]models.ImageVerdict, 0, len(order))
	for _, ref := range order {
		verdicts = append(verdicts, *byImage[ref])
	}
	return verdicts
}
