package ledger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gh-nvat/pipecheck/src/pkg/models"
	"github.com/gofrs/flock"
	log "github.com/sirupsen/logrus"
)

var logger = log.WithField("package", "ledger")

const (
	COLUMN_IMAGE          = "image"
	COLUMN_WORKFLOW       = "workflow"
	COLUMN_DATA_SAMPLE    = "data_sample"
	COLUMN_DIRTREE_MATCH  = "dirtree_match"
	COLUMN_OUTPUT_MATCH   = "output_match"
	FILE_EXTENSION        = ".csv"
	LOCK_FILE_SUFFIX      = ".lock"
	BOOL_TRUE             = "True"
	BOOL_FALSE            = "False"
	DEFAULT_FILE_MODE     = 0o644
	DEFAULT_DIR_FILE_MODE = 0o755
)

// Header is the fixed column schema of every ledger file
var Header = []string{COLUMN_IMAGE, COLUMN_WORKFLOW, COLUMN_DATA_SAMPLE, COLUMN_DIRTREE_MATCH, COLUMN_OUTPUT_MATCH}

// Ledger is an append-only CSV record of completed test cases.
// Safe for concurrent use; rows are additionally serialized across
// processes with an OS file lock.
type Ledger struct {
	path string
	mu   sync.Mutex
	lock *flock.Flock
}

// PathFor returns "<dir>/<config name>.csv"
func PathFor(dir, configName string) string {
	return filepath.Join(dir, configName+FILE_EXTENSION)
}

// Open prepares the ledger at path. With fresh set, a previous ledger is
// removed first. The header is written when the file does not exist yet.
func Open(path string, fresh bool) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), DEFAULT_DIR_FILE_MODE); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	l := &Ledger{path: path, lock: flock.New(path + LOCK_FILE_SUFFIX)}
	if err := l.lock.Lock(); err != nil {
		return nil, fmt.Errorf("failed to lock ledger %s: %w", path, err)
	}
	defer func() {
		_ = l.lock.Unlock()
	}()

	if fresh {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to reset ledger %s: %w", path, err)
		}
		logger.WithField("path", path).Debug("Previous ledger removed")
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := l.write(Header); err != nil {
			return nil, fmt.Errorf("failed to write ledger header: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat ledger %s: %w", path, err)
	}

	logger.WithField("path", path).Info("Ledger ready")
	return l, nil
}

// Path returns the ledger file location
func (l *Ledger) Path() string {
	return l.path
}

// Append writes one row; a row is fully written before the next begins
func (l *Ledger) Append(row models.LedgerRow) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock ledger %s: %w", l.path, err)
	}
	defer func() {
		_ = l.lock.Unlock()
	}()

	if err := l.write(Record(row)); err != nil {
		return fmt.Errorf("failed to append ledger row: %w", err)
	}
	return nil
}

// Close releases the lock file handle
func (l *Ledger) Close() error {
	return l.lock.Close()
}

func (l *Ledger) write(record []string) error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, DEFAULT_FILE_MODE) // #nosec G304
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write(record); err != nil {
		_ = f.Close()
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Record renders a row in column order
func Record(row models.LedgerRow) []string {
	return []string{
		row.ImageRef,
		row.WorkflowName,
		row.DataSampleID,
		FormatBool(row.StructureMatch),
		FormatBool(row.ContentMatch),
	}
}

func FormatBool(b bool) string {
	if b {
		return BOOL_TRUE
	}
	return BOOL_FALSE
}

// ParseBool accepts True/False in any letter case
func ParseBool(s string) (bool, error) {
	switch {
	case strings.EqualFold(s, BOOL_TRUE):
		return true, nil
	case strings.EqualFold(s, BOOL_FALSE):
		return false, nil
	default:
		return false, fmt.Errorf("%w: invalid boolean %q", models.ErrConfigurationMismatch, s)
	}
}
