package dirtree

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gh-nvat/pipecheck/src/pkg/models"
	log "github.com/sirupsen/logrus"
)

var logger = log.WithField("package", "dirtree")

var (
	// ErrNotDirectory indicates a comparison root that is missing or not a directory
	ErrNotDirectory = fmt.Errorf("%w: not a directory", models.ErrEnvironment)
)

// DEFAULT_IGNORES are VCS and cache directories skipped on both sides
var DEFAULT_IGNORES = []string{"RCS", "CVS", "tags", ".git", ".hg", ".bzr", "_darcs", "__pycache__"}

const compareChunkSize = 1 << 20 // 1 MiB

// Comparator checks two directory trees for structural equivalence
type Comparator struct {
	Ignore []string // doublestar patterns matched against entry names
}

// NewComparator creates a comparator ignoring DEFAULT_IGNORES plus extra patterns
func NewComparator(extraIgnores ...string) *Comparator {
	ignore := make([]string, 0, len(DEFAULT_IGNORES)+len(extraIgnores))
	ignore = append(ignore, DEFAULT_IGNORES...)
	ignore = append(ignore, extraIgnores...)
	return &Comparator{Ignore: ignore}
}

// Compare reports whether dirA and dirB have the same shape.
// Missing entries on either side short-circuit to false without descending.
// Byte differences in common files only count when strictBinaryCheck is set;
// a file or nested directory that cannot be read always fails the check.
// Only unusable roots are returned as errors.
func (c *Comparator) Compare(dirA, dirB string, strictBinaryCheck bool) (bool, error) {
	diff, err := c.Diff(dirA, dirB)
	if err != nil {
		return false, err
	}
	return c.compareLevel(dirA, dirB, diff, strictBinaryCheck), nil
}

func (c *Comparator) compareLevel(dirA, dirB string, diff models.DirDiff, strictBinaryCheck bool) bool {
	l := logger.WithField("dirA", dirA).WithField("dirB", dirB)
	if !diff.Equal() {
		l.WithField("onlyInA", diff.OnlyInA).
			WithField("onlyInB", diff.OnlyInB).
			WithField("uncomparable", diff.Uncomparable).
			Info("Directory trees differ")
		return false
	}

	for _, name := range diff.CommonFiles {
		same, err := sameBytes(filepath.Join(dirA, name), filepath.Join(dirB, name))
		if err != nil {
			l.WithField("file", name).WithField("error", err).Warn("Failed to compare file")
			return false
		}
		if !same {
			if strictBinaryCheck {
				l.WithField("file", name).Info("File content differs (strict binary check)")
				return false
			}
			l.WithField("file", name).Debug("File content differs, tolerated")
		}
	}

	for _, name := range diff.CommonDirs {
		subA, subB := filepath.Join(dirA, name), filepath.Join(dirB, name)
		sub, err := c.Diff(subA, subB)
		if err != nil {
			l.WithField("dir", name).WithField("error", err).Warn("Failed to compare directory")
			return false
		}
		if !c.compareLevel(subA, subB, sub, strictBinaryCheck) {
			return false
		}
	}
	return true
}

// CommonFiles returns the slash-separated relative paths of every regular
// file present on both sides, descending only into common directories
func (c *Comparator) CommonFiles(dirA, dirB string) ([]string, error) {
	var files []string
	if err := c.collectCommonFiles(dirA, dirB, "", &files); err != nil {
		return nil, err
	}
	return files, nil
}

func (c *Comparator) collectCommonFiles(dirA, dirB, rel string, files *[]string) error {
	diff, err := c.Diff(filepath.Join(dirA, rel), filepath.Join(dirB, rel))
	if err != nil {
		return err
	}
	for _, name := range diff.CommonFiles {
		*files = append(*files, filepath.ToSlash(filepath.Join(rel, name)))
	}
	for _, name := range diff.CommonDirs {
		if err := c.collectCommonFiles(dirA, dirB, filepath.Join(rel, name), files); err != nil {
			return err
		}
	}
	return nil
}

// Compare checks two trees with the default ignore list
func Compare(dirA, dirB string, strictBinaryCheck bool) (bool, error) {
	return NewComparator().Compare(dirA, dirB, strictBinaryCheck)
}

// sameBytes compares two files byte for byte
func sameBytes(pathA, pathB string) (bool, error) {
	infoA, err := os.Stat(pathA)
	if err != nil {
		return false, err
	}
	infoB, err := os.Stat(pathB)
	if err != nil {
		return false, err
	}
	if infoA.Size() != infoB.Size() {
		return false, nil
	}

	fa, err := os.Open(pathA) // #nosec G304
	if err != nil {
		return false, err
	}
	defer func() {
		_ = fa.Close()
	}()
	fb, err := os.Open(pathB) // #nosec G304
	if err != nil {
		return false, err
	}
	defer func() {
		_ = fb.Close()
	}()

	bufA := make([]byte, compareChunkSize)
	bufB := make([]byte, compareChunkSize)
	for {
		na, errA := io.ReadFull(fa, bufA)
		nb, errB := io.ReadFull(fb, bufB)
		if !bytes.Equal(bufA[:na], bufB[:nb]) {
			return false, nil
		}
		doneA := errors.Is(errA, io.EOF) || errors.Is(errA, io.ErrUnexpectedEOF)
		doneB := errors.Is(errB, io.EOF) || errors.Is(errB, io.ErrUnexpectedEOF)
		if errA != nil && !doneA {
			return false, errA
		}
		if errB != nil && !doneB {
			return false, errB
		}
		if doneA || doneB {
			return doneA && doneB, nil
		}
	}
}
