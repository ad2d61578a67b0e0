package dirtree

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gh-nvat/pipecheck/src/pkg/models"
)

// Diff partitions the entries of dirA and dirB at one level.
// Entries present on both sides are compared by type after following symlinks;
// a file on one side and a directory on the other (or an entry that cannot be
// stat'ed) is uncomparable.
func (c *Comparator) Diff(dirA, dirB string) (models.DirDiff, error) {
	if err := requireDir(dirA); err != nil {
		return models.DirDiff{}, err
	}
	if err := requireDir(dirB); err != nil {
		return models.DirDiff{}, err
	}

	namesA, err := c.listNames(dirA)
	if err != nil {
		return models.DirDiff{}, err
	}
	namesB, err := c.listNames(dirB)
	if err != nil {
		return models.DirDiff{}, err
	}

	var diff models.DirDiff
	for name := range namesA {
		if _, ok := namesB[name]; !ok {
			diff.OnlyInA = append(diff.OnlyInA, name)
			continue
		}

		infoA, errA := os.Stat(filepath.Join(dirA, name))
		infoB, errB := os.Stat(filepath.Join(dirB, name))
		switch {
		case errA != nil || errB != nil:
			diff.Uncomparable = append(diff.Uncomparable, name)
		case infoA.IsDir() && infoB.IsDir():
			diff.CommonDirs = append(diff.CommonDirs, name)
		case infoA.Mode().IsRegular() && infoB.Mode().IsRegular():
			diff.CommonFiles = append(diff.CommonFiles, name)
		default:
			diff.Uncomparable = append(diff.Uncomparable, name)
		}
	}
	for name := range namesB {
		if _, ok := namesA[name]; !ok {
			diff.OnlyInB = append(diff.OnlyInB, name)
		}
	}

	sort.Strings(diff.OnlyInA)
	sort.Strings(diff.OnlyInB)
	sort.Strings(diff.Uncomparable)
	sort.Strings(diff.CommonFiles)
	sort.Strings(diff.CommonDirs)
	return diff, nil
}

func (c *Comparator) listNames(dir string) (map[string]struct{}, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read directory %s: %v", models.ErrEnvironment, dir, err)
	}
	names := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if c.ignored(e.Name()) {
			continue
		}
		names[e.Name()] = struct{}{}
	}
	return names, nil
}

func (c *Comparator) ignored(name string) bool {
	for _, pattern := range c.Ignore {
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

func requireDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNotDirectory, path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrNotDirectory, path)
	}
	return nil
}
