package file

import (
	"os"
	"path/filepath"
	"time"
)

// DirSize walks dir and sums the sizes of regular files under it.
func DirSize(dir string) (int64, error) {
	var total int64

	err := filepath.Walk(dir, func(path string, info os.FileInfo,
		err error) error {
		if err != nil {
			return err
		}

		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})

	return total, err
}

// SubdirsModifiedBefore returns the immediate subdirectories of root
// whose newest content is older than cutoff. A missing root yields an
// empty result, not an error.
func SubdirsModifiedBefore(root string, cutoff time.Time) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var stale []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		newest, err := newestModTime(dir)
		if err != nil {
			return nil, err
		}
		if newest.Before(cutoff) {
			stale = append(stale, dir)
		}
	}
	return stale, nil
}

func newestModTime(dir string) (time.Time, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return time.Time{}, err
	}
	newest := info.ModTime()

	err = filepath.Walk(dir, func(path string, info os.FileInfo,
		err error) error {
		if err != nil {
			return err
		}

		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
		return nil
	})

	return newest, err
}
