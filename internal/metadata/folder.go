package metadata

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

const (
	maxWalkDepth     = 10
	maxWalkEntries   = 10_000
	maxListedEntries = 50
	maxExtensions    = 5
)

// summarizeFolder walks a dropped directory and aggregates counts, sizes and
// the dominant extensions. Dot-prefixed names are skipped and the walk is
// bounded in both depth and entry count so a runaway tree cannot stall a job.
func summarizeFolder(root string) (*FolderMeta, error) {
	fm := &FolderMeta{}
	extCount := map[string]int{}
	seen := 0

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are not worth failing the summary
		}
		if path == root {
			return nil
		}
		name := d.Name()
		if strings.HasPrefix(name, ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		if strings.Count(rel, string(filepath.Separator)) >= maxWalkDepth {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		seen++
		if seen > maxWalkEntries {
			return fs.SkipAll
		}

		if d.IsDir() {
			fm.DirCount++
			return nil
		}
		fm.FileCount++
		if info, err := d.Info(); err == nil {
			fm.TotalBytes += info.Size()
		}
		if ext := strings.ToLower(filepath.Ext(name)); ext != "" {
			extCount[ext]++
		}
		if len(fm.Entries) < maxListedEntries {
			fm.Entries = append(fm.Entries, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	fm.Extensions = topExtensions(extCount, maxExtensions)
	return fm, nil
}

func topExtensions(counts map[string]int, n int) []string {
	exts := make([]string, 0, len(counts))
	for ext := range counts {
		exts = append(exts, ext)
	}
	sort.Slice(exts, func(i, j int) bool {
		if counts[exts[i]] != counts[exts[j]] {
			return counts[exts[i]] > counts[exts[j]]
		}
		return exts[i] < exts[j]
	})
	if len(exts) > n {
		exts = exts[:n]
	}
	return exts
}
