// Package loader discovers test definition files on disk and parses them
// into the in-memory model, skipping and reporting malformed ones.
package loader

import (
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gridstone.dev/internal/spec"
)

// Suffix identifies test definition files.
const Suffix = ".test.json"

// Options tune discovery and filtering.
type Options struct {
	// Recursive walks subdirectories; otherwise only root's direct children
	// are considered.
	Recursive bool
	// Tags, when non-empty, keeps only tests whose tag set intersects it.
	Tags   []string
	Logger *log.Logger
}

// SkippedFile records a definition that could not be loaded and why. Loading
// of the other files continues.
type SkippedFile struct {
	Path string
	Err  error
}

// Result of one load pass.
type Result struct {
	Tests   []*spec.Test
	Skipped []SkippedFile
	// FilteredOut counts valid tests excluded by the tag filter.
	FilteredOut int
}

// Discover lists the definition files under root, sorted by path so the same
// tree always yields the same test order.
func Discover(root string, recursive bool) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		if !strings.HasSuffix(root, Suffix) {
			return nil, fmt.Errorf("%s: not a %s file", root, Suffix)
		}
		return []string{root}, nil
	}

	var paths []string
	if recursive {
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.HasSuffix(d.Name(), Suffix) {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	} else {
		entries, err := os.ReadDir(root)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), Suffix) {
				paths = append(paths, filepath.Join(root, e.Name()))
			}
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// Load discovers and parses every definition under root. Malformed files and
// duplicate test names are skipped and reported, never fatal.
func Load(root string, opts Options) (Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[loader] ", log.LstdFlags)
	}

	paths, err := Discover(root, opts.Recursive)
	if err != nil {
		return Result{}, err
	}

	var res Result
	seen := map[string]string{} // test name -> path
	for _, path := range paths {
		t, err := spec.LoadTest(path)
		if err != nil {
			logger.Printf("skipping %s: %v", path, err)
			res.Skipped = append(res.Skipped, SkippedFile{Path: path, Err: err})
			continue
		}
		if prev, dup := seen[t.Name]; dup {
			err := fmt.Errorf("duplicate test name %q (already defined in %s)", t.Name, prev)
			logger.Printf("skipping %s: %v", path, err)
			res.Skipped = append(res.Skipped, SkippedFile{Path: path, Err: err})
			continue
		}
		seen[t.Name] = path

		if len(opts.Tags) > 0 && !t.HasAnyTag(opts.Tags) {
			res.FilteredOut++
			continue
		}
		res.Tests = append(res.Tests, t)
	}

	logger.Printf("loaded %d tests from %s (%d skipped, %d filtered out)",
		len(res.Tests), root, len(res.Skipped), res.FilteredOut)
	return res, nil
}
