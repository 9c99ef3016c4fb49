// Package walk enumerates and classifies the files under an input root.
package walk

import (
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/blacktop/retrobuffer/internal/errs"
)

// ModuleInfo is the module descriptor, which carries no code.
const ModuleInfo = "module-info.class"

// Entry is a regular file under the root.
type Entry struct {
	Rel   string // slash separated, relative to the root
	Abs   string
	Size  int64
	Class bool
}

// IsClass reports whether a relative path names a class file to rewrite.
func IsClass(rel string) bool {
	return strings.HasSuffix(rel, ".class") && path.Base(rel) != ModuleInfo
}

// Enumerate lists every file under root, sorted by relative path.
//
// The listing completes before the caller writes anything, so an output
// directory nested in (or equal to) the root never feeds back into the run.
func Enumerate(root string) ([]Entry, error) {
	var entries []Entry
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return errs.IO("walk", p, err)
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return errs.IO("walk", p, err)
		}
		info, err := d.Info()
		if err != nil {
			return errs.IO("stat", p, err)
		}
		rel = filepath.ToSlash(rel)
		entries = append(entries, Entry{Rel: rel, Abs: p, Size: info.Size(), Class: IsClass(rel)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Rel < entries[j].Rel })
	return entries, nil
}

// Split partitions entries into class files and resources, preserving order.
func Split(entries []Entry) (classes, resources []Entry) {
	for _, e := range entries {
		if e.Class {
			classes = append(classes, e)
		} else {
			resources = append(resources, e)
		}
	}
	return classes, resources
}
