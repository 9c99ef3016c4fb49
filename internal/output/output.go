// Package output writes rewritten classes and copied resources.
package output

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/blacktop/retrobuffer/internal/errs"
	"github.com/blacktop/retrobuffer/pkg/classfile"
)

// Dir is an output root.
type Dir struct {
	root string
	// DryRun skips every write.
	DryRun bool
}

// New returns a writer rooted at root.
func New(root string) *Dir {
	return &Dir{root: root}
}

// Root returns the output root.
func (d *Dir) Root() string { return d.root }

func (d *Dir) write(rel string, data []byte) (string, error) {
	if !filepath.IsLocal(rel) {
		return "", errs.IO("write", rel, errors.New("path escapes the output directory"))
	}
	dst := filepath.Join(d.root, rel)
	if d.DryRun {
		return dst, nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", errs.IO("create directory", filepath.Dir(dst), err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return "", errs.IO("write", dst, err)
	}
	return dst, nil
}

// WriteClass writes a class file at the path derived from the class name it declares.
func (d *Dir) WriteClass(data []byte) (string, error) {
	h, err := classfile.ParseHeader(data, classfile.Options{})
	if err != nil {
		return "", errors.Wrap(err, "reading rewritten class name")
	}
	return d.write(filepath.FromSlash(h.Name)+".class", data)
}

// WriteResource copies a resource to the same relative path under the root.
func (d *Dir) WriteResource(rel string, data []byte) (string, error) {
	return d.write(filepath.FromSlash(rel), data)
}
