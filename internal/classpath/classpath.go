// Package classpath resolves class hierarchy information for the stack map
// analyzer from the input registry, the configured classpath and a small
// table of platform classes.
package classpath

import (
	"archive/zip"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/apex/log"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/blacktop/retrobuffer/internal/errs"
	"github.com/blacktop/retrobuffer/internal/registry"
	"github.com/blacktop/retrobuffer/pkg/classfile"
	"github.com/blacktop/retrobuffer/pkg/stackmap"
)

// CacheSize is the number of resolved names kept in memory, misses included.
const CacheSize = 4096

// anyVersion accepts every class file version; only the header is read.
var anyVersion = classfile.Options{MaxMajor: math.MaxUint16}

type lookup struct {
	info stackmap.ClassInfo
	ok   bool
}

// Context is an isolated view of the classes visible to one run. It never
// consults the classpath of the running process. It is safe for concurrent use.
type Context struct {
	reg   *registry.Registry
	dirs  []string
	jars  []*jar
	cache *lru.Cache[string, lookup]

	hits, misses atomic.Int64
}

type jar struct {
	path  string
	r     *zip.ReadCloser
	files map[string]*zip.File
}

// New opens the classpath entries. Entries that do not exist are skipped.
func New(reg *registry.Registry, entries []string) (*Context, error) {
	cache, err := lru.New[string, lookup](CacheSize)
	if err != nil {
		return nil, err
	}
	c := &Context{reg: reg, cache: cache}
	for _, p := range entries {
		fi, err := os.Stat(p)
		if err != nil {
			log.WithField("path", p).Debug("skipping missing classpath entry")
			continue
		}
		if fi.IsDir() {
			c.dirs = append(c.dirs, p)
			continue
		}
		j, err := openJar(p)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.jars = append(c.jars, j)
	}
	log.WithFields(log.Fields{
		"dirs": len(c.dirs),
		"jars": len(c.jars),
	}).Debug("classpath ready")
	return c, nil
}

func openJar(path string) (*jar, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, errs.IO("open classpath archive", path, err)
	}
	j := &jar{path: path, r: r, files: make(map[string]*zip.File, len(r.File))}
	for _, f := range r.File {
		if strings.HasSuffix(f.Name, ".class") {
			j.files[f.Name] = f
		}
	}
	return j, nil
}

// Close releases the open archives.
func (c *Context) Close() error {
	var first error
	for _, j := range c.jars {
		if err := j.r.Close(); err != nil && first == nil {
			first = err
		}
	}
	c.jars = nil
	return first
}

// Stats returns the number of cached and uncached lookups.
func (c *Context) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Resolve implements stackmap.Hierarchy.
func (c *Context) Resolve(name string) (stackmap.ClassInfo, bool) {
	if l, ok := c.cache.Get(name); ok {
		c.hits.Add(1)
		return l.info, l.ok
	}
	c.misses.Add(1)
	info, ok := c.find(name)
	c.cache.Add(name, lookup{info: info, ok: ok})
	return info, ok
}

func (c *Context) find(name string) (stackmap.ClassInfo, bool) {
	if strings.HasPrefix(name, "java/") {
		if info, ok := platform[name]; ok {
			return info, true
		}
	}
	if c.reg != nil {
		if a, ok := c.reg.Lookup(name); ok {
			return stackmap.ClassInfo{Name: a.Name, Super: a.Super, Interface: a.Interface}, true
		}
	}
	file := name + ".class"
	for _, dir := range c.dirs {
		path := filepath.Join(dir, filepath.FromSlash(file))
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if info, ok := header(path, data); ok {
			return info, true
		}
	}
	for _, j := range c.jars {
		f, ok := j.files[file]
		if !ok {
			continue
		}
		data, err := readZipFile(f)
		if err != nil {
			log.WithError(err).WithField("archive", j.path).Debugf("failed to read %s", file)
			continue
		}
		if info, ok := header(j.path+"!"+file, data); ok {
			return info, true
		}
	}
	return stackmap.ClassInfo{}, false
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func header(path string, data []byte) (stackmap.ClassInfo, bool) {
	h, err := classfile.ParseHeader(data, anyVersion)
	if err != nil {
		log.WithError(err).WithField("path", path).Debug("ignoring unreadable classpath class")
		return stackmap.ClassInfo{}, false
	}
	return stackmap.ClassInfo{Name: h.Name, Super: h.SuperName, Interface: h.IsInterface()}, true
}
