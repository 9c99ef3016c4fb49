// Package registry holds the classes found under the input root.
package registry

import (
	"sort"

	"github.com/blacktop/retrobuffer/internal/errs"
	"github.com/blacktop/retrobuffer/pkg/classfile"
)

// Artifact is a parsed input class. Raw is never modified.
type Artifact struct {
	Name      string
	Super     string
	Interface bool
	Path      string // relative to the input root
	Raw       []byte
}

// Parse decodes data read from path and returns its record.
func Parse(path string, data []byte, opts classfile.Options) (*Artifact, error) {
	cf, err := classfile.Parse(data, opts)
	if err != nil {
		return nil, &errs.ParseError{Path: path, Err: err}
	}
	a := &Artifact{Interface: cf.IsInterface(), Path: path, Raw: data}
	if a.Name, err = cf.Name(); err != nil {
		return nil, &errs.ParseError{Path: path, Err: err}
	}
	if a.Super, err = cf.SuperName(); err != nil {
		return nil, &errs.ParseError{Path: path, Err: err}
	}
	return a, nil
}

// Builder collects artifacts during the walk.
type Builder struct {
	byName map[string]*Artifact
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{byName: make(map[string]*Artifact)}
}

// Add registers a. Two artifacts with the same class name are a configuration error.
func (b *Builder) Add(a *Artifact) error {
	if prev, ok := b.byName[a.Name]; ok {
		first, second := prev.Path, a.Path
		if second < first {
			first, second = second, first
		}
		return errs.Configf("inputDir", "duplicate class %s defined by '%s' and '%s'", a.Name, first, second)
	}
	b.byName[a.Name] = a
	return nil
}

// Build freezes the builder into a Registry. The builder must not be used afterwards.
func (b *Builder) Build() *Registry {
	r := &Registry{byName: b.byName}
	for _, a := range b.byName {
		r.ordered = append(r.ordered, a)
		if a.Interface {
			r.interfaces++
		}
	}
	sort.Slice(r.ordered, func(i, j int) bool {
		x, y := r.ordered[i], r.ordered[j]
		if x.Interface != y.Interface {
			return x.Interface
		}
		return x.Name < y.Name
	})
	b.byName = nil
	return r
}

// Registry is an immutable name to artifact mapping.
type Registry struct {
	byName     map[string]*Artifact
	ordered    []*Artifact
	interfaces int
}

// Len returns the number of registered classes.
func (r *Registry) Len() int { return len(r.ordered) }

// Interfaces returns the number of registered interfaces.
func (r *Registry) Interfaces() int { return r.interfaces }

// Lookup returns the artifact defining name.
func (r *Registry) Lookup(name string) (*Artifact, bool) {
	a, ok := r.byName[name]
	return a, ok
}

// Ordered returns interfaces first, then classes, each sorted by name.
func (r *Registry) Ordered() []*Artifact {
	return r.ordered
}
