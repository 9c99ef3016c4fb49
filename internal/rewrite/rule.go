package rewrite

import (
	"fmt"

	"github.com/blacktop/retrobuffer/pkg/classfile"
)

// Call is a method invocation as encoded in a class file.
type Call struct {
	Opcode     classfile.Opcode
	Owner      string
	Name       string
	Descriptor string
	Interface  bool // the reference is an InterfaceMethodref
}

func (c Call) String() string {
	return fmt.Sprintf("%s.%s %s", c.Owner, c.Name, c.Descriptor)
}

// Rule rewrites a single call. It must be stateless and safe for concurrent use.
type Rule interface {
	fmt.Stringer
	// Rewrite returns the replacement for c, or false to leave it alone.
	Rewrite(c Call) (Call, bool)
}

type tableRule struct {
	name  string
	table *Table
}

// TableRule retargets invokevirtual calls that exactly match an entry of t.
func TableRule(name string, t *Table) Rule {
	return tableRule{name: name, table: t}
}

// BufferRule is the java.nio.Buffer covariant return fix.
func BufferRule() Rule {
	return TableRule("buffer", NewBufferTable())
}

// DefaultRules returns the rules applied when none are configured.
func DefaultRules() []Rule {
	return []Rule{BufferRule()}
}

func (r tableRule) String() string { return r.name }

func (r tableRule) Rewrite(c Call) (Call, bool) {
	if c.Opcode != classfile.OpInvokevirtual || c.Interface {
		return c, false
	}
	target, ok := r.table.Lookup(CallSiteKey{Owner: c.Owner, Name: c.Name, Descriptor: c.Descriptor})
	if !ok {
		return c, false
	}
	c.Owner, c.Descriptor = target.Owner, target.Descriptor
	return c, true
}
