package rewrite

import (
	"sort"
)

// BaseBuffer is the common superclass of the NIO buffers.
const BaseBuffer = "java/nio/Buffer"

// BufferTypes are the buffer subclasses whose positioning methods gained
// covariant return types in Java 9.
var BufferTypes = []string{
	"java/nio/ByteBuffer",
	"java/nio/CharBuffer",
	"java/nio/DoubleBuffer",
	"java/nio/FloatBuffer",
	"java/nio/IntBuffer",
	"java/nio/LongBuffer",
	"java/nio/ShortBuffer",
	"java/nio/MappedByteBuffer",
}

// PositioningMethods maps each affected method to its argument list.
var PositioningMethods = map[string]string{
	"clear":    "()",
	"flip":     "()",
	"limit":    "(I)",
	"mark":     "()",
	"position": "(I)",
	"reset":    "()",
	"rewind":   "()",
}

// CallSiteKey identifies a method reference exactly.
type CallSiteKey struct {
	Owner      string
	Name       string
	Descriptor string
}

func (k CallSiteKey) String() string { return k.Owner + "." + k.Name + " " + k.Descriptor }

// Target is the owner and descriptor a matched reference is rewritten to.
type Target struct {
	Owner      string
	Descriptor string
}

// Table is an immutable set of call site rewrites.
type Table struct {
	entries map[CallSiteKey]Target
}

// NewBufferTable builds the 56 entry table retargeting the positioning
// methods of every buffer subclass to java/nio/Buffer.
func NewBufferTable() *Table {
	t := &Table{entries: make(map[CallSiteKey]Target, len(BufferTypes)*len(PositioningMethods))}
	for _, owner := range BufferTypes {
		for name, args := range PositioningMethods {
			key := CallSiteKey{Owner: owner, Name: name, Descriptor: args + "L" + owner + ";"}
			t.entries[key] = Target{Owner: BaseBuffer, Descriptor: args + "L" + BaseBuffer + ";"}
		}
	}
	return t
}

// Lookup returns the rewrite for k.
func (t *Table) Lookup(k CallSiteKey) (Target, bool) {
	target, ok := t.entries[k]
	return target, ok
}

// Len returns the number of entries.
func (t *Table) Len() int { return len(t.entries) }

// Keys returns every key in a stable order.
func (t *Table) Keys() []CallSiteKey {
	keys := make([]CallSiteKey, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}
