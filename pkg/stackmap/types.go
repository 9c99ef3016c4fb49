// Package stackmap decodes, encodes and recomputes StackMapTable attributes
// together with the max_stack and max_locals of a method.
package stackmap

import (
	"fmt"
	"strings"
)

// Kind is a verification type tag.
type Kind uint8

// Verification type tags (JVMS 4.7.4).
const (
	Top               Kind = 0
	Integer           Kind = 1
	Float             Kind = 2
	Double            Kind = 3
	Long              Kind = 4
	Null              Kind = 5
	UninitializedThis Kind = 6
	Object            Kind = 7
	Uninitialized     Kind = 8

	// ReturnAddress is pushed by jsr. It only exists during analysis and has no encoding.
	ReturnAddress Kind = 0xff
)

// Type is a verification type.
type Type struct {
	Kind   Kind
	Class  string // internal name or array descriptor for Object
	Offset int    // new instruction offset for Uninitialized, jsr return offset for ReturnAddress
}

var (
	TopType   = Type{Kind: Top}
	IntType   = Type{Kind: Integer}
	FloatType = Type{Kind: Float}
	LongType  = Type{Kind: Long}
	DblType   = Type{Kind: Double}
	NullType  = Type{Kind: Null}
)

// ObjectType returns the Object verification type for an internal name or array descriptor.
func ObjectType(class string) Type { return Type{Kind: Object, Class: class} }

// Size returns the number of slots the type occupies.
func (t Type) Size() int {
	if t.Kind == Long || t.Kind == Double {
		return 2
	}
	return 1
}

// IsReference reports whether t is a reference type, including null and uninitialized values.
func (t Type) IsReference() bool {
	switch t.Kind {
	case Null, Object, Uninitialized, UninitializedThis:
		return true
	}
	return false
}

func (t Type) String() string {
	switch t.Kind {
	case Top:
		return "top"
	case Integer:
		return "int"
	case Float:
		return "float"
	case Long:
		return "long"
	case Double:
		return "double"
	case Null:
		return "null"
	case UninitializedThis:
		return "uninitializedThis"
	case Object:
		return t.Class
	case Uninitialized:
		return fmt.Sprintf("uninitialized(%d)", t.Offset)
	case ReturnAddress:
		return fmt.Sprintf("returnAddress(%d)", t.Offset)
	}
	return fmt.Sprintf("kind(%d)", t.Kind)
}

// FromDescriptor returns the verification type of a field descriptor.
func FromDescriptor(desc string) Type {
	switch desc[0] {
	case 'Z', 'B', 'C', 'S', 'I':
		return IntType
	case 'F':
		return FloatType
	case 'J':
		return LongType
	case 'D':
		return DblType
	case 'L':
		return ObjectType(desc[1 : len(desc)-1])
	}
	return ObjectType(desc)
}

// descriptorOf returns the field descriptor form of an Object class name.
func descriptorOf(class string) string {
	if strings.HasPrefix(class, "[") {
		return class
	}
	return "L" + class + ";"
}

// Frame is a stack map frame in list form: long and double values appear once.
type Frame struct {
	Offset int
	Locals []Type
	Stack  []Type
}

func (f Frame) String() string {
	return fmt.Sprintf("%d: locals=%v stack=%v", f.Offset, f.Locals, f.Stack)
}

// expand converts list form to slot form.
func expand(types []Type) []Type {
	out := make([]Type, 0, len(types))
	for _, t := range types {
		out = append(out, t)
		if t.Size() == 2 {
			out = append(out, TopType)
		}
	}
	return out
}

// compress converts slot form to list form.
func compress(slots []Type, trimTop bool) []Type {
	out := make([]Type, 0, len(slots))
	for i := 0; i < len(slots); i++ {
		out = append(out, slots[i])
		if slots[i].Size() == 2 {
			i++
		}
	}
	if trimTop {
		for len(out) > 0 && out[len(out)-1].Kind == Top {
			out = out[:len(out)-1]
		}
	}
	return out
}

func equalTypes(a, b []Type) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
