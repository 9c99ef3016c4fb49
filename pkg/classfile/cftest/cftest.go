// Package cftest assembles small class files for tests.
package cftest

import (
	"fmt"

	"github.com/blacktop/retrobuffer/pkg/classfile"
)

// Class is a class file under construction.
type Class struct {
	Pool    *classfile.ConstantPool
	name    string
	super   string
	access  uint16
	major   uint16
	ifaces  []string
	methods []*Method
	attrs   []attr
}

type attr struct {
	name string
	data []byte
}

// New starts a public class extending super. An empty super produces a class without a superclass.
func New(name, super string) *Class {
	return &Class{
		Pool:   classfile.NewConstantPool(),
		name:   name,
		super:  super,
		access: classfile.AccPublic | classfile.AccSuper,
		major:  52,
	}
}

// Interface marks the class as an interface.
func (c *Class) Interface() *Class {
	c.access = classfile.AccPublic | classfile.AccInterface | classfile.AccAbstract
	return c
}

// Version sets the major version.
func (c *Class) Version(major uint16) *Class {
	c.major = major
	return c
}

// Implements adds interfaces.
func (c *Class) Implements(names ...string) *Class {
	c.ifaces = append(c.ifaces, names...)
	return c
}

// Attribute adds a class attribute.
func (c *Class) Attribute(name string, data []byte) *Class {
	c.attrs = append(c.attrs, attr{name, data})
	return c
}

// Method starts a method. Methods without any code are emitted without a Code attribute.
func (c *Class) Method(access uint16, name, desc string) *Method {
	m := &Method{class: c, access: access, name: name, desc: desc, labels: map[string]int{}}
	c.methods = append(c.methods, m)
	return m
}

// ClassIndex returns the pool index of a Class entry.
func (c *Class) ClassIndex(name string) uint16 {
	return must(c.Pool.AddClass(name))
}

// Bytes encodes the class. It panics on encoding errors.
func (c *Class) Bytes() []byte {
	cf := &classfile.ClassFile{
		MajorVersion: c.major,
		Pool:         c.Pool,
		AccessFlags:  c.access,
		ThisClass:    c.ClassIndex(c.name),
	}
	if c.super != "" {
		cf.SuperClass = c.ClassIndex(c.super)
	}
	for _, i := range c.ifaces {
		cf.Interfaces = append(cf.Interfaces, c.ClassIndex(i))
	}
	for _, m := range c.methods {
		cf.Methods = append(cf.Methods, m.member())
	}
	for _, a := range c.attrs {
		cf.Attributes = append(cf.Attributes, classfile.Attribute{NameIndex: must(c.Pool.AddUtf8(a.name)), Data: a.data})
	}
	b, err := cf.Bytes()
	if err != nil {
		panic(err)
	}
	return b
}

// Method is a method under construction.
type Method struct {
	class     *Class
	access    uint16
	name      string
	desc      string
	code      []byte
	maxStack  uint16
	maxLocals uint16
	handlers  []classfile.ExceptionHandler
	codeAttrs []attr
	labels    map[string]int
	fixups    []fixup
}

type fixup struct {
	at, from int
	label    string
	wide     bool
}

// PC returns the offset of the next instruction.
func (m *Method) PC() int { return len(m.code) }

// Op appends operand-less instructions.
func (m *Method) Op(ops ...classfile.Opcode) *Method {
	for _, op := range ops {
		m.code = append(m.code, byte(op))
	}
	return m
}

// Raw appends raw bytes to the code array.
func (m *Method) Raw(b ...byte) *Method {
	m.code = append(m.code, b...)
	return m
}

// Local appends an instruction with a single byte operand, such as a load, store or bipush.
func (m *Method) Local(op classfile.Opcode, index uint8) *Method {
	return m.Raw(byte(op), index)
}

// Invoke appends an invoke instruction referencing owner.name desc.
func (m *Method) Invoke(op classfile.Opcode, owner, name, desc string) *Method {
	var idx uint16
	if op == classfile.OpInvokeinterface {
		idx = must(m.class.Pool.AddInterfaceMethodref(owner, name, desc))
		slots, err := classfile.ArgumentSlots(desc)
		if err != nil {
			panic(err)
		}
		return m.Raw(byte(op), byte(idx>>8), byte(idx), byte(slots+1), 0)
	}
	idx = must(m.class.Pool.AddMethodref(owner, name, desc))
	return m.Raw(byte(op), byte(idx>>8), byte(idx))
}

// InvokeInterfaceMethod appends an invokestatic or invokespecial referencing an InterfaceMethodref.
func (m *Method) InvokeInterfaceMethod(op classfile.Opcode, owner, name, desc string) *Method {
	idx := must(m.class.Pool.AddInterfaceMethodref(owner, name, desc))
	return m.Raw(byte(op), byte(idx>>8), byte(idx))
}

// Field appends a field access instruction.
func (m *Method) Field(op classfile.Opcode, owner, name, desc string) *Method {
	idx := must(m.class.Pool.AddFieldref(owner, name, desc))
	return m.Raw(byte(op), byte(idx>>8), byte(idx))
}

// Type appends new, anewarray, checkcast or instanceof.
func (m *Method) Type(op classfile.Opcode, class string) *Method {
	idx := m.class.ClassIndex(class)
	return m.Raw(byte(op), byte(idx>>8), byte(idx))
}

// Ldc appends an ldc_w of a string constant.
func (m *Method) Ldc(s string) *Method {
	idx := must(m.class.Pool.AddString(s))
	return m.Raw(byte(classfile.OpLdcW), byte(idx>>8), byte(idx))
}

// Label binds name to the current offset.
func (m *Method) Label(name string) *Method {
	m.labels[name] = len(m.code)
	return m
}

// Jump appends a branch to label.
func (m *Method) Jump(op classfile.Opcode, label string) *Method {
	pc := len(m.code)
	wide := op == classfile.OpGotoW || op == classfile.OpJsrW
	m.code = append(m.code, byte(op), 0, 0)
	if wide {
		m.code = append(m.code, 0, 0)
	}
	m.fixups = append(m.fixups, fixup{at: pc + 1, from: pc, label: label, wide: wide})
	return m
}

// Maxs sets max_stack and max_locals.
func (m *Method) Maxs(stack, locals uint16) *Method {
	m.maxStack, m.maxLocals = stack, locals
	return m
}

// Handler adds an exception table entry between already bound labels. An empty
// catchType catches everything.
func (m *Method) Handler(start, end, handler, catchType string) *Method {
	h := classfile.ExceptionHandler{
		StartPC:   uint16(m.labels[start]),
		EndPC:     uint16(m.labels[end]),
		HandlerPC: uint16(m.labels[handler]),
	}
	if catchType != "" {
		h.CatchType = m.class.ClassIndex(catchType)
	}
	m.handlers = append(m.handlers, h)
	return m
}

// CodeAttribute adds an attribute nested in the Code attribute, such as a StackMapTable.
func (m *Method) CodeAttribute(name string, data []byte) *Method {
	m.codeAttrs = append(m.codeAttrs, attr{name, data})
	return m
}

// End returns the owning class.
func (m *Method) End() *Class { return m.class }

func (m *Method) member() classfile.Member {
	pool := m.class.Pool
	mem := classfile.Member{
		AccessFlags:     m.access,
		NameIndex:       must(pool.AddUtf8(m.name)),
		DescriptorIndex: must(pool.AddUtf8(m.desc)),
	}
	if len(m.code) == 0 {
		return mem
	}
	for _, f := range m.fixups {
		target, ok := m.labels[f.label]
		if !ok {
			panic(fmt.Sprintf("cftest: undefined label %q", f.label))
		}
		off := target - f.from
		if f.wide {
			m.code[f.at], m.code[f.at+1], m.code[f.at+2], m.code[f.at+3] = byte(off>>24), byte(off>>16), byte(off>>8), byte(off)
		} else {
			m.code[f.at], m.code[f.at+1] = byte(off>>8), byte(off)
		}
	}
	code := &classfile.Code{
		MaxStack:       m.maxStack,
		MaxLocals:      m.maxLocals,
		Code:           m.code,
		ExceptionTable: m.handlers,
	}
	for _, a := range m.codeAttrs {
		code.Attributes = append(code.Attributes, classfile.Attribute{NameIndex: must(pool.AddUtf8(a.name)), Data: a.data})
	}
	data, err := code.Bytes()
	if err != nil {
		panic(err)
	}
	mem.Attributes = []classfile.Attribute{{NameIndex: must(pool.AddUtf8(classfile.AttrCode)), Data: data}}
	return mem
}

func must(i uint16, err error) uint16 {
	if err != nil {
		panic(err)
	}
	return i
}
