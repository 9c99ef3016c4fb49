// Package classfile reads and writes JVM class files.
//
// Decoding keeps every structure it does not interpret as raw bytes, so a
// parsed class re-encodes to exactly the bytes it was read from unless a
// caller edits it.
package classfile

import (
	"fmt"

	"github.com/pkg/errors"
)

// Magic is the class file signature.
const Magic = 0xCAFEBABE

// Supported class file versions.
const (
	MinMajorVersion = 45
	MinMinorVersion = 3
	MaxMajorVersion = 69 // Java 25
)

// Access flags shared by classes, fields and methods.
const (
	AccPublic       = 0x0001
	AccPrivate      = 0x0002
	AccProtected    = 0x0004
	AccStatic       = 0x0008
	AccFinal        = 0x0010
	AccSuper        = 0x0020
	AccSynchronized = 0x0020
	AccVolatile     = 0x0040
	AccBridge       = 0x0040
	AccTransient    = 0x0080
	AccVarargs      = 0x0080
	AccNative       = 0x0100
	AccInterface    = 0x0200
	AccAbstract     = 0x0400
	AccStrict       = 0x0800
	AccSynthetic    = 0x1000
	AccAnnotation   = 0x2000
	AccEnum         = 0x4000
	AccModule       = 0x8000
)

// Well known attribute names.
const (
	AttrCode               = "Code"
	AttrStackMapTable      = "StackMapTable"
	AttrLocalVariableTable = "LocalVariableTable"
)

// ErrBadMagic is returned for data that does not start with Magic.
var ErrBadMagic = errors.New("classfile: bad magic number")

// VersionError reports an unsupported class file version.
type VersionError struct {
	Major, Minor uint16
	MaxMajor     uint16
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("classfile: unsupported class file version %d.%d (supported %d.%d to %d)",
		e.Major, e.Minor, MinMajorVersion, MinMinorVersion, e.MaxMajor)
}

// Attribute is an undecoded attribute.
type Attribute struct {
	NameIndex uint16
	Data      []byte
}

// Member is a field or method.
type Member struct {
	AccessFlags     uint16
	NameIndex       uint16
	DescriptorIndex uint16
	Attributes      []Attribute
}

// ClassFile is a decoded class file.
type ClassFile struct {
	MinorVersion uint16
	MajorVersion uint16
	Pool         *ConstantPool
	AccessFlags  uint16
	ThisClass    uint16
	SuperClass   uint16
	Interfaces   []uint16
	Fields       []Member
	Methods      []Member
	Attributes   []Attribute
}

// Options controls parsing.
type Options struct {
	// MaxMajor overrides MaxMajorVersion when non-zero.
	MaxMajor uint16
}

func (o Options) maxMajor() uint16 {
	if o.MaxMajor == 0 {
		return MaxMajorVersion
	}
	return o.MaxMajor
}

func readHead(r *Reader, opts Options) (minor, major uint16, err error) {
	if r.U4() != Magic {
		if err := r.Err(); err != nil {
			return 0, 0, err
		}
		return 0, 0, ErrBadMagic
	}
	minor, major = r.U2(), r.U2()
	if err := r.Err(); err != nil {
		return 0, 0, err
	}
	if major < MinMajorVersion || (major == MinMajorVersion && minor < MinMinorVersion) || major > opts.maxMajor() {
		return 0, 0, &VersionError{Major: major, Minor: minor, MaxMajor: opts.maxMajor()}
	}
	return minor, major, nil
}

func readAttributes(r *Reader) []Attribute {
	n := int(r.U2())
	if r.Err() != nil {
		return nil
	}
	attrs := make([]Attribute, 0, n)
	for i := 0; i < n && r.Err() == nil; i++ {
		a := Attribute{NameIndex: r.U2()}
		length := r.U4()
		a.Data = r.Bytes(int(length))
		attrs = append(attrs, a)
	}
	return attrs
}

func readMembers(r *Reader) []Member {
	n := int(r.U2())
	if r.Err() != nil {
		return nil
	}
	members := make([]Member, 0, n)
	for i := 0; i < n && r.Err() == nil; i++ {
		m := Member{AccessFlags: r.U2(), NameIndex: r.U2(), DescriptorIndex: r.U2()}
		m.Attributes = readAttributes(r)
		members = append(members, m)
	}
	return members
}

// Parse decodes a class file.
func Parse(data []byte, opts Options) (*ClassFile, error) {
	r := NewReader(data)
	cf := &ClassFile{}
	var err error
	if cf.MinorVersion, cf.MajorVersion, err = readHead(r, opts); err != nil {
		return nil, err
	}
	if cf.Pool, err = readConstantPool(r); err != nil {
		return nil, err
	}
	cf.AccessFlags, cf.ThisClass, cf.SuperClass = r.U2(), r.U2(), r.U2()
	n := int(r.U2())
	for i := 0; i < n && r.Err() == nil; i++ {
		cf.Interfaces = append(cf.Interfaces, r.U2())
	}
	cf.Fields = readMembers(r)
	cf.Methods = readMembers(r)
	cf.Attributes = readAttributes(r)
	if err := r.Err(); err != nil {
		return nil, err
	}
	if r.Remaining() != 0 {
		return nil, errors.Errorf("classfile: %d trailing bytes", r.Remaining())
	}
	if _, err := cf.Name(); err != nil {
		return nil, errors.Wrap(err, "this_class")
	}
	if cf.SuperClass != 0 {
		if _, err := cf.Pool.ClassName(cf.SuperClass); err != nil {
			return nil, errors.Wrap(err, "super_class")
		}
	}
	for _, m := range cf.Methods {
		if _, err := m.Name(cf.Pool); err != nil {
			return nil, errors.Wrap(err, "method name")
		}
		if _, err := m.Descriptor(cf.Pool); err != nil {
			return nil, errors.Wrap(err, "method descriptor")
		}
	}
	return cf, nil
}

// Header is the identifying part of a class file.
type Header struct {
	MajorVersion uint16
	MinorVersion uint16
	AccessFlags  uint16
	Name         string
	SuperName    string
	Interfaces   []string
}

// IsInterface reports whether the header describes an interface.
func (h Header) IsInterface() bool { return h.AccessFlags&AccInterface != 0 }

// ParseHeader decodes the class file up to and including its interfaces.
func ParseHeader(data []byte, opts Options) (*Header, error) {
	r := NewReader(data)
	h := &Header{}
	var err error
	if h.MinorVersion, h.MajorVersion, err = readHead(r, opts); err != nil {
		return nil, err
	}
	pool, err := readConstantPool(r)
	if err != nil {
		return nil, err
	}
	h.AccessFlags = r.U2()
	this, super := r.U2(), r.U2()
	n := int(r.U2())
	ifaces := make([]uint16, 0, n)
	for i := 0; i < n && r.Err() == nil; i++ {
		ifaces = append(ifaces, r.U2())
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	if h.Name, err = pool.ClassName(this); err != nil {
		return nil, errors.Wrap(err, "this_class")
	}
	if super != 0 {
		if h.SuperName, err = pool.ClassName(super); err != nil {
			return nil, errors.Wrap(err, "super_class")
		}
	}
	for _, i := range ifaces {
		name, err := pool.ClassName(i)
		if err != nil {
			return nil, errors.Wrap(err, "interfaces")
		}
		h.Interfaces = append(h.Interfaces, name)
	}
	return h, nil
}

// Name returns the internal name of the class.
func (cf *ClassFile) Name() (string, error) { return cf.Pool.ClassName(cf.ThisClass) }

// SuperName returns the internal name of the superclass, or "" for java/lang/Object and modules.
func (cf *ClassFile) SuperName() (string, error) {
	if cf.SuperClass == 0 {
		return "", nil
	}
	return cf.Pool.ClassName(cf.SuperClass)
}

// IsInterface reports whether the class is an interface.
func (cf *ClassFile) IsInterface() bool { return cf.AccessFlags&AccInterface != 0 }

// Bytes encodes the class file.
func (cf *ClassFile) Bytes() ([]byte, error) {
	b := make([]byte, 0, 4096)
	b = appendU4(b, Magic)
	b = appendU2(b, cf.MinorVersion)
	b = appendU2(b, cf.MajorVersion)
	b, err := cf.Pool.appendTo(b)
	if err != nil {
		return nil, err
	}
	b = appendU2(b, cf.AccessFlags)
	b = appendU2(b, cf.ThisClass)
	b = appendU2(b, cf.SuperClass)
	b = appendU2(b, uint16(len(cf.Interfaces)))
	for _, i := range cf.Interfaces {
		b = appendU2(b, i)
	}
	b = appendMembers(b, cf.Fields)
	b = appendMembers(b, cf.Methods)
	b = appendAttributes(b, cf.Attributes)
	return b, nil
}

func appendMembers(b []byte, members []Member) []byte {
	b = appendU2(b, uint16(len(members)))
	for _, m := range members {
		b = appendU2(b, m.AccessFlags)
		b = appendU2(b, m.NameIndex)
		b = appendU2(b, m.DescriptorIndex)
		b = appendAttributes(b, m.Attributes)
	}
	return b
}

func appendAttributes(b []byte, attrs []Attribute) []byte {
	b = appendU2(b, uint16(len(attrs)))
	for _, a := range attrs {
		b = appendU2(b, a.NameIndex)
		b = appendU4(b, uint32(len(a.Data)))
		b = append(b, a.Data...)
	}
	return b
}

// Name returns the member name.
func (m *Member) Name(pool *ConstantPool) (string, error) { return pool.Utf8(m.NameIndex) }

// Descriptor returns the member descriptor.
func (m *Member) Descriptor(pool *ConstantPool) (string, error) {
	return pool.Utf8(m.DescriptorIndex)
}

// IsStatic reports whether ACC_STATIC is set.
func (m *Member) IsStatic() bool { return m.AccessFlags&AccStatic != 0 }

// FindAttribute returns the index of the first attribute called name, or -1.
func FindAttribute(attrs []Attribute, pool *ConstantPool, name string) int {
	for i, a := range attrs {
		if n, err := pool.Utf8(a.NameIndex); err == nil && n == name {
			return i
		}
	}
	return -1
}
