package classfile

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// Tag identifies the kind of a constant pool entry.
type Tag uint8

// Constant pool tags (JVMS Table 4.4-B).
const (
	TagUtf8               Tag = 1
	TagInteger            Tag = 3
	TagFloat              Tag = 4
	TagLong               Tag = 5
	TagDouble             Tag = 6
	TagClass              Tag = 7
	TagString             Tag = 8
	TagFieldref           Tag = 9
	TagMethodref          Tag = 10
	TagInterfaceMethodref Tag = 11
	TagNameAndType        Tag = 12
	TagMethodHandle       Tag = 15
	TagMethodType         Tag = 16
	TagDynamic            Tag = 17
	TagInvokeDynamic      Tag = 18
	TagModule             Tag = 19
	TagPackage            Tag = 20
)

func (t Tag) String() string {
	switch t {
	case TagUtf8:
		return "Utf8"
	case TagInteger:
		return "Integer"
	case TagFloat:
		return "Float"
	case TagLong:
		return "Long"
	case TagDouble:
		return "Double"
	case TagClass:
		return "Class"
	case TagString:
		return "String"
	case TagFieldref:
		return "Fieldref"
	case TagMethodref:
		return "Methodref"
	case TagInterfaceMethodref:
		return "InterfaceMethodref"
	case TagNameAndType:
		return "NameAndType"
	case TagMethodHandle:
		return "MethodHandle"
	case TagMethodType:
		return "MethodType"
	case TagDynamic:
		return "Dynamic"
	case TagInvokeDynamic:
		return "InvokeDynamic"
	case TagModule:
		return "Module"
	case TagPackage:
		return "Package"
	}
	return fmt.Sprintf("Tag(%d)", uint8(t))
}

// ErrPoolOverflow is returned when an entry cannot be added because the pool is full.
var ErrPoolOverflow = errors.New("classfile: constant pool overflow")

// Constant is a single constant pool entry.
//
// Index1 and Index2 hold the entry's references in declaration order:
// Class/String/MethodType/Module/Package use Index1 only, member refs use
// (class, name-and-type), NameAndType uses (name, descriptor), Dynamic and
// InvokeDynamic use (bootstrap method, name-and-type), MethodHandle uses
// Kind plus Index1.
type Constant struct {
	Tag    Tag
	Value  string // Utf8 contents, modified UTF-8 bytes as stored
	Index1 uint16
	Index2 uint16
	Kind   uint8
	Raw    []byte // Integer/Float (4 bytes) and Long/Double (8 bytes) payloads
}

type poolKey struct {
	tag    Tag
	value  string
	i1, i2 uint16
}

// ConstantPool is a classfile constant pool. Index 0 and the slot after each
// Long or Double are unusable and have a zero Tag.
type ConstantPool struct {
	entries []Constant
	index   map[poolKey]uint16
}

// NewConstantPool returns an empty pool.
func NewConstantPool() *ConstantPool {
	return &ConstantPool{entries: make([]Constant, 1)}
}

// Count returns the constant_pool_count value (number of slots plus one).
func (p *ConstantPool) Count() int { return len(p.entries) }

func readConstantPool(r *Reader) (*ConstantPool, error) {
	count := int(r.U2())
	if err := r.Err(); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, errors.New("classfile: constant pool count is zero")
	}
	p := &ConstantPool{entries: make([]Constant, count)}
	for i := 1; i < count; i++ {
		c := Constant{Tag: Tag(r.U1())}
		switch c.Tag {
		case TagUtf8:
			n := r.U2()
			c.Value = string(r.Bytes(int(n)))
		case TagInteger, TagFloat:
			c.Raw = r.Bytes(4)
		case TagLong, TagDouble:
			c.Raw = r.Bytes(8)
		case TagClass, TagString, TagMethodType, TagModule, TagPackage:
			c.Index1 = r.U2()
		case TagFieldref, TagMethodref, TagInterfaceMethodref, TagNameAndType, TagDynamic, TagInvokeDynamic:
			c.Index1, c.Index2 = r.U2(), r.U2()
		case TagMethodHandle:
			c.Kind = r.U1()
			c.Index1 = r.U2()
		default:
			if err := r.Err(); err != nil {
				return nil, err
			}
			return nil, errors.Errorf("classfile: invalid constant pool tag %d at index %d", c.Tag, i)
		}
		if err := r.Err(); err != nil {
			return nil, errors.Wrapf(err, "constant pool entry %d", i)
		}
		p.entries[i] = c
		if c.Tag == TagLong || c.Tag == TagDouble {
			if i+1 >= count {
				return nil, errors.Errorf("classfile: %s constant at last pool index %d", c.Tag, i)
			}
			i++
		}
	}
	return p, nil
}

func (p *ConstantPool) appendTo(b []byte) ([]byte, error) {
	if len(p.entries) > math.MaxUint16 {
		return nil, ErrPoolOverflow
	}
	b = appendU2(b, uint16(len(p.entries)))
	for i := 1; i < len(p.entries); i++ {
		c := p.entries[i]
		if c.Tag == 0 {
			continue
		}
		b = append(b, byte(c.Tag))
		switch c.Tag {
		case TagUtf8:
			if len(c.Value) > math.MaxUint16 {
				return nil, errors.Errorf("classfile: Utf8 constant %d too long (%d bytes)", i, len(c.Value))
			}
			b = appendU2(b, uint16(len(c.Value)))
			b = append(b, c.Value...)
		case TagInteger, TagFloat, TagLong, TagDouble:
			b = append(b, c.Raw...)
		case TagClass, TagString, TagMethodType, TagModule, TagPackage:
			b = appendU2(b, c.Index1)
		case TagMethodHandle:
			b = append(b, c.Kind)
			b = appendU2(b, c.Index1)
		default:
			b = appendU2(b, c.Index1)
			b = appendU2(b, c.Index2)
		}
	}
	return b, nil
}

// Get returns the entry at index i.
func (p *ConstantPool) Get(i uint16) (*Constant, error) {
	if i == 0 || int(i) >= len(p.entries) || p.entries[i].Tag == 0 {
		return nil, errors.Errorf("classfile: invalid constant pool index %d", i)
	}
	return &p.entries[i], nil
}

func (p *ConstantPool) expect(i uint16, tags ...Tag) (*Constant, error) {
	c, err := p.Get(i)
	if err != nil {
		return nil, err
	}
	for _, t := range tags {
		if c.Tag == t {
			return c, nil
		}
	}
	return nil, errors.Errorf("classfile: constant %d is %s, expected %v", i, c.Tag, tags)
}

// Utf8 returns the string value of the Utf8 entry at i.
func (p *ConstantPool) Utf8(i uint16) (string, error) {
	c, err := p.expect(i, TagUtf8)
	if err != nil {
		return "", err
	}
	return c.Value, nil
}

// ClassName returns the internal name referenced by the Class entry at i.
func (p *ConstantPool) ClassName(i uint16) (string, error) {
	c, err := p.expect(i, TagClass)
	if err != nil {
		return "", err
	}
	return p.Utf8(c.Index1)
}

// NameAndType returns the name and descriptor of the NameAndType entry at i.
func (p *ConstantPool) NameAndType(i uint16) (name, desc string, err error) {
	c, err := p.expect(i, TagNameAndType)
	if err != nil {
		return "", "", err
	}
	if name, err = p.Utf8(c.Index1); err != nil {
		return "", "", err
	}
	if desc, err = p.Utf8(c.Index2); err != nil {
		return "", "", err
	}
	return name, desc, nil
}

// MemberRef is a resolved Fieldref, Methodref or InterfaceMethodref.
type MemberRef struct {
	Tag        Tag
	Owner      string
	Name       string
	Descriptor string
}

func (m MemberRef) String() string {
	return m.Owner + "." + m.Name + " " + m.Descriptor
}

// MemberRef resolves the member reference entry at i.
func (p *ConstantPool) MemberRef(i uint16) (MemberRef, error) {
	c, err := p.expect(i, TagFieldref, TagMethodref, TagInterfaceMethodref)
	if err != nil {
		return MemberRef{}, err
	}
	owner, err := p.ClassName(c.Index1)
	if err != nil {
		return MemberRef{}, err
	}
	name, desc, err := p.NameAndType(c.Index2)
	if err != nil {
		return MemberRef{}, err
	}
	return MemberRef{Tag: c.Tag, Owner: owner, Name: name, Descriptor: desc}, nil
}

// DynamicDescriptor returns the descriptor of a Dynamic or InvokeDynamic entry.
func (p *ConstantPool) DynamicDescriptor(i uint16) (string, error) {
	c, err := p.expect(i, TagDynamic, TagInvokeDynamic)
	if err != nil {
		return "", err
	}
	_, desc, err := p.NameAndType(c.Index2)
	return desc, err
}

func keyOf(c Constant) poolKey {
	switch c.Tag {
	case TagUtf8:
		return poolKey{tag: c.Tag, value: c.Value}
	case TagInteger, TagFloat, TagLong, TagDouble:
		return poolKey{tag: c.Tag, value: string(c.Raw)}
	case TagMethodHandle:
		return poolKey{tag: c.Tag, i1: c.Index1, i2: uint16(c.Kind)}
	}
	return poolKey{tag: c.Tag, i1: c.Index1, i2: c.Index2}
}

func (p *ConstantPool) buildIndex() {
	if p.index != nil {
		return
	}
	p.index = make(map[poolKey]uint16, len(p.entries))
	for i := 1; i < len(p.entries); i++ {
		c := p.entries[i]
		if c.Tag == 0 {
			continue
		}
		k := keyOf(c)
		if _, ok := p.index[k]; !ok {
			p.index[k] = uint16(i)
		}
	}
}

// add appends c unless an identical entry already exists.
func (p *ConstantPool) add(c Constant) (uint16, error) {
	p.buildIndex()
	k := keyOf(c)
	if i, ok := p.index[k]; ok {
		return i, nil
	}
	slots := 1
	if c.Tag == TagLong || c.Tag == TagDouble {
		slots = 2
	}
	if len(p.entries)+slots > math.MaxUint16 {
		return 0, errors.Wrapf(ErrPoolOverflow, "adding %s constant", c.Tag)
	}
	i := uint16(len(p.entries))
	p.entries = append(p.entries, c)
	if slots == 2 {
		p.entries = append(p.entries, Constant{})
	}
	p.index[k] = i
	return i, nil
}

// AddUtf8 returns the index of a Utf8 entry for s, adding one if needed.
func (p *ConstantPool) AddUtf8(s string) (uint16, error) {
	if len(s) > math.MaxUint16 {
		return 0, errors.Errorf("classfile: Utf8 constant too long (%d bytes)", len(s))
	}
	return p.add(Constant{Tag: TagUtf8, Value: s})
}

// AddClass returns the index of a Class entry for the internal name.
func (p *ConstantPool) AddClass(name string) (uint16, error) {
	n, err := p.AddUtf8(name)
	if err != nil {
		return 0, err
	}
	return p.add(Constant{Tag: TagClass, Index1: n})
}

// AddNameAndType returns the index of a NameAndType entry.
func (p *ConstantPool) AddNameAndType(name, desc string) (uint16, error) {
	n, err := p.AddUtf8(name)
	if err != nil {
		return 0, err
	}
	d, err := p.AddUtf8(desc)
	if err != nil {
		return 0, err
	}
	return p.add(Constant{Tag: TagNameAndType, Index1: n, Index2: d})
}

func (p *ConstantPool) addMember(tag Tag, owner, name, desc string) (uint16, error) {
	cls, err := p.AddClass(owner)
	if err != nil {
		return 0, err
	}
	nt, err := p.AddNameAndType(name, desc)
	if err != nil {
		return 0, err
	}
	return p.add(Constant{Tag: tag, Index1: cls, Index2: nt})
}

// AddFieldref returns the index of a Fieldref entry.
func (p *ConstantPool) AddFieldref(owner, name, desc string) (uint16, error) {
	return p.addMember(TagFieldref, owner, name, desc)
}

// AddMethodref returns the index of a Methodref entry.
func (p *ConstantPool) AddMethodref(owner, name, desc string) (uint16, error) {
	return p.addMember(TagMethodref, owner, name, desc)
}

// AddInterfaceMethodref returns the index of an InterfaceMethodref entry.
func (p *ConstantPool) AddInterfaceMethodref(owner, name, desc string) (uint16, error) {
	return p.addMember(TagInterfaceMethodref, owner, name, desc)
}

// AddString returns the index of a String entry.
func (p *ConstantPool) AddString(s string) (uint16, error) {
	n, err := p.AddUtf8(s)
	if err != nil {
		return 0, err
	}
	return p.add(Constant{Tag: TagString, Index1: n})
}
