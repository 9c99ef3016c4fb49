package classfile

import (
	"math"

	"github.com/pkg/errors"
)

// ExceptionHandler is an exception_table entry of a Code attribute.
type ExceptionHandler struct {
	StartPC   uint16
	EndPC     uint16
	HandlerPC uint16
	CatchType uint16 // 0 catches everything
}

// Code is a decoded Code attribute.
type Code struct {
	MaxStack       uint16
	MaxLocals      uint16
	Code           []byte
	ExceptionTable []ExceptionHandler
	Attributes     []Attribute
}

// ParseCode decodes the body of a Code attribute.
func ParseCode(data []byte) (*Code, error) {
	r := NewReader(data)
	c := &Code{MaxStack: r.U2(), MaxLocals: r.U2()}
	n := r.U4()
	if r.Err() == nil && n == 0 {
		return nil, errors.New("classfile: empty code array")
	}
	c.Code = r.Bytes(int(n))
	count := int(r.U2())
	for i := 0; i < count && r.Err() == nil; i++ {
		c.ExceptionTable = append(c.ExceptionTable, ExceptionHandler{
			StartPC:   r.U2(),
			EndPC:     r.U2(),
			HandlerPC: r.U2(),
			CatchType: r.U2(),
		})
	}
	c.Attributes = readAttributes(r)
	if err := r.Err(); err != nil {
		return nil, errors.Wrap(err, "Code attribute")
	}
	if r.Remaining() != 0 {
		return nil, errors.Errorf("classfile: %d trailing bytes in Code attribute", r.Remaining())
	}
	return c, nil
}

// Bytes encodes the Code attribute body.
func (c *Code) Bytes() ([]byte, error) {
	if len(c.Code) == 0 || len(c.Code) >= math.MaxUint16+1 {
		return nil, errors.Errorf("classfile: invalid code length %d", len(c.Code))
	}
	b := make([]byte, 0, len(c.Code)+64)
	b = appendU2(b, c.MaxStack)
	b = appendU2(b, c.MaxLocals)
	b = appendU4(b, uint32(len(c.Code)))
	b = append(b, c.Code...)
	b = appendU2(b, uint16(len(c.ExceptionTable)))
	for _, h := range c.ExceptionTable {
		b = appendU2(b, h.StartPC)
		b = appendU2(b, h.EndPC)
		b = appendU2(b, h.HandlerPC)
		b = appendU2(b, h.CatchType)
	}
	b = appendAttributes(b, c.Attributes)
	return b, nil
}

// LocalVariable is a LocalVariableTable entry.
type LocalVariable struct {
	StartPC uint16
	Length  uint16
	Name    uint16
	Desc    uint16
	Index   uint16
}

// ParseLocalVariableTable decodes a LocalVariableTable attribute body.
func ParseLocalVariableTable(data []byte) ([]LocalVariable, error) {
	r := NewReader(data)
	n := int(r.U2())
	vars := make([]LocalVariable, 0, n)
	for i := 0; i < n && r.Err() == nil; i++ {
		vars = append(vars, LocalVariable{StartPC: r.U2(), Length: r.U2(), Name: r.U2(), Desc: r.U2(), Index: r.U2()})
	}
	if err := r.Err(); err != nil {
		return nil, errors.Wrap(err, "LocalVariableTable")
	}
	return vars, nil
}
