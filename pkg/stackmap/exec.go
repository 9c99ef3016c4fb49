package stackmap

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/blacktop/retrobuffer/pkg/classfile"
)

var errUnderflow = errors.New("operand stack underflow")

// flow describes where control goes after an instruction.
type flow struct {
	targets []int
	falls   bool
	jsr     bool // the last stack slot was pushed for the targets only
	stored  bool // a local variable changed
}

func (s *state) push(types ...Type) {
	for _, t := range types {
		s.stack = append(s.stack, t)
		if t.Size() == 2 {
			s.stack = append(s.stack, TopType)
		}
	}
}

func (s *state) pop(n int) error {
	if n > len(s.stack) {
		return errUnderflow
	}
	s.stack = s.stack[:len(s.stack)-n]
	return nil
}

func (s *state) pop1() (Type, error) {
	if len(s.stack) == 0 {
		return Type{}, errUnderflow
	}
	t := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	return t, nil
}

func (s *state) setLocal(idx int, t Type) {
	if idx > 0 && s.locals[idx-1].Size() == 2 {
		s.locals[idx-1] = TopType
	}
	s.locals[idx] = t
	if t.Size() == 2 {
		s.locals[idx+1] = TopType
	}
}

// replace rewrites every occurrence of from in the state.
func (s *state) replace(from, to Type) {
	for i, t := range s.locals {
		if t == from {
			s.locals[i] = to
		}
	}
	for i, t := range s.stack {
		if t == from {
			s.stack[i] = to
		}
	}
}

// shuffle pops n slots and pushes them back in the order given by idx,
// where idx[k] counts from the bottom of the popped group.
func (s *state) shuffle(n int, idx ...int) error {
	if n > len(s.stack) {
		return errUnderflow
	}
	group := append([]Type(nil), s.stack[len(s.stack)-n:]...)
	s.stack = s.stack[:len(s.stack)-n]
	for _, i := range idx {
		s.stack = append(s.stack, group[i])
	}
	return nil
}

// kindTypes is the i/l/f/d/a instruction family order.
var kindTypes = [...]Type{IntType, LongType, FloatType, DblType}

var newarrayTypes = map[uint8]string{
	4: "[Z", 5: "[C", 6: "[F", 7: "[D", 8: "[B", 9: "[S", 10: "[I", 11: "[J",
}

type conv struct {
	pop  int
	push Type
}

var conversions = map[classfile.Opcode]conv{
	classfile.OpI2l: {1, LongType}, classfile.OpI2f: {1, FloatType}, classfile.OpI2d: {1, DblType},
	classfile.OpL2i: {2, IntType}, classfile.OpL2f: {2, FloatType}, classfile.OpL2d: {2, DblType},
	classfile.OpF2i: {1, IntType}, classfile.OpF2l: {1, LongType}, classfile.OpF2d: {1, DblType},
	classfile.OpD2i: {2, IntType}, classfile.OpD2l: {2, LongType}, classfile.OpD2f: {2, FloatType},
	classfile.OpI2b: {1, IntType}, classfile.OpI2c: {1, IntType}, classfile.OpI2s: {1, IntType},
	classfile.OpLcmp: {4, IntType}, classfile.OpFcmpl: {2, IntType}, classfile.OpFcmpg: {2, IntType},
	classfile.OpDcmpl: {4, IntType}, classfile.OpDcmpg: {4, IntType},
	classfile.OpArraylength: {1, IntType}, classfile.OpInstanceof: {1, IntType},
}

func (a *analyzer) className(idx uint16) (string, error) {
	return a.m.Pool.ClassName(idx)
}

func (a *analyzer) ldcType(idx uint16) (Type, error) {
	c, err := a.m.Pool.Get(idx)
	if err != nil {
		return Type{}, err
	}
	switch c.Tag {
	case classfile.TagInteger:
		return IntType, nil
	case classfile.TagFloat:
		return FloatType, nil
	case classfile.TagLong:
		return LongType, nil
	case classfile.TagDouble:
		return DblType, nil
	case classfile.TagString:
		return ObjectType("java/lang/String"), nil
	case classfile.TagClass:
		return ObjectType("java/lang/Class"), nil
	case classfile.TagMethodType:
		return ObjectType("java/lang/invoke/MethodType"), nil
	case classfile.TagMethodHandle:
		return ObjectType("java/lang/invoke/MethodHandle"), nil
	case classfile.TagDynamic:
		desc, err := a.m.Pool.DynamicDescriptor(idx)
		if err != nil {
			return Type{}, err
		}
		return FromDescriptor(desc), nil
	}
	return Type{}, errors.Errorf("constant %d of kind %s cannot be loaded", idx, c.Tag)
}

// initialized returns the type an uninitialized value takes once its constructor ran.
func (a *analyzer) initialized(t Type) (Type, error) {
	switch t.Kind {
	case UninitializedThis:
		return ObjectType(a.m.Owner), nil
	case Uninitialized:
		if t.Offset+3 > len(a.code) || classfile.Opcode(a.code[t.Offset]) != classfile.OpNew {
			return Type{}, errors.Errorf("uninitialized value refers to offset %d which is not a new instruction", t.Offset)
		}
		name, err := a.className(classfile.U2(a.code, t.Offset+1))
		if err != nil {
			return Type{}, err
		}
		return ObjectType(name), nil
	}
	return Type{}, errors.Errorf("constructor invoked on initialized value %s", t)
}

func (a *analyzer) invoke(insn classfile.Instruction, st *state) error {
	idx := insn.U2(a.code, 1)
	var name, desc string
	if insn.Op == classfile.OpInvokedynamic {
		d, err := a.m.Pool.DynamicDescriptor(idx)
		if err != nil {
			return err
		}
		desc = d
	} else {
		ref, err := a.m.Pool.MemberRef(idx)
		if err != nil {
			return err
		}
		name, desc = ref.Name, ref.Descriptor
	}
	args, ret, err := classfile.ParseMethodDescriptor(desc)
	if err != nil {
		return err
	}
	n := 0
	for _, arg := range args {
		n += classfile.TypeSlots(arg)
	}
	if err := st.pop(n); err != nil {
		return err
	}
	if insn.Op != classfile.OpInvokestatic && insn.Op != classfile.OpInvokedynamic {
		recv, err := st.pop1()
		if err != nil {
			return err
		}
		if insn.Op == classfile.OpInvokespecial && name == "<init>" {
			to, err := a.initialized(recv)
			if err != nil {
				return err
			}
			st.replace(recv, to)
		}
	}
	if ret != "V" {
		st.push(FromDescriptor(ret))
	}
	return nil
}

func (a *analyzer) exec(insn classfile.Instruction, st *state) (flow, error) {
	op := insn.Op
	code := a.code
	fl := flow{falls: true}

	switch {
	case op == classfile.OpNop:
	case op == classfile.OpAconstNull:
		st.push(NullType)
	case op >= classfile.OpIconstM1 && op <= classfile.OpIconst5, op == classfile.OpBipush, op == classfile.OpSipush:
		st.push(IntType)
	case op == classfile.OpLconst0 || op == classfile.OpLconst1:
		st.push(LongType)
	case op >= classfile.OpFconst0 && op <= classfile.OpFconst2:
		st.push(FloatType)
	case op == classfile.OpDconst0 || op == classfile.OpDconst1:
		st.push(DblType)
	case op == classfile.OpLdc:
		t, err := a.ldcType(uint16(code[insn.PC+1]))
		if err != nil {
			return fl, err
		}
		st.push(t)
	case op == classfile.OpLdcW || op == classfile.OpLdc2W:
		t, err := a.ldcType(insn.U2(code, 1))
		if err != nil {
			return fl, err
		}
		st.push(t)

	case op >= classfile.OpIload && op <= classfile.OpAload,
		op >= classfile.OpIload0 && op <= classfile.OpAload3:
		var k, idx int
		if op <= classfile.OpAload {
			k, idx = int(op-classfile.OpIload), insn.Index(code)
		} else {
			k, idx = int(op-classfile.OpIload0)/4, int(op-classfile.OpIload0)%4
		}
		if k == 4 {
			st.push(st.locals[idx])
		} else {
			st.push(kindTypes[k])
		}

	case op >= classfile.OpIaload && op <= classfile.OpSaload:
		if err := st.pop(1); err != nil {
			return fl, err
		}
		arr, err := st.pop1()
		if err != nil {
			return fl, err
		}
		switch op {
		case classfile.OpLaload:
			st.push(LongType)
		case classfile.OpFaload:
			st.push(FloatType)
		case classfile.OpDaload:
			st.push(DblType)
		case classfile.OpAaload:
			switch {
			case arr.Kind == Object && strings.HasPrefix(arr.Class, "["):
				st.push(FromDescriptor(arr.Class[1:]))
			case arr.Kind == Null:
				st.push(NullType)
			default:
				st.push(ObjectType(objectClass))
			}
		default:
			st.push(IntType)
		}

	case op >= classfile.OpIstore && op <= classfile.OpAstore,
		op >= classfile.OpIstore0 && op <= classfile.OpAstore3:
		var k, idx int
		if op <= classfile.OpAstore {
			k, idx = int(op-classfile.OpIstore), insn.Index(code)
		} else {
			k, idx = int(op-classfile.OpIstore0)/4, int(op-classfile.OpIstore0)%4
		}
		if k == 4 {
			t, err := st.pop1()
			if err != nil {
				return fl, err
			}
			if !t.IsReference() && t.Kind != ReturnAddress {
				return fl, errors.Errorf("astore expects a reference, found %s", t)
			}
			st.setLocal(idx, t)
		} else {
			t := kindTypes[k]
			if err := st.pop(t.Size()); err != nil {
				return fl, err
			}
			st.setLocal(idx, t)
		}
		fl.stored = true

	case op >= classfile.OpIastore && op <= classfile.OpSastore:
		n := 3
		if op == classfile.OpLastore || op == classfile.OpDastore {
			n = 4
		}
		if err := st.pop(n); err != nil {
			return fl, err
		}

	case op == classfile.OpPop:
		return fl, st.pop(1)
	case op == classfile.OpPop2:
		return fl, st.pop(2)
	case op == classfile.OpDup:
		return fl, st.shuffle(1, 0, 0)
	case op == classfile.OpDupX1:
		return fl, st.shuffle(2, 1, 0, 1)
	case op == classfile.OpDupX2:
		return fl, st.shuffle(3, 2, 0, 1, 2)
	case op == classfile.OpDup2:
		return fl, st.shuffle(2, 0, 1, 0, 1)
	case op == classfile.OpDup2X1:
		return fl, st.shuffle(3, 1, 2, 0, 1, 2)
	case op == classfile.OpDup2X2:
		return fl, st.shuffle(4, 2, 3, 0, 1, 2, 3)
	case op == classfile.OpSwap:
		return fl, st.shuffle(2, 1, 0)

	case op >= classfile.OpIadd && op <= classfile.OpDrem:
		k := int(op-classfile.OpIadd) % 4
		t := kindTypes[k]
		if err := st.pop(2 * t.Size()); err != nil {
			return fl, err
		}
		st.push(t)
	case op >= classfile.OpIneg && op <= classfile.OpDneg:
		t := kindTypes[op-classfile.OpIneg]
		if err := st.pop(t.Size()); err != nil {
			return fl, err
		}
		st.push(t)
	case op >= classfile.OpIshl && op <= classfile.OpLushr:
		t := kindTypes[(op-classfile.OpIshl)%2]
		if err := st.pop(t.Size() + 1); err != nil {
			return fl, err
		}
		st.push(t)
	case op >= classfile.OpIand && op <= classfile.OpLxor:
		t := kindTypes[(op-classfile.OpIand)%2]
		if err := st.pop(2 * t.Size()); err != nil {
			return fl, err
		}
		st.push(t)
	case op == classfile.OpIinc:

	case op >= classfile.OpI2l && op <= classfile.OpDcmpg,
		op == classfile.OpArraylength, op == classfile.OpInstanceof:
		c := conversions[op]
		if err := st.pop(c.pop); err != nil {
			return fl, err
		}
		st.push(c.push)

	case op >= classfile.OpIfeq && op <= classfile.OpIfle, op == classfile.OpIfnull, op == classfile.OpIfnonnull:
		if err := st.pop(1); err != nil {
			return fl, err
		}
		fl.targets = []int{insn.Branch(code)}
	case op >= classfile.OpIfIcmpeq && op <= classfile.OpIfAcmpne:
		if err := st.pop(2); err != nil {
			return fl, err
		}
		fl.targets = []int{insn.Branch(code)}
	case op == classfile.OpGoto || op == classfile.OpGotoW:
		fl.targets = []int{insn.Branch(code)}
		fl.falls = false
	case op == classfile.OpJsr || op == classfile.OpJsrW:
		st.push(Type{Kind: ReturnAddress, Offset: insn.PC + insn.Len})
		fl.targets = []int{insn.Branch(code)}
		fl.jsr = true
	case op == classfile.OpRet:
		fl.falls = false
	case op == classfile.OpTableswitch || op == classfile.OpLookupswitch:
		if err := st.pop(1); err != nil {
			return fl, err
		}
		fl.targets = insn.SwitchTargets(code)
		fl.falls = false
	case op >= classfile.OpIreturn && op <= classfile.OpReturn:
		fl.falls = false
	case op == classfile.OpAthrow:
		fl.falls = false

	case op >= classfile.OpGetstatic && op <= classfile.OpPutfield:
		ref, err := a.m.Pool.MemberRef(insn.U2(code, 1))
		if err != nil {
			return fl, err
		}
		t := FromDescriptor(ref.Descriptor)
		switch op {
		case classfile.OpGetstatic:
			st.push(t)
		case classfile.OpPutstatic:
			err = st.pop(t.Size())
		case classfile.OpGetfield:
			if err = st.pop(1); err == nil {
				st.push(t)
			}
		case classfile.OpPutfield:
			err = st.pop(t.Size() + 1)
		}
		if err != nil {
			return fl, err
		}

	case op >= classfile.OpInvokevirtual && op <= classfile.OpInvokedynamic:
		if err := a.invoke(insn, st); err != nil {
			return fl, err
		}

	case op == classfile.OpNew:
		st.push(Type{Kind: Uninitialized, Offset: insn.PC})
	case op == classfile.OpNewarray:
		desc, ok := newarrayTypes[code[insn.PC+1]]
		if !ok {
			return fl, errors.Errorf("invalid newarray type %d", code[insn.PC+1])
		}
		if err := st.pop(1); err != nil {
			return fl, err
		}
		st.push(ObjectType(desc))
	case op == classfile.OpAnewarray:
		name, err := a.className(insn.U2(code, 1))
		if err != nil {
			return fl, err
		}
		if err := st.pop(1); err != nil {
			return fl, err
		}
		st.push(ObjectType("[" + descriptorOf(name)))
	case op == classfile.OpCheckcast:
		name, err := a.className(insn.U2(code, 1))
		if err != nil {
			return fl, err
		}
		if err := st.pop(1); err != nil {
			return fl, err
		}
		st.push(ObjectType(name))
	case op == classfile.OpMonitorenter || op == classfile.OpMonitorexit:
		return fl, st.pop(1)
	case op == classfile.OpMultianewarray:
		name, err := a.className(insn.U2(code, 1))
		if err != nil {
			return fl, err
		}
		if err := st.pop(int(code[insn.PC+3])); err != nil {
			return fl, err
		}
		st.push(ObjectType(name))

	default:
		return fl, errors.Errorf("unsupported opcode 0x%02x", uint8(op))
	}
	return fl, nil
}
