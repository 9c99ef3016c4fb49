package classfile

import "github.com/pkg/errors"

// Instruction is a decoded instruction position within a code array.
type Instruction struct {
	PC   int
	Op   Opcode // for wide instructions, the modified opcode
	Wide bool
	Len  int
}

// operand lengths of fixed-size instructions, -1 for variable or invalid.
var operandLen [256]int8

func init() {
	for i := range operandLen {
		operandLen[i] = -1
	}
	for op := OpNop; op <= OpJsrW; op++ {
		operandLen[op] = 0
	}
	for _, op := range []Opcode{OpBipush, OpLdc, OpIload, OpLload, OpFload, OpDload, OpAload,
		OpIstore, OpLstore, OpFstore, OpDstore, OpAstore, OpRet, OpNewarray} {
		operandLen[op] = 1
	}
	for _, op := range []Opcode{OpSipush, OpLdcW, OpLdc2W, OpIinc,
		OpIfeq, OpIfne, OpIflt, OpIfge, OpIfgt, OpIfle,
		OpIfIcmpeq, OpIfIcmpne, OpIfIcmplt, OpIfIcmpge, OpIfIcmpgt, OpIfIcmple,
		OpIfAcmpeq, OpIfAcmpne, OpGoto, OpJsr,
		OpGetstatic, OpPutstatic, OpGetfield, OpPutfield,
		OpInvokevirtual, OpInvokespecial, OpInvokestatic,
		OpNew, OpAnewarray, OpCheckcast, OpInstanceof, OpIfnull, OpIfnonnull} {
		operandLen[op] = 2
	}
	operandLen[OpMultianewarray] = 3
	operandLen[OpInvokeinterface] = 4
	operandLen[OpInvokedynamic] = 4
	operandLen[OpGotoW] = 4
	operandLen[OpJsrW] = 4
	operandLen[OpTableswitch] = -1
	operandLen[OpLookupswitch] = -1
	operandLen[OpWide] = -1
}

// SwitchPadding returns the number of padding bytes after a switch opcode at pc.
func SwitchPadding(pc int) int { return (4 - (pc+1)%4) % 4 }

// DecodeInstruction decodes the instruction at pc.
func DecodeInstruction(code []byte, pc int) (Instruction, error) {
	if pc < 0 || pc >= len(code) {
		return Instruction{}, errors.Errorf("classfile: pc %d out of range", pc)
	}
	insn := Instruction{PC: pc, Op: Opcode(code[pc])}
	switch insn.Op {
	case OpTableswitch:
		base := pc + 1 + SwitchPadding(pc)
		if base+12 > len(code) {
			return insn, errors.Wrapf(ErrTruncated, "tableswitch at %d", pc)
		}
		low, high := S4(code, base+4), S4(code, base+8)
		if low > high {
			return insn, errors.Errorf("classfile: tableswitch at %d has low %d > high %d", pc, low, high)
		}
		insn.Len = base + 12 + 4*int(int64(high)-int64(low)+1) - pc
	case OpLookupswitch:
		base := pc + 1 + SwitchPadding(pc)
		if base+8 > len(code) {
			return insn, errors.Wrapf(ErrTruncated, "lookupswitch at %d", pc)
		}
		npairs := S4(code, base+4)
		if npairs < 0 {
			return insn, errors.Errorf("classfile: lookupswitch at %d has negative npairs", pc)
		}
		insn.Len = base + 8 + 8*int(npairs) - pc
	case OpWide:
		if pc+1 >= len(code) {
			return insn, errors.Wrapf(ErrTruncated, "wide at %d", pc)
		}
		insn.Wide = true
		insn.Op = Opcode(code[pc+1])
		switch insn.Op {
		case OpIinc:
			insn.Len = 6
		case OpIload, OpLload, OpFload, OpDload, OpAload,
			OpIstore, OpLstore, OpFstore, OpDstore, OpAstore, OpRet:
			insn.Len = 4
		default:
			return insn, errors.Errorf("classfile: invalid wide opcode %s at %d", insn.Op, pc)
		}
	default:
		n := operandLen[insn.Op]
		if n < 0 {
			return insn, errors.Errorf("classfile: invalid opcode 0x%02x at %d", code[pc], pc)
		}
		insn.Len = 1 + int(n)
	}
	if pc+insn.Len > len(code) {
		return insn, errors.Wrapf(ErrTruncated, "%s at %d", insn.Op, pc)
	}
	return insn, nil
}

// DecodeInstructions decodes every instruction in code.
func DecodeInstructions(code []byte) ([]Instruction, error) {
	var insns []Instruction
	for pc := 0; pc < len(code); {
		insn, err := DecodeInstruction(code, pc)
		if err != nil {
			return nil, err
		}
		insns = append(insns, insn)
		pc += insn.Len
	}
	return insns, nil
}

// Operand accessors, relative to the instruction start.

// U1 returns the unsigned byte at offset off of the instruction.
func (i Instruction) U1(code []byte, off int) uint8 { return code[i.PC+off] }

// U2 returns the unsigned short at offset off of the instruction.
func (i Instruction) U2(code []byte, off int) uint16 { return U2(code, i.PC+off) }

// Index returns the local variable index operand of a load, store, ret or iinc.
func (i Instruction) Index(code []byte) int {
	if i.Wide {
		return int(U2(code, i.PC+2))
	}
	return int(code[i.PC+1])
}

// Branch returns the absolute target of a branch instruction.
func (i Instruction) Branch(code []byte) int {
	if i.Op == OpGotoW || i.Op == OpJsrW {
		return i.PC + int(S4(code, i.PC+1))
	}
	return i.PC + int(S2(code, i.PC+1))
}

// SwitchTargets returns the default target followed by every case target.
func (i Instruction) SwitchTargets(code []byte) []int {
	base := i.PC + 1 + SwitchPadding(i.PC)
	targets := []int{i.PC + int(S4(code, base))}
	switch i.Op {
	case OpTableswitch:
		low, high := int64(S4(code, base+4)), int64(S4(code, base+8))
		for k := int64(0); k <= high-low; k++ {
			targets = append(targets, i.PC+int(S4(code, base+12+4*int(k))))
		}
	case OpLookupswitch:
		n := int(S4(code, base+4))
		for k := 0; k < n; k++ {
			targets = append(targets, i.PC+int(S4(code, base+8+8*k+4)))
		}
	}
	return targets
}

// IsBranch reports whether op is a conditional or unconditional jump with a single target.
func (op Opcode) IsBranch() bool {
	return (op >= OpIfeq && op <= OpJsr) || op == OpIfnull || op == OpIfnonnull || op == OpGotoW || op == OpJsrW
}

// EndsBlock reports whether control never falls through op to the next instruction.
func (op Opcode) EndsBlock() bool {
	switch op {
	case OpGoto, OpGotoW, OpTableswitch, OpLookupswitch, OpRet, OpAthrow,
		OpIreturn, OpLreturn, OpFreturn, OpDreturn, OpAreturn, OpReturn:
		return true
	}
	return false
}
