package stackmap

import (
	"math"
	"sort"

	"github.com/pkg/errors"

	"github.com/blacktop/retrobuffer/pkg/classfile"
)

// Method is the input to Analyze.
type Method struct {
	Owner      string
	Name       string
	Descriptor string
	Static     bool
	Code       *classfile.Code
	Pool       *classfile.ConstantPool
	// Hints are the method's existing frames. Their types seed the analysis
	// and are only widened when an incoming value does not fit.
	Hints []Frame
}

// Result holds the recomputed values for a method.
type Result struct {
	MaxStack  int
	MaxLocals int
	Initial   Frame
	Frames    []Frame
}

type state struct {
	locals   []Type
	stack    []Type
	declared bool
}

func (s *state) clone() *state {
	return &state{
		locals:   append([]Type(nil), s.locals...),
		stack:    append([]Type(nil), s.stack...),
		declared: s.declared,
	}
}

type analyzer struct {
	m        Method
	ts       typeSystem
	code     []byte
	insns    []classfile.Instruction
	index    map[int]int
	points   map[int]bool
	states   map[int]*state
	work     []int
	queued   map[int]bool
	nLocals  int
	maxStack int
}

// Analyze recomputes max_stack, max_locals and the stack map frames of a method.
//
// Frames are produced at every branch target, exception handler, instruction
// following an unconditional transfer of control, and every offset that had a
// hint. Points that are never reached and have no hint get no frame.
func Analyze(m Method, h Hierarchy) (*Result, error) {
	initial, err := InitialFrame(m.Owner, m.Name, m.Descriptor, m.Static)
	if err != nil {
		return nil, err
	}
	insns, err := classfile.DecodeInstructions(m.Code.Code)
	if err != nil {
		return nil, err
	}
	a := &analyzer{
		m:      m,
		ts:     typeSystem{h: h},
		code:   m.Code.Code,
		insns:  insns,
		index:  make(map[int]int, len(insns)),
		points: map[int]bool{},
		states: map[int]*state{},
		queued: map[int]bool{},
	}
	for i, insn := range insns {
		a.index[insn.PC] = i
	}
	if err := a.findPoints(); err != nil {
		return nil, err
	}
	if err := a.countLocals(initial); err != nil {
		return nil, err
	}

	entry := &state{locals: a.padLocals(expand(initial.Locals))}
	a.states[0] = entry
	a.enqueue(0)
	for _, hint := range m.Hints {
		if _, ok := a.index[hint.Offset]; !ok {
			return nil, errors.Errorf("stackmap: frame offset %d is not an instruction", hint.Offset)
		}
		st := &state{locals: a.padLocals(expand(hint.Locals)), stack: expand(hint.Stack), declared: true}
		if hint.Offset == 0 {
			a.states[0] = st
			if err := a.mergeInto(0, entry); err != nil {
				return nil, err
			}
			continue
		}
		a.states[hint.Offset] = st
		a.enqueue(hint.Offset)
	}

	// every merge only widens, so this terminates; the bound guards against malformed input
	budget := 64 * (len(insns) + 1) * (a.nLocals + 8)
	for len(a.work) > 0 {
		if budget--; budget < 0 {
			return nil, errors.New("stackmap: analysis did not converge")
		}
		pc := a.work[len(a.work)-1]
		a.work = a.work[:len(a.work)-1]
		a.queued[pc] = false
		if err := a.run(pc); err != nil {
			return nil, err
		}
	}

	if a.maxStack > math.MaxUint16 {
		return nil, errors.Errorf("stackmap: max stack %d exceeds limit", a.maxStack)
	}
	res := &Result{MaxStack: a.maxStack, MaxLocals: a.nLocals, Initial: initial}
	offsets := make([]int, 0, len(a.points))
	for pc := range a.points {
		offsets = append(offsets, pc)
	}
	sort.Ints(offsets)
	for _, pc := range offsets {
		st := a.states[pc]
		if st == nil {
			continue
		}
		res.Frames = append(res.Frames, Frame{
			Offset: pc,
			Locals: compress(st.locals, true),
			Stack:  compress(st.stack, false),
		})
	}
	return res, nil
}

func (a *analyzer) addPoint(pc int) error {
	if _, ok := a.index[pc]; !ok {
		return errors.Errorf("stackmap: branch target %d is not an instruction", pc)
	}
	a.points[pc] = true
	return nil
}

func (a *analyzer) findPoints() error {
	for i, insn := range a.insns {
		switch {
		case insn.Op == classfile.OpTableswitch || insn.Op == classfile.OpLookupswitch:
			for _, t := range insn.SwitchTargets(a.code) {
				if err := a.addPoint(t); err != nil {
					return err
				}
			}
		case insn.Op.IsBranch():
			if err := a.addPoint(insn.Branch(a.code)); err != nil {
				return err
			}
		}
		jsr := insn.Op == classfile.OpJsr || insn.Op == classfile.OpJsrW
		if (insn.Op.EndsBlock() || jsr) && i+1 < len(a.insns) {
			a.points[a.insns[i+1].PC] = true
		}
	}
	for _, h := range a.m.Code.ExceptionTable {
		if err := a.addPoint(int(h.HandlerPC)); err != nil {
			return err
		}
	}
	for _, f := range a.m.Hints {
		a.points[f.Offset] = true
	}
	return nil
}

// countLocals sizes the local variable array from everything that can address it.
func (a *analyzer) countLocals(initial Frame) error {
	n := len(expand(initial.Locals))
	for _, insn := range a.insns {
		if idx, size, ok := localAccess(insn, a.code); ok && idx+size > n {
			n = idx + size
		}
	}
	for _, f := range a.m.Hints {
		if l := len(expand(f.Locals)); l > n {
			n = l
		}
	}
	if i := classfile.FindAttribute(a.m.Code.Attributes, a.m.Pool, classfile.AttrLocalVariableTable); i >= 0 {
		vars, err := classfile.ParseLocalVariableTable(a.m.Code.Attributes[i].Data)
		if err != nil {
			return err
		}
		for _, v := range vars {
			desc, err := a.m.Pool.Utf8(v.Desc)
			if err != nil {
				return err
			}
			if end := int(v.Index) + classfile.TypeSlots(desc); end > n {
				n = end
			}
		}
	}
	if n > math.MaxUint16 {
		return errors.Errorf("stackmap: max locals %d exceeds limit", n)
	}
	a.nLocals = n
	return nil
}

func localAccess(insn classfile.Instruction, code []byte) (idx, size int, ok bool) {
	op := insn.Op
	switch {
	case op >= classfile.OpIload && op <= classfile.OpAload:
		return insn.Index(code), kindSize(int(op - classfile.OpIload)), true
	case op >= classfile.OpIstore && op <= classfile.OpAstore:
		return insn.Index(code), kindSize(int(op - classfile.OpIstore)), true
	case op >= classfile.OpIload0 && op <= classfile.OpAload3:
		k := int(op - classfile.OpIload0)
		return k % 4, kindSize(k / 4), true
	case op >= classfile.OpIstore0 && op <= classfile.OpAstore3:
		k := int(op - classfile.OpIstore0)
		return k % 4, kindSize(k / 4), true
	case op == classfile.OpIinc || op == classfile.OpRet:
		return insn.Index(code), 1, true
	}
	return 0, 0, false
}

// kindSize returns the slot size of the i/l/f/d/a instruction family member k.
func kindSize(k int) int {
	if k == 1 || k == 3 {
		return 2
	}
	return 1
}

func (a *analyzer) padLocals(locals []Type) []Type {
	out := make([]Type, a.nLocals)
	copy(out, locals)
	return out
}

func (a *analyzer) enqueue(pc int) {
	if !a.queued[pc] {
		a.queued[pc] = true
		a.work = append(a.work, pc)
	}
}

func (a *analyzer) combine(cur, in Type, declared bool) Type {
	if cur == in {
		return cur
	}
	if declared && a.ts.assignable(in, cur) {
		return cur
	}
	return a.ts.merge(cur, in)
}

func (a *analyzer) mergeInto(pc int, in *state) error {
	cur := a.states[pc]
	if cur == nil {
		a.states[pc] = in.clone()
		a.states[pc].declared = false
		a.enqueue(pc)
		return nil
	}
	if len(cur.stack) != len(in.stack) {
		return errors.Errorf("stackmap: inconsistent stack height at %d (%d != %d)", pc, len(cur.stack), len(in.stack))
	}
	changed := false
	for i := range cur.locals {
		if t := a.combine(cur.locals[i], in.locals[i], cur.declared); t != cur.locals[i] {
			cur.locals[i] = t
			changed = true
		}
	}
	for i := range cur.stack {
		if t := a.combine(cur.stack[i], in.stack[i], cur.declared); t != cur.stack[i] {
			cur.stack[i] = t
			changed = true
		}
	}
	if changed {
		a.enqueue(pc)
	}
	return nil
}

func (a *analyzer) mergeHandlers(pc int, locals []Type) error {
	for _, h := range a.m.Code.ExceptionTable {
		if pc < int(h.StartPC) || pc >= int(h.EndPC) {
			continue
		}
		catch := ObjectType("java/lang/Throwable")
		if h.CatchType != 0 {
			name, err := a.m.Pool.ClassName(h.CatchType)
			if err != nil {
				return err
			}
			catch = ObjectType(name)
		}
		if err := a.mergeInto(int(h.HandlerPC), &state{locals: locals, stack: []Type{catch}}); err != nil {
			return err
		}
	}
	return nil
}

func (a *analyzer) run(pc int) error {
	st := a.states[pc].clone()
	st.declared = false
	if len(st.stack) > a.maxStack {
		a.maxStack = len(st.stack)
	}
	for i := a.index[pc]; ; {
		insn := a.insns[i]
		if err := a.mergeHandlers(insn.PC, st.locals); err != nil {
			return err
		}
		fl, err := a.exec(insn, st)
		if err != nil {
			return errors.Wrapf(err, "%s at %d", insn.Op, insn.PC)
		}
		if len(st.stack) > a.maxStack {
			a.maxStack = len(st.stack)
		}
		if fl.stored {
			if err := a.mergeHandlers(insn.PC, st.locals); err != nil {
				return err
			}
		}
		for _, t := range fl.targets {
			if err := a.mergeInto(t, st); err != nil {
				return err
			}
		}
		if fl.jsr {
			st.stack = st.stack[:len(st.stack)-1]
		}
		if !fl.falls {
			return nil
		}
		i++
		if i >= len(a.insns) {
			return errors.Errorf("stackmap: execution falls off the end of the code at %d", insn.PC)
		}
		if next := a.insns[i].PC; a.points[next] {
			return a.mergeInto(next, st)
		}
	}
}
