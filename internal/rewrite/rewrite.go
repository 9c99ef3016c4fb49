// Package rewrite retargets method calls in class files and recomputes the
// verifier metadata of every method it edits.
package rewrite

import (
	"github.com/pkg/errors"

	"github.com/blacktop/retrobuffer/internal/errs"
	"github.com/blacktop/retrobuffer/internal/registry"
	"github.com/blacktop/retrobuffer/pkg/classfile"
	"github.com/blacktop/retrobuffer/pkg/stackmap"
)

// Site is one rewritten call.
type Site struct {
	Method string // name followed by descriptor
	PC     int
	Rule   string
	From   Call
	To     Call
}

// Report lists the rewritten calls of a class.
type Report struct {
	Class string
	Sites []Site
}

// Changed reports whether anything was rewritten.
func (r *Report) Changed() bool { return len(r.Sites) > 0 }

// Rewriter applies rules to classes. It is safe for concurrent use when its
// rules and hierarchy are.
type Rewriter struct {
	rules     []Rule
	hierarchy stackmap.Hierarchy
	opts      classfile.Options
}

// New creates a rewriter. The hierarchy resolves classes while merging frame types.
func New(h stackmap.Hierarchy, opts classfile.Options, rules ...Rule) *Rewriter {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Rewriter{rules: rules, hierarchy: h, opts: opts}
}

// Rewrite returns the rewritten bytes of a. Classes without a matching call
// are returned unchanged.
func (r *Rewriter) Rewrite(a *registry.Artifact) ([]byte, *Report, error) {
	report := &Report{Class: a.Name}
	cf, err := classfile.Parse(a.Raw, r.opts)
	if err != nil {
		return nil, nil, &errs.TransformError{Class: a.Name, Err: err}
	}
	for i := range cf.Methods {
		sites, err := r.rewriteMethod(cf, &cf.Methods[i], a.Name)
		if err != nil {
			m := &cf.Methods[i]
			name, _ := m.Name(cf.Pool)
			desc, _ := m.Descriptor(cf.Pool)
			return nil, nil, &errs.TransformError{Class: a.Name, Err: errors.Wrapf(err, "method %s%s", name, desc)}
		}
		report.Sites = append(report.Sites, sites...)
	}
	if !report.Changed() {
		return a.Raw, report, nil
	}
	out, err := cf.Bytes()
	if err != nil {
		return nil, nil, &errs.TransformError{Class: a.Name, Err: err}
	}
	return out, report, nil
}

func isInvoke(op classfile.Opcode) bool {
	switch op {
	case classfile.OpInvokevirtual, classfile.OpInvokespecial, classfile.OpInvokestatic, classfile.OpInvokeinterface:
		return true
	}
	return false
}

func (r *Rewriter) apply(c Call) (Call, string, bool) {
	changed := false
	var names string
	for _, rule := range r.rules {
		if next, ok := rule.Rewrite(c); ok {
			c = next
			changed = true
			if names != "" {
				names += ","
			}
			names += rule.String()
		}
	}
	return c, names, changed
}

// patch encodes the replacement call into code at insn.
func patch(pool *classfile.ConstantPool, code []byte, insn classfile.Instruction, from, to Call) error {
	if (from.Opcode == classfile.OpInvokeinterface) != (to.Opcode == classfile.OpInvokeinterface) {
		return errors.Errorf("cannot change %s to %s at %d", from.Opcode, to.Opcode, insn.PC)
	}
	if to.Opcode == classfile.OpInvokeinterface && !to.Interface {
		return errors.Errorf("invokeinterface requires an interface method reference at %d", insn.PC)
	}
	var (
		idx uint16
		err error
	)
	if to.Interface {
		idx, err = pool.AddInterfaceMethodref(to.Owner, to.Name, to.Descriptor)
	} else {
		idx, err = pool.AddMethodref(to.Owner, to.Name, to.Descriptor)
	}
	if err != nil {
		return err
	}
	code[insn.PC] = byte(to.Opcode)
	code[insn.PC+1], code[insn.PC+2] = byte(idx>>8), byte(idx)
	if to.Opcode == classfile.OpInvokeinterface {
		slots, err := classfile.ArgumentSlots(to.Descriptor)
		if err != nil {
			return err
		}
		code[insn.PC+3] = byte(slots + 1)
	}
	return nil
}

func (r *Rewriter) rewriteMethod(cf *classfile.ClassFile, m *classfile.Member, owner string) ([]Site, error) {
	ci := classfile.FindAttribute(m.Attributes, cf.Pool, classfile.AttrCode)
	if ci < 0 {
		return nil, nil
	}
	code, err := classfile.ParseCode(m.Attributes[ci].Data)
	if err != nil {
		return nil, err
	}
	insns, err := classfile.DecodeInstructions(code.Code)
	if err != nil {
		return nil, err
	}
	name, err := m.Name(cf.Pool)
	if err != nil {
		return nil, err
	}
	desc, err := m.Descriptor(cf.Pool)
	if err != nil {
		return nil, err
	}

	var (
		sites  []Site
		edited []byte
	)
	for _, insn := range insns {
		if !isInvoke(insn.Op) {
			continue
		}
		ref, err := cf.Pool.MemberRef(insn.U2(code.Code, 1))
		if err != nil {
			return nil, err
		}
		from := Call{
			Opcode:     insn.Op,
			Owner:      ref.Owner,
			Name:       ref.Name,
			Descriptor: ref.Descriptor,
			Interface:  ref.Tag == classfile.TagInterfaceMethodref,
		}
		to, rules, ok := r.apply(from)
		if !ok || to == from {
			continue
		}
		if edited == nil {
			edited = append([]byte(nil), code.Code...)
		}
		if err := patch(cf.Pool, edited, insn, from, to); err != nil {
			return nil, err
		}
		sites = append(sites, Site{Method: name + desc, PC: insn.PC, Rule: rules, From: from, To: to})
	}
	if edited == nil {
		return nil, nil
	}
	code.Code = edited

	if err := r.recompute(cf, m, code, owner, name, desc); err != nil {
		return nil, err
	}
	data, err := code.Bytes()
	if err != nil {
		return nil, err
	}
	m.Attributes[ci].Data = data
	return sites, nil
}

// recompute replaces max_stack, max_locals and the StackMapTable of an edited method.
func (r *Rewriter) recompute(cf *classfile.ClassFile, m *classfile.Member, code *classfile.Code, owner, name, desc string) error {
	initial, err := stackmap.InitialFrame(owner, name, desc, m.IsStatic())
	if err != nil {
		return err
	}
	si := classfile.FindAttribute(code.Attributes, cf.Pool, classfile.AttrStackMapTable)
	var hints []stackmap.Frame
	if si >= 0 {
		if hints, err = stackmap.Decode(code.Attributes[si].Data, cf.Pool, initial); err != nil {
			return errors.Wrap(err, "decoding existing StackMapTable")
		}
	}
	res, err := stackmap.Analyze(stackmap.Method{
		Owner:      owner,
		Name:       name,
		Descriptor: desc,
		Static:     m.IsStatic(),
		Code:       code,
		Pool:       cf.Pool,
		Hints:      hints,
	}, r.hierarchy)
	if err != nil {
		return err
	}
	code.MaxStack, code.MaxLocals = uint16(res.MaxStack), uint16(res.MaxLocals)

	if cf.MajorVersion < 50 {
		return nil
	}
	switch {
	case len(res.Frames) == 0 && si >= 0:
		code.Attributes = append(code.Attributes[:si:si], code.Attributes[si+1:]...)
	case len(res.Frames) > 0:
		data, err := stackmap.Encode(res.Frames, initial, cf.Pool)
		if err != nil {
			return err
		}
		if si >= 0 {
			code.Attributes[si].Data = data
		} else {
			ni, err := cf.Pool.AddUtf8(classfile.AttrStackMapTable)
			if err != nil {
				return err
			}
			code.Attributes = append(code.Attributes, classfile.Attribute{NameIndex: ni, Data: data})
		}
	}
	return nil
}
