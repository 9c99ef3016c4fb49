package stackmap

import (
	"github.com/pkg/errors"

	"github.com/blacktop/retrobuffer/pkg/classfile"
)

// frame_type ranges.
const (
	sameFrameMax        = 63
	sameLocals1Min      = 64
	sameLocals1Max      = 127
	sameLocals1Extended = 247
	chopMin             = 248
	chopMax             = 250
	sameFrameExtended   = 251
	appendMin           = 252
	appendMax           = 254
	fullFrame           = 255
)

// InitialFrame returns the implicit frame at offset 0 of a method.
func InitialFrame(owner, name, desc string, static bool) (Frame, error) {
	args, _, err := classfile.ParseMethodDescriptor(desc)
	if err != nil {
		return Frame{}, err
	}
	var locals []Type
	if !static {
		if name == "<init>" && owner != "java/lang/Object" {
			locals = append(locals, Type{Kind: UninitializedThis})
		} else {
			locals = append(locals, ObjectType(owner))
		}
	}
	for _, a := range args {
		locals = append(locals, FromDescriptor(a))
	}
	return Frame{Locals: locals}, nil
}

func readType(r *classfile.Reader, pool *classfile.ConstantPool) (Type, error) {
	t := Type{Kind: Kind(r.U1())}
	switch t.Kind {
	case Top, Integer, Float, Double, Long, Null, UninitializedThis:
	case Object:
		name, err := pool.ClassName(r.U2())
		if err != nil {
			if r.Err() != nil {
				return t, r.Err()
			}
			return t, err
		}
		t.Class = name
	case Uninitialized:
		t.Offset = int(r.U2())
	default:
		if r.Err() != nil {
			return t, r.Err()
		}
		return t, errors.Errorf("stackmap: invalid verification type tag %d", t.Kind)
	}
	return t, r.Err()
}

func readTypes(r *classfile.Reader, pool *classfile.ConstantPool, n int) ([]Type, error) {
	types := make([]Type, 0, n)
	for i := 0; i < n; i++ {
		t, err := readType(r, pool)
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, nil
}

// Decode parses a StackMapTable attribute body into list form frames.
func Decode(data []byte, pool *classfile.ConstantPool, initial Frame) ([]Frame, error) {
	r := classfile.NewReader(data)
	n := int(r.U2())
	frames := make([]Frame, 0, n)
	prev := initial
	for i := 0; i < n; i++ {
		ft := int(r.U1())
		if err := r.Err(); err != nil {
			return nil, err
		}
		var delta int
		f := Frame{}
		switch {
		case ft <= sameFrameMax:
			delta = ft
			f.Locals = prev.Locals
		case ft <= sameLocals1Max:
			delta = ft - sameLocals1Min
			f.Locals = prev.Locals
			t, err := readType(r, pool)
			if err != nil {
				return nil, errors.Wrapf(err, "frame %d", i)
			}
			f.Stack = []Type{t}
		case ft < sameLocals1Extended:
			return nil, errors.Errorf("stackmap: reserved frame type %d", ft)
		case ft == sameLocals1Extended:
			delta = int(r.U2())
			f.Locals = prev.Locals
			t, err := readType(r, pool)
			if err != nil {
				return nil, errors.Wrapf(err, "frame %d", i)
			}
			f.Stack = []Type{t}
		case ft <= chopMax:
			delta = int(r.U2())
			k := sameFrameExtended - ft
			if k > len(prev.Locals) {
				return nil, errors.Errorf("stackmap: frame %d chops %d of %d locals", i, k, len(prev.Locals))
			}
			f.Locals = prev.Locals[:len(prev.Locals)-k]
		case ft == sameFrameExtended:
			delta = int(r.U2())
			f.Locals = prev.Locals
		case ft <= appendMax:
			delta = int(r.U2())
			extra, err := readTypes(r, pool, ft-sameFrameExtended)
			if err != nil {
				return nil, errors.Wrapf(err, "frame %d", i)
			}
			f.Locals = append(append([]Type{}, prev.Locals...), extra...)
		default:
			delta = int(r.U2())
			var err error
			if f.Locals, err = readTypes(r, pool, int(r.U2())); err != nil {
				return nil, errors.Wrapf(err, "frame %d", i)
			}
			if f.Stack, err = readTypes(r, pool, int(r.U2())); err != nil {
				return nil, errors.Wrapf(err, "frame %d", i)
			}
		}
		if i == 0 {
			f.Offset = delta
		} else {
			f.Offset = prev.Offset + delta + 1
		}
		frames = append(frames, f)
		prev = f
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	if r.Remaining() != 0 {
		return nil, errors.Errorf("stackmap: %d trailing bytes", r.Remaining())
	}
	return frames, nil
}

// ClassAdder interns class names in a constant pool.
type ClassAdder interface {
	AddClass(name string) (uint16, error)
}

func appendType(b []byte, t Type, pool ClassAdder) ([]byte, error) {
	switch t.Kind {
	case Object:
		idx, err := pool.AddClass(t.Class)
		if err != nil {
			return nil, err
		}
		return append(b, byte(Object), byte(idx>>8), byte(idx)), nil
	case Uninitialized:
		return append(b, byte(Uninitialized), byte(t.Offset>>8), byte(t.Offset)), nil
	case ReturnAddress:
		return nil, errors.Errorf("stackmap: %s has no stack map encoding", t)
	}
	return append(b, byte(t.Kind)), nil
}

func appendTypes(b []byte, types []Type, pool ClassAdder) ([]byte, error) {
	var err error
	for _, t := range types {
		if b, err = appendType(b, t, pool); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Encode serializes frames, choosing the most compact frame type for each.
func Encode(frames []Frame, initial Frame, pool ClassAdder) ([]byte, error) {
	if len(frames) > 0xffff {
		return nil, errors.Errorf("stackmap: too many frames (%d)", len(frames))
	}
	b := []byte{byte(len(frames) >> 8), byte(len(frames))}
	prev := initial
	var err error
	for i, f := range frames {
		delta := f.Offset
		if i > 0 {
			delta = f.Offset - prev.Offset - 1
		}
		if delta < 0 || delta > 0xffff {
			return nil, errors.Errorf("stackmap: frames out of order at offset %d", f.Offset)
		}
		d := []byte{byte(delta >> 8), byte(delta)}
		diff := len(f.Locals) - len(prev.Locals)
		switch {
		case len(f.Stack) == 0 && equalTypes(f.Locals, prev.Locals):
			if delta <= sameFrameMax {
				b = append(b, byte(delta))
			} else {
				b = append(append(b, sameFrameExtended), d...)
			}
		case len(f.Stack) == 1 && equalTypes(f.Locals, prev.Locals):
			if delta <= sameLocals1Max-sameLocals1Min {
				b = append(b, byte(sameLocals1Min+delta))
			} else {
				b = append(append(b, sameLocals1Extended), d...)
			}
			if b, err = appendType(b, f.Stack[0], pool); err != nil {
				return nil, err
			}
		case len(f.Stack) == 0 && diff < 0 && diff >= -3 && equalTypes(f.Locals, prev.Locals[:len(f.Locals)]):
			b = append(append(b, byte(sameFrameExtended+diff)), d...)
		case len(f.Stack) == 0 && diff > 0 && diff <= 3 && equalTypes(f.Locals[:len(prev.Locals)], prev.Locals):
			b = append(append(b, byte(sameFrameExtended+diff)), d...)
			if b, err = appendTypes(b, f.Locals[len(prev.Locals):], pool); err != nil {
				return nil, err
			}
		default:
			b = append(append(b, fullFrame), d...)
			b = append(b, byte(len(f.Locals)>>8), byte(len(f.Locals)))
			if b, err = appendTypes(b, f.Locals, pool); err != nil {
				return nil, err
			}
			b = append(b, byte(len(f.Stack)>>8), byte(len(f.Stack)))
			if b, err = appendTypes(b, f.Stack, pool); err != nil {
				return nil, err
			}
		}
		prev = f
	}
	return b, nil
}
