package rewrite

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blacktop/retrobuffer/internal/errs"
	"github.com/blacktop/retrobuffer/internal/registry"
	"github.com/blacktop/retrobuffer/pkg/classfile"
	"github.com/blacktop/retrobuffer/pkg/classfile/cftest"
	"github.com/blacktop/retrobuffer/pkg/stackmap"
)

type hierarchy map[string]stackmap.ClassInfo

func (h hierarchy) Resolve(name string) (stackmap.ClassInfo, bool) {
	info, ok := h[name]
	return info, ok
}

var nio = hierarchy{
	"java/nio/Buffer":     {Name: "java/nio/Buffer", Super: "java/lang/Object"},
	"java/nio/ByteBuffer": {Name: "java/nio/ByteBuffer", Super: "java/nio/Buffer"},
}

func artifact(t *testing.T, c *cftest.Class) *registry.Artifact {
	t.Helper()
	a, err := registry.Parse("test.class", c.Bytes(), classfile.Options{})
	require.NoError(t, err)
	return a
}

type invocation struct {
	pc  int
	ref classfile.MemberRef
}

func invocations(t *testing.T, data []byte, method string) ([]invocation, *classfile.Code) {
	t.Helper()
	cf, err := classfile.Parse(data, classfile.Options{})
	require.NoError(t, err)
	for i := range cf.Methods {
		m := &cf.Methods[i]
		if n, _ := m.Name(cf.Pool); n != method {
			continue
		}
		ci := classfile.FindAttribute(m.Attributes, cf.Pool, classfile.AttrCode)
		require.GreaterOrEqual(t, ci, 0)
		code, err := classfile.ParseCode(m.Attributes[ci].Data)
		require.NoError(t, err)
		insns, err := classfile.DecodeInstructions(code.Code)
		require.NoError(t, err)
		var out []invocation
		for _, insn := range insns {
			if isInvoke(insn.Op) {
				ref, err := cf.Pool.MemberRef(insn.U2(code.Code, 1))
				require.NoError(t, err)
				out = append(out, invocation{pc: insn.PC, ref: ref})
			}
		}
		return out, code
	}
	t.Fatalf("method %s not found", method)
	return nil, nil
}

func TestBufferTable(t *testing.T) {
	table := NewBufferTable()
	require.Equal(t, 56, table.Len())

	target, ok := table.Lookup(CallSiteKey{"java/nio/CharBuffer", "limit", "(I)Ljava/nio/CharBuffer;"})
	require.True(t, ok)
	assert.Equal(t, Target{Owner: "java/nio/Buffer", Descriptor: "(I)Ljava/nio/Buffer;"}, target)

	target, ok = table.Lookup(CallSiteKey{"java/nio/MappedByteBuffer", "flip", "()Ljava/nio/MappedByteBuffer;"})
	require.True(t, ok)
	assert.Equal(t, Target{Owner: "java/nio/Buffer", Descriptor: "()Ljava/nio/Buffer;"}, target)

	for _, k := range []CallSiteKey{
		{"java/nio/ByteBuffer", "limit", "()Ljava/nio/ByteBuffer;"}, // wrong arity
		{"java/nio/ByteBuffer", "limit", "()I"},                      // getter
		{"java/nio/ByteBuffer", "flip", "()Ljava/nio/Buffer;"},        // already base typed
		{"java/nio/Buffer", "flip", "()Ljava/nio/Buffer;"},
		{"java/nio/ByteBuffer", "compact", "()Ljava/nio/ByteBuffer;"},
		{"com/example/ByteBuffer", "flip", "()Lcom/example/ByteBuffer;"},
	} {
		_, ok := table.Lookup(k)
		assert.False(t, ok, k.String())
	}
}

func TestRewriteEveryTableEntry(t *testing.T) {
	rw := New(nio, classfile.Options{})
	for _, key := range NewBufferTable().Keys() {
		t.Run(key.String(), func(t *testing.T) {
			c := cftest.New("com/example/User", "java/lang/Object")
			m := c.Method(classfile.AccStatic, "use", "(L"+key.Owner+";)V").Op(classfile.OpAload0)
			if PositioningMethods[key.Name] == "(I)" {
				m.Op(classfile.OpIconst0)
			}
			m.Invoke(classfile.OpInvokevirtual, key.Owner, key.Name, key.Descriptor).
				Op(classfile.OpPop, classfile.OpReturn).
				Maxs(2, 1)

			out, report, err := rw.Rewrite(artifact(t, c))
			require.NoError(t, err)
			require.Len(t, report.Sites, 1)

			calls, _ := invocations(t, out, "use")
			require.Len(t, calls, 1)
			got := calls[0].ref
			assert.Equal(t, "java/nio/Buffer", got.Owner)
			assert.Equal(t, key.Name, got.Name)
			assert.Equal(t, PositioningMethods[key.Name]+"Ljava/nio/Buffer;", got.Descriptor)
			assert.Equal(t, classfile.TagMethodref, got.Tag)

			site := report.Sites[0]
			assert.Equal(t, "use(L"+key.Owner+";)V", site.Method)
			assert.Equal(t, "buffer", site.Rule)
			assert.Equal(t, key.Owner, site.From.Owner)
			assert.Equal(t, "java/nio/Buffer", site.To.Owner)
		})
	}
}

func TestConcreteScenario(t *testing.T) {
	c := cftest.New("com/example/Reader", "java/lang/Object")
	c.Method(classfile.AccPublic|classfile.AccStatic, "seek", "(Ljava/nio/IntBuffer;Lcom/example/Cursor;)V").
		Op(classfile.OpAload0, classfile.OpIconst2).
		Invoke(classfile.OpInvokevirtual, "java/nio/IntBuffer", "position", "(I)Ljava/nio/IntBuffer;").
		Op(classfile.OpPop).
		Op(classfile.OpAload1, classfile.OpIconst2).
		Invoke(classfile.OpInvokevirtual, "com/example/Cursor", "position", "(I)Lcom/example/Cursor;").
		Op(classfile.OpPop, classfile.OpReturn).
		Maxs(2, 2)

	out, report, err := New(nio, classfile.Options{}).Rewrite(artifact(t, c))
	require.NoError(t, err)
	require.Len(t, report.Sites, 1)

	calls, _ := invocations(t, out, "seek")
	require.Len(t, calls, 2)
	assert.Equal(t, classfile.MemberRef{Tag: classfile.TagMethodref, Owner: "java/nio/Buffer", Name: "position", Descriptor: "(I)Ljava/nio/Buffer;"}, calls[0].ref)
	assert.Equal(t, classfile.MemberRef{Tag: classfile.TagMethodref, Owner: "com/example/Cursor", Name: "position", Descriptor: "(I)Lcom/example/Cursor;"}, calls[1].ref)
}

func TestNonInterference(t *testing.T) {
	tests := []struct {
		name  string
		op    classfile.Opcode
		owner string
		meth  string
		desc  string
	}{
		{"unrelated owner", classfile.OpInvokevirtual, "com/example/Tape", "rewind", "()Lcom/example/Tape;"},
		{"untracked method", classfile.OpInvokevirtual, "java/nio/ByteBuffer", "compact", "()Ljava/nio/ByteBuffer;"},
		{"getter overload", classfile.OpInvokevirtual, "java/nio/ByteBuffer", "position", "()I"},
		{"already base", classfile.OpInvokevirtual, "java/nio/Buffer", "flip", "()Ljava/nio/Buffer;"},
		{"static call", classfile.OpInvokestatic, "java/nio/ByteBuffer", "flip", "()Ljava/nio/ByteBuffer;"},
		{"user method", classfile.OpInvokevirtual, "com/example/Stream", "mark", "()Ljava/nio/ByteBuffer;"},
	}
	rw := New(nio, classfile.Options{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := cftest.New("com/example/Other", "java/lang/Object")
			m := c.Method(classfile.AccStatic, "call", "(Ljava/lang/Object;)V")
			if tt.op != classfile.OpInvokestatic {
				m.Op(classfile.OpAload0).Type(classfile.OpCheckcast, tt.owner)
			}
			m.Invoke(tt.op, tt.owner, tt.meth, tt.desc).
				Op(classfile.OpPop, classfile.OpReturn).
				Maxs(1, 1)
			a := artifact(t, c)

			out, report, err := rw.Rewrite(a)
			require.NoError(t, err)
			assert.False(t, report.Changed())
			assert.Equal(t, a.Raw, out)
		})
	}
}

func TestIdempotence(t *testing.T) {
	c := cftest.New("com/example/Twice", "java/lang/Object")
	c.Method(classfile.AccStatic, "go", "(Ljava/nio/ByteBuffer;)V").
		Op(classfile.OpAload0).
		Invoke(classfile.OpInvokevirtual, "java/nio/ByteBuffer", "clear", "()Ljava/nio/ByteBuffer;").
		Op(classfile.OpPop, classfile.OpReturn).
		Maxs(0, 0)

	rw := New(nio, classfile.Options{})
	once, report, err := rw.Rewrite(artifact(t, c))
	require.NoError(t, err)
	require.True(t, report.Changed())

	_, code := invocations(t, once, "go")
	assert.EqualValues(t, 1, code.MaxStack)
	assert.EqualValues(t, 1, code.MaxLocals)

	a, err := registry.Parse("Twice.class", once, classfile.Options{})
	require.NoError(t, err)
	twice, report, err := rw.Rewrite(a)
	require.NoError(t, err)
	assert.False(t, report.Changed())
	assert.True(t, bytes.Equal(once, twice))

	// independent runs agree byte for byte
	again, _, err := New(nio, classfile.Options{}).Rewrite(artifact(t, c))
	require.NoError(t, err)
	assert.Equal(t, once, again)
}

func TestStackMapTableIsRecomputed(t *testing.T) {
	c := cftest.New("com/example/Branchy", "java/lang/Object")
	m := c.Method(classfile.AccStatic, "pick", "(Ljava/nio/ByteBuffer;Z)Ljava/lang/Object;").
		Op(classfile.OpIload1).
		Jump(classfile.OpIfeq, "null").
		Op(classfile.OpAload0).
		Invoke(classfile.OpInvokevirtual, "java/nio/ByteBuffer", "flip", "()Ljava/nio/ByteBuffer;").
		Jump(classfile.OpGoto, "join").
		Label("null").
		Op(classfile.OpAconstNull).
		Label("join").
		Op(classfile.OpAreturn).
		Maxs(1, 2)

	initial, err := stackmap.InitialFrame("com/example/Branchy", "pick", "(Ljava/nio/ByteBuffer;Z)Ljava/lang/Object;", true)
	require.NoError(t, err)
	frames := []stackmap.Frame{
		{Offset: 11, Locals: initial.Locals},
		{Offset: 12, Locals: initial.Locals, Stack: []stackmap.Type{stackmap.ObjectType("java/nio/ByteBuffer")}},
	}
	smt, err := stackmap.Encode(frames, initial, c.Pool)
	require.NoError(t, err)
	m.CodeAttribute(classfile.AttrStackMapTable, smt)

	out, report, err := New(nio, classfile.Options{}).Rewrite(artifact(t, c))
	require.NoError(t, err)
	require.Len(t, report.Sites, 1)
	assert.Equal(t, 5, report.Sites[0].PC)

	cf, err := classfile.Parse(out, classfile.Options{})
	require.NoError(t, err)
	_, code := invocations(t, out, "pick")
	si := classfile.FindAttribute(code.Attributes, cf.Pool, classfile.AttrStackMapTable)
	require.GreaterOrEqual(t, si, 0)
	got, err := stackmap.Decode(code.Attributes[si].Data, cf.Pool, initial)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 12, got[1].Offset)
	assert.Equal(t, []stackmap.Type{stackmap.ObjectType("java/nio/Buffer")}, got[1].Stack)
}

func TestAddsStackMapTableWhenMissing(t *testing.T) {
	c := cftest.New("com/example/Loop", "java/lang/Object")
	c.Method(classfile.AccStatic, "drain", "(Ljava/nio/LongBuffer;)V").
		Label("top").
		Op(classfile.OpAload0).
		Invoke(classfile.OpInvokevirtual, "java/nio/LongBuffer", "rewind", "()Ljava/nio/LongBuffer;").
		Op(classfile.OpPop).
		Jump(classfile.OpGoto, "top").
		Maxs(1, 1)

	out, _, err := New(nil, classfile.Options{}).Rewrite(artifact(t, c))
	require.NoError(t, err)

	cf, err := classfile.Parse(out, classfile.Options{})
	require.NoError(t, err)
	_, code := invocations(t, out, "drain")
	assert.GreaterOrEqual(t, classfile.FindAttribute(code.Attributes, cf.Pool, classfile.AttrStackMapTable), 0)

	// pre-Java 6 classes never get one
	out, _, err = New(nil, classfile.Options{}).Rewrite(artifact(t, c.Version(49)))
	require.NoError(t, err)
	cf, err = classfile.Parse(out, classfile.Options{})
	require.NoError(t, err)
	_, code = invocations(t, out, "drain")
	assert.Less(t, classfile.FindAttribute(code.Attributes, cf.Pool, classfile.AttrStackMapTable), 0)
}

func TestTransformErrorNamesClass(t *testing.T) {
	c := cftest.New("com/example/Broken", "java/lang/Object")
	c.Method(classfile.AccStatic, "bad", "(Ljava/nio/ByteBuffer;)V").
		Invoke(classfile.OpInvokevirtual, "java/nio/ByteBuffer", "flip", "()Ljava/nio/ByteBuffer;").
		Op(classfile.OpReturn).
		Maxs(1, 1)

	_, _, err := New(nio, classfile.Options{}).Rewrite(artifact(t, c))
	require.Error(t, err)
	var terr *errs.TransformError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "com/example/Broken", terr.Class)
	assert.Contains(t, err.Error(), "bad(Ljava/nio/ByteBuffer;)V")
}

type renameRule struct{}

func (renameRule) String() string { return "rename" }

func (renameRule) Rewrite(c Call) (Call, bool) {
	if c.Owner != "java/nio/Buffer" {
		return c, false
	}
	c.Owner = "com/example/compat/Buffers"
	return c, true
}

func TestRulesApplyInOrder(t *testing.T) {
	c := cftest.New("com/example/Chain", "java/lang/Object")
	c.Method(classfile.AccStatic, "go", "(Ljava/nio/ByteBuffer;)V").
		Op(classfile.OpAload0).
		Invoke(classfile.OpInvokevirtual, "java/nio/ByteBuffer", "mark", "()Ljava/nio/ByteBuffer;").
		Op(classfile.OpPop, classfile.OpReturn).
		Maxs(1, 1)

	out, report, err := New(nil, classfile.Options{}, BufferRule(), renameRule{}).Rewrite(artifact(t, c))
	require.NoError(t, err)
	require.Len(t, report.Sites, 1)
	assert.Equal(t, "buffer,rename", report.Sites[0].Rule)

	calls, _ := invocations(t, out, "go")
	assert.Equal(t, "com/example/compat/Buffers", calls[0].ref.Owner)
	assert.Equal(t, "()Ljava/nio/Buffer;", calls[0].ref.Descriptor)
}
