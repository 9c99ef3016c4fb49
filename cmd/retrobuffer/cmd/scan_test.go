package cmd

import (
	"bytes"
	"testing"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blacktop/retrobuffer/internal/rewrite"
	"github.com/blacktop/retrobuffer/pkg/classfile"
)

func reports() []*rewrite.Report {
	from := rewrite.Call{Opcode: classfile.OpInvokevirtual, Owner: "java/nio/ByteBuffer", Name: "flip", Descriptor: "()Ljava/nio/ByteBuffer;"}
	to := from
	to.Owner, to.Descriptor = "java/nio/Buffer", "()Ljava/nio/Buffer;"
	return []*rewrite.Report{{
		Class: "com/example/Reader",
		Sites: []rewrite.Site{{Method: "read(Ljava/nio/ByteBuffer;)V", PC: 1, Rule: "buffer", From: from, To: to}},
	}}
}

func TestPrintReports(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	printReports(&buf, reports())
	assert.Equal(t,
		"com/example/Reader.read(Ljava/nio/ByteBuffer;)V: java/nio/ByteBuffer.flip ()Ljava/nio/ByteBuffer; -> java/nio/Buffer.flip ()Ljava/nio/Buffer;\n"+
			"1 call site in 1 class\n",
		buf.String())
}

func TestWriteYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeYAML(&buf, reports()))
	assert.Equal(t, heredoc.Doc(`
		- class: com/example/Reader
		  sites:
		    - method: read(Ljava/nio/ByteBuffer;)V
		      pc: 1
		      rule: buffer
		      from: java/nio/ByteBuffer.flip ()Ljava/nio/ByteBuffer;
		      to: java/nio/Buffer.flip ()Ljava/nio/Buffer;
	`), buf.String())
}
