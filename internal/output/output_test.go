package output

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blacktop/retrobuffer/internal/errs"
	"github.com/blacktop/retrobuffer/pkg/classfile/cftest"
)

func TestWriteClassUsesDeclaredName(t *testing.T) {
	root := t.TempDir()
	d := New(root)
	data := cftest.New("com/example/Widget$1", "java/lang/Object").Bytes()

	dst, err := d.WriteClass(data)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "com", "example", "Widget$1.class"), dst)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestWriteResource(t *testing.T) {
	root := t.TempDir()
	d := New(root)

	dst, err := d.WriteResource("META-INF/services/x.y.Z", []byte("impl\n"))
	require.NoError(t, err)
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "impl\n", string(got))

	_, err = d.WriteResource("../escape.txt", []byte("x"))
	assert.Equal(t, "io", errs.Kind(err))
}

func TestDryRun(t *testing.T) {
	root := t.TempDir()
	d := New(root)
	d.DryRun = true

	dst, err := d.WriteResource("a/b.txt", []byte("x"))
	require.NoError(t, err)
	_, err = os.Stat(dst)
	assert.True(t, os.IsNotExist(err))
}

func TestWriteFailure(t *testing.T) {
	root := t.TempDir()
	// a file where a directory is needed
	require.NoError(t, os.WriteFile(filepath.Join(root, "com"), nil, 0o644))

	_, err := New(root).WriteClass(cftest.New("com/example/A", "java/lang/Object").Bytes())
	require.Error(t, err)
	var ioe *errs.IOError
	assert.ErrorAs(t, err, &ioe)
}
