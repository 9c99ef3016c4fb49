package classpath

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blacktop/retrobuffer/internal/registry"
	"github.com/blacktop/retrobuffer/pkg/classfile"
	"github.com/blacktop/retrobuffer/pkg/classfile/cftest"
	"github.com/blacktop/retrobuffer/pkg/stackmap"
)

func writeJar(t *testing.T, path string, classes map[string][]byte) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	w := zip.NewWriter(f)
	for name, data := range classes {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
}

func newRegistry(t *testing.T, classes ...*cftest.Class) *registry.Registry {
	t.Helper()
	b := registry.NewBuilder()
	for _, c := range classes {
		a, err := registry.Parse("in.class", c.Bytes(), classfile.Options{})
		require.NoError(t, err)
		require.NoError(t, b.Add(a))
	}
	return b.Build()
}

func TestResolve(t *testing.T) {
	tmp := t.TempDir()

	dir := filepath.Join(tmp, "classes")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "lib", "dir"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lib", "dir", "Base.class"),
		cftest.New("lib/dir/Base", "java/lang/Object").Bytes(), 0o644))

	jarPath := filepath.Join(tmp, "lib.jar")
	writeJar(t, jarPath, map[string][]byte{
		"lib/jar/Sink.class":      cftest.New("lib/jar/Sink", "java/lang/Object").Interface().Bytes(),
		"lib/jar/Newer.class":     cftest.New("lib/jar/Newer", "java/lang/Object").Version(99).Bytes(),
		"META-INF/MANIFEST.MF":    []byte("Manifest-Version: 1.0\n"),
		"java/lang/Runtime.class": cftest.New("java/lang/Runtime", "java/lang/Object").Bytes(),
	})

	reg := newRegistry(t,
		cftest.New("app/Impl", "lib/dir/Base").Implements("lib/jar/Sink"),
		cftest.New("app/Api", "java/lang/Object").Interface(),
	)

	ctx, err := New(reg, []string{dir, filepath.Join(tmp, "missing.jar"), jarPath})
	require.NoError(t, err)
	defer ctx.Close()

	tests := []struct {
		name string
		want stackmap.ClassInfo
		ok   bool
	}{
		{"java/nio/MappedByteBuffer", stackmap.ClassInfo{Name: "java/nio/MappedByteBuffer", Super: "java/nio/ByteBuffer"}, true},
		{"java/lang/Comparable", stackmap.ClassInfo{Name: "java/lang/Comparable", Super: "java/lang/Object", Interface: true}, true},
		{"app/Impl", stackmap.ClassInfo{Name: "app/Impl", Super: "lib/dir/Base"}, true},
		{"app/Api", stackmap.ClassInfo{Name: "app/Api", Super: "java/lang/Object", Interface: true}, true},
		{"lib/dir/Base", stackmap.ClassInfo{Name: "lib/dir/Base", Super: "java/lang/Object"}, true},
		{"lib/jar/Sink", stackmap.ClassInfo{Name: "lib/jar/Sink", Super: "java/lang/Object", Interface: true}, true},
		{"lib/jar/Newer", stackmap.ClassInfo{Name: "lib/jar/Newer", Super: "java/lang/Object"}, true},
		{"java/lang/Runtime", stackmap.ClassInfo{Name: "java/lang/Runtime", Super: "java/lang/Object"}, true},
		{"app/Missing", stackmap.ClassInfo{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ctx.Resolve(tt.name)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveCachesMisses(t *testing.T) {
	ctx, err := New(nil, nil)
	require.NoError(t, err)

	_, ok := ctx.Resolve("com/example/Nowhere")
	assert.False(t, ok)
	_, ok = ctx.Resolve("com/example/Nowhere")
	assert.False(t, ok)

	hits, misses := ctx.Stats()
	assert.EqualValues(t, 1, hits)
	assert.EqualValues(t, 1, misses)
}

func TestRegistryShadowsClasspath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "app"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app", "Impl.class"),
		cftest.New("app/Impl", "java/lang/Object").Bytes(), 0o644))

	ctx, err := New(newRegistry(t, cftest.New("app/Impl", "java/lang/Thread")), []string{dir})
	require.NoError(t, err)

	got, ok := ctx.Resolve("app/Impl")
	require.True(t, ok)
	assert.Equal(t, "java/lang/Thread", got.Super)
}

func TestBadArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.jar")
	require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0o644))

	_, err := New(nil, []string{path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.jar")
}
