package walk

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsClass(t *testing.T) {
	tests := map[string]bool{
		"com/a/B.class":               true,
		"B.class":                     true,
		"module-info.class":           false,
		"META-INF/module-info.class":  false,
		"com/a/module-info.class.bak": false,
		"com/a/B.classes":             false,
		"res/strings.xml":             false,
		"com/a/Outer$Inner.class":     true,
	}
	for rel, want := range tests {
		assert.Equal(t, want, IsClass(rel), rel)
	}
}

func TestEnumerate(t *testing.T) {
	root := t.TempDir()
	for _, rel := range []string{"z.txt", "com/a/B.class", "com/a/res/x.png", "module-info.class", "a/C.class"} {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(rel), 0o644))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty", "dir"), 0o755))

	entries, err := Enumerate(root)
	require.NoError(t, err)

	var rels []string
	for _, e := range entries {
		rels = append(rels, e.Rel)
	}
	assert.Equal(t, []string{"a/C.class", "com/a/B.class", "com/a/res/x.png", "module-info.class", "z.txt"}, rels)

	classes, resources := Split(entries)
	require.Len(t, classes, 2)
	assert.Equal(t, "a/C.class", classes[0].Rel)
	assert.Equal(t, filepath.Join(root, "a", "C.class"), classes[0].Abs)
	assert.EqualValues(t, len("a/C.class"), classes[0].Size)
	assert.Len(t, resources, 3)
}

func TestEnumerateMissingRoot(t *testing.T) {
	_, err := Enumerate(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
