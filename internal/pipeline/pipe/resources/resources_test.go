package resources

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blacktop/retrobuffer/internal/config"
	"github.com/blacktop/retrobuffer/internal/context"
	"github.com/blacktop/retrobuffer/internal/pipe"
	"github.com/blacktop/retrobuffer/internal/walk"
)

func setup(t *testing.T, in, out string) *context.Context {
	t.Helper()
	files := map[string][]byte{
		"META-INF/MANIFEST.MF": []byte("Manifest-Version: 1.0\n"),
		"assets/logo.bin":      {0xca, 0xfe, 0x00, 0xff},
	}
	for rel, data := range files {
		p := filepath.Join(in, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, data, 0o644))
	}
	entries, err := walk.Enumerate(in)
	require.NoError(t, err)

	ctx := context.New(&config.Config{InputDir: in, OutputDir: out})
	_, ctx.Resources = walk.Split(entries)
	return ctx
}

func TestRun(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	ctx := setup(t, in, out)

	require.NoError(t, Pipe{}.Run(ctx))
	for _, rel := range []string{"META-INF/MANIFEST.MF", "assets/logo.bin"} {
		want, err := os.ReadFile(filepath.Join(in, filepath.FromSlash(rel)))
		require.NoError(t, err)
		got, err := os.ReadFile(filepath.Join(out, filepath.FromSlash(rel)))
		require.NoError(t, err)
		assert.Equal(t, want, got, rel)
	}
}

func TestRunInPlace(t *testing.T) {
	in := t.TempDir()
	ctx := setup(t, in, in)

	err := Pipe{}.Run(ctx)
	require.Error(t, err)
	assert.True(t, pipe.IsSkip(err))
	assert.Equal(t, "in-place run leaves resources in place", err.Error())
}

func TestRunDryRun(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out")
	ctx := setup(t, t.TempDir(), out)
	ctx.DryRun = true

	require.NoError(t, Pipe{}.Run(ctx))
	_, err := os.Stat(out)
	assert.True(t, os.IsNotExist(err))
}

func TestSkip(t *testing.T) {
	ctx := context.New(&config.Config{})
	assert.True(t, Pipe{}.Skip(ctx))
	ctx.Resources = []walk.Entry{{Rel: "a.txt"}}
	assert.False(t, Pipe{}.Skip(ctx))
}
