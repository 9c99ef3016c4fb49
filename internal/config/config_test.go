package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blacktop/retrobuffer/internal/errs"
)

func TestLoad(t *testing.T) {
	sep := string(os.PathListSeparator)
	cpFile := filepath.Join(t.TempDir(), "classpath.txt")
	require.NoError(t, os.WriteFile(cpFile, []byte("/sdk/android.jar\n\n  /libs/a.jar  \n"), 0o644))

	tests := []struct {
		name    string
		values  map[string]any
		want    *Config
		errKey  string
		errKind string
	}{
		{
			name:   "inline classpath",
			values: map[string]any{"inputDir": "/in", "classpath": "/a.jar" + sep + sep + "/b"},
			want:   &Config{InputDir: "/in", OutputDir: "/in", Classpath: []string{"/a.jar", "/b"}},
		},
		{
			name:   "list classpath",
			values: map[string]any{"inputDir": "/in", "outputDir": "/out", "classpath": []any{"/a.jar", "", "/b"}},
			want:   &Config{InputDir: "/in", OutputDir: "/out", Classpath: []string{"/a.jar", "/b"}},
		},
		{
			name:   "empty classpath is allowed",
			values: map[string]any{"inputDir": "/in", "classpath": ""},
			want:   &Config{InputDir: "/in", OutputDir: "/in"},
		},
		{
			name:   "classpath file",
			values: map[string]any{"inputDir": "/in", "classpathFile": cpFile},
			want:   &Config{InputDir: "/in", OutputDir: "/in", ClasspathFile: cpFile, Classpath: []string{"/sdk/android.jar", "/libs/a.jar"}},
		},
		{
			name:   "inline wins over file",
			values: map[string]any{"inputDir": "/in", "classpath": "/x", "classpathFile": "/does/not/exist"},
			want:   &Config{InputDir: "/in", OutputDir: "/in", ClasspathFile: "/does/not/exist", Classpath: []string{"/x"}},
		},
		{
			name:    "missing input",
			values:  map[string]any{"classpath": "/x"},
			errKey:  "inputDir",
			errKind: "configuration",
		},
		{
			name:    "missing classpath",
			values:  map[string]any{"inputDir": "/in"},
			errKey:  "classpath",
			errKind: "configuration",
		},
		{
			name:    "unreadable classpath file",
			values:  map[string]any{"inputDir": "/in", "classpathFile": filepath.Join(t.TempDir(), "nope")},
			errKind: "io",
		},
		{
			name:    "version out of range",
			values:  map[string]any{"inputDir": "/in", "classpath": "", "maxClassVersion": 70},
			errKey:  "maxClassVersion",
			errKind: "configuration",
		},
		{
			name:    "negative jobs",
			values:  map[string]any{"inputDir": "/in", "classpath": "", "jobs": -2},
			errKey:  "jobs",
			errKind: "configuration",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			for k, val := range tt.values {
				v.Set(k, val)
			}
			got, err := Load(v)
			if tt.errKind != "" {
				require.Error(t, err)
				assert.Equal(t, tt.errKind, errs.Kind(err))
				if tt.errKey != "" {
					var cerr *errs.ConfigError
					require.ErrorAs(t, err, &cerr)
					assert.Equal(t, tt.errKey, cerr.Key)
				}
				return
			}
			require.NoError(t, err)
			tt.want.Jobs = runtime.NumCPU()
			tt.want.MaxClassVersion = 69
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeFromStrings(t *testing.T) {
	// values arriving through the environment are strings
	v := viper.New()
	v.Set("inputDir", "/in")
	v.Set("classpath", "")
	v.Set("jobs", "3")
	v.Set("maxClassVersion", "52")
	v.Set("timeout", "90s")
	got, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Jobs)
	assert.Equal(t, 52, got.MaxClassVersion)
	assert.Equal(t, 90*time.Second, got.Timeout)

	v.Set("timeout", "-1s")
	_, err = Load(v)
	var cerr *errs.ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "timeout", cerr.Key)
}

func TestMissingClasspathMessage(t *testing.T) {
	v := viper.New()
	v.Set("inputDir", "/in")
	_, err := Load(v)
	require.Error(t, err)
	assert.True(t, strings.HasSuffix(err.Error(), "missing required property: classpath"))
}

func TestTelemetryDefaults(t *testing.T) {
	v := viper.New()
	v.Set("inputDir", "/in")
	v.Set("classpath", "")
	v.Set("telemetry.enabled", true)
	got, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "localhost:4318", got.Telemetry.Endpoint)
}
