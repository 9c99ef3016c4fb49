// Package config is used to load the run configuration
package config

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/blacktop/retrobuffer/internal/errs"
	"github.com/blacktop/retrobuffer/pkg/classfile"
)

type telemetry struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// Config is the configuration struct
type Config struct {
	InputDir        string `mapstructure:"inputDir"`
	OutputDir       string `mapstructure:"outputDir"`
	ClasspathFile   string `mapstructure:"classpathFile"`
	Jobs            int    `mapstructure:"jobs"`
	MaxClassVersion int    `mapstructure:"maxClassVersion"`

	// Timeout aborts the run when positive.
	Timeout   time.Duration `mapstructure:"timeout"`
	Telemetry telemetry     `mapstructure:"telemetry"`

	// Classpath is resolved from either the classpath or classpathFile key.
	Classpath []string `mapstructure:"-"`
}

// SplitClasspath splits a path list on the platform separator, dropping empty elements.
func SplitClasspath(s string) []string {
	var out []string
	for _, p := range filepath.SplitList(s) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ReadClasspathFile reads a newline-delimited classpath list.
func ReadClasspathFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.IO("read classpath file", path, err)
	}
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), len(data)+1)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			out = append(out, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errs.IO("read classpath file", path, err)
	}
	return out, nil
}

func classpathValue(v any) ([]string, error) {
	if s, ok := v.(string); ok {
		return SplitClasspath(s), nil
	}
	list, err := cast.ToStringSliceE(v)
	if err != nil {
		return nil, errs.Configf("classpath", "expected a path list: %v", err)
	}
	var out []string
	for _, p := range list {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

func (c *Config) verify(v *viper.Viper) error {
	if c.InputDir == "" {
		return errs.Configf("inputDir", "missing required property: inputDir")
	}
	if c.OutputDir == "" {
		c.OutputDir = c.InputDir
	}

	switch {
	case v.IsSet("classpath"):
		cp, err := classpathValue(v.Get("classpath"))
		if err != nil {
			return err
		}
		c.Classpath = cp
	case c.ClasspathFile != "":
		cp, err := ReadClasspathFile(c.ClasspathFile)
		if err != nil {
			return err
		}
		c.Classpath = cp
	default:
		return errs.Configf("classpath", "missing required property: classpath")
	}

	if c.Jobs == 0 {
		c.Jobs = runtime.NumCPU()
	} else if c.Jobs < 0 {
		return errs.Configf("jobs", "must be positive, got %d", c.Jobs)
	}

	if c.MaxClassVersion == 0 {
		c.MaxClassVersion = classfile.MaxMajorVersion
	} else if c.MaxClassVersion < classfile.MinMajorVersion || c.MaxClassVersion > classfile.MaxMajorVersion {
		return errs.Configf("maxClassVersion", "must be between %d and %d, got %d",
			classfile.MinMajorVersion, classfile.MaxMajorVersion, c.MaxClassVersion)
	}

	if c.Timeout < 0 {
		return errs.Configf("timeout", "must not be negative, got %s", c.Timeout)
	}

	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		c.Telemetry.Endpoint = "localhost:4318"
	}

	return nil
}

// Load unmarshals and verifies the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var c Config

	if err := v.Unmarshal(&c, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, errs.Configf("", "failed to unmarshal: %v", err)
	}

	if err := c.verify(v); err != nil {
		return nil, err
	}

	return &c, nil
}

// LoadConfig loads the configuration from the global viper instance
func LoadConfig() (*Config, error) {
	return Load(viper.GetViper())
}
