// Package config holds the settings of the sfs command: which image to use,
// how mkfs lays it out, and how much to log.
package config

import (
	"bytes"
	stderrors "errors"
	"io"
	"io/fs"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/mit-pdos/go-sfs/fserr"
	"github.com/mit-pdos/go-sfs/layout"
	"github.com/mit-pdos/go-sfs/util"
)

type Config struct {
	Image   string `yaml:"image"`
	NBlocks uint64 `yaml:"nblocks"`
	Volume  string `yaml:"volume"`
	// Debug is the util.DPrintf level; 0 logs nothing.
	Debug uint64 `yaml:"debug"`

	layout.Geometry `yaml:",inline"`
}

const (
	DefaultNBlocks uint64 = 4096
	MinNBlocks     uint64 = 8
)

func Default() *Config {
	return &Config{
		NBlocks:  DefaultNBlocks,
		Volume:   "sfs",
		Geometry: layout.DefaultGeometry(),
	}
}

// Load reads a YAML config file over the defaults. A missing file, or an
// empty path, yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if stderrors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	c := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && err != io.EOF {
		return nil, fserr.Invalid("config: %v", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	if err := c.Geometry.Validate(); err != nil {
		return err
	}
	if c.NBlocks < MinNBlocks {
		return fserr.Invalid("nblocks %d below minimum %d", c.NBlocks, MinNBlocks)
	}
	if uint64(len(c.Volume)) > layout.VOLNAMELEN {
		return fserr.Invalid("volume name %q longer than %d bytes", c.Volume, layout.VOLNAMELEN)
	}
	return nil
}

// Logger builds the logger the debug level asks for: a development logger
// when debugging, otherwise one that reports only errors.
func (c *Config) Logger() (*zap.Logger, error) {
	if c.Debug > 0 {
		return zap.NewDevelopment()
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	zc.Encoding = "console"
	return zc.Build()
}

// InitLogging installs the logger and debug level for util.DPrintf.
func (c *Config) InitLogging() error {
	l, err := c.Logger()
	if err != nil {
		return err
	}
	util.SetLogger(l)
	util.Debug = c.Debug
	return nil
}
