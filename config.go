package vkframe

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	DefaultFramesInFlight    = 2
	DefaultMaxAcquireRetries = 64
	DefaultFenceTimeout      = 5 * time.Second
)

// Config is the YAML-loadable configuration of the frame core.
type Config struct {
	FramesInFlight int `yaml:"frames_in_flight"`
	// MaxAcquireRetries bounds rebuild-and-retry on a stale acquire.
	MaxAcquireRetries int           `yaml:"max_acquire_retries"`
	FenceTimeout      time.Duration `yaml:"fence_timeout"`
	ClearColor        [4]float32    `yaml:"clear_color"`
	Surface           TargetConfig  `yaml:"surface"`
	Log               LogConfig     `yaml:"log"`
}

// TargetConfig holds the presentation target preferences.
type TargetConfig struct {
	Format        Format     `yaml:"format"`
	ColorSpace    ColorSpace `yaml:"color_space"`
	PreferMailbox bool       `yaml:"prefer_mailbox"`
	// ImageCount of 0 requests the surface minimum plus one.
	ImageCount uint32 `yaml:"image_count"`
	Width      uint32 `yaml:"width"`
	Height     uint32 `yaml:"height"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func DefaultConfig() Config {
	return Config{
		FramesInFlight:    DefaultFramesInFlight,
		MaxAcquireRetries: DefaultMaxAcquireRetries,
		FenceTimeout:      DefaultFenceTimeout,
		ClearColor:        [4]float32{0, 0, 0, 1},
		Surface:           DefaultTargetConfig(),
		Log:               LogConfig{Level: "info", Format: "text"},
	}
}

func DefaultTargetConfig() TargetConfig {
	return TargetConfig{
		Format:        FormatB8G8R8A8Srgb,
		ColorSpace:    ColorSpaceSrgbNonlinear,
		PreferMailbox: true,
		Width:         1280,
		Height:        720,
	}
}

// LoadConfig reads a YAML file on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "failed to read config file")
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML on top of DefaultConfig and validates the result.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "failed to parse config file")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.FramesInFlight < 1 {
		return errors.Errorf("frames_in_flight must be at least 1, got %d", c.FramesInFlight)
	}
	if c.MaxAcquireRetries < 1 {
		return errors.Errorf("max_acquire_retries must be at least 1, got %d", c.MaxAcquireRetries)
	}
	if c.FenceTimeout <= 0 {
		return errors.Errorf("fence_timeout must be positive, got %s", c.FenceTimeout)
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return errors.Errorf("unknown log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return errors.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

func (f *Format) UnmarshalYAML(value *yaml.Node) error {
	v, err := ParseFormat(value.Value)
	if err != nil {
		return err
	}
	*f = v
	return nil
}

func (f Format) MarshalYAML() (interface{}, error) {
	return f.String(), nil
}

func (c *ColorSpace) UnmarshalYAML(value *yaml.Node) error {
	v, err := ParseColorSpace(value.Value)
	if err != nil {
		return err
	}
	*c = v
	return nil
}

func (c ColorSpace) MarshalYAML() (interface{}, error) {
	return c.String(), nil
}

func (p *PresentMode) UnmarshalYAML(value *yaml.Node) error {
	v, err := ParsePresentMode(value.Value)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

func (p PresentMode) MarshalYAML() (interface{}, error) {
	return p.String(), nil
}
