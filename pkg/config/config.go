package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/ardnew/softhid/host"
	"github.com/ardnew/softhid/host/frame"
	"github.com/ardnew/softhid/host/hal"
	"github.com/ardnew/softhid/pkg"
)

// EnvPath names the environment variable that overrides the config path.
const EnvPath = "SOFTHID_CONFIG"

// Config holds the engine and tool configuration.
type Config struct {
	PacketSize   int       `toml:"packet_size" yaml:"packet_size"`
	CancelOpcode uint8     `toml:"cancel_opcode" yaml:"cancel_opcode"`
	DevDir       string    `toml:"dev_dir" yaml:"dev_dir"`
	Log          Log       `toml:"log" yaml:"log"`
	Devices      []Variant `toml:"variant" yaml:"variant"`
}

// Log selects the process-wide log output.
type Log struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// Variant is a configured device identity.
type Variant struct {
	Name      string `toml:"name" yaml:"name"`
	DevName   string `toml:"dev_name,omitempty" yaml:"dev_name,omitempty"`
	VendorID  uint16 `toml:"vendor_id,omitempty" yaml:"vendor_id,omitempty"`
	ProductID uint16 `toml:"product_id,omitempty" yaml:"product_id,omitempty"`
}

// fileConfig is the on-disk shape. Pointer fields distinguish absent keys
// from zero values so a partial file only overrides what it names.
type fileConfig struct {
	PacketSize   *int      `toml:"packet_size" yaml:"packet_size"`
	CancelOpcode *uint8    `toml:"cancel_opcode" yaml:"cancel_opcode"`
	DevDir       *string   `toml:"dev_dir" yaml:"dev_dir"`
	Log          *fileLog  `toml:"log" yaml:"log"`
	Devices      []Variant `toml:"variant" yaml:"variant"`
}

type fileLog struct {
	Level  *string `toml:"level" yaml:"level"`
	Format *string `toml:"format" yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{
		PacketSize:   frame.DefaultPayloadSize,
		CancelOpcode: host.DefaultCancelOpcode,
		DevDir:       host.DefaultDevDir,
		Log:          Log{Level: "warn", Format: pkg.LogFormatText.String()},
	}
	for _, v := range hal.DefaultVariants() {
		cfg.Devices = append(cfg.Devices, Variant(v))
	}
	return cfg
}

// DefaultPath returns $SOFTHID_CONFIG if set, else softhid/config.toml
// under the user config directory ($XDG_CONFIG_HOME on Linux).
func DefaultPath() string {
	if p := strings.TrimSpace(os.Getenv(EnvPath)); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", "softhid.toml")
	}
	return filepath.Join(dir, "softhid", "config.toml")
}

// Load reads the configuration at path. The format follows the extension:
// .toml, .yaml or .yml. Keys absent from the file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	var raw fileConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		err = decodeTOML(data, &raw)
	case ".yaml", ".yml":
		err = decodeYAML(data, &raw)
	default:
		return nil, fmt.Errorf("%w: config format %q", pkg.ErrNotSupported, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg := Default()
	raw.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	pkg.LogDebug(pkg.ComponentConfig, "config loaded",
		"path", path,
		"packet_size", cfg.PacketSize,
		"variants", len(cfg.Devices))
	return cfg, nil
}

// LoadOrDefault is like [Load] but returns [Default] when path does not
// exist.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		pkg.LogDebug(pkg.ComponentConfig, "no config file, using defaults", "path", path)
		return Default(), nil
	}
	return Load(path)
}

func decodeTOML(data []byte, raw *fileConfig) error {
	meta, err := toml.Decode(string(data), raw)
	if err != nil {
		return err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("%w: unknown key %q", pkg.ErrInvalidParameter, undecoded[0].String())
	}
	return nil
}

func decodeYAML(data []byte, raw *fileConfig) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(raw); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (f *fileConfig) apply(cfg *Config) {
	if f.PacketSize != nil {
		cfg.PacketSize = *f.PacketSize
	}
	if f.CancelOpcode != nil {
		cfg.CancelOpcode = *f.CancelOpcode
	}
	if f.DevDir != nil {
		cfg.DevDir = strings.TrimSpace(*f.DevDir)
	}
	if f.Log != nil {
		if f.Log.Level != nil {
			cfg.Log.Level = strings.TrimSpace(*f.Log.Level)
		}
		if f.Log.Format != nil {
			cfg.Log.Format = strings.TrimSpace(*f.Log.Format)
		}
	}
	if len(f.Devices) > 0 {
		cfg.Devices = make([]Variant, 0, len(f.Devices))
		for _, v := range f.Devices {
			v.Name = strings.TrimSpace(v.Name)
			v.DevName = strings.TrimSpace(v.DevName)
			cfg.Devices = append(cfg.Devices, v)
		}
	}
}

// =============================================================================
// Validation
// =============================================================================

// Validate checks that c describes a usable engine.
func (c *Config) Validate() error {
	if c.PacketSize < 1 || c.PacketSize > frame.MaxPayloadSize {
		return fmt.Errorf("%w: packet_size %d not in 1..%d",
			pkg.ErrInvalidParameter, c.PacketSize, frame.MaxPayloadSize)
	}
	// Zero means "use the default" to host.Options, so it cannot be sent.
	if c.CancelOpcode == 0 {
		return fmt.Errorf("%w: cancel_opcode 0 is reserved", pkg.ErrInvalidParameter)
	}
	if _, ok := pkg.ParseLogLevel(c.Log.Level); !ok {
		return fmt.Errorf("%w: log level %q", pkg.ErrInvalidParameter, c.Log.Level)
	}
	if _, ok := pkg.ParseLogFormat(c.Log.Format); !ok {
		return fmt.Errorf("%w: log format %q", pkg.ErrInvalidParameter, c.Log.Format)
	}
	if len(c.Devices) == 0 {
		return fmt.Errorf("%w: no variants", pkg.ErrInvalidParameter)
	}

	seen := make(map[string]bool, len(c.Devices))
	for i, v := range c.Devices {
		switch {
		case v.Name == "":
			return fmt.Errorf("%w: variant %d has no name", pkg.ErrInvalidParameter, i)
		case seen[v.Name]:
			return fmt.Errorf("%w: duplicate variant %q", pkg.ErrInvalidParameter, v.Name)
		case v.DevName == "" && v.VendorID == 0:
			return fmt.Errorf("%w: variant %q needs dev_name or vendor_id", pkg.ErrInvalidParameter, v.Name)
		}
		seen[v.Name] = true
	}
	return nil
}

// =============================================================================
// Conversion
// =============================================================================

// Variants returns the configured variants in open order.
func (c *Config) Variants() []hal.Variant {
	out := make([]hal.Variant, len(c.Devices))
	for i, v := range c.Devices {
		out[i] = hal.Variant(v)
	}
	return out
}

// HostOptions returns engine options for c. Callbacks, the platform and
// the emulator are left for the caller to fill in.
func (c *Config) HostOptions() host.Options {
	return host.Options{
		PacketSize:   c.PacketSize,
		Variants:     c.Variants(),
		CancelOpcode: c.CancelOpcode,
		DevDir:       c.DevDir,
	}
}

// ApplyLog configures the process-wide logger from c.Log.
func (c *Config) ApplyLog() {
	if level, ok := pkg.ParseLogLevel(c.Log.Level); ok {
		pkg.SetLogLevel(level)
	}
	if format, ok := pkg.ParseLogFormat(c.Log.Format); ok {
		pkg.SetLogFormat(format)
	}
}

// Write encodes c to w as "toml" or "yaml".
func (c *Config) Write(w io.Writer, format string) error {
	switch strings.ToLower(format) {
	case "", "toml":
		return toml.NewEncoder(w).Encode(c)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(c); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("%w: output format %q", pkg.ErrNotSupported, format)
	}
}
