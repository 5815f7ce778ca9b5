package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ardnew/softhid/host"
	"github.com/ardnew/softhid/host/frame"
	"github.com/ardnew/softhid/host/hal"
	"github.com/ardnew/softhid/pkg"
)

// =============================================================================
// Test Helpers
// =============================================================================

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

// =============================================================================
// Defaults
// =============================================================================

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if cfg.PacketSize != frame.DefaultPayloadSize {
		t.Errorf("PacketSize = %d, want %d", cfg.PacketSize, frame.DefaultPayloadSize)
	}
	if cfg.CancelOpcode != host.DefaultCancelOpcode {
		t.Errorf("CancelOpcode = 0x%02x", cfg.CancelOpcode)
	}

	got := cfg.Variants()
	want := hal.DefaultVariants()
	if len(got) != len(want) {
		t.Fatalf("Variants() has %d entries, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Variants()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDefaultPath(t *testing.T) {
	t.Run("env override", func(t *testing.T) {
		t.Setenv(EnvPath, "/etc/softhid.yaml")
		if got := DefaultPath(); got != "/etc/softhid.yaml" {
			t.Errorf("DefaultPath() = %q", got)
		}
	})

	t.Run("xdg", func(t *testing.T) {
		t.Setenv(EnvPath, "")
		t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
		if got := DefaultPath(); !strings.HasSuffix(got, filepath.Join("softhid", "config.toml")) {
			t.Errorf("DefaultPath() = %q", got)
		}
	})
}

// =============================================================================
// Loading
// =============================================================================

func TestLoad_TOML(t *testing.T) {
	path := writeFile(t, "config.toml", `
packet_size   = 64
cancel_opcode = 0x7e
dev_dir       = "/tmp/dev"

[log]
level  = "debug"
format = "console"

[[variant]]
name       = "bench"
dev_name   = "bench-hid"
vendor_id  = 0x1209
product_id = 0x0001
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.PacketSize != 64 || cfg.CancelOpcode != 0x7E || cfg.DevDir != "/tmp/dev" {
		t.Errorf("scalars = %d 0x%02x %q", cfg.PacketSize, cfg.CancelOpcode, cfg.DevDir)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "console" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	want := hal.Variant{Name: "bench", DevName: "bench-hid", VendorID: 0x1209, ProductID: 0x0001}
	if v := cfg.Variants(); len(v) != 1 || v[0] != want {
		t.Errorf("Variants() = %v", v)
	}
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "config.yml", `
packet_size: 32
log:
  level: info
variant:
  - name: legacy
    vendor_id: 0x5e2a
    product_id: 0x0001
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.PacketSize != 32 {
		t.Errorf("PacketSize = %d, want 32", cfg.PacketSize)
	}
	// Absent keys keep their defaults
	if cfg.CancelOpcode != host.DefaultCancelOpcode || cfg.DevDir != host.DefaultDevDir {
		t.Errorf("defaults lost: 0x%02x %q", cfg.CancelOpcode, cfg.DevDir)
	}
	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want text", cfg.Log.Format)
	}
	if len(cfg.Devices) != 1 || cfg.Devices[0].VendorID != 0x5E2A {
		t.Errorf("Devices = %+v", cfg.Devices)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr error
	}{
		{"unknown extension", "config.ini", "packet_size=1", pkg.ErrNotSupported},
		{"unknown toml key", "c.toml", "packet_sizes = 3\n", pkg.ErrInvalidParameter},
		{"packet size too large", "c.toml", "packet_size = 5000\n", pkg.ErrInvalidParameter},
		{"reserved cancel opcode", "c.toml", "cancel_opcode = 0\n", pkg.ErrInvalidParameter},
		{"bad log level", "c.yaml", "log:\n  level: loud\n", pkg.ErrInvalidParameter},
		{"duplicate variant", "c.toml", "[[variant]]\nname=\"a\"\ndev_name=\"x\"\n[[variant]]\nname=\"a\"\ndev_name=\"y\"\n", pkg.ErrInvalidParameter},
		{"variant without identity", "c.toml", "[[variant]]\nname=\"a\"\n", pkg.ErrInvalidParameter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.content))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Load() = %v, want %v", err, tt.wantErr)
			}
		})
	}

	t.Run("unknown yaml key", func(t *testing.T) {
		if _, err := Load(writeFile(t, "c.yaml", "packet_sizes: 3\n")); err == nil {
			t.Error("Load() accepted an unknown key")
		}
	})
}

func TestLoad_Missing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.toml")
	if _, err := Load(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load() = %v, want ErrNotExist", err)
	}

	cfg, err := LoadOrDefault(path)
	if err != nil {
		t.Fatalf("LoadOrDefault failed: %v", err)
	}
	if cfg.PacketSize != Default().PacketSize {
		t.Errorf("LoadOrDefault did not return defaults: %+v", cfg)
	}
}

func TestLoad_EmptyYAML(t *testing.T) {
	cfg, err := Load(writeFile(t, "empty.yaml", ""))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cfg.Devices) != len(hal.DefaultVariants()) {
		t.Errorf("Devices = %d entries", len(cfg.Devices))
	}
}

// =============================================================================
// Conversion
// =============================================================================

func TestHostOptions(t *testing.T) {
	cfg := Default()
	cfg.PacketSize = 16
	cfg.CancelOpcode = 0x55
	cfg.DevDir = "/run/dev"
	cfg.Devices = cfg.Devices[1:]

	opts := cfg.HostOptions()
	if opts.PacketSize != 16 || opts.CancelOpcode != 0x55 || opts.DevDir != "/run/dev" {
		t.Errorf("HostOptions() = %+v", opts)
	}
	if len(opts.Variants) != 1 || opts.Variants[0].Name != "original" {
		t.Errorf("Variants = %v", opts.Variants)
	}
	if opts.Platform != nil || opts.Emulator != nil {
		t.Error("HostOptions set a platform or emulator")
	}
}

func TestWrite_RoundTrip(t *testing.T) {
	for _, format := range []string{"toml", "yaml"} {
		t.Run(format, func(t *testing.T) {
			cfg := Default()
			cfg.PacketSize = 48

			var buf bytes.Buffer
			if err := cfg.Write(&buf, format); err != nil {
				t.Fatalf("Write failed: %v", err)
			}
			if !strings.Contains(buf.String(), "packet_size") {
				t.Errorf("output missing packet_size:\n%s", buf.String())
			}

			got, err := Load(writeFile(t, "out."+format, buf.String()))
			if err != nil {
				t.Fatalf("Load of written config failed: %v\n%s", err, buf.String())
			}
			if got.PacketSize != 48 || len(got.Devices) != len(cfg.Devices) {
				t.Errorf("round trip = %+v", got)
			}
		})
	}

	if err := Default().Write(&bytes.Buffer{}, "xml"); !errors.Is(err, pkg.ErrNotSupported) {
		t.Errorf("Write(xml) = %v", err)
	}
}
