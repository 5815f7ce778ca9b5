package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ardnew/softhid/host/hal"
	"github.com/ardnew/softhid/pkg"
	"github.com/ardnew/softhid/pkg/config"
)

// =============================================================================
// Test Helpers
// =============================================================================

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	// Keep the user's config out of the test.
	t.Setenv(config.EnvPath, filepath.Join(t.TempDir(), "absent.toml"))

	buf := new(bytes.Buffer)
	root := newRootCmd()
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

// =============================================================================
// Command Tests
// =============================================================================

func TestVariantsCommand(t *testing.T) {
	out, err := executeCommand(t, "variants")
	if err != nil {
		t.Fatalf("variants command failed: %v", err)
	}
	for _, want := range []string{"signet-hc", "signet", "0x5e2a", "0x0002"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out)
		}
	}
	if strings.Index(out, "hc") > strings.Index(out, "original") {
		t.Errorf("variants not in open order:\n%s", out)
	}
}

func TestVariantsCommand_Select(t *testing.T) {
	out, err := executeCommand(t, "variants", "--variant", "original")
	if err != nil {
		t.Fatalf("variants command failed: %v", err)
	}
	if strings.Contains(out, "signet-hc") {
		t.Errorf("unselected variant listed:\n%s", out)
	}

	if _, err := executeCommand(t, "variants", "--variant", "bogus"); err == nil {
		t.Error("expected error for unknown variant")
	}
}

func TestConfigCommand(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{"toml", "packet_size = 60"},
		{"yaml", "packet_size: 60"},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			out, err := executeCommand(t, "config", "--format", tt.format)
			if err != nil {
				t.Fatalf("config command failed: %v", err)
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("expected output to contain %q, got:\n%s", tt.want, out)
			}
		})
	}
}

func TestConfigCommand_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hidctl.yaml")
	if err := os.WriteFile(path, []byte("packet_size: 24\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	out, err := executeCommand(t, "--config", path, "config", "-f", "yaml")
	if err != nil {
		t.Fatalf("config command failed: %v", err)
	}
	if !strings.Contains(out, "packet_size: 24") {
		t.Errorf("config file not applied:\n%s", out)
	}

	if _, err := executeCommand(t, "--config", filepath.Join(t.TempDir(), "none.toml"), "config"); err == nil {
		t.Error("expected error for missing explicit config")
	}
}

func TestOpenCommand_Sim(t *testing.T) {
	out, err := executeCommand(t, "--sim", "open")
	if err != nil {
		t.Fatalf("open command failed: %v", err)
	}
	if !strings.Contains(out, "opened hc") {
		t.Errorf("expected output to contain 'opened hc', got: %s", out)
	}
}

func TestSendCommand_Sim(t *testing.T) {
	out, err := executeCommand(t, "--sim", "--packet-size", "8", "send", "0x10", "de:ad:be:ef", "0102030405")
	if err != nil {
		t.Fatalf("send command failed: %v", err)
	}
	for _, want := range []string{"status:  success", "code:    0x10", "payload: deadbeef0102030405", "sent:    9 bytes"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestSendCommand_NoResponse(t *testing.T) {
	out, err := executeCommand(t, "--sim", "send", "--no-response", "7")
	if err != nil {
		t.Fatalf("send command failed: %v", err)
	}
	if strings.Contains(out, "payload:") {
		t.Errorf("unexpected response output:\n%s", out)
	}
}

func TestInterruptCommand_Sim(t *testing.T) {
	out, err := executeCommand(t, "--sim", "interrupt", "0x33", "01")
	if err != nil {
		t.Fatalf("interrupt command failed: %v", err)
	}
	if !strings.Contains(out, "status:  success") {
		t.Errorf("expected success, got:\n%s", out)
	}
}

func TestEmulateCommand(t *testing.T) {
	out, err := executeCommand(t, "emulate", "0x21", "abcd")
	if err != nil {
		t.Fatalf("emulate command failed: %v", err)
	}
	if !strings.Contains(out, "payload: abcd") {
		t.Errorf("expected echoed payload, got:\n%s", out)
	}
}

func TestSendCommand_BadArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"opcode out of range", []string{"--sim", "send", "0x100"}},
		{"opcode not a number", []string{"--sim", "send", "open"}},
		{"odd hex payload", []string{"--sim", "send", "1", "abc"}},
		{"missing opcode", []string{"--sim", "send"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := executeCommand(t, tt.args...); err == nil {
				t.Errorf("expected error for %v", tt.args)
			}
		})
	}
}

// =============================================================================
// Helper Tests
// =============================================================================

func TestParseRequest(t *testing.T) {
	op, payload, err := parseRequest([]string{"255", "00 ff"})
	if err != nil {
		t.Fatalf("parseRequest failed: %v", err)
	}
	if op != 0xFF || !bytes.Equal(payload, []byte{0x00, 0xFF}) {
		t.Errorf("parseRequest = 0x%02x % x", op, payload)
	}

	if _, _, err := parseRequest([]string{"-1"}); !errors.Is(err, pkg.ErrInvalidParameter) {
		t.Errorf("parseRequest(-1) = %v", err)
	}
}

func TestRenderVariants(t *testing.T) {
	out := renderVariants([]hal.Variant{{Name: "win", VendorID: 0x1209, ProductID: 0x7}})
	if !strings.Contains(out, "win") || !strings.Contains(out, "0x0007") || !strings.Contains(out, " - ") {
		t.Errorf("unexpected table:\n%s", out)
	}
}
