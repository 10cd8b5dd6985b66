package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Output != OutputAuto {
		t.Errorf("expected output=auto, got %s", cfg.Output)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("expected log_level=warn, got %s", cfg.LogLevel)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoad_RequiresConfigEnv(t *testing.T) {
	t.Setenv(ENV_CONFIG, "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when ASN1DER_CONFIG not set, got nil")
	}
	if !strings.HasPrefix(err.Error(), "ASN1DER_CONFIG environment variable not set") {
		t.Errorf("unexpected error message: %q", err.Error())
	}
}

func TestLoad_WithConfigEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "asn1der.yaml")
	content := `
schema: schemas/kerberos.yaml
type: Ticket
input_format: json
output: hex
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	t.Setenv(ENV_CONFIG, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Schema != filepath.Join(dir, "schemas", "kerberos.yaml") {
		t.Errorf("expected schema relative to config file, got %s", cfg.Schema)
	}
	if cfg.Type != "Ticket" || cfg.InputFormat != "json" || cfg.Output != OutputHex {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("expected default log_level to survive, got %s", cfg.LogLevel)
	}
}

func TestLoadFile_ExpandsVariables(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "asn1der.yaml")
	content := "schema: ${ASN1DER_TEST_SCHEMAS}/a.yaml\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	t.Setenv("ASN1DER_TEST_SCHEMAS", "/srv/schemas")
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.Schema != "/srv/schemas/a.yaml" {
		t.Errorf("expected expanded schema path, got %s", cfg.Schema)
	}

	content = "schema: ${ASN1DER_TEST_UNSET:-/opt/schemas}/a.yaml\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	cfg, err = LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.Schema != "/opt/schemas/a.yaml" {
		t.Errorf("expected default schema path, got %s", cfg.Schema)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("output: [hex"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Output = "base64"
	cfg.InputFormat = "xml"
	cfg.LogLevel = "verbose"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"invalid output", "invalid input_format", "invalid log_level"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %q", want, err.Error())
		}
	}
}

func TestLevel(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "debug"
	level, err := cfg.Level()
	if err != nil || level != slog.LevelDebug {
		t.Errorf("Level() = %v, %v", level, err)
	}
}
