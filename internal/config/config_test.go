package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestEnvHelpers(t *testing.T) {
	t.Setenv(EnvPrefix+"NAME", "relay")
	t.Setenv(EnvPrefix+"ENABLED", "true")
	t.Setenv(EnvPrefix+"COUNT", "7")
	t.Setenv(EnvPrefix+"WAIT", "1500ms")
	t.Setenv(EnvPrefix+"BROKEN", "nope")

	if got := GetStringEnv("NAME", "x"); got != "relay" {
		t.Fatalf("string env: got %q", got)
	}
	if got := GetStringEnv("MISSING", "x"); got != "x" {
		t.Fatalf("string fallback: got %q", got)
	}
	if !GetBoolEnv("ENABLED", false) {
		t.Fatal("bool env not parsed")
	}
	if got := GetIntEnv("COUNT", 0); got != 7 {
		t.Fatalf("int env: got %d", got)
	}
	if got := GetIntEnv("BROKEN", 3); got != 3 {
		t.Fatalf("int fallback on garbage: got %d", got)
	}
	if got := GetDurationEnv("WAIT", 0); got != 1500*time.Millisecond {
		t.Fatalf("duration env: got %s", got)
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("BROWSERRELAY_FROM_FILE=yes\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("BROWSERRELAY_FROM_FILE") })

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("load env: %v", err)
	}
	if got := GetStringEnv("FROM_FILE", ""); got != "yes" {
		t.Fatalf("env file not applied: %q", got)
	}
	if err := LoadEnvFile(filepath.Join(dir, "absent.env")); err != nil {
		t.Fatalf("missing env file should be ignored: %v", err)
	}
}

func TestLoadYAMLRejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	if err := os.WriteFile(path, []byte("name: a\nbogus: 1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	var dest struct {
		Name string `yaml:"name"`
	}
	if err := LoadYAML(path, &dest); err == nil {
		t.Fatal("expected unknown field error")
	}
}

func TestGetFloatEnv(t *testing.T) {
	t.Setenv(EnvPrefix+"RATIO", "0.25")
	t.Setenv(EnvPrefix+"EMPTY", "")
	if got := GetFloatEnv("RATIO", 1); got != 0.25 {
		t.Fatalf("float env: got %v", got)
	}
	if got := GetFloatEnv("EMPTY", 1); got != 1 {
		t.Fatalf("empty value should fall back: got %v", got)
	}
}

func TestDecodeYAML(t *testing.T) {
	var dest struct {
		Relays []struct {
			Session string `yaml:"session"`
		} `yaml:"relays"`
	}
	if err := DecodeYAML(strings.NewReader("relays:\n  - session: p1\n"), &dest); err != nil {
		t.Fatal(err)
	}
	if len(dest.Relays) != 1 || dest.Relays[0].Session != "p1" {
		t.Fatalf("decoded %+v", dest)
	}
	if err := DecodeYAML(strings.NewReader(""), &dest); !errors.Is(err, errEmptyDocument) {
		t.Fatalf("empty document: %v", err)
	}
}
