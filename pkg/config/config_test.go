package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	Name  string `yaml:"name"`
	Port  int    `yaml:"port"`
	valid bool
}

func (s *sample) Validate() error {
	if s.Port == 0 {
		return errors.New("port is required")
	}
	s.valid = true
	return nil
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("SAMPLE_NAME", "archive")
	p := writeFile(t, "name: ${SAMPLE_NAME}\nport: 9000\n")

	var s sample
	if err := Load(p, &s); err != nil {
		t.Fatal(err)
	}
	if s.Name != "archive" || s.Port != 9000 {
		t.Errorf("got %+v", s)
	}
	if !s.valid {
		t.Error("Validate not called")
	}
}

func TestLoad_ValidationError(t *testing.T) {
	p := writeFile(t, "name: x\n")
	var s sample
	err := Load(p, &s)
	if err == nil || !strings.Contains(err.Error(), "port is required") {
		t.Errorf("err = %v, want validation failure", err)
	}
}

func TestLoad_ParseError(t *testing.T) {
	p := writeFile(t, "name: [unclosed\n")
	var s sample
	if err := Load(p, &s); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadOptional(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.yaml")

	s := sample{Port: 1}
	if err := LoadOptional(missing, false, &s); err != nil {
		t.Fatalf("optional missing file: %v", err)
	}
	if s.Port != 1 || !s.valid {
		t.Errorf("defaults not kept and validated: %+v", s)
	}

	if err := LoadOptional(missing, true, &s); err == nil {
		t.Error("required missing file should fail")
	}

	var empty sample
	if err := LoadOptional("", false, &empty); err == nil {
		t.Error("defaults must still be validated")
	}

	p := writeFile(t, "port: 7\n")
	s = sample{Port: 1, Name: "kept"}
	if err := LoadOptional(p, true, &s); err != nil {
		t.Fatal(err)
	}
	if s.Port != 7 || s.Name != "kept" {
		t.Errorf("got %+v, want port 7 with name kept", s)
	}
}
