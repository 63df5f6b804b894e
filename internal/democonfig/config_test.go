package democonfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	yaml := `
listen:
  address: "0.0.0.0:5432"
  admin_address: "127.0.0.1:8080"

auth:
  mode: password

server_version: "16.3 (pggateway)"

users:
  alice:
    password: s3cret
`
	path := writeTemp(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Listen.Address != "0.0.0.0:5432" {
		t.Errorf("expected listen address 0.0.0.0:5432, got %s", cfg.Listen.Address)
	}
	if cfg.Auth.Mode != AuthModePassword {
		t.Errorf("expected auth mode password, got %s", cfg.Auth.Mode)
	}
	if cfg.ServerVersion != "16.3 (pggateway)" {
		t.Errorf("expected server_version override, got %s", cfg.ServerVersion)
	}

	u, ok := cfg.Users["alice"]
	if !ok {
		t.Fatal("user alice not found")
	}
	if u.Password != "s3cret" {
		t.Errorf("expected password s3cret, got %s", u.Password)
	}
}

func TestLoadEnvSubstitution(t *testing.T) {
	os.Setenv("TEST_PG_PASSWORD", "secret123")
	defer os.Unsetenv("TEST_PG_PASSWORD")

	yaml := `
auth:
  mode: password
users:
  alice:
    password: ${TEST_PG_PASSWORD}
`
	path := writeTemp(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Users["alice"].Password != "secret123" {
		t.Errorf("expected substituted password, got %s", cfg.Users["alice"].Password)
	}
}

func TestLoadValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "invalid auth mode",
			yaml: `
auth:
  mode: kerberos
`,
		},
		{
			name: "password mode missing password",
			yaml: `
auth:
  mode: password
users:
  alice: {}
`,
		},
		{
			name: "md5 mode missing pre_hashed",
			yaml: `
auth:
  mode: md5
users:
  alice: {}
`,
		},
		{
			name: "scram mode missing verifier",
			yaml: `
auth:
  mode: scram-sha-256
users:
  alice:
    scram_salt: "c29tZXNhbHQ="
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTemp(t, tt.yaml)
			_, err := Load(path)
			if err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	path := writeTemp(t, `{}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Listen.Address != "127.0.0.1:5432" {
		t.Errorf("expected default listen address, got %s", cfg.Listen.Address)
	}
	if cfg.Listen.AdminAddress != "127.0.0.1:8080" {
		t.Errorf("expected default admin address, got %s", cfg.Listen.AdminAddress)
	}
	if cfg.Auth.Mode != AuthModeTrust {
		t.Errorf("expected default auth mode trust, got %s", cfg.Auth.Mode)
	}
	if cfg.ServerVersion == "" {
		t.Error("expected a default server_version")
	}
}

func TestRedactedMasksSecrets(t *testing.T) {
	path := writeTemp(t, `
auth:
  mode: password
users:
  alice:
    password: s3cret
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	redacted := cfg.Redacted()
	if redacted.Users["alice"].Password != "***REDACTED***" {
		t.Errorf("expected password to be redacted, got %s", redacted.Users["alice"].Password)
	}
	if cfg.Users["alice"].Password != "s3cret" {
		t.Error("Redacted must not mutate the original config")
	}
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return path
}
