// Package democonfig provides the YAML-backed, hot-reloadable configuration
// for cmd/pgserve: listen address, TLS material, the authentication method
// to enforce, and the reported server_version. It follows the same
// load/validate/defaults/watch shape as the teacher's internal/config, with
// the multi-tenant pool settings replaced by pggateway's single-process
// knobs.
package democonfig

import (
	"fmt"
	"log"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// AuthMode selects which pggateway.AuthMethod the server enforces.
type AuthMode string

const (
	AuthModeTrust    AuthMode = "trust"
	AuthModePassword AuthMode = "password"
	AuthModeMD5      AuthMode = "md5"
	AuthModeScram    AuthMode = "scram-sha-256"
	AuthModeCert     AuthMode = "cert"
)

// Config is the top-level configuration for pgserve.
type Config struct {
	Listen        ListenConfig        `yaml:"listen"`
	Auth          AuthConfig          `yaml:"auth"`
	ServerVersion string              `yaml:"server_version"`
	Users         map[string]UserAuth `yaml:"users"`
}

// ListenConfig defines the bind address and TLS material pgserve listens
// with.
type ListenConfig struct {
	Address           string `yaml:"address"`
	AdminAddress      string `yaml:"admin_address"`
	TLSCert           string `yaml:"tls_cert"`
	TLSKey            string `yaml:"tls_key"`
	RequireClientCert bool   `yaml:"require_client_cert"`
}

// AuthConfig selects the authentication method enforced at startup.
type AuthConfig struct {
	Mode AuthMode `yaml:"mode"`
}

// UserAuth holds the per-user verifier material, interpreted according to
// AuthConfig.Mode: the cleartext Password for "password", PreHashed
// (hex(md5(password+username))) for "md5", and the SCRAM salt/iterations/
// stored+server keys for "scram-sha-256". Unused for "trust" and "cert".
type UserAuth struct {
	Password     string `yaml:"password,omitempty"`
	PreHashed    string `yaml:"pre_hashed,omitempty"`
	SaltB64      string `yaml:"scram_salt,omitempty"`
	Iterations   int    `yaml:"scram_iterations,omitempty"`
	StoredKeyB64 string `yaml:"scram_stored_key,omitempty"`
	ServerKeyB64 string `yaml:"scram_server_key,omitempty"`
}

// TLSEnabled returns true if both TLS cert and key paths are configured.
func (lc ListenConfig) TLSEnabled() bool {
	return lc.TLSCert != "" && lc.TLSKey != ""
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// substituteEnvVars replaces ${VAR_NAME} patterns with environment variable
// values, so secrets (passwords, SCRAM verifiers) need not sit in the file
// verbatim.
func substituteEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envVarPattern.FindSubmatch(match)[1]
		if val, ok := os.LookupEnv(string(varName)); ok {
			return []byte(val)
		}
		return match
	})
}

// Load reads and parses a YAML config file with env var substitution.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	data = substituteEnvVars(data)

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Listen.Address == "" {
		cfg.Listen.Address = "127.0.0.1:5432"
	}
	if cfg.Listen.AdminAddress == "" {
		cfg.Listen.AdminAddress = "127.0.0.1:8080"
	}
	if cfg.Auth.Mode == "" {
		cfg.Auth.Mode = AuthModeTrust
	}
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "16.0 (pggateway)"
	}
}

func validate(cfg *Config) error {
	switch cfg.Auth.Mode {
	case "", AuthModeTrust, AuthModePassword, AuthModeMD5, AuthModeScram, AuthModeCert:
	default:
		return fmt.Errorf("unsupported auth.mode %q", cfg.Auth.Mode)
	}

	for name, u := range cfg.Users {
		switch cfg.Auth.Mode {
		case AuthModePassword:
			if u.Password == "" {
				return fmt.Errorf("user %q: password is required for auth mode %q", name, cfg.Auth.Mode)
			}
		case AuthModeMD5:
			if u.PreHashed == "" {
				return fmt.Errorf("user %q: pre_hashed is required for auth mode %q", name, cfg.Auth.Mode)
			}
		case AuthModeScram:
			if u.SaltB64 == "" || u.StoredKeyB64 == "" || u.ServerKeyB64 == "" {
				return fmt.Errorf("user %q: scram_salt/scram_stored_key/scram_server_key are required for auth mode %q", name, cfg.Auth.Mode)
			}
		}
	}
	return nil
}

// Redacted returns a copy of cfg with every user's secret material masked,
// safe to log.
func (c *Config) Redacted() Config {
	redacted := *c
	if len(c.Users) > 0 {
		redacted.Users = make(map[string]UserAuth, len(c.Users))
		for name, u := range c.Users {
			r := u
			if r.Password != "" {
				r.Password = "***REDACTED***"
			}
			if r.PreHashed != "" {
				r.PreHashed = "***REDACTED***"
			}
			if r.StoredKeyB64 != "" {
				r.StoredKeyB64 = "***REDACTED***"
			}
			if r.ServerKeyB64 != "" {
				r.ServerKeyB64 = "***REDACTED***"
			}
			redacted.Users[name] = r
		}
	}
	return redacted
}

// Watcher watches a config file for changes and calls the callback with the
// new config.
type Watcher struct {
	path     string
	callback func(*Config)
	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	stopCh   chan struct{}
}

// NewWatcher creates a new config file watcher.
func NewWatcher(path string, callback func(*Config)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	if err := w.Add(path); err != nil {
		w.Close()
		return nil, fmt.Errorf("watching config file: %w", err)
	}

	cw := &Watcher{
		path:     path,
		callback: callback,
		watcher:  w,
		stopCh:   make(chan struct{}),
	}

	go cw.run()
	return cw, nil
}

func (cw *Watcher) run() {
	var debounce *time.Timer
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, func() {
					cw.reload()
				})
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[config] watcher error: %v", err)
		case <-cw.stopCh:
			return
		}
	}
}

func (cw *Watcher) reload() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cfg, err := Load(cw.path)
	if err != nil {
		log.Printf("[config] hot-reload failed: %v", err)
		return
	}

	log.Printf("[config] configuration reloaded from %s", cw.path)
	cw.callback(cfg)
}

// Stop stops the config watcher.
func (cw *Watcher) Stop() error {
	close(cw.stopCh)
	return cw.watcher.Close()
}
