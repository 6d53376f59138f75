package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/proxyprobe/internal/model"
)

// TestNewConfig verifies that NewConfig returns the documented defaults.
func TestNewConfig(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()

	t.Run("default Concurrency is 200", func(t *testing.T) {
		t.Parallel()
		if cfg.Concurrency != 200 {
			t.Errorf("expected Concurrency to be 200, got %d", cfg.Concurrency)
		}
	})

	t.Run("default Timeout is 8 seconds", func(t *testing.T) {
		t.Parallel()
		if cfg.Timeout != 8*time.Second {
			t.Errorf("expected Timeout to be 8s, got %v", cfg.Timeout)
		}
	})

	t.Run("default InsecureReachabilityTLS is true", func(t *testing.T) {
		t.Parallel()
		if !cfg.InsecureReachabilityTLS {
			t.Error("expected InsecureReachabilityTLS to be true")
		}
	})

	t.Run("default TorStartupTimeout is 3 minutes", func(t *testing.T) {
		t.Parallel()
		if cfg.TorStartupTimeout != 3*time.Minute {
			t.Errorf("expected TorStartupTimeout to be 3m, got %v", cfg.TorStartupTimeout)
		}
	})

	t.Run("results are saved under the XDG data dir", func(t *testing.T) {
		t.Parallel()
		if !cfg.SaveToDB || cfg.DBDir != XDGDataDir() {
			t.Errorf("expected SaveToDB with DBDir %q, got %v %q", XDGDataDir(), cfg.SaveToDB, cfg.DBDir)
		}
	})
}

// TestConfigValidate tests validation of each field.
func TestConfigValidate(t *testing.T) {
	t.Parallel()

	valid := func() *Config {
		cfg := NewConfig()
		cfg.Candidates = []string{"ss://a:b@h:1"}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"valid config", func(*Config) {}, nil},
		{"input file only", func(c *Config) { c.Candidates = nil; c.InputFiles = []string{"list.txt"} }, nil},
		{"stdin only", func(c *Config) { c.Candidates = nil; c.ReadStdin = true }, nil},
		{"no candidates", func(c *Config) { c.Candidates = nil }, ErrNoCandidates},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, ErrInvalidTimeout},
		{"negative concurrency", func(c *Config) { c.Concurrency = -1 }, ErrInvalidConcurrency},
		{"json and markdown", func(c *Config) { c.JSONReport = true; c.MarkdownReport = true }, ErrConflictingReportFormats},
		{"valid resolver", func(c *Config) { c.Resolver = "1.1.1.1" }, nil},
		{"invalid resolver", func(c *Config) { c.Resolver = ":53" }, ErrInvalidResolver},
		{"valid upstream", func(c *Config) { c.Upstream = "socks5://127.0.0.1:1080" }, nil},
		{"invalid upstream", func(c *Config) { c.Upstream = "127.0.0.1" }, ErrInvalidUpstream},
		{"upstream and tor", func(c *Config) { c.Upstream = "127.0.0.1:1080"; c.UseTor = true }, ErrConflictingUpstream},
		{"tor without startup timeout", func(c *Config) { c.UseTor = true; c.TorStartupTimeout = 0 }, ErrInvalidTimeout},
		{"valid disabled", func(c *Config) { c.Disabled = []string{"vmess", "SS"} }, nil},
		{"unknown disabled", func(c *Config) { c.Disabled = []string{"tuic"} }, ErrInvalidProtocol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()

			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

// TestNormalizeUpstream tests upstream address normalization.
func TestNormalizeUpstream(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"127.0.0.1:9050", "127.0.0.1:9050", false},
		{"socks5://proxy.local:1080", "proxy.local:1080", false},
		{"SOCKS5H://[::1]:1080/", "[::1]:1080", false},
		{"127.0.0.1:0", "", true},
		{"127.0.0.1:99999", "", true},
		{"no-port", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			got, err := NormalizeUpstream(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidUpstream) {
					t.Errorf("expected ErrInvalidUpstream, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, expected %q", got, tt.want)
			}
		})
	}
}

// TestDisabledProtocols tests parsing of disabled tags.
func TestDisabledProtocols(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()
	cfg.Disabled = []string{"VMess", "bogus", "ss://"}
	got := cfg.DisabledProtocols()
	if len(got) != 2 || got[0] != model.ProtocolVMess || got[1] != model.ProtocolShadowsocks {
		t.Errorf("unexpected protocols %v", got)
	}
}

// TestLoadConfigFile tests loading and applying a YAML file.
func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("loads and applies values", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), DefaultConfigFile)
		content := strings.Join([]string{
			"concurrency: 50",
			"timeout: 3s",
			"resolver: 9.9.9.9",
			"upstream: 127.0.0.1:1080",
			"disabled: [vmess]",
			"alive_only: true",
		}, "\n")
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}

		file, err := LoadConfigFile(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		cfg := NewConfig()
		file.Apply(cfg)

		if cfg.Concurrency != 50 || cfg.Timeout != 3*time.Second {
			t.Errorf("got concurrency %d timeout %v", cfg.Concurrency, cfg.Timeout)
		}
		if cfg.Resolver != "9.9.9.9" || cfg.Upstream != "127.0.0.1:1080" {
			t.Errorf("got resolver %q upstream %q", cfg.Resolver, cfg.Upstream)
		}
		if len(cfg.Disabled) != 1 || cfg.Disabled[0] != "vmess" || !cfg.AliveOnly {
			t.Errorf("got disabled %v alive_only %v", cfg.Disabled, cfg.AliveOnly)
		}
	})

	t.Run("bare number timeout is seconds", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), DefaultConfigFile)
		if err := os.WriteFile(path, []byte("timeout: 5\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		file, err := LoadConfigFile(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if time.Duration(file.Timeout) != 5*time.Second {
			t.Errorf("expected 5s, got %v", time.Duration(file.Timeout))
		}
	})

	t.Run("empty file keeps defaults", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), DefaultConfigFile)
		if err := os.WriteFile(path, nil, 0o600); err != nil {
			t.Fatal(err)
		}
		file, err := LoadConfigFile(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		cfg := NewConfig()
		file.Apply(cfg)
		if cfg.Concurrency != DefaultConcurrency || cfg.Timeout != DefaultTimeout {
			t.Errorf("defaults changed: %d %v", cfg.Concurrency, cfg.Timeout)
		}
	})

	t.Run("invalid duration", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), DefaultConfigFile)
		if err := os.WriteFile(path, []byte("timeout: soon\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadConfigFile(path); err == nil {
			t.Error("expected error for invalid duration")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		_, err := LoadConfigFile(filepath.Join(t.TempDir(), "missing"))
		if !errors.Is(err, ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})
}

// TestParseDuration tests the duration forms shared by the config file and --timeout.
func TestParseDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{input: "8", want: 8 * time.Second},
		{input: " 2.5 ", want: 2500 * time.Millisecond},
		{input: "8s", want: 8 * time.Second},
		{input: "1500ms", want: 1500 * time.Millisecond},
		{input: "", want: 0},
		{input: "soon", wantErr: true},
		{input: "NaN", wantErr: true},
		{input: "Inf", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got, err := ParseDuration(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	t.Run("flag value", func(t *testing.T) {
		t.Parallel()

		var d Duration
		if err := d.Set("3"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if d.String() != "3s" || d.Type() != "duration" {
			t.Errorf("String() = %q, Type() = %q", d.String(), d.Type())
		}
		if err := d.Set("later"); err == nil {
			t.Error("expected error for invalid value")
		}
	})
}

// TestFindConfigFile tests explicit path lookup.
func TestFindConfigFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "custom.yaml")
	if err := os.WriteFile(path, []byte("concurrency: 1\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if got := FindConfigFile(path); got != path {
		t.Errorf("expected %q, got %q", path, got)
	}
	if got := FindConfigFile(filepath.Join(t.TempDir(), "missing.yaml")); got != "" {
		t.Errorf("expected empty path for missing file, got %q", got)
	}
}

// TestXDGDirs tests that XDG directories end with the application name.
func TestXDGDirs(t *testing.T) {
	t.Parallel()

	for _, dir := range []string{XDGDataDir(), XDGConfigDir()} {
		if filepath.Base(dir) != AppName {
			t.Errorf("expected %q to end with %q", dir, AppName)
		}
	}
}
