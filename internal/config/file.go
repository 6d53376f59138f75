package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// File represents the structure of the .proxyprobe configuration file.
//
//	concurrency: 300
//	timeout: 5s        # or a bare number of seconds
//	resolver: 1.1.1.1
//	upstream: 127.0.0.1:1080
//	disabled: [vmess]
//	alive_only: true
type File struct {
	// Concurrency overrides DefaultConcurrency when positive.
	Concurrency int `yaml:"concurrency,omitempty"`

	// Timeout overrides DefaultTimeout when positive.
	Timeout Duration `yaml:"timeout,omitempty"`

	// Resolver is a DNS server address.
	Resolver string `yaml:"resolver,omitempty"`

	// Upstream is a SOCKS5 proxy address.
	Upstream string `yaml:"upstream,omitempty"`

	// Disabled lists protocol tags that are not probed.
	Disabled []string `yaml:"disabled,omitempty"`

	// AliveOnly omits dead results from reports.
	AliveOnly bool `yaml:"alive_only,omitempty"`
}

// Duration is a time.Duration that also accepts a bare number of seconds,
// matching the integer-seconds timeout of older configurations.
type Duration time.Duration

// ParseDuration parses a Go duration ("8s", "1500ms") or a bare number of
// seconds ("8", "2.5"). An empty string is zero.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(secs) || math.IsInf(secs, 0) {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return parsed, nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := ParseDuration(value.Value)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// String implements pflag.Value.
func (d *Duration) String() string {
	return time.Duration(*d).String()
}

// Set implements pflag.Value so the same forms work on the command line.
func (d *Duration) Set(s string) error {
	parsed, err := ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Type implements pflag.Value.
func (d *Duration) Type() string {
	return "duration"
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Apply copies every value set in the file onto cfg.
// CLI flags are applied afterwards and win over file values.
func (f *File) Apply(cfg *Config) {
	if f.Concurrency > 0 {
		cfg.Concurrency = f.Concurrency
	}
	if f.Timeout > 0 {
		cfg.Timeout = time.Duration(f.Timeout)
	}
	if f.Resolver != "" {
		cfg.Resolver = f.Resolver
	}
	if f.Upstream != "" {
		cfg.Upstream = f.Upstream
	}
	if len(f.Disabled) > 0 {
		cfg.Disabled = append([]string(nil), f.Disabled...)
	}
	if f.AliveOnly {
		cfg.AliveOnly = true
	}
}
