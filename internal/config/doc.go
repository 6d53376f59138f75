// Package config provides the configuration for proxyprobe runs.
// It defines the probe settings (concurrency, timeout, resolver, upstream
// proxy), input sources, report preferences and the optional .proxyprobe
// YAML file.
package config
