package model

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RegistryConfig is the serialized form of a registry, embedded in the
// application config under "models".
type RegistryConfig struct {
	Capabilities map[string]*CapabilityConfig `json:"capabilities" yaml:"capabilities"`
	Endpoints    map[string]*EndpointConfig   `json:"endpoints" yaml:"endpoints"`
	Defaults     *DefaultsConfig              `json:"defaults,omitempty" yaml:"defaults,omitempty"`
}

// LoadFromFile loads a registry from a YAML file.
func LoadFromFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var cfg RegistryConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse registry config: %w", err)
	}
	return FromConfig(&cfg), nil
}

// FromConfig builds a registry from configuration. A nil or empty config
// yields the default registry.
func FromConfig(cfg *RegistryConfig) *Registry {
	r := NewDefaultRegistry()
	if cfg != nil {
		r.MergeFromConfig(cfg)
	}
	return r
}

// ToConfig converts the registry back to its serialized form.
func (r *Registry) ToConfig() *RegistryConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	caps := make(map[string]*CapabilityConfig, len(r.capabilities))
	for k, v := range r.capabilities {
		caps[string(k)] = v
	}
	endpoints := make(map[string]*EndpointConfig, len(r.endpoints))
	for k, v := range r.endpoints {
		endpoints[k] = v
	}
	return &RegistryConfig{
		Capabilities: caps,
		Endpoints:    endpoints,
		Defaults:     r.defaults,
	}
}

// MergeFromConfig overlays cfg onto the registry. Unknown capability names
// are kept as-is.
func (r *Registry) MergeFromConfig(cfg *RegistryConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for k, v := range cfg.Capabilities {
		c := ParseCapability(k)
		if c == "" {
			c = Capability(k)
		}
		r.capabilities[c] = v
	}
	for k, v := range cfg.Endpoints {
		r.endpoints[k] = v
	}
	if cfg.Defaults != nil && cfg.Defaults.Model != "" {
		r.defaults = cfg.Defaults
	}
}
