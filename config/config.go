// Package config loads the coordinator's YAML configuration file: the ring
// size, listener ports, admin authentication, optional TLS, the bootstrap
// node list, and optional Kubernetes-based discovery.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AuthConfig configures the admin JWT issuer (auth.NewAuthService).
type AuthConfig struct {
	Enabled       bool     `yaml:"enabled"`
	PrivateKey    string   `yaml:"private_key"`
	PublicKey     string   `yaml:"public_key"`
	TokenDuration int      `yaml:"token_duration"` // seconds
	DefaultRoles  []string `yaml:"default_roles"`
}

// TLSConfig configures the HTTP listener's TLS certificate.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// NodeSpec names one backing cache server to join at startup.
type NodeSpec struct {
	Name string `yaml:"name"`
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DiscoveryConfig enables automatic membership driven by a Kubernetes
// EndpointSlice instead of (or in addition to) the static Nodes list.
type DiscoveryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Namespace   string `yaml:"namespace"`
	ServiceName string `yaml:"service_name"`
	// CachePort is the port backing-cache pods listen on; discovered pod IPs
	// are paired with this port when calling Ring.AddNode.
	CachePort int `yaml:"cache_port"`
}

// Config is the coordinator's top-level configuration.
type Config struct {
	RingSize       int             `yaml:"ring_size"`
	HTTPPort       int             `yaml:"http_port"`
	PrometheusPort int             `yaml:"prometheus_port"`
	Nodes          []NodeSpec      `yaml:"nodes"`
	Auth           AuthConfig      `yaml:"auth"`
	TLS            TLSConfig       `yaml:"tls"`
	Discovery      DiscoveryConfig `yaml:"discovery"`
}

// LoadConfig reads and parses a YAML configuration file.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", filename, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", filename, err)
	}

	if cfg.RingSize <= 0 {
		return nil, fmt.Errorf("config %s: ring_size must be positive, got %d", filename, cfg.RingSize)
	}

	return &cfg, nil
}
