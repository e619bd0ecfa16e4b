// control/config.go
// Author: momentics <momentics@gmail.com>
//
// YAML configuration and a thread-safe store with reload propagation.

package control

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the deployment configuration consumed by hioload-net binaries.
type Config struct {
	Listen  ListenConfig  `yaml:"listen"`
	Socket  SocketConfig  `yaml:"socket"`
	Reactor ReactorConfig `yaml:"reactor"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ListenConfig selects the listening endpoint.
type ListenConfig struct {
	Family string `yaml:"family"` // ipv4, ipv6, unix
	Host   string `yaml:"host"`   // host name, address, or socket path for unix
	Port   string `yaml:"port"`
}

// SocketConfig carries the implicit socket policy.
type SocketConfig struct {
	SendBuffer int  `yaml:"send_buffer"`
	RecvBuffer int  `yaml:"recv_buffer"`
	NoDelay    bool `yaml:"no_delay"`
	Backlog    int  `yaml:"backlog"`
}

// ReactorConfig sizes the multiplexer.
type ReactorConfig struct {
	InitialCapacity int           `yaml:"initial_capacity"`
	MaxCapacity     int           `yaml:"max_capacity"`
	WaitTimeout     time.Duration `yaml:"wait_timeout"`
	CPU             int           `yaml:"cpu"` // pin the loop thread; -1 leaves it unpinned
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
	Output string `yaml:"output"` // stdout, stderr, file path
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// DefaultConfig returns the configuration used when a field is absent.
func DefaultConfig() *Config {
	return &Config{
		Listen: ListenConfig{Family: "ipv4", Host: "127.0.0.1", Port: "9002"},
		Socket: SocketConfig{
			SendBuffer: 256 << 10,
			RecvBuffer: 256 << 10,
			NoDelay:    true,
		},
		Reactor: ReactorConfig{
			InitialCapacity: 64,
			WaitTimeout:     time.Second,
			CPU:             -1,
		},
		Log:     LogConfig{Level: "info", Format: "console", Output: "stdout"},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9102"},
	}
}

// LoadConfig reads a YAML file over DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML bytes over DefaultConfig and validates the result.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values no component can honor.
func (c *Config) Validate() error {
	switch c.Listen.Family {
	case "ipv4", "ipv6", "unix":
	default:
		return fmt.Errorf("config: listen.family %q is not one of ipv4, ipv6, unix", c.Listen.Family)
	}
	if c.Socket.SendBuffer < 0 || c.Socket.RecvBuffer < 0 || c.Socket.Backlog < 0 {
		return fmt.Errorf("config: socket sizes must not be negative")
	}
	if c.Reactor.InitialCapacity < 0 || c.Reactor.MaxCapacity < 0 {
		return fmt.Errorf("config: reactor capacities must not be negative")
	}
	if c.Reactor.CPU < -1 {
		return fmt.Errorf("config: reactor.cpu %d must be -1 or a CPU index", c.Reactor.CPU)
	}
	if c.Reactor.MaxCapacity > 0 && c.Reactor.InitialCapacity > c.Reactor.MaxCapacity {
		return fmt.Errorf("config: reactor.initial_capacity %d exceeds max_capacity %d",
			c.Reactor.InitialCapacity, c.Reactor.MaxCapacity)
	}
	return nil
}

// ConfigStore holds the active configuration and notifies listeners on change.
type ConfigStore struct {
	mu        sync.RWMutex
	config    *Config
	listeners []func(*Config)
}

// NewConfigStore initializes a store with cfg, or DefaultConfig when nil.
func NewConfigStore(cfg *Config) *ConfigStore {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &ConfigStore{config: cfg}
}

// Get returns a copy of the current configuration.
func (cs *ConfigStore) Get() Config {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return *cs.config
}

// Set replaces the configuration and synchronously runs reload listeners.
func (cs *ConfigStore) Set(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	cs.mu.Lock()
	cs.config = cfg
	listeners := append([]func(*Config){}, cs.listeners...)
	cs.mu.Unlock()

	for _, fn := range listeners {
		fn(cfg)
	}
	return nil
}

// Reload re-reads path and applies it with Set.
func (cs *ConfigStore) Reload(path string) error {
	cfg, err := LoadConfig(path)
	if err != nil {
		return err
	}
	return cs.Set(cfg)
}

// OnReload registers a listener hook called on config changes.
func (cs *ConfigStore) OnReload(fn func(*Config)) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.listeners = append(cs.listeners, fn)
}
