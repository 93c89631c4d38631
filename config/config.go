package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
)

// Duration is a time.Duration written as a Go duration string ("5s", "1m30s").
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Config represents the configuration of the registry daemon and of a peer
type Config struct {
	configFile string

	Registry struct {
		ListenAddress  string   `json:"listen"`
		Store          string   `json:"store"` // "map" or "leveldb"
		UseMDNS        bool     `json:"mdns"`
		StatusInterval Duration `json:"status_interval"`
	} `json:"registry"`

	Peer struct {
		RegistryAddress string   `json:"registry"` // host:port, or "mdns" to discover it
		Identity        string   `json:"id"`
		ListenAddress   string   `json:"listen"`
		AdvertiseHost   string   `json:"advertise"`
		Timeout         Duration `json:"timeout"`
	} `json:"peer"`
}

const (
	StoreMap     = "map"
	StoreLevelDB = "leveldb"
)

// NewEmptyConfig generates a new configuration with default settings
func NewEmptyConfig(configFile string) *Config {
	cfg := &Config{}

	cfg.configFile = configFile

	cfg.Registry.ListenAddress = "0.0.0.0:50051"
	cfg.Registry.Store = StoreMap
	cfg.Registry.UseMDNS = false
	cfg.Registry.StatusInterval = Duration(time.Minute)

	cfg.Peer.RegistryAddress = "localhost:50051"
	cfg.Peer.ListenAddress = "127.0.0.1:0"
	cfg.Peer.Timeout = Duration(5 * time.Second)

	return cfg
}

func NewConfigFromFile(configFile string) (*Config, error) {
	cfg := NewEmptyConfig(configFile)
	if err := cfg.Load(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) File() string {
	return c.configFile
}

// Validate checks the values that cannot be caught by JSON decoding
func (c *Config) Validate() error {
	switch c.Registry.Store {
	case StoreMap, StoreLevelDB:
	default:
		return fmt.Errorf("unknown registry store %q", c.Registry.Store)
	}
	if c.Registry.StatusInterval < 0 {
		return fmt.Errorf("negative status interval %v", time.Duration(c.Registry.StatusInterval))
	}
	if c.Peer.Timeout <= 0 {
		return fmt.Errorf("peer timeout must be positive, got %v", time.Duration(c.Peer.Timeout))
	}
	return nil
}

// Save saves the configuration to a file
func (c *Config) Save() error {
	log.Infof("Saving config to %s", c.configFile)

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.configFile, data, 0644)
}

func (c *Config) Load() error {
	log.Infof("Loading config from %s", c.configFile)
	data, err := os.ReadFile(c.configFile)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, c); err != nil {
		return err
	}

	return c.Validate()
}
