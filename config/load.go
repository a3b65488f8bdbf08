package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// File is the on-disk shape of a configuration file.
type File struct {
	Hub  HubConfig
	Peer PeerConfig
}

type hubFile struct {
	Name               string `json:"name,omitempty" toml:"name" yaml:"name,omitempty"`
	Codec              string `json:"codec,omitempty" toml:"codec" yaml:"codec,omitempty"`
	RequestTimeout     string `json:"request_timeout,omitempty" toml:"request_timeout" yaml:"request_timeout,omitempty"`
	ReadyRetryInterval string `json:"ready_retry_interval,omitempty" toml:"ready_retry_interval" yaml:"ready_retry_interval,omitempty"`
	Observer           string `json:"observer,omitempty" toml:"observer" yaml:"observer,omitempty"`
}

type rawFile struct {
	Hub  hubFile    `json:"hub" toml:"hub" yaml:"hub"`
	Peer PeerConfig `json:"peer" toml:"peer" yaml:"peer"`
}

// DefaultFile returns a File holding the hub and peer defaults.
func DefaultFile() File {
	return File{
		Hub:  DefaultHubConfig(),
		Peer: DefaultPeerConfig(),
	}
}

// Load reads a .json, .toml, .yaml or .yml file, merges it over the
// defaults and validates the hub section. The peer section is validated by
// whatever opens the peer, since a hub may be given its transport directly.
func Load(filename string) (*File, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var raw rawFile
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".json":
		err = json.Unmarshal(data, &raw)
	case ".toml":
		err = toml.Unmarshal(data, &raw)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	loaded, err := raw.Hub.config()
	if err != nil {
		return nil, err
	}

	cfg := DefaultFile()
	cfg.Hub.Merge(&loaded)
	cfg.Peer.Merge(&raw.Peer)

	if err := cfg.Hub.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (h hubFile) config() (HubConfig, error) {
	cfg := HubConfig{
		Name:     h.Name,
		Codec:    h.Codec,
		Observer: h.Observer,
	}

	var err error
	if cfg.RequestTimeout, err = parseDuration("request_timeout", h.RequestTimeout); err != nil {
		return cfg, err
	}
	if cfg.ReadyRetryInterval, err = parseDuration("ready_retry_interval", h.ReadyRetryInterval); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func parseDuration(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, field, err)
	}
	return d, nil
}
