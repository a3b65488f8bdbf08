package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/tailored-agentic-units/msghub/messaging"
)

const (
	DefaultHubName            = "default"
	DefaultCodec              = messaging.CodecJSON
	DefaultObserver           = "slog"
	DefaultReadyRetryInterval = 100 * time.Millisecond
)

// HubConfig defines configuration for a Hub instance.
type HubConfig struct {
	// Hub identity
	Name string

	// Wire settings
	Codec string

	// Request settings. A zero RequestTimeout leaves requests bounded only by
	// the caller's context.
	RequestTimeout     time.Duration
	ReadyRetryInterval time.Duration

	// Observability
	Observer string
	Logger   *slog.Logger
}

// DefaultHubConfig returns a HubConfig with sensible defaults.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		Name:               DefaultHubName,
		Codec:              DefaultCodec,
		ReadyRetryInterval: DefaultReadyRetryInterval,
		Observer:           DefaultObserver,
		Logger:             slog.Default(),
	}
}

func (c *HubConfig) Merge(source *HubConfig) {
	if source.Name != "" {
		c.Name = source.Name
	}

	if source.Codec != "" {
		c.Codec = source.Codec
	}

	if source.RequestTimeout > 0 {
		c.RequestTimeout = source.RequestTimeout
	}

	if source.ReadyRetryInterval > 0 {
		c.ReadyRetryInterval = source.ReadyRetryInterval
	}

	if source.Observer != "" {
		c.Observer = source.Observer
	}

	if source.Logger != nil {
		c.Logger = source.Logger
	}
}

func (c *HubConfig) Validate() error {
	if _, err := messaging.CodecByName(c.Codec); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if c.RequestTimeout < 0 {
		return fmt.Errorf("%w: negative request timeout", ErrInvalidConfig)
	}

	if c.ReadyRetryInterval <= 0 {
		return fmt.Errorf("%w: ready retry interval must be positive", ErrInvalidConfig)
	}

	return nil
}
