package config

import (
	"fmt"

	"github.com/tailored-agentic-units/msghub/transport"
)

// PeerConfig selects the transport a hub runs over.
//
// Kind is one of the transport kinds. An owned-child peer is a process
// started from Command and Args. A self-as-child peer talks to its parent
// over the standard streams it is handed. A window peer is a websocket
// endpoint at URL; Origin is the origin this side reports and TargetOrigin
// filters what the other side reports.
type PeerConfig struct {
	Kind          string   `json:"kind,omitempty" toml:"kind" yaml:"kind,omitempty"`
	Command       string   `json:"command,omitempty" toml:"command" yaml:"command,omitempty"`
	Args          []string `json:"args,omitempty" toml:"args" yaml:"args,omitempty"`
	URL           string   `json:"url,omitempty" toml:"url" yaml:"url,omitempty"`
	Origin        string   `json:"origin,omitempty" toml:"origin" yaml:"origin,omitempty"`
	TargetOrigin  string   `json:"target_origin,omitempty" toml:"target_origin" yaml:"target_origin,omitempty"`
	MaxFrameBytes int      `json:"max_frame_bytes,omitempty" toml:"max_frame_bytes" yaml:"max_frame_bytes,omitempty"`
}

func DefaultPeerConfig() PeerConfig {
	return PeerConfig{
		TargetOrigin: transport.AnyOrigin,
	}
}

func (c *PeerConfig) Merge(source *PeerConfig) {
	if source.Kind != "" {
		c.Kind = source.Kind
	}

	if source.Command != "" {
		c.Command = source.Command
	}

	if len(source.Args) > 0 {
		c.Args = source.Args
	}

	if source.URL != "" {
		c.URL = source.URL
	}

	if source.Origin != "" {
		c.Origin = source.Origin
	}

	if source.TargetOrigin != "" {
		c.TargetOrigin = source.TargetOrigin
	}

	if source.MaxFrameBytes > 0 {
		c.MaxFrameBytes = source.MaxFrameBytes
	}
}

func (c *PeerConfig) Validate() error {
	kind, err := transport.ParseKind(c.Kind)
	if err != nil {
		return err
	}

	switch kind {
	case transport.KindOwnedChild:
		if c.Command == "" {
			return fmt.Errorf("%w: owned-child peer needs a command", transport.ErrMissingPeer)
		}
	case transport.KindWindow:
		if c.URL == "" {
			return fmt.Errorf("%w: window peer needs a url", transport.ErrMissingPeer)
		}
	case transport.KindSelf:
	}

	if c.MaxFrameBytes < 0 {
		return fmt.Errorf("%w: negative max frame bytes", ErrInvalidConfig)
	}

	return nil
}
