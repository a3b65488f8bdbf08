// Package config provides configuration structures for hubs and the
// transports they run over.
//
// Each structure has a Default constructor, a Merge method that applies the
// non-zero fields of another value, and a Validate method that reports
// configuration errors before anything is constructed.
//
// # Hub Configuration
//
//	cfg := config.DefaultHubConfig()
//	// Name: "default"
//	// Codec: "json"
//	// RequestTimeout: 0 (requests wait until their context ends)
//	// ReadyRetryInterval: 100ms
//	// Observer: "slog"
//	// Logger: slog.Default()
//
// # Peer Configuration
//
// PeerConfig selects and parameterizes a transport:
//
//	peer := config.PeerConfig{
//	    Kind:         "window",
//	    URL:          "ws://localhost:8080/hub",
//	    Origin:       "https://app.example",
//	    TargetOrigin: "https://app.example",
//	}
//
// # Configuration Files
//
// Load reads a File from JSON, TOML or YAML, chosen by extension, and merges
// it over the defaults. Durations are written as strings:
//
//	[hub]
//	name = "worker"
//	request_timeout = "5s"
//
//	[peer]
//	kind = "owned-child"
//	command = "msghub"
//	args = ["worker"]
package config
