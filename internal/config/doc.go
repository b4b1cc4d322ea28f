// Package config provides user configuration management for WiTransfer.
//
// Settings are stored as YAML in a platform-appropriate location:
//   - Linux: $XDG_CONFIG_HOME/witransfer/config.yaml or $HOME/.config/witransfer/config.yaml
//   - macOS: $HOME/.config/witransfer/config.yaml
//   - Windows: %LOCALAPPDATA%\witransfer\config.yaml
//
// A missing file is not an error; Load returns the defaults. Values are
// layered as defaults, then the file, then command-line flags applied by
// the caller.
//
// # Example File
//
//	version: 1
//	discovery:
//	  port: 54321
//	  broadcast: [auto]
//	  interval: 2s
//	  read_timeout: 50s
//	  queue_size: 64
//	  peer_ttl: 30s
//	  reuse_addr: false
//	  mdns: true
//	identity:
//	  display_name: Bob
//	feed:
//	  listen: 127.0.0.1:8080
//	ui:
//	  mode: tui
//	log_level: info
//
// # Usage Example
//
//	settings, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	cfg, err := settings.DiscoveryConfig()
//
// Save performs an atomic write (temporary file, then rename) guarded by a
// package mutex.
package config
