// Command tuyactl is a small CLI over the discovery, session, and client
// packages: discovering devices on the LAN, reading their status, and
// setting datapoints, the way kubectl-volsync's cmd package wraps its own
// library in a cobra command tree.
package main

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/fastybird-io/gotuya/proto"
)

// rosterEntry is one device's connection details, as loaded from the
// roster file: ip, id, localKey, and protocol version. gwId falls back to
// id when a device has no separate gateway, the same default the reference
// client's per-device config mirrors.
type rosterEntry struct {
	ID       string        `mapstructure:"id"`
	GatewayID string       `mapstructure:"gatewayId"`
	IP       string        `mapstructure:"ip"`
	LocalKey string        `mapstructure:"localKey"`
	Version  proto.Version `mapstructure:"version"`
}

// loadRoster reads the YAML device roster at path using viper, the way
// loadRelationship reads a volsync relationship file — SetConfigFile plus
// ReadInConfig rather than assuming a fixed working directory.
func loadRoster(path string) (map[string]rosterEntry, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("loading device roster: %w", err)
	}

	var roster map[string]rosterEntry
	if err := v.UnmarshalKey("devices", &roster); err != nil {
		return nil, fmt.Errorf("parsing device roster: %w", err)
	}

	for name, entry := range roster {
		if entry.GatewayID == "" {
			entry.GatewayID = entry.ID
		}
		if entry.Version == "" {
			entry.Version = proto.V33
		}
		roster[name] = entry
	}

	return roster, nil
}

func lookupDevice(roster map[string]rosterEntry, name string) (rosterEntry, error) {
	entry, ok := roster[name]
	if !ok {
		return rosterEntry{}, fmt.Errorf("device %q not found in roster", name)
	}
	return entry, nil
}
