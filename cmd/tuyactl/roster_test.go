package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fastybird-io/gotuya/proto"
)

func TestLoadRosterFillsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "devices.yaml")
	contents := `
devices:
  bedroom-plug:
    id: "402675772462ab280dff"
    ip: "192.168.1.50"
    localKey: "712aadb9520c1dc2"
  kitchen-switch:
    id: "abc123"
    gatewayId: "gw1"
    ip: "192.168.1.51"
    localKey: "0123456789abcdef"
    version: "3.1"
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	roster, err := loadRoster(path)
	if err != nil {
		t.Fatalf("loadRoster: %v", err)
	}

	plug, err := lookupDevice(roster, "bedroom-plug")
	if err != nil {
		t.Fatalf("lookupDevice: %v", err)
	}
	if plug.GatewayID != plug.ID {
		t.Errorf("GatewayID = %q, want it default to ID %q", plug.GatewayID, plug.ID)
	}
	if plug.Version != proto.V33 {
		t.Errorf("Version = %q, want default %q", plug.Version, proto.V33)
	}

	sw, err := lookupDevice(roster, "kitchen-switch")
	if err != nil {
		t.Fatalf("lookupDevice: %v", err)
	}
	if sw.GatewayID != "gw1" {
		t.Errorf("GatewayID = %q, want explicit %q preserved", sw.GatewayID, "gw1")
	}
	if sw.Version != proto.V31 {
		t.Errorf("Version = %q, want explicit %q preserved", sw.Version, proto.V31)
	}
}

func TestLookupDeviceMissing(t *testing.T) {
	if _, err := lookupDevice(map[string]rosterEntry{}, "nope"); err == nil {
		t.Fatal("lookupDevice() = nil error for an unknown device, want an error")
	}
}
