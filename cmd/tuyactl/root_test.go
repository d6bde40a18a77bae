package main

import (
	"testing"

	"github.com/fastybird-io/gotuya/proto"
)

func TestVersionOverrideSetRejectsUnknownDialect(t *testing.T) {
	var v versionOverride
	if err := v.Set("3.1"); err != nil {
		t.Fatalf("Set(3.1): %v", err)
	}
	if v.value != proto.V31 {
		t.Errorf("value = %q, want %q", v.value, proto.V31)
	}

	if err := v.Set("4.0"); err == nil {
		t.Fatal("Set(4.0) = nil error, want one for an unknown protocol version")
	}
}

func TestApplyVersionOverrideOnlyWhenFlagChanged(t *testing.T) {
	entry := rosterEntry{Version: proto.V33}

	t.Cleanup(resetVersionFlag(t))

	if got := applyVersionOverride(rootCmd.PersistentFlags(), entry); got.Version != proto.V33 {
		t.Errorf("Version = %q, want untouched %q when --version was not set", got.Version, proto.V33)
	}

	if err := rootCmd.PersistentFlags().Set("version", "3.1"); err != nil {
		t.Fatalf("PersistentFlags().Set(version): %v", err)
	}
	if got := applyVersionOverride(rootCmd.PersistentFlags(), entry); got.Version != proto.V31 {
		t.Errorf("Version = %q, want overridden to %q", got.Version, proto.V31)
	}
}

// resetVersionFlag restores rootCmd's --version flag to its unset state,
// since rootCmd is a process-wide cobra command shared across this
// package's tests.
func resetVersionFlag(t *testing.T) func() {
	t.Helper()
	return func() {
		versionFlag = versionOverride{}
		f := rootCmd.PersistentFlags().Lookup("version")
		f.Changed = false
		f.Value.(*versionOverride).value = ""
	}
}
