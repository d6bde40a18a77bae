package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var rosterCmd = &cobra.Command{
	Use:   "roster",
	Short: "Inspect the device roster",
}

var rosterListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the device roster, with local keys redacted",
	RunE:  runRosterList,
}

func init() {
	rosterCmd.AddCommand(rosterListCmd)
}

// redactedEntry is rosterEntry without LocalKey, marshaled back to YAML for
// display — a roster dump is a debugging aid, not a place to echo secrets
// the user would otherwise have to scroll a terminal to re-hide.
type redactedEntry struct {
	ID        string `yaml:"id"`
	GatewayID string `yaml:"gatewayId"`
	IP        string `yaml:"ip"`
	Version   string `yaml:"version"`
}

func runRosterList(cmd *cobra.Command, args []string) error {
	roster, err := loadRoster(rosterPath)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(roster))
	for name := range roster {
		names = append(names, name)
	}
	sort.Strings(names)

	redacted := make(map[string]redactedEntry, len(roster))
	for _, name := range names {
		entry := roster[name]
		redacted[name] = redactedEntry{
			ID:        entry.ID,
			GatewayID: entry.GatewayID,
			IP:        entry.IP,
			Version:   string(entry.Version),
		}
	}

	out, err := yaml.Marshal(map[string]map[string]redactedEntry{"devices": redacted})
	if err != nil {
		return fmt.Errorf("rendering roster: %w", err)
	}

	fmt.Print(string(out))
	return nil
}
