package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fastybird-io/gotuya/client"
)

var setCmd = &cobra.Command{
	Use:   "set <device> <dp>=<value>...",
	Short: "Write one or more datapoints on a device",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runSet,
}

func runSet(cmd *cobra.Command, args []string) error {
	roster, err := loadRoster(rosterPath)
	if err != nil {
		return err
	}
	entry, err := lookupDevice(roster, args[0])
	if err != nil {
		return err
	}
	entry = applyVersionOverride(cmd.Flags(), entry)

	dps, err := parseAssignments(args[1:])
	if err != nil {
		return err
	}

	log := newLogger()
	d := client.New(entry.IP, entry.ID, entry.GatewayID, entry.LocalKey, entry.Version, log.Base(), nil)
	d.Start()

	ok, err := d.WriteStates(dps)
	if err != nil {
		return fmt.Errorf("writing device states: %w", err)
	}
	if !ok {
		return fmt.Errorf("device did not acknowledge the write")
	}
	return nil
}

// parseAssignments turns "1=true" / "2=42" / "3=hello" command-line
// arguments into a dps map, guessing bool and number types the way a
// human typing at a shell would expect rather than requiring everything
// to be quoted JSON.
func parseAssignments(args []string) (map[string]any, error) {
	dps := make(map[string]any, len(args))
	for _, arg := range args {
		idx, value, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("invalid assignment %q, want dp=value", arg)
		}
		dps[idx] = parseValue(value)
	}
	return dps, nil
}

func parseValue(value string) any {
	if value == "true" {
		return true
	}
	if value == "false" {
		return false
	}
	if n, err := strconv.ParseFloat(value, 64); err == nil {
		return n
	}
	return value
}
