package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fastybird-io/gotuya/client"
)

var statusCmd = &cobra.Command{
	Use:   "status <device>",
	Short: "Read a device's current datapoints",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	roster, err := loadRoster(rosterPath)
	if err != nil {
		return err
	}
	entry, err := lookupDevice(roster, args[0])
	if err != nil {
		return err
	}
	entry = applyVersionOverride(cmd.Flags(), entry)

	log := newLogger()
	d := client.New(entry.IP, entry.ID, entry.GatewayID, entry.LocalKey, entry.Version, log.Base(), nil)
	d.Start()

	states, err := d.ReadStates()
	if err != nil {
		return fmt.Errorf("reading device states: %w", err)
	}

	for dp, value := range states {
		fmt.Printf("%s = %v\n", dp, value)
	}
	return nil
}
