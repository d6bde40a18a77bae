package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fastybird-io/gotuya/discovery"
)

var discoverDuration time.Duration

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Listen for LAN broadcast announcements from Tuya devices",
	RunE:  runDiscover,
}

func init() {
	discoverCmd.Flags().DurationVar(&discoverDuration, "for", 30*time.Second,
		"how long to listen before exiting")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	log := newLogger()

	sink := make(chan discovery.Announcement, 16)
	listener := discovery.New(log.Base(), sink)
	if err := listener.Start(); err != nil {
		return fmt.Errorf("starting discovery listener: %w", err)
	}
	defer listener.Stop()

	deadline := time.Now().Add(discoverDuration)
	go func() {
		for time.Now().Before(deadline) {
			listener.Tick()
		}
		close(sink)
	}()

	for a := range sink {
		fmt.Printf("%-20s ip=%-15s productKey=%-16s version=%s\n", a.DeviceID, a.IP, a.ProductKey, a.Version)
	}
	return nil
}
