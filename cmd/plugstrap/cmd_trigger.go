package main

import (
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/vesync-hijack/plugstrap/pkg/upgrade"
)

var (
	triggerGroup    string
	triggerCount    int
	triggerInterval time.Duration
)

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Send multicast upgrade triggers",
	Long: `Sends trigger beacons to plugs waiting for one. Plugs download from the host
the beacon came from, so run this on the image server.`,
	Args: cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		for i := 0; i < triggerCount; i++ {
			if i > 0 {
				time.Sleep(triggerInterval)
			}
			if err := upgrade.SendBeacon(triggerGroup, '1'); err != nil {
				return err
			}
			slog.Debug("Sent beacon", "group", triggerGroup, "n", i+1)
		}
		slog.Info("Done!", "beacons", triggerCount)
		return nil
	},
}
