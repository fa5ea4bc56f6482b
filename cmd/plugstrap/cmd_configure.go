package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/vesync-hijack/plugstrap/pkg/control"
)

var (
	configureSSID     string
	configurePassword string
	configureTimeout  time.Duration
)

var configureCmd = &cobra.Command{
	Use:   "configure [device] [server-ip]",
	Short: "Tell a plug which network to join and which server to upgrade from",
	Long: `Sends a configuration request to the plug's control channel. device is the
plug's control address (host:port, port 41234 if omitted) and server-ip is the
address of the image server on the target network.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		device := args[0]
		if _, _, err := net.SplitHostPort(device); err != nil {
			device = net.JoinHostPort(device, fmt.Sprint(control.DefaultPort))
		}
		server := net.ParseIP(args[1])
		if server == nil {
			return fmt.Errorf("invalid server address %q", args[1])
		}
		if configureSSID == "" {
			return fmt.Errorf("--ssid must be set")
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), configureTimeout)
		defer cancel()
		reply, err := control.Configure(ctx, device, control.NewConfigRequest(configureSSID, configurePassword, server))
		if err != nil {
			return err
		}
		slog.Info("Done!", "device", device, "reply", string(reply))
		return nil
	},
}
