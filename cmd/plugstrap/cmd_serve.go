package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/vesync-hijack/plugstrap/pkg/control"
	"github.com/vesync-hijack/plugstrap/pkg/images"
	"github.com/vesync-hijack/plugstrap/pkg/upgrade"
)

var (
	serveRoot     string
	serveListen   string
	serveBeacon   time.Duration
	serveGroup    string
	serveDevice   string
	serveSSID     string
	servePassword string
	serveServerIP string
	serveDiscover bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve firmware images to plugs",
	Long: `Serves firmware images over HTTP. Files ending in .xz are decompressed on the
fly, so /firmware.bin is answered from firmware.bin or firmware.bin.xz.

With --device, the plug's control channel is first told which network to join
and where this server is. With --discover, every plug announcing itself on UDP
port 18266 is told the same. With --beacon, multicast triggers are sent
periodically while serving.`,
	Args: cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		if serveRoot == "" {
			serveRoot = images.DefaultDir()
		}
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer cancel()

		l, err := net.Listen("tcp", serveListen)
		if err != nil {
			return fmt.Errorf("could not listen: %w", err)
		}
		srv := &http.Server{Handler: images.Handler(serveRoot)}
		go func() {
			<-ctx.Done()
			srv.Close()
		}()
		slog.Info("Serving images", "root", serveRoot, "addr", l.Addr())

		if serveDevice != "" || serveDiscover {
			server := net.ParseIP(serveServerIP)
			if server == nil {
				return fmt.Errorf("--server-ip must be set to this host's address on the plug's network")
			}
			req := control.NewConfigRequest(serveSSID, servePassword, server)
			if serveDevice != "" {
				if err := configurePlug(ctx, serveDevice, req); err != nil {
					return err
				}
			}
			if serveDiscover {
				pc, err := net.ListenPacket("udp4", fmt.Sprintf(":%d", control.AnnouncePort))
				if err != nil {
					return fmt.Errorf("could not listen for announcements: %w", err)
				}
				defer pc.Close()
				slog.Info("Listening for plugs", "addr", pc.LocalAddr())
				go func() {
					err := control.Discover(ctx, pc, control.DefaultHoldoff, func(ip net.IP) {
						device := net.JoinHostPort(ip.String(), fmt.Sprint(control.DefaultPort))
						go func() {
							if err := configurePlug(ctx, device, req); err != nil {
								slog.Warn("Could not configure plug", "device", device, "err", err)
							}
						}()
					})
					if err != nil && err != context.Canceled {
						slog.Warn("Discovery stopped", "err", err)
					}
				}()
			}
		}

		if serveBeacon > 0 {
			go beacon(ctx, serveGroup, serveBeacon)
		}

		if err := srv.Serve(l); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	},
}

func configurePlug(ctx context.Context, device string, req *control.ConfigRequest) error {
	reply, err := control.Configure(ctx, device, req)
	if err != nil {
		return err
	}
	slog.Info("Plug configured", "device", device, "reply", string(reply))
	return nil
}

func beacon(ctx context.Context, group string, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if err := upgrade.SendBeacon(group, '1'); err != nil {
			slog.Warn("Beacon failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
