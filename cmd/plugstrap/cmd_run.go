package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/vesync-hijack/plugstrap/pkg/blink"
	"github.com/vesync-hijack/plugstrap/pkg/connect"
	"github.com/vesync-hijack/plugstrap/pkg/control"
	"github.com/vesync-hijack/plugstrap/pkg/devsim"
	"github.com/vesync-hijack/plugstrap/pkg/upgrade"
)

var (
	runDir               string
	runStrategy          string
	runTrigger           string
	runMulticast         string
	runControl           string
	runServer            string
	runSSID              string
	runPassword          string
	runHTTPPort          int
	runInstallBootloader bool
	runFlashSize         string
	runRunning           string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bootstrap firmware on a simulated plug",
	Long: `Runs the upgrade task against a plug simulated in a directory: flash.bin holds
the flash contents, rtc.bin the handoff record for the bootloader and
params.plist the SDK system parameters. Returns once the plug reboots.`,
	Args: cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := upgrade.DefaultConfig()
		var err error
		if cfg.Strategy, err = upgrade.ParseStrategy(runStrategy); err != nil {
			return err
		}
		if cfg.Trigger, err = upgrade.ParseTriggerKind(runTrigger); err != nil {
			return err
		}
		if runMulticast != "" {
			cfg.MulticastGroup = runMulticast
		}
		if runHTTPPort != 0 {
			cfg.HTTPPort = runHTTPPort
		}
		cfg.InstallBootloader = runInstallBootloader

		flashSize, err := parseNumber(runFlashSize)
		if err != nil {
			return fmt.Errorf("invalid flash size")
		}
		if runDir == "" {
			runDir = devsim.DefaultDir()
		}
		dev, err := devsim.Open(runDir, flashSize)
		if err != nil {
			return err
		}
		defer dev.Close()
		if runRunning != "" {
			running, err := parseNumber(runRunning)
			if err != nil {
				return fmt.Errorf("invalid running offset")
			}
			if err := dev.SetRunningOffset(running); err != nil {
				return err
			}
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer cancel()
		dev.OnReboot = cancel

		task := connect.NewTask(&devsim.Station{JoinAfter: 2})
		var prov upgrade.Provisioner
		if runServer != "" {
			server := net.ParseIP(runServer)
			if server == nil {
				return fmt.Errorf("invalid server address %q", runServer)
			}
			prov = &devsim.SmartConfig{
				Target: connect.Target{SSID: runSSID, Password: runPassword, Server: server},
				Task:   task,
			}
		} else {
			p := control.NewProvisioner(runControl, task)
			defer p.Close()
			prov = p
		}

		go blink.New(devsim.LogPin(blink.DefaultPin)).Run(ctx)

		var bar *progressbar.ProgressBar
		o := upgrade.New(cfg, upgrade.Hardware{Flash: dev.Flash, RTC: dev.RTC, System: dev}, prov,
			upgrade.WithStateHook(func(s upgrade.State) {
				if s != upgrade.StateDownloading {
					return
				}
				bar = nil
			}),
			upgrade.WithProgress(func(done, total int) {
				if bar == nil {
					bar = progressbar.DefaultBytes(int64(total), "Flashing")
				}
				bar.Set(done)
			}),
		)

		slog.Info("Plug running", "dir", runDir, "strategy", cfg.Strategy, "trigger", cfg.Trigger)
		if err := o.Run(ctx); err != nil && err != context.Canceled {
			return err
		}
		p, err := dev.Params()
		if err != nil {
			return err
		}
		slog.Info("Done!", "state", o.State(), "boots", p.Boots, "upgradeFlag", upgrade.UpgradeFlag(p.UpgradeFlag))
		return nil
	},
}
