package main

import (
	"flag"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var rootCmd = &cobra.Command{
	Use:   "plugstrap",
	Short: "plugstrap replaces the firmware on ESP8266 smart plugs over Wi-Fi",
	Long: `Runs the bootstrap upgrade firmware against a simulated plug, and provides
the host side of the upgrade: image server, control channel configuration and
multicast trigger.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		flag.Set("logtostderr", "true")
		if verboseLog {
			flag.Set("v", "2")
		}
	},
}

var verboseLog bool

func main() {
	slog.SetLogLoggerLevel(slog.LevelDebug)

	runCmd.Flags().StringVarP(&runDir, "dir", "d", "", "Directory holding the simulated plug (default: $XDG_DATA_HOME/plugstrap/device)")
	runCmd.Flags().StringVarP(&runStrategy, "strategy", "s", "relocation", "Upgrade strategy (one of 'relocation', 'dual')")
	runCmd.Flags().StringVarP(&runTrigger, "trigger", "t", "direct", "Upgrade trigger (one of 'direct', 'multicast')")
	runCmd.Flags().StringVar(&runMulticast, "group", "", "Multicast group to wait for a trigger on (default: 234.100.100.100:7001)")
	runCmd.Flags().StringVarP(&runControl, "control", "c", ":41234", "Control channel listen address")
	runCmd.Flags().StringVar(&runServer, "server", "", "Skip the control channel and upgrade from this server, as if smart config had yielded it")
	runCmd.Flags().StringVar(&runSSID, "ssid", "", "Network name yielded by smart config (with --server)")
	runCmd.Flags().StringVar(&runPassword, "password", "", "Network password yielded by smart config (with --server)")
	runCmd.Flags().IntVar(&runHTTPPort, "http-port", 0, "Image server port (default: 17273)")
	runCmd.Flags().BoolVar(&runInstallBootloader, "install-bootloader", false, "Replace the bootloader sector with the first sector of the downloaded image")
	runCmd.Flags().StringVar(&runFlashSize, "flash-size", "0x400000", "Size of the simulated flash")
	runCmd.Flags().StringVar(&runRunning, "running", "", "Flash offset the simulated plug runs from (dual partition)")

	serveCmd.Flags().StringVarP(&serveRoot, "root", "r", "", "Directory to serve images from (default: $XDG_DATA_HOME/plugstrap/images)")
	serveCmd.Flags().StringVarP(&serveListen, "listen", "l", ":17273", "Address to listen on")
	serveCmd.Flags().DurationVar(&serveBeacon, "beacon", 0, "Send a multicast trigger at this interval (0 to disable)")
	serveCmd.Flags().StringVar(&serveGroup, "group", "234.100.100.100:7001", "Multicast group for trigger beacons")
	serveCmd.Flags().StringVar(&serveDevice, "device", "", "Configure this plug's control channel before serving")
	serveCmd.Flags().StringVar(&serveSSID, "ssid", "", "Network name sent to --device or discovered plugs")
	serveCmd.Flags().StringVar(&servePassword, "password", "", "Network password sent to --device or discovered plugs")
	serveCmd.Flags().StringVar(&serveServerIP, "server-ip", "", "Server address sent to --device")
	serveCmd.Flags().BoolVar(&serveDiscover, "discover", false, "Configure every plug that announces itself on UDP port 18266")

	configureCmd.Flags().StringVar(&configureSSID, "ssid", "", "Network name to join")
	configureCmd.Flags().StringVar(&configurePassword, "password", "", "Network password")
	configureCmd.Flags().DurationVar(&configureTimeout, "timeout", 30*time.Second, "How long to wait for a reply")

	triggerCmd.Flags().StringVar(&triggerGroup, "group", "234.100.100.100:7001", "Multicast group to send the trigger to")
	triggerCmd.Flags().IntVarP(&triggerCount, "count", "n", 1, "Number of beacons to send")
	triggerCmd.Flags().DurationVar(&triggerInterval, "interval", time.Second, "Delay between beacons")

	recordCmd.Flags().StringVarP(&recordDir, "dir", "d", "", "Directory holding the simulated plug (default: $XDG_DATA_HOME/plugstrap/device)")

	dumpCmd.Flags().StringVarP(&dumpDir, "dir", "d", "", "Directory holding the simulated plug (default: $XDG_DATA_HOME/plugstrap/device)")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().BoolVarP(&verboseLog, "verbose", "v", false, "Enable verbose debug logging")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configureCmd)
	rootCmd.AddCommand(triggerCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.Execute()
}

func init() {
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
}

func parseNumber(s string) (uint32, error) {
	var err error
	var res uint64
	if strings.HasPrefix(strings.ToLower(s), "0x") {
		res, err = strconv.ParseUint(s[2:], 16, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid number")
		}
	} else {
		res, err = strconv.ParseUint(s, 10, 32)
		if err != nil {
			res, err = strconv.ParseUint(s, 16, 32)
			if err != nil {
				return 0, fmt.Errorf("invalid number")
			}
		}
	}
	return uint32(res), nil
}
