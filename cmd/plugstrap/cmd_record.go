package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vesync-hijack/plugstrap/pkg/devsim"
	"github.com/vesync-hijack/plugstrap/pkg/eboot"
)

var recordDir string

var recordCmd = &cobra.Command{
	Use:   "record [file]",
	Short: "Decode a bootloader handoff record",
	Long: `Decodes and verifies the command record left in RTC memory for the bootloader.
Reads file if given, otherwise the simulated plug's rtc.bin.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var rec *eboot.Record
		var err error
		if len(args) == 1 {
			var data []byte
			data, err = os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("could not read record: %w", err)
			}
			rec, err = eboot.Parse(data)
		} else {
			if recordDir == "" {
				recordDir = devsim.DefaultDir()
			}
			rec, err = (&eboot.File{Path: filepath.Join(recordDir, "rtc.bin")}).Load()
		}
		if err != nil {
			return err
		}
		fmt.Println(rec)
		return nil
	},
}
