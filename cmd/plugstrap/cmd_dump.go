package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/vesync-hijack/plugstrap/pkg/devsim"
	"github.com/vesync-hijack/plugstrap/pkg/flash"
)

var dumpDir string

var dumpCmd = &cobra.Command{
	Use:   "dump [offset] [size] [file]",
	Short: "Dump simulated flash to file",
	Long:  "Read simulated plug flash from a given offset, saving to a file. Offset and size must be sector (4096 byte) aligned.",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		offset, err := parseNumber(args[0])
		if err != nil {
			return fmt.Errorf("invalid offset")
		}
		size, err := parseNumber(args[1])
		if err != nil {
			return fmt.Errorf("invalid size")
		}
		if offset%flash.SectorSize != 0 || size%flash.SectorSize != 0 {
			return fmt.Errorf("offset and size must be %d byte aligned", flash.SectorSize)
		}

		if dumpDir == "" {
			dumpDir = devsim.DefaultDir()
		}
		path := filepath.Join(dumpDir, "flash.bin")
		st, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("no simulated plug in %s: %w", dumpDir, err)
		}
		dev, err := flash.OpenFile(path, uint32(st.Size()))
		if err != nil {
			return err
		}
		defer dev.Close()

		f, err := os.Create(args[2])
		if err != nil {
			return fmt.Errorf("could not open file for writing: %w", err)
		}
		defer f.Close()

		start := time.Now()
		buf := make([]byte, flash.SectorSize)
		for i := uint32(0); i < size; i += flash.SectorSize {
			if err := dev.Read(offset+i, buf); err != nil {
				return fmt.Errorf("could not read sector at 0x%x: %w", offset+i, err)
			}
			if _, err := f.Write(buf); err != nil {
				return fmt.Errorf("could not write to file: %w", err)
			}
		}
		elapsed := time.Since(start)
		slog.Info("Done!", "bytes", size, "seconds", elapsed.Seconds(), "bps", float64(size)/elapsed.Seconds())
		return nil
	},
}
