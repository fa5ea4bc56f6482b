package upgrade

import (
	"context"
	"fmt"
	"net"

	"github.com/golang/glog"

	"github.com/vesync-hijack/plugstrap/pkg/eboot"
	"github.com/vesync-hijack/plugstrap/pkg/flash"
)

// Relocate stages the image at Config.Staging and leaves a COPY_RAW command
// for eboot to move it to Config.ActiveOffset on the next boot. The running
// image is not touched.
func (o *Orchestrator) Relocate(ctx context.Context, server net.IP) error {
	size, err := o.fetch(ctx, server, o.cfg.Staging.Path, o.cfg.Staging)
	if err != nil {
		return err
	}

	o.setState(StateFinalizing)
	cmd, err := eboot.New(eboot.ActionCopyRaw, o.cfg.Staging.Offset, o.cfg.ActiveOffset, size)
	if err != nil {
		return stage(StateFinalizing, err)
	}
	if err := cmd.Persist(o.hw.RTC); err != nil {
		return stage(StateFinalizing, err)
	}
	if o.cfg.InstallBootloader {
		if err := o.installBootloader(); err != nil {
			return stage(StateFinalizing, err)
		}
	}
	return o.reboot()
}

// installBootloader copies the first sector of the staged image, which
// carries eboot, over the bootloader sector.
func (o *Orchestrator) installBootloader() error {
	glog.Infof("Writing boot loader")
	sector := make([]byte, flash.SectorSize)
	if err := o.hw.Flash.Read(o.cfg.Staging.Offset, sector); err != nil {
		return fmt.Errorf("could not read staged boot loader: %w", err)
	}
	if err := flash.EraseRange(o.hw.Flash, 0, flash.SectorSize); err != nil {
		return fmt.Errorf("could not erase boot loader: %w", err)
	}
	w, err := flash.NewWriter(o.hw.Flash, 0)
	if err != nil {
		return err
	}
	if _, err := w.Write(sector); err != nil {
		return fmt.Errorf("could not write boot loader: %w", err)
	}
	if err := w.Finish(); err != nil {
		return fmt.Errorf("could not write boot loader: %w", err)
	}
	return nil
}
