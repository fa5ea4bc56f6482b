package upgrade

import (
	"context"
	"net"

	"github.com/golang/glog"
)

// DualPartition writes the image into the user partition that is not
// running and hands over to the SDK bootloader through the upgrade flag.
func (o *Orchestrator) DualPartition(ctx context.Context, server net.IP) error {
	running := o.hw.System.RunningOffset()
	target := o.cfg.InactivePartition(running)
	glog.Infof("Running from 0x%x, upgrading partition at 0x%x", running, target.Offset)

	if err := o.hw.System.SetUpgradeFlag(FlagStart); err != nil {
		return stage(StateDownloading, err)
	}
	if _, err := o.fetch(ctx, server, target.Path, target); err != nil {
		return err
	}

	o.setState(StateFinalizing)
	if err := o.hw.System.SetUpgradeFlag(FlagFinish); err != nil {
		return stage(StateFinalizing, err)
	}
	return o.reboot()
}
